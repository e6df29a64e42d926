package repair

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func openTestBadger(t testing.TB) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func storedRepair(t *testing.T, store Store, sagaID string, repairType Type) *TransactionRepair {
	t.Helper()

	report := mismatchReport()
	report.SagaID = sagaID
	record, err := New(report)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	record.RepairType = repairType
	if err := store.Save(context.Background(), record, 0); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return record
}

func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	record := storedRepair(t, store, "saga-1", TypeDebitCreditMismatch)
	if record.Version != 1 {
		t.Fatalf("version after first save = %d, want 1", record.Version)
	}

	loaded, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.ParentTransactionID != "saga-1" || loaded.RepairStatus != StatusPending {
		t.Fatalf("loaded = %s/%s", loaded.ParentTransactionID, loaded.RepairStatus)
	}

	if _, err := store.Get(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Stale writers lose.
	stale := loaded.Clone()
	if err := store.Save(ctx, stale, 7); err == nil {
		t.Fatal("expected version conflict for stale save")
	}

	if err := loaded.AssignTo("ops-alice"); err != nil {
		t.Fatalf("AssignTo() error = %v", err)
	}
	if err := store.Save(ctx, loaded, 1); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if loaded.Version != 2 {
		t.Fatalf("version after second save = %d, want 2", loaded.Version)
	}

	byParent, err := store.GetByParent(ctx, "saga-1")
	if err != nil {
		t.Fatalf("GetByParent() error = %v", err)
	}
	if byParent.ID != record.ID || byParent.RepairStatus != StatusAssigned {
		t.Fatalf("by parent = %s/%s", byParent.ID, byParent.RepairStatus)
	}

	if err := store.Delete(ctx, record.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, record.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := store.GetByParent(ctx, "saga-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected parent index cleaned, got %v", err)
	}
}

func runStoreListContract(t *testing.T, store Store) {
	ctx := context.Background()

	first := storedRepair(t, store, "saga-1", TypeDebitCreditMismatch)
	second := storedRepair(t, store, "saga-2", TypeCreditTimeout)
	third := storedRepair(t, store, "saga-3", TypeCreditFailed)

	all, total, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("list = %d/%d, want 3/3", len(all), total)
	}

	pending, total, err := store.List(ctx, ListFilter{Status: string(StatusPending)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 || len(pending) != 3 {
		t.Fatalf("pending list = %d/%d", len(pending), total)
	}

	// Status index follows workflow transitions.
	assigned := first.Clone()
	if err := assigned.AssignTo("ops-alice"); err != nil {
		t.Fatalf("AssignTo() error = %v", err)
	}
	if err := store.Save(ctx, assigned, first.Version); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	pending, _, err = store.List(ctx, ListFilter{Status: string(StatusPending)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending after assignment = %d, want 2", len(pending))
	}
	assignedList, _, err := store.List(ctx, ListFilter{AssignedTo: "ops-alice"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(assignedList) != 1 || assignedList[0].ID != first.ID {
		t.Fatalf("assignee filter = %d", len(assignedList))
	}

	byType, _, err := store.List(ctx, ListFilter{RepairType: string(TypeCreditTimeout)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(byType) != 1 || byType[0].ID != second.ID {
		t.Fatalf("type filter = %d", len(byType))
	}

	page, total, err := store.List(ctx, ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("page = %d/%d, want 2 of 3", len(page), total)
	}
	rest, _, err := store.List(ctx, ListFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("second page = %d, want 1", len(rest))
	}
	if rest[0].ID == page[0].ID || rest[0].ID == page[1].ID {
		t.Fatal("pages overlap")
	}
	if third.ID == second.ID {
		t.Fatal("fixture ids collide")
	}
}

func runStoreListDueContract(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	ready := storedRepair(t, store, "saga-1", TypeCreditTimeout)
	waiting := storedRepair(t, store, "saga-2", TypeCreditTimeout)
	exhausted := storedRepair(t, store, "saga-3", TypeCreditTimeout)

	future := now.Add(time.Hour)
	waitingClone := waiting.Clone()
	waitingClone.NextRetryAt = &future
	if err := store.Save(ctx, waitingClone, waiting.Version); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	exhaustedClone := exhausted.Clone()
	exhaustedClone.RetryCount = exhaustedClone.MaxRetries
	if err := store.Save(ctx, exhaustedClone, exhausted.Version); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	due, err := store.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(due) != 1 || due[0].ID != ready.ID {
		t.Fatalf("due = %d records, want only the ready one", len(due))
	}
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreList(t *testing.T) {
	runStoreListContract(t, NewMemoryStore())
}

func TestMemoryStoreListDue(t *testing.T) {
	runStoreListDueContract(t, NewMemoryStore())
}

func TestBadgerStoreContract(t *testing.T) {
	store, err := NewBadgerStore(openTestBadger(t))
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	runStoreContract(t, store)
}

func TestBadgerStoreList(t *testing.T) {
	store, err := NewBadgerStore(openTestBadger(t))
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	runStoreListContract(t, store)
}

func TestBadgerStoreListDue(t *testing.T) {
	store, err := NewBadgerStore(openTestBadger(t))
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	runStoreListDueContract(t, store)
}

func TestListOrdersByPriority(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	low := storedRepair(t, store, "saga-low", TypeManualReview)
	critical := storedRepair(t, store, "saga-critical", TypeDebitCreditMismatch)
	normal := storedRepair(t, store, "saga-normal", TypeCreditFailed)

	lowClone := low.Clone()
	lowClone.Priority = PriorityLow
	if err := store.Save(ctx, lowClone, low.Version); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	normalClone := normal.Clone()
	normalClone.Priority = PriorityNormal
	if err := store.Save(ctx, normalClone, normal.Version); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	records, _, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if records[0].ID != critical.ID {
		t.Fatalf("most urgent first: got %s", records[0].RepairType)
	}
	if records[len(records)-1].ID != low.ID {
		t.Fatalf("least urgent last: got %s", records[len(records)-1].RepairType)
	}
}
