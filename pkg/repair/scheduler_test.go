package repair

import (
	"context"
	"testing"
	"time"
)

func TestSchedulerRejectsBadArguments(t *testing.T) {
	if _, err := NewScheduler(nil, nil); err == nil {
		t.Fatal("expected error for nil manager")
	}

	manager, err := NewManager(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	scheduler, err := NewScheduler(manager, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := scheduler.Start(context.Background(), 0); err == nil {
		t.Fatal("expected error for non-positive interval")
	}
}

func TestSchedulerStartIsExclusive(t *testing.T) {
	manager, err := NewManager(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	scheduler, err := NewScheduler(manager, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx, time.Hour); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := scheduler.Start(ctx, time.Hour); err == nil {
		t.Fatal("expected error for second Start while running")
	}
}

func TestSchedulerDrivesDueRepairs(t *testing.T) {
	store := NewMemoryStore()
	resolver := &scriptedResolver{resolve: true}
	manager, err := NewManager(store, WithResolver(resolver))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.CreateFromSaga(ctx, mismatchReport()); err != nil {
		t.Fatalf("CreateFromSaga() error = %v", err)
	}

	scheduler, err := NewScheduler(manager, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := scheduler.Start(ctx, 5*time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		record, err := manager.GetBySaga(ctx, "saga-1")
		if err != nil {
			t.Fatalf("GetBySaga() error = %v", err)
		}
		if record.RepairStatus == StatusResolved {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scheduler did not resolve the due repair in time")
}
