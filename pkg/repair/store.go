package repair

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ListFilter controls repair list query behavior.
type ListFilter struct {
	Status     string
	RepairType string
	AssignedTo string
	TenantID   string
	Limit      int
	Offset     int
}

// Store persists transaction repair records. Save is gated by the version
// the caller loaded, matching the saga store's optimistic write rule.
type Store interface {
	Save(ctx context.Context, record *TransactionRepair, expectedVersion uint64) error
	Get(ctx context.Context, id string) (*TransactionRepair, error)
	GetByParent(ctx context.Context, sagaID string) (*TransactionRepair, error)
	List(ctx context.Context, filter ListFilter) ([]*TransactionRepair, int, error)
	ListDue(ctx context.Context, now time.Time) ([]*TransactionRepair, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*TransactionRepair
}

// NewMemoryStore creates an in-memory repair store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*TransactionRepair)}
}

// Save saves a repair record if the stored version matches.
func (s *MemoryStore) Save(_ context.Context, record *TransactionRepair, expectedVersion uint64) error {
	if record == nil {
		return fmt.Errorf("repair record cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[record.ID]; ok && existing.Version != expectedVersion {
		return fmt.Errorf("repair %s version %d does not match expected %d", record.ID, existing.Version, expectedVersion)
	}
	saved := record.Clone()
	saved.Version = expectedVersion + 1
	record.Version = saved.Version
	s.records[record.ID] = saved
	return nil
}

// Get gets one repair record by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*TransactionRepair, error) {
	s.mu.RLock()
	record, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// GetByParent finds the repair record created for a saga.
func (s *MemoryStore) GetByParent(_ context.Context, sagaID string) (*TransactionRepair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records {
		if record.ParentTransactionID == sagaID {
			return record.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// List lists repair records with optional filters and pagination, most
// urgent first.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*TransactionRepair, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*TransactionRepair, 0, len(s.records))
	for _, record := range s.records {
		if !matchesFilter(record, filter) {
			continue
		}
		all = append(all, record.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority < all[j].Priority
		}
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	total := len(all)

	offset, end := pageBounds(filter.Offset, filter.Limit, total)
	return all[offset:end], total, nil
}

// ListDue returns pending repairs whose retry window has opened.
func (s *MemoryStore) ListDue(_ context.Context, now time.Time) ([]*TransactionRepair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]*TransactionRepair, 0)
	for _, record := range s.records {
		if record.CanRetry(now) {
			due = append(due, record.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

// Delete removes one repair record.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func matchesFilter(record *TransactionRepair, filter ListFilter) bool {
	if filter.Status != "" && string(record.RepairStatus) != filter.Status {
		return false
	}
	if filter.RepairType != "" && string(record.RepairType) != filter.RepairType {
		return false
	}
	if filter.AssignedTo != "" && record.AssignedTo != filter.AssignedTo {
		return false
	}
	if filter.TenantID != "" && record.TenantID != filter.TenantID {
		return false
	}
	return true
}

func pageBounds(offset, limit, total int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return offset, end
}
