package saga

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ListFilter controls saga list query behavior.
type ListFilter struct {
	Status        string
	TenantID      string
	CorrelationID string
	Limit         int
	Offset        int
}

// Store provides current-state persistence for saga instances. The event
// stream is the source of truth; the store is the queryable projection.
// Save is gated by the version the caller loaded: a stale writer gets
// ErrVersionConflict and must reload, which is how at-most-one logical
// worker per saga is enforced without a lock manager.
type Store interface {
	Save(ctx context.Context, instance *Instance, expectedVersion uint64) error
	Get(ctx context.Context, sagaID string) (*Instance, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*Instance, error)
	List(ctx context.Context, filter ListFilter) ([]*Instance, int, error)
	Delete(ctx context.Context, sagaID string) error
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewMemoryStore creates an in-memory saga store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*Instance),
	}
}

// Save saves a saga instance if the stored version matches.
func (s *MemoryStore) Save(_ context.Context, instance *Instance, expectedVersion uint64) error {
	if instance == nil {
		return fmt.Errorf("saga instance cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.instances[instance.ID]; ok && existing.Version != expectedVersion {
		return &VersionConflictError{SagaID: instance.ID, Expected: expectedVersion, Actual: existing.Version}
	}
	s.instances[instance.ID] = instance.Clone()
	return nil
}

// Get gets one saga instance by id.
func (s *MemoryStore) Get(_ context.Context, sagaID string) (*Instance, error) {
	s.mu.RLock()
	instance, ok := s.instances[sagaID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSagaNotFound
	}
	return instance.Clone(), nil
}

// GetByCorrelationID finds the saga created for a correlation id.
func (s *MemoryStore) GetByCorrelationID(_ context.Context, correlationID string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, instance := range s.instances {
		if instance.CorrelationID == correlationID {
			return instance.Clone(), nil
		}
	}
	return nil, ErrSagaNotFound
}

// List lists saga instances with optional filters and pagination.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Instance, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Instance, 0, len(s.instances))
	for _, instance := range s.instances {
		if !matchesFilter(instance, filter) {
			continue
		}
		all = append(all, instance.Clone())
	}
	// Deterministic order keeps pagination stable across calls.
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)

	offset, end := pageBounds(filter.Offset, filter.Limit, total)
	return all[offset:end], total, nil
}

// Delete removes one saga instance.
func (s *MemoryStore) Delete(_ context.Context, sagaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[sagaID]; !ok {
		return ErrSagaNotFound
	}
	delete(s.instances, sagaID)
	return nil
}

func matchesFilter(instance *Instance, filter ListFilter) bool {
	if filter.Status != "" && instance.Status.String() != filter.Status {
		return false
	}
	if filter.TenantID != "" && instance.TenantID != filter.TenantID {
		return false
	}
	if filter.CorrelationID != "" && instance.CorrelationID != filter.CorrelationID {
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
