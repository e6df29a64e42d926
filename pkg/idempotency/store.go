package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists idempotency records. PutIfAbsent must be atomic so that
// concurrent duplicates race on the store, not in the guard.
type Store interface {
	// PutIfAbsent stores the record unless a live record already holds the
	// key. It returns true when the record was stored.
	PutIfAbsent(ctx context.Context, record *Record) (bool, error)
	// Get returns the live record for a key, or ErrNotFound. Expired
	// records count as absent.
	Get(ctx context.Context, tenantID, key string) (*Record, error)
	// Put overwrites the record for a key.
	Put(ctx context.Context, record *Record) error
	// Delete removes the record for a key.
	Delete(ctx context.Context, tenantID, key string) error
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore creates an in-memory idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

func recordKey(tenantID, key string) string {
	return tenantID + ":" + key
}

// PutIfAbsent stores the record unless a live one already holds the key.
func (s *MemoryStore) PutIfAbsent(_ context.Context, record *Record) (bool, error) {
	if record == nil {
		return false, fmt.Errorf("idempotency record cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordKey(record.TenantID, record.Key)
	if existing, ok := s.records[id]; ok && !existing.Expired(s.now()) {
		return false, nil
	}
	s.records[id] = record.Clone()
	return true, nil
}

// Get returns the live record for a key.
func (s *MemoryStore) Get(_ context.Context, tenantID, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordKey(tenantID, key)
	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if record.Expired(s.now()) {
		delete(s.records, id)
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// Put overwrites the record for a key.
func (s *MemoryStore) Put(_ context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("idempotency record cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(record.TenantID, record.Key)] = record.Clone()
	return nil
}

// Delete removes the record for a key.
func (s *MemoryStore) Delete(_ context.Context, tenantID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordKey(tenantID, key))
	return nil
}
