package saga

import (
	"context"
	"sync"
)

// EventStore is the append-only, per-saga event log. Appends are gated by
// the caller's expected version: a writer holding a stale version loses
// with ErrVersionConflict instead of silently overwriting, and a
// redelivered bus message replayed against an advanced stream is rejected
// the same way.
type EventStore interface {
	// Append writes one event at version expectedVersion+1 and returns
	// the assigned version.
	Append(ctx context.Context, event Event, expectedVersion uint64) (uint64, error)

	// List returns all events for a saga in strict version order.
	List(ctx context.Context, sagaID string) ([]Event, error)

	// CurrentVersion returns the version of the last appended event, or 0.
	CurrentVersion(ctx context.Context, sagaID string) (uint64, error)

	// DeleteBySagaID removes the stream of an archived saga.
	DeleteBySagaID(ctx context.Context, sagaID string) error

	Close() error
}

// MemoryEventStore is an in-memory EventStore for tests and local runs.
type MemoryEventStore struct {
	mu      sync.RWMutex
	streams map[string][]Event
}

// NewMemoryEventStore creates an in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		streams: make(map[string][]Event),
	}
}

// Append appends one event under the optimistic version gate.
func (s *MemoryEventStore) Append(_ context.Context, event Event, expectedVersion uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[event.SagaID]
	current := uint64(len(stream))
	if current != expectedVersion {
		return 0, &VersionConflictError{SagaID: event.SagaID, Expected: expectedVersion, Actual: current}
	}

	event.Version = current + 1
	s.streams[event.SagaID] = append(stream, event)
	return event.Version, nil
}

// List returns the event stream in version order.
func (s *MemoryEventStore) List(_ context.Context, sagaID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[sagaID]
	events := make([]Event, len(stream))
	copy(events, stream)
	return events, nil
}

// CurrentVersion returns the last appended version for a saga.
func (s *MemoryEventStore) CurrentVersion(_ context.Context, sagaID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.streams[sagaID])), nil
}

// DeleteBySagaID removes a saga's stream.
func (s *MemoryEventStore) DeleteBySagaID(_ context.Context, sagaID string) error {
	s.mu.Lock()
	delete(s.streams, sagaID)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryEventStore) Close() error { return nil }
