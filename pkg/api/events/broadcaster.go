// Package events fans saga lifecycle events out to in-process
// subscribers, e.g. the websocket stream.
package events

import (
	"strings"
	"sync"
	"time"

	"github.com/payrail/payrail/pkg/saga"
)

// Event is the canonical event payload broadcast to websocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Broadcast broadcasts a generic event to all subscribers.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]chan Event, 0, len(b.subscribers))
	for ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop on overflow to keep broadcasters non-blocking.
		}
	}
}

// BroadcastSagaTransition emits a saga lifecycle event.
func (b *Broadcaster) BroadcastSagaTransition(
	sagaID, name, correlationID, status, eventType string,
	updatedAt time.Time,
) {
	b.Broadcast(Event{
		Type: "saga." + strings.TrimPrefix(eventType, "saga_"),
		Payload: map[string]any{
			"saga_id":        sagaID,
			"name":           name,
			"correlation_id": correlationID,
			"status":         status,
			"updated_at":     updatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
}

// BroadcastRepairCreated emits a repair handoff event.
func (b *Broadcaster) BroadcastRepairCreated(
	repairID, sagaID, repairType string,
	priority int,
	createdAt time.Time,
) {
	b.Broadcast(Event{
		Type: "repair.created",
		Payload: map[string]any{
			"repair_id":   repairID,
			"saga_id":     sagaID,
			"repair_type": repairType,
			"priority":    priority,
			"created_at":  createdAt.UTC().Format(time.RFC3339Nano),
		},
	})
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}

// SagaStream adapts the broadcaster to the orchestrator's event sink.
type SagaStream struct {
	broadcaster *Broadcaster
}

// NewSagaStream creates the orchestrator-facing adapter.
func NewSagaStream(b *Broadcaster) *SagaStream {
	return &SagaStream{broadcaster: b}
}

// SagaTransitioned implements saga.EventSink.
func (s *SagaStream) SagaTransitioned(instance *saga.Instance, eventType saga.EventType) {
	if s.broadcaster == nil || instance == nil {
		return
	}
	s.broadcaster.BroadcastSagaTransition(
		instance.ID,
		instance.Name,
		instance.CorrelationID,
		instance.Status.String(),
		string(eventType),
		instance.UpdatedAt,
	)
}
