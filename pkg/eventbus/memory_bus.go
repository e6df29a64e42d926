package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Message is a delivered event-bus message.
type Message struct {
	Subject   string
	Payload   []byte
	Timestamp time.Time
}

// Subscription represents a stream subscription.
type Subscription struct {
	id      uint64
	pattern string
	ch      chan Message
	bus     *MemoryBus
	once    sync.Once
}

// C returns the read-only message channel.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Close removes the subscription and closes its channel.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.bus.unsubscribe(s.id)
		close(s.ch)
	})
	return nil
}

// MemoryBus is an in-memory pub/sub transport. It backs tests, the local
// single-node deployment, and the websocket bridge; a broker-backed
// Transport slots in for multi-node deployments.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
}

// NewMemoryBus creates an in-memory event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[uint64]*Subscription),
	}
}

// Publish publishes to all subscriptions whose pattern matches the subject.
// Slow subscribers drop messages rather than block the publisher.
func (b *MemoryBus) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subject == "" {
		return fmt.Errorf("eventbus: subject cannot be empty")
	}

	msg := Message{
		Subject:   subject,
		Payload:   append([]byte(nil), payload...),
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !subjectMatches(sub.pattern, subject) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe subscribes by subject pattern. Patterns support "*" for one
// segment and a trailing ">" for the rest of the subject.
func (b *MemoryBus) Subscribe(pattern string, buffer int) (*Subscription, error) {
	if pattern == "" {
		return nil, fmt.Errorf("eventbus: subscription pattern cannot be empty")
	}
	if buffer <= 0 {
		buffer = 32
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		pattern: pattern,
		ch:      make(chan Message, buffer),
		bus:     b,
	}
	b.subs[sub.id] = sub
	return sub, nil
}

func (b *MemoryBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// subjectMatches supports exact, "*" segment, and ">" suffix wildcards.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if strings.HasSuffix(pattern, ".>") {
		prefix := strings.TrimSuffix(pattern, ".>")
		if prefix == "" {
			return true
		}
		return subject == prefix || strings.HasPrefix(subject, prefix+".")
	}

	patternParts := strings.Split(pattern, ".")
	subjectParts := strings.Split(subject, ".")
	if len(patternParts) != len(subjectParts) {
		return false
	}
	for i := range patternParts {
		if patternParts[i] == "*" {
			continue
		}
		if patternParts[i] != subjectParts[i] {
			return false
		}
	}
	return true
}
