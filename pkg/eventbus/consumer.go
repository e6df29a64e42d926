package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
)

// EnvelopeConsumer validates and routes envelopes and suppresses duplicate
// deliveries. The bus is at-least-once, so dedupe is sequence-based per
// ordering key: a redelivered envelope whose sequence is not beyond the
// highest already seen for its saga is dropped.
type EnvelopeConsumer struct {
	router *SchemaRouter

	mu           sync.Mutex
	highestSeen  map[string]int64
	seenEventIDs map[string]struct{}
}

// NewEnvelopeConsumer creates a schema-aware consumer.
func NewEnvelopeConsumer(router *SchemaRouter) *EnvelopeConsumer {
	return &EnvelopeConsumer{
		router:       router,
		highestSeen:  make(map[string]int64),
		seenEventIDs: make(map[string]struct{}),
	}
}

// DecodeAndValidate decodes raw event bytes, validates schema routing, and
// suppresses duplicates.
func (c *EnvelopeConsumer) DecodeAndValidate(raw []byte) (Envelope, any, bool, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, nil, false, fmt.Errorf("eventbus: invalid envelope json: %w", err)
	}

	if c.router != nil {
		if err := c.router.ValidateIncoming(envelope); err != nil {
			return Envelope{}, nil, false, err
		}
	}

	if c.markSeen(envelope) {
		return envelope, nil, true, nil
	}

	var decoded any = envelope
	var err error
	if c.router != nil {
		decoded, err = c.router.Decode(envelope)
		if err != nil {
			return Envelope{}, nil, false, err
		}
	}
	return envelope, decoded, false, nil
}

// markSeen records the envelope and reports whether it was a duplicate.
// Sequence ordering governs per-key dedupe; the event-id set catches
// redeliveries of the exact same message when sequences are absent.
func (c *EnvelopeConsumer) markSeen(envelope Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if envelope.EventID != "" {
		if _, exists := c.seenEventIDs[envelope.EventID]; exists {
			return true
		}
	}
	if envelope.OrderingKey != "" && envelope.Sequence > 0 {
		if envelope.Sequence <= c.highestSeen[envelope.OrderingKey] {
			return true
		}
		c.highestSeen[envelope.OrderingKey] = envelope.Sequence
	}
	if envelope.EventID != "" {
		c.seenEventIDs[envelope.EventID] = struct{}{}
	}
	return false
}
