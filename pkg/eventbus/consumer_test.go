package eventbus

import (
	"encoding/json"
	"testing"
	"time"
)

func consumerEnvelope(t *testing.T, eventID, sagaID string, sequence int64) []byte {
	t.Helper()
	envelope := Envelope{
		EventID:       eventID,
		EventType:     "saga.step_completed",
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersionV1,
		NodeID:        "node-1",
		SagaID:        sagaID,
		OrderingKey:   sagaID,
		Sequence:      sequence,
		Payload:       json.RawMessage(`{"saga_id":"` + sagaID + `"}`),
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestEnvelopeConsumerSuppressesRedelivery(t *testing.T) {
	consumer := NewEnvelopeConsumer(nil)

	raw := consumerEnvelope(t, "evt-1", "saga-1", 1)
	if _, _, duplicate, err := consumer.DecodeAndValidate(raw); err != nil || duplicate {
		t.Fatalf("first delivery: duplicate=%v err=%v", duplicate, err)
	}
	if _, _, duplicate, err := consumer.DecodeAndValidate(raw); err != nil || !duplicate {
		t.Fatalf("redelivery not suppressed: duplicate=%v err=%v", duplicate, err)
	}
}

func TestEnvelopeConsumerSequenceDedupePerSaga(t *testing.T) {
	consumer := NewEnvelopeConsumer(nil)

	if _, _, duplicate, _ := consumer.DecodeAndValidate(consumerEnvelope(t, "evt-2", "saga-1", 2)); duplicate {
		t.Fatalf("sequence 2 treated as duplicate")
	}
	// A different event id at an already-consumed sequence is still stale.
	if _, _, duplicate, _ := consumer.DecodeAndValidate(consumerEnvelope(t, "evt-3", "saga-1", 1)); !duplicate {
		t.Fatalf("stale sequence 1 accepted after sequence 2")
	}
	// Another saga's sequence counter is independent.
	if _, _, duplicate, _ := consumer.DecodeAndValidate(consumerEnvelope(t, "evt-4", "saga-2", 1)); duplicate {
		t.Fatalf("saga-2 sequence 1 treated as duplicate")
	}
}

func TestEnvelopeConsumerValidatesThroughRouter(t *testing.T) {
	router := NewSchemaRouter()
	if err := router.RegisterPayloadSchema(PayloadSchema{
		SchemaVersion: SchemaVersionV1,
		EventType:     "saga.step_completed",
		Required:      []string{"saga_id", "step_type"},
	}); err != nil {
		t.Fatalf("RegisterPayloadSchema() error = %v", err)
	}
	consumer := NewEnvelopeConsumer(router)

	// Payload lacks step_type so schema validation must reject it.
	if _, _, _, err := consumer.DecodeAndValidate(consumerEnvelope(t, "evt-5", "saga-3", 1)); err == nil {
		t.Fatalf("expected schema validation error for missing step_type")
	}
}

func TestEnvelopeConsumerRejectsInvalidJSON(t *testing.T) {
	consumer := NewEnvelopeConsumer(nil)
	if _, _, _, err := consumer.DecodeAndValidate([]byte("{not json")); err == nil {
		t.Fatalf("expected error for invalid envelope json")
	}
}

func TestEnvelopeConsumerDecodesThroughRouter(t *testing.T) {
	router := NewSchemaRouter()
	if err := router.RegisterDecoder(SchemaVersionV1, func(envelope Envelope) (any, error) {
		var payload map[string]any
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	}); err != nil {
		t.Fatalf("RegisterDecoder() error = %v", err)
	}
	consumer := NewEnvelopeConsumer(router)

	_, decoded, duplicate, err := consumer.DecodeAndValidate(consumerEnvelope(t, "evt-6", "saga-4", 1))
	if err != nil || duplicate {
		t.Fatalf("DecodeAndValidate() duplicate=%v err=%v", duplicate, err)
	}
	payload, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded payload type = %T", decoded)
	}
	if payload["saga_id"] != "saga-4" {
		t.Fatalf("decoded saga_id = %v", payload["saga_id"])
	}
}
