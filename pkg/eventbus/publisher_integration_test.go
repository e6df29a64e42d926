package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestIntegration_PublishConsumeOrderingAndDedup(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(SubjectPrefix+".>", 16)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	publisher, err := NewPublisher("node-1", bus, DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := publisher.PublishLifecycleEvent(ctx, LifecycleEvent{
			Domain:    DomainSaga,
			EventType: "saga_running",
			TenantID:  "tenant-a",
			SagaID:    "saga-1",
			Payload: map[string]any{
				"saga_id": "saga-1",
				"step":    i + 1,
			},
		})
		if err != nil {
			t.Fatalf("PublishLifecycleEvent() error = %v", err)
		}
	}

	sequences := make([]int64, 0, 3)
	var firstRaw []byte
	for len(sequences) < 3 {
		select {
		case msg := <-sub.C():
			if firstRaw == nil {
				firstRaw = append([]byte(nil), msg.Payload...)
			}
			var env Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				t.Fatalf("json.Unmarshal() error = %v", err)
			}
			sequences = append(sequences, env.Sequence)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for messages, got=%d", len(sequences))
		}
	}
	if sequences[0] != 1 || sequences[1] != 2 || sequences[2] != 3 {
		t.Fatalf("expected sequence [1 2 3], got %v", sequences)
	}

	consumer := NewEnvelopeConsumer(nil)
	_, _, duplicate, err := consumer.DecodeAndValidate(firstRaw)
	if err != nil {
		t.Fatalf("DecodeAndValidate() error = %v", err)
	}
	if duplicate {
		t.Fatal("expected first decode not duplicate")
	}

	_, _, duplicate, err = consumer.DecodeAndValidate(firstRaw)
	if err != nil {
		t.Fatalf("DecodeAndValidate() error = %v", err)
	}
	if !duplicate {
		t.Fatal("expected second decode duplicate=true")
	}
}

func TestConsumerDropsStaleSequenceRedelivery(t *testing.T) {
	consumer := NewEnvelopeConsumer(nil)

	deliver := func(eventID string, sequence int64) bool {
		t.Helper()
		raw, err := json.Marshal(Envelope{
			EventID:     eventID,
			EventType:   "saga_running",
			NodeID:      "node-1",
			OrderingKey: "saga-1",
			Sequence:    sequence,
			Payload:     json.RawMessage(`{}`),
		})
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		_, _, duplicate, err := consumer.DecodeAndValidate(raw)
		if err != nil {
			t.Fatalf("DecodeAndValidate() error = %v", err)
		}
		return duplicate
	}

	if deliver("ev-1", 1) {
		t.Fatal("sequence 1 must not be a duplicate")
	}
	if deliver("ev-2", 2) {
		t.Fatal("sequence 2 must not be a duplicate")
	}

	// A broker redelivery carries a fresh event id but a stale sequence.
	if !deliver("ev-3", 2) {
		t.Fatal("stale sequence must be dropped")
	}
	if !deliver("ev-4", 1) {
		t.Fatal("older stale sequence must be dropped")
	}

	if deliver("ev-5", 3) {
		t.Fatal("next sequence must pass after redeliveries")
	}
}

func TestSubjectRouting(t *testing.T) {
	bus := NewMemoryBus()
	sagaSub, err := bus.Subscribe(DomainWildcardSubject(DomainSaga), 4)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sagaSub.Close()
	repairSub, err := bus.Subscribe(DomainWildcardSubject(DomainRepair), 4)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer repairSub.Close()

	ctx := context.Background()
	if err := bus.Publish(ctx, SagaSubject("tenant-a", "saga_completed"), []byte(`{}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := bus.Publish(ctx, RepairSubject("tenant-a", "repair_created"), []byte(`{}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-sagaSub.C():
		if msg.Subject != SagaSubject("tenant-a", "saga_completed") {
			t.Fatalf("saga subscriber got %s", msg.Subject)
		}
	case <-time.After(time.Second):
		t.Fatal("saga subscriber received nothing")
	}
	select {
	case msg := <-repairSub.C():
		if msg.Subject != RepairSubject("tenant-a", "repair_created") {
			t.Fatalf("repair subscriber got %s", msg.Subject)
		}
	case <-time.After(time.Second):
		t.Fatal("repair subscriber received nothing")
	}

	select {
	case msg := <-sagaSub.C():
		t.Fatalf("saga subscriber must not see repair traffic, got %s", msg.Subject)
	default:
	}
}
