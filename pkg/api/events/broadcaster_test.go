package events

import (
	"testing"
	"time"

	"github.com/payrail/payrail/pkg/saga"
)

func TestBroadcaster_SubscribeBroadcastUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)

	b.Broadcast(Event{
		Type: "saga.completed",
		Payload: map[string]any{
			"saga_id": "saga-1",
		},
	})

	select {
	case event := <-ch:
		if event.Type != "saga.completed" {
			t.Fatalf("type = %q, want saga.completed", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast event")
	}

	b.Unsubscribe(ch)
}

func TestBroadcaster_SagaAndRepairHelpers(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(2)

	b.BroadcastSagaTransition("saga-1", "transfer", "corr-1", "running", "saga_started", time.Now().UTC())
	b.BroadcastRepairCreated("repair-1", "saga-1", "CREDIT_FAILED", 3, time.Now().UTC())

	var types []string
	for len(types) < 2 {
		select {
		case event := <-ch:
			types = append(types, event.Type)
		case <-time.After(time.Second):
			t.Fatalf("expected 2 helper events, got %d", len(types))
		}
	}
	if types[0] != "saga.started" {
		t.Fatalf("first type = %q, want saga.started", types[0])
	}
	if types[1] != "repair.created" {
		t.Fatalf("second type = %q, want repair.created", types[1])
	}
}

func TestSagaStream_ForwardsTransitions(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)
	stream := NewSagaStream(b)

	def, err := saga.New("stream-transfer").
		WithCorrelationID("corr-9").
		Step(saga.StepTypeDebit, "ledger", "/debit").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	instance, err := saga.NewInstance("saga-stream-1", def)
	if err != nil {
		t.Fatalf("NewInstance() error = %v", err)
	}

	stream.SagaTransitioned(instance, saga.EventSagaStarted)

	select {
	case event := <-ch:
		if event.Type != "saga.started" {
			t.Fatalf("type = %q, want saga.started", event.Type)
		}
		payload, ok := event.Payload.(map[string]any)
		if !ok {
			t.Fatalf("payload type = %T, want map", event.Payload)
		}
		if payload["saga_id"] != instance.ID {
			t.Fatalf("saga_id = %v, want %s", payload["saga_id"], instance.ID)
		}
		if payload["correlation_id"] != "corr-9" {
			t.Fatalf("correlation_id = %v, want corr-9", payload["correlation_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for forwarded transition")
	}
}
