package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/payrail/payrail/pkg/saga"
)

func TestSagaLifecycleSinkPublishesTransition(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(DomainWildcardSubject(DomainSaga), 4)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	publisher, err := NewPublisher("node-1", bus, DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	sink := NewSagaLifecycleSink(publisher, nil)

	instance := &saga.Instance{
		ID:            "saga-1",
		Name:          "transfer",
		CorrelationID: "transfer-123",
		TenantID:      "tenant-a",
		Status:        saga.StatusCompleted,
		Version:       9,
	}
	sink.SagaTransitioned(instance, saga.EventSagaCompleted)

	select {
	case msg := <-sub.C():
		var env Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			t.Fatalf("json.Unmarshal() error = %v", err)
		}
		if env.SagaID != "saga-1" || env.TenantID != "tenant-a" {
			t.Fatalf("envelope identity = %s/%s", env.SagaID, env.TenantID)
		}
		if env.OrderingKey != "saga-1" || env.Sequence != 1 {
			t.Fatalf("ordering = %s/%d", env.OrderingKey, env.Sequence)
		}
		var payload SagaLifecyclePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			t.Fatalf("payload unmarshal error = %v", err)
		}
		if payload.Status != "completed" || payload.Version != 9 || payload.CorrelationID != "transfer-123" {
			t.Fatalf("payload = %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no lifecycle event published")
	}
}

func TestSagaLifecycleSinkToleratesNilPublisher(t *testing.T) {
	sink := NewSagaLifecycleSink(nil, nil)
	sink.SagaTransitioned(&saga.Instance{ID: "saga-1"}, saga.EventSagaStarted)
}
