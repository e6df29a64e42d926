package eventbus

import (
	"context"
	"time"

	"github.com/payrail/payrail/pkg/saga"
)

// SagaLifecyclePayload is the v1 payload published for every saga
// lifecycle transition.
type SagaLifecyclePayload struct {
	SagaID        string `json:"saga_id"`
	Name          string `json:"name"`
	CorrelationID string `json:"correlation_id"`
	TenantID      string `json:"tenant_id,omitempty"`
	BusinessUnit  string `json:"business_unit,omitempty"`
	Status        string `json:"status"`
	EventType     string `json:"event_type"`
	Version       uint64 `json:"version"`
}

// SagaLifecycleSink bridges orchestrator transitions onto the bus. It
// satisfies the orchestrator's event sink interface; publish failures are
// logged and swallowed because the event log, not the bus, is the source
// of truth.
type SagaLifecycleSink struct {
	publisher *Publisher
	logger    saga.Logger
	timeout   time.Duration
}

// NewSagaLifecycleSink creates a bus-backed lifecycle sink.
func NewSagaLifecycleSink(publisher *Publisher, logger saga.Logger) *SagaLifecycleSink {
	s := &SagaLifecycleSink{
		publisher: publisher,
		logger:    logger,
		timeout:   5 * time.Second,
	}
	if s.logger == nil {
		s.logger = nopSinkLogger{}
	}
	return s
}

type nopSinkLogger struct{}

func (nopSinkLogger) Debug(string, ...any) {}
func (nopSinkLogger) Info(string, ...any)  {}
func (nopSinkLogger) Warn(string, ...any)  {}
func (nopSinkLogger) Error(string, ...any) {}

// SagaTransitioned publishes one lifecycle event for a saga transition.
func (s *SagaLifecycleSink) SagaTransitioned(instance *saga.Instance, eventType saga.EventType) {
	if s.publisher == nil || instance == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.publisher.PublishLifecycleEvent(ctx, LifecycleEvent{
		Domain:    DomainSaga,
		EventType: string(eventType),
		TenantID:  instance.TenantID,
		SagaID:    instance.ID,
		Payload: SagaLifecyclePayload{
			SagaID:        instance.ID,
			Name:          instance.Name,
			CorrelationID: instance.CorrelationID,
			TenantID:      instance.TenantID,
			BusinessUnit:  instance.BusinessUnit,
			Status:        instance.Status.String(),
			EventType:     string(eventType),
			Version:       instance.Version,
		},
	})
	if err != nil {
		s.logger.Warn("failed to publish saga lifecycle event",
			"saga_id", instance.ID,
			"event_type", string(eventType),
			"error", err,
		)
	}
}
