package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/payrail/payrail/pkg/saga"
)

// DefaultTTL is how long a completed record blocks key reuse.
const DefaultTTL = 24 * time.Hour

// Response is the cached outcome of an executed request.
type Response struct {
	Status int
	Body   []byte
}

// MetricsRecorder receives idempotency guard outcomes.
type MetricsRecorder interface {
	RecordIdempotencyHit(endpoint string)
	RecordIdempotencyMiss(endpoint string)
	RecordIdempotencyConflict(endpoint string)
}

type nopMetricsRecorder struct{}

func (nopMetricsRecorder) RecordIdempotencyHit(string)      {}
func (nopMetricsRecorder) RecordIdempotencyMiss(string)     {}
func (nopMetricsRecorder) RecordIdempotencyConflict(string) {}

type noplog struct{}

func (noplog) Debug(string, ...any) {}
func (noplog) Info(string, ...any)  {}
func (noplog) Warn(string, ...any)  {}
func (noplog) Error(string, ...any) {}

// Guard fronts request execution with key and request-hash deduplication.
type Guard struct {
	store   Store
	ttl     time.Duration
	metrics MetricsRecorder
	logger  saga.Logger
	now     func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithTTL overrides the retention window for completed records.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(g *Guard) {
		if metrics != nil {
			g.metrics = metrics
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger saga.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard creates an idempotency guard backed by the given store.
func NewGuard(store Store, options ...Option) (*Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency store cannot be nil")
	}
	g := &Guard{
		store:   store,
		ttl:     DefaultTTL,
		metrics: nopMetricsRecorder{},
		logger:  noplog{},
		now:     time.Now,
	}
	for _, option := range options {
		option(g)
	}
	return g, nil
}

// Execute runs fn at most once per (key, request hash). The second return
// value reports whether the response was replayed from the cache.
//
// A key reused with a different body fails with a ConflictError. A key
// whose original request is still executing fails with ErrInFlight so the
// caller can tell the client to retry later.
func (g *Guard) Execute(ctx context.Context, key, tenantID, endpoint string, body []byte, fn func(ctx context.Context) (*Response, error)) (*Response, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("idempotency key cannot be empty")
	}
	if fn == nil {
		return nil, false, fmt.Errorf("request handler cannot be nil")
	}

	hash := Hash(body)

	existing, err := g.store.Get(ctx, tenantID, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return g.resolveExisting(existing, endpoint, hash)
	}

	provisional := &Record{
		Key:         key,
		TenantID:    tenantID,
		Endpoint:    endpoint,
		RequestHash: hash,
		InFlight:    true,
		ExpiresAt:   g.now().Add(g.ttl),
	}
	created, err := g.store.PutIfAbsent(ctx, provisional)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// Lost the reservation race to a concurrent duplicate.
		existing, err := g.store.Get(ctx, tenantID, key)
		if err != nil {
			return nil, false, err
		}
		return g.resolveExisting(existing, endpoint, hash)
	}

	g.metrics.RecordIdempotencyMiss(endpoint)

	response, err := fn(ctx)
	if err != nil {
		// A failed execution frees the key so the client can retry.
		if delErr := g.store.Delete(ctx, tenantID, key); delErr != nil {
			g.logger.Warn("failed to release idempotency key after error",
				"key", key,
				"tenant_id", tenantID,
				"error", delErr,
			)
		}
		return nil, false, err
	}
	if response == nil {
		response = &Response{}
	}

	completed := provisional.Clone()
	completed.InFlight = false
	completed.ResponseStatus = response.Status
	completed.ResponseBody = response.Body
	completed.ProcessedAt = g.now()
	if err := g.store.Put(ctx, completed); err != nil {
		g.logger.Error("failed to cache idempotent response",
			"key", key,
			"tenant_id", tenantID,
			"error", err,
		)
	}
	return response, false, nil
}

func (g *Guard) resolveExisting(existing *Record, endpoint, hash string) (*Response, bool, error) {
	if existing.RequestHash != hash {
		g.metrics.RecordIdempotencyConflict(endpoint)
		return nil, false, &ConflictError{
			Key:         existing.Key,
			StoredHash:  existing.RequestHash,
			RequestHash: hash,
		}
	}
	if existing.InFlight {
		return nil, false, ErrInFlight
	}
	g.metrics.RecordIdempotencyHit(endpoint)
	g.logger.Debug("replayed cached response for idempotency key",
		"key", existing.Key,
		"tenant_id", existing.TenantID,
	)
	return &Response{Status: existing.ResponseStatus, Body: existing.ResponseBody}, true, nil
}
