// Package downstream provides the collaborator client used to invoke
// debit, credit and clearing services, and their compensating actions.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// InvokeStatus is the outcome reported by a collaborator.
type InvokeStatus string

const (
	InvokeStatusSuccess InvokeStatus = "SUCCESS"
	InvokeStatusFailure InvokeStatus = "FAILURE"
)

// Request describes one collaborator invocation. Reference is the step id
// the collaborator keys its own idempotency on, so a retried request is
// not applied twice downstream.
type Request struct {
	StepType    string         `json:"step_type"`
	ServiceName string         `json:"service_name"`
	Endpoint    string         `json:"endpoint"`
	Reference   string         `json:"reference"`
	Input       map[string]any `json:"input,omitempty"`
}

// Response is a collaborator's reply.
type Response struct {
	Status       InvokeStatus   `json:"status"`
	Output       map[string]any `json:"output,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Failed reports whether the collaborator returned an explicit failure.
func (r *Response) Failed() bool {
	return r != nil && r.Status != InvokeStatusSuccess
}

// Invoker invokes one collaborator endpoint under the caller's deadline.
// The deadline arrives through ctx; implementations must not block past it.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// HTTPInvokerOption customizes HTTPInvoker initialization.
type HTTPInvokerOption func(inv *HTTPInvoker)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) HTTPInvokerOption {
	return func(inv *HTTPInvoker) {
		if client != nil {
			inv.client = client
		}
	}
}

// WithRateLimit bounds requests per second per service name. Zero burst
// defaults to the ceiling of the rate.
func WithRateLimit(perSecond float64, burst int) HTTPInvokerOption {
	return func(inv *HTTPInvoker) {
		if perSecond > 0 {
			inv.limit = rate.Limit(perSecond)
			if burst <= 0 {
				burst = int(perSecond) + 1
			}
			inv.burst = burst
		}
	}
}

// HTTPInvoker posts JSON invocation requests to collaborator endpoints.
// Retry policy lives with the caller (the step executor persists attempt
// counts between tries); the invoker only performs single attempts, rate
// limited per service.
type HTTPInvoker struct {
	client *http.Client
	limit  rate.Limit
	burst  int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPInvoker creates an HTTP collaborator invoker.
func NewHTTPInvoker(opts ...HTTPInvokerOption) *HTTPInvoker {
	inv := &HTTPInvoker{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		limit:    rate.Inf,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(inv)
		}
	}
	return inv
}

// Invoke posts the request body to the endpoint and decodes the reply.
func (inv *HTTPInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Endpoint == "" {
		return nil, fmt.Errorf("downstream: endpoint cannot be empty")
	}
	if req.Reference == "" {
		return nil, fmt.Errorf("downstream: reference cannot be empty")
	}

	if err := inv.limiterFor(req.ServiceName).Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("downstream: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("downstream: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Reference-ID", req.Reference)

	httpResp, err := inv.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("downstream: decode response: %w", err)
	}

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("downstream: %s returned %d: %s", req.ServiceName, httpResp.StatusCode, resp.ErrorMessage)
	}
	if httpResp.StatusCode >= 400 && resp.Status == "" {
		resp.Status = InvokeStatusFailure
		if resp.ErrorCode == "" {
			resp.ErrorCode = fmt.Sprintf("HTTP_%d", httpResp.StatusCode)
		}
	}

	return &resp, nil
}

func (inv *HTTPInvoker) limiterFor(serviceName string) *rate.Limiter {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	limiter, ok := inv.limiters[serviceName]
	if !ok {
		burst := inv.burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(inv.limit, burst)
		inv.limiters[serviceName] = limiter
	}
	return limiter
}
