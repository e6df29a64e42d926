package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
}

func TestMetricsHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)

	// Record some metrics
	m.RecordSagaExecution("completed")
	m.RecordSagaExecution("failed")
	m.RecordSagaDuration("completed", 5*time.Second)

	// Create test request
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	// Serve metrics
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if body == "" {
		t.Error("Expected non-empty metrics output")
	}

	// Check for expected metrics
	expectedMetrics := []string{
		"saga_executions_total",
		"saga_duration_seconds",
	}

	for _, metric := range expectedMetrics {
		if !contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when disabled, got %d", w.Code)
	}
}

func TestStartServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Port = 19091 // Use different port for testing

	m := NewManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		err := m.StartServer(ctx, cfg.Port, cfg.Path)
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	// Try to fetch metrics
	resp, err := http.Get("http://localhost:19091/metrics")
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	// Cancel context to stop server
	cancel()

	// Check for errors
	select {
	case err := <-errCh:
		t.Errorf("Server error: %v", err)
	case <-time.After(1 * time.Second):
		// Server stopped cleanly
	}
}

func TestNoOpManager(t *testing.T) {
	m := NoOpManager()

	if m.Enabled() {
		t.Error("NoOpManager should not be enabled")
	}

	// These should not panic
	m.RecordSagaExecution("completed")
	m.RecordSagaDuration("completed", time.Second)
	m.IncActiveSagas()
	m.DecActiveSagas()
	m.RecordStepAttempt("debit", "success")
	m.RecordStepDuration("debit", time.Second)
	m.RecordCompensation("compensated")
	m.RecordCompensationDuration(time.Second)
	m.RecordCompensationRetry()
	m.RecordRepairHandoff("compensation_failure")
	m.RecordRecovery("resumed")
	m.RecordRepairCreated("compensation_failure")
	m.RecordRepairClosed("resolved")
	m.RecordRepairRetry()
	m.RecordRepairEscalated()
	m.RecordIdempotencyHit("/api/v1/sagas")
	m.RecordIdempotencyMiss("/api/v1/sagas")
	m.RecordIdempotencyConflict("/api/v1/sagas")
	m.RecordPublish("success")
	m.RecordRetry()
	m.SetDegradedMode(true)
	m.RecordOutage()
	m.RecordRecovered()
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > len(substr) &&
		(s[:len(substr)] == substr || contains(s[1:], substr)))
}

func BenchmarkRecordSagaExecution(b *testing.B) {
	m := NewManager(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordSagaExecution("completed")
	}
}

func BenchmarkRecordSagaDuration(b *testing.B) {
	m := NewManager(DefaultConfig())
	d := 100 * time.Millisecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordSagaDuration("completed", d)
	}
}

func BenchmarkRecordStepAttempt(b *testing.B) {
	m := NewManager(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordStepAttempt("debit", "success")
	}
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	m := NewManager(DefaultConfig())
	d := 5 * time.Millisecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordHTTPRequest("GET", "/api/v1/sagas", "200", d)
	}
}

func BenchmarkNoOpRecording(b *testing.B) {
	m := NoOpManager()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordSagaExecution("completed")
		m.RecordStepAttempt("debit", "success")
		m.RecordPublish("success")
	}
}

func TestMetricsMemoryUsage(t *testing.T) {
	m := NewManager(DefaultConfig())

	// Simulate heavy metrics recording with bounded label values
	statuses := []string{"completed", "failed", "compensated", "cancelled"}
	steps := []string{"debit", "credit", "clearing_submit"}
	methods := []string{"GET", "POST", "PUT", "DELETE"}
	paths := []string{"/api/v1/sagas", "/api/v1/sagas/:id", "/health", "/ready"}

	for i := 0; i < 100000; i++ {
		m.RecordSagaExecution(statuses[i%len(statuses)])
		m.RecordSagaDuration(statuses[i%len(statuses)], time.Duration(i)*time.Microsecond)
		m.RecordStepAttempt(steps[i%len(steps)], "success")
		m.RecordStepDuration(steps[i%len(steps)], time.Duration(i)*time.Microsecond)
		m.RecordHTTPRequest(methods[i%len(methods)], paths[i%len(paths)], "200", time.Duration(i)*time.Microsecond)
	}

	// Verify metrics endpoint still responds correctly after heavy load
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 after heavy load, got %d", w.Code)
	}

	body := w.Body.String()
	// Verify cardinality is bounded: label combinations should be small
	// 4 statuses * 1 metric = 4 time series for saga_executions_total
	// 4 methods * 4 paths * 1 status = 16 time series for http_requests_total (bounded)
	if len(body) > 10*1024*1024 { // 10MB sanity check
		t.Errorf("Metrics output too large: %d bytes", len(body))
	}
}

func TestRepairIdempotencyAndBusMetricsRegistered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	m := NewManager(cfg)

	m.RecordRepairCreated("compensation_failure")
	m.RecordRepairRetry()
	m.RecordRepairEscalated()
	m.RecordRepairClosed("resolved")

	m.RecordIdempotencyHit("/api/v1/sagas")
	m.RecordIdempotencyMiss("/api/v1/sagas")
	m.RecordIdempotencyConflict("/api/v1/sagas")

	m.RecordPublish("success")
	m.RecordRetry()
	m.SetDegradedMode(true)
	m.RecordOutage()
	m.RecordRecovered()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expected := []string{
		"repair_records_created_total",
		"repair_records_closed_total",
		"repair_retries_total",
		"repair_escalations_total",
		"repair_queue_depth",
		"idempotency_hits_total",
		"idempotency_misses_total",
		"idempotency_conflicts_total",
		"eventbus_publishes_total",
		"eventbus_publish_retries_total",
		"eventbus_degraded",
		"eventbus_outages_total",
		"eventbus_recoveries_total",
	}
	for _, metric := range expected {
		if !contains(body, metric) {
			t.Errorf("expected metric %s not found in output", metric)
		}
	}
}
