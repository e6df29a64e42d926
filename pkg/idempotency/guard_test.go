package idempotency

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestHashNormalizesJSON(t *testing.T) {
	a := Hash([]byte(`{"amount_minor":10000,"account":"acc-1"}`))
	b := Hash([]byte(`{
		"account": "acc-1",
		"amount_minor": 10000
	}`))
	if a != b {
		t.Fatal("expected key order and whitespace not to change the hash")
	}

	c := Hash([]byte(`{"account":"acc-2","amount_minor":10000}`))
	if a == c {
		t.Fatal("expected different bodies to hash differently")
	}
}

func TestHashFallsBackToRawBytes(t *testing.T) {
	a := Hash([]byte("not json"))
	b := Hash([]byte("not json"))
	if a != b {
		t.Fatal("expected raw hashing to be deterministic")
	}
	if a == Hash([]byte("not json either")) {
		t.Fatal("expected different raw bodies to hash differently")
	}
}

func TestGuardExecutesOnceAndReplaysResponse(t *testing.T) {
	guard, err := NewGuard(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}

	calls := 0
	handler := func(context.Context) (*Response, error) {
		calls++
		return &Response{Status: 201, Body: []byte(`{"saga_id":"saga-1"}`)}, nil
	}
	body := []byte(`{"account":"acc-1","amount_minor":10000}`)

	first, replayed, err := guard.Execute(context.Background(), "key-1", "tenant-a", "/sagas", body, handler)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if replayed {
		t.Fatal("first execution must not be a replay")
	}
	if first.Status != 201 {
		t.Fatalf("status = %d, want 201", first.Status)
	}

	second, replayed, err := guard.Execute(context.Background(), "key-1", "tenant-a", "/sagas", body, handler)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !replayed {
		t.Fatal("second execution must be a replay")
	}
	if !bytes.Equal(first.Body, second.Body) || first.Status != second.Status {
		t.Fatal("replayed response must be identical to the original")
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}

func TestGuardRejectsKeyReuseWithDifferentBody(t *testing.T) {
	guard, err := NewGuard(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}
	handler := func(context.Context) (*Response, error) {
		return &Response{Status: 201}, nil
	}

	if _, _, err := guard.Execute(context.Background(), "key-1", "tenant-a", "/sagas", []byte(`{"amount_minor":10000}`), handler); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	_, _, err = guard.Execute(context.Background(), "key-1", "tenant-a", "/sagas", []byte(`{"amount_minor":99999}`), handler)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Key != "key-1" {
		t.Fatalf("expected ConflictError for key-1, got %v", err)
	}
}

func TestGuardScopesKeysByTenant(t *testing.T) {
	guard, err := NewGuard(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}

	calls := 0
	handler := func(context.Context) (*Response, error) {
		calls++
		return &Response{Status: 201}, nil
	}
	body := []byte(`{"amount_minor":10000}`)

	if _, _, err := guard.Execute(context.Background(), "key-1", "tenant-a", "/sagas", body, handler); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	_, replayed, err := guard.Execute(context.Background(), "key-1", "tenant-b", "/sagas", body, handler)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if replayed || calls != 2 {
		t.Fatalf("tenants must not share keys: replayed=%v calls=%d", replayed, calls)
	}
}

func TestGuardReleasesKeyWhenHandlerFails(t *testing.T) {
	guard, err := NewGuard(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}
	body := []byte(`{"amount_minor":10000}`)

	boom := fmt.Errorf("downstream unavailable")
	_, _, err = guard.Execute(context.Background(), "key-1", "tenant-a", "/sagas", body, func(context.Context) (*Response, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}

	// The key is free again, so a retry executes for real.
	response, replayed, err := guard.Execute(context.Background(), "key-1", "tenant-a", "/sagas", body, func(context.Context) (*Response, error) {
		return &Response{Status: 201}, nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if replayed || response.Status != 201 {
		t.Fatalf("retry after failure must execute fresh: replayed=%v status=%d", replayed, response.Status)
	}
}

func TestGuardReportsInFlightDuplicate(t *testing.T) {
	store := NewMemoryStore()
	guard, err := NewGuard(store)
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}
	body := []byte(`{"amount_minor":10000}`)

	provisional := &Record{
		Key:         "key-1",
		TenantID:    "tenant-a",
		Endpoint:    "/sagas",
		RequestHash: Hash(body),
		InFlight:    true,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if _, err := store.PutIfAbsent(context.Background(), provisional); err != nil {
		t.Fatalf("PutIfAbsent() error = %v", err)
	}

	_, _, err = guard.Execute(context.Background(), "key-1", "tenant-a", "/sagas", body, func(context.Context) (*Response, error) {
		t.Fatal("handler must not run while the original request is in flight")
		return nil, nil
	})
	if !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
}

func TestGuardTreatsExpiredKeyAsAbsent(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	store := NewMemoryStore()
	store.now = clock
	guard, err := NewGuard(store, WithTTL(time.Minute), WithClock(clock))
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}

	calls := 0
	handler := func(context.Context) (*Response, error) {
		calls++
		return &Response{Status: 201}, nil
	}
	body := []byte(`{"amount_minor":10000}`)

	if _, _, err := guard.Execute(context.Background(), "key-1", "tenant-a", "/sagas", body, handler); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	now = now.Add(2 * time.Minute)

	// The retention window elapsed, so the key is reusable even with a
	// different body.
	_, replayed, err := guard.Execute(context.Background(), "key-1", "tenant-a", "/sagas", []byte(`{"amount_minor":99999}`), handler)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if replayed || calls != 2 {
		t.Fatalf("expired key must execute fresh: replayed=%v calls=%d", replayed, calls)
	}
}

func TestGuardRequiresKey(t *testing.T) {
	guard, err := NewGuard(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}
	_, _, err = guard.Execute(context.Background(), "", "tenant-a", "/sagas", nil, func(context.Context) (*Response, error) {
		return &Response{}, nil
	})
	if err == nil {
		t.Fatal("expected an error for an empty idempotency key")
	}
}
