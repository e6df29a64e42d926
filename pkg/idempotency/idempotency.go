// Package idempotency deduplicates inbound orchestration requests by
// idempotency key and request-body hash. A replayed request with the same
// key and hash gets the originally cached response back without executing
// the side effect again; reusing a key for a different request body is a
// client error.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = errors.New("idempotency key not found")

	// ErrConflict is returned when a key is reused with a different
	// request body.
	ErrConflict = errors.New("idempotency key conflict")

	// ErrInFlight is returned when the original request holding the key
	// has not finished yet.
	ErrInFlight = errors.New("request with this idempotency key is still in flight")
)

// ConflictError reports a key reused for a different logical request.
type ConflictError struct {
	Key         string
	StoredHash  string
	RequestHash string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("idempotency key %s was already used with a different request body", e.Key)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Record is the persisted state for one idempotency key.
type Record struct {
	Key            string    `json:"key"`
	TenantID       string    `json:"tenant_id"`
	Endpoint       string    `json:"endpoint"`
	RequestHash    string    `json:"request_hash"`
	ResponseStatus int       `json:"response_status,omitempty"`
	ResponseBody   []byte    `json:"response_body,omitempty"`
	InFlight       bool      `json:"in_flight"`
	ProcessedAt    time.Time `json:"processed_at,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the record's retention window has elapsed. An
// expired record frees its key for reuse.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := *r
	if r.ResponseBody != nil {
		clone.ResponseBody = make([]byte, len(r.ResponseBody))
		copy(clone.ResponseBody, r.ResponseBody)
	}
	return &clone
}

// Hash computes the request hash over the normalized request body. JSON
// bodies are canonicalized first so that key order and whitespace do not
// change the hash; anything else is hashed as raw bytes.
func Hash(body []byte) string {
	canonical := body
	var decoded any
	if len(body) > 0 && json.Unmarshal(body, &decoded) == nil {
		if normalized, err := json.Marshal(decoded); err == nil {
			canonical = normalized
		}
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
