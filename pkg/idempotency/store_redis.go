package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "payrail:idem:"

// RedisStore is a Redis-backed Store. Record expiry rides on Redis key
// TTLs, so expired entries disappear without a sweeper.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
	now       func() time.Time
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the Redis key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// NewRedisStore creates a Redis-backed idempotency store.
func NewRedisStore(client redis.Cmdable, options ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	s := &RedisStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		now:       time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

func (s *RedisStore) redisKey(tenantID, key string) string {
	return s.keyPrefix + tenantID + ":" + key
}

func (s *RedisStore) ttlFor(record *Record) time.Duration {
	ttl := record.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	return ttl
}

// PutIfAbsent stores the record with SET NX so concurrent duplicates are
// resolved by Redis.
func (s *RedisStore) PutIfAbsent(ctx context.Context, record *Record) (bool, error) {
	if record == nil {
		return false, fmt.Errorf("idempotency record cannot be nil")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.redisKey(record.TenantID, record.Key), data, s.ttlFor(record)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return created, nil
}

// Get returns the live record for a key.
func (s *RedisStore) Get(ctx context.Context, tenantID, key string) (*Record, error) {
	data, err := s.client.Get(ctx, s.redisKey(tenantID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load idempotency record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	if record.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return &record, nil
}

// Put overwrites the record for a key, keeping the TTL aligned with the
// record's expiry.
func (s *RedisStore) Put(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("idempotency record cannot be nil")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(record.TenantID, record.Key), data, s.ttlFor(record)).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return nil
}

// Delete removes the record for a key.
func (s *RedisStore) Delete(ctx context.Context, tenantID, key string) error {
	if err := s.client.Del(ctx, s.redisKey(tenantID, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	return nil
}
