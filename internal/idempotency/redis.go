package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "panditseva:idempotency:"

// RedisStore implements Store on Redis so that every API instance sees the
// same keys. Records expire through the Redis TTL.
type RedisStore struct {
	client redis.UniversalClient
	expiry time.Duration
}

// NewRedisStore creates a RedisStore. A non-positive expiry uses
// DefaultExpiry.
func NewRedisStore(client redis.UniversalClient, expiry time.Duration) *RedisStore {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &RedisStore{client: client, expiry: expiry}
}

func redisKey(scope, key string) string {
	return redisKeyPrefix + scope + ":" + key
}

// Get returns the record for (scope, key).
func (s *RedisStore) Get(ctx context.Context, scope, key string) (*Record, error) {
	data, err := s.client.Get(ctx, redisKey(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &rec, nil
}

// Reserve stores rec with SET NX.
func (s *RedisStore) Reserve(ctx context.Context, rec *Record) error {
	if err := ValidateKey(rec.Key); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisKey(rec.Scope, rec.Key), data, s.expiry).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

// Complete overwrites the record and restarts its expiry.
func (s *RedisStore) Complete(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(rec.Scope, rec.Key), data, s.expiry).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return nil
}

// Release deletes the record for (scope, key).
func (s *RedisStore) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, redisKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
