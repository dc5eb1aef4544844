package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis lock defaults.
const (
	DefaultLockTTL       = 10 * time.Second
	DefaultLockRetry     = 25 * time.Millisecond
	DefaultLockKeyPrefix = "panditseva:rating:lock:"
)

// releaseScript deletes the lock only if it still holds our token, so a
// holder whose TTL expired cannot release a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SubjectLocker shared by every API instance using the
// same Redis. Locks expire after TTL so a crashed holder cannot block a
// subject forever.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *slog.Logger
}

// RedisLockerConfig configures a RedisLocker. Zero values use the defaults.
type RedisLockerConfig struct {
	TTL       time.Duration
	Retry     time.Duration
	KeyPrefix string
	Logger    *slog.Logger
}

// NewRedisLocker creates a new Redis-backed locker.
func NewRedisLocker(client redis.UniversalClient, config RedisLockerConfig) *RedisLocker {
	if config.TTL == 0 {
		config.TTL = DefaultLockTTL
	}
	if config.Retry == 0 {
		config.Retry = DefaultLockRetry
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultLockKeyPrefix
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &RedisLocker{
		client: client,
		ttl:    config.TTL,
		retry:  config.Retry,
		prefix: config.KeyPrefix,
		logger: config.Logger,
	}
}

// Lock polls SET NX until the lock is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		// Release with a fresh context: the caller's may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("failed to release rating lock",
				"key", redisKey,
				"error", err)
		}
	}, nil
}
