package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Minute

// Lock coordinates exclusive runs of a named job across worker replicas.
// Acquire returns the owner token to hand back to Release.
type Lock interface {
	Acquire(ctx context.Context, job string) (string, bool, error)
	Release(ctx context.Context, job, token string) error
}

// redisStore defines the operations used by RedisLock.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(parts ...string) string
}

// RedisLock implements Lock using Redis SETNX + TTL, one key per job.
type RedisLock struct {
	client redisStore
	ttl    time.Duration
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, ttl: ttl}, nil
}

func (l *RedisLock) key(job string) string {
	return l.client.LockKey("cron", job)
}

// Acquire tries to own the job lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context, job string) (string, bool, error) {
	if job == "" {
		return "", false, errors.New("job name is required")
	}
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(job), owner, l.ttl)
	if err != nil {
		return "", false, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return owner, true, nil
}

// Release frees the lock only if the owner value still matches.
func (l *RedisLock) Release(ctx context.Context, job, token string) error {
	if token == "" {
		return nil
	}
	key := l.key(job)
	value, err := l.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != token {
		return nil
	}
	if err := l.client.Del(ctx, key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}
