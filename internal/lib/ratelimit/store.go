package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps the counters. RedisStore is the production implementation.
type Store interface {
	// Incr bumps the window counter at key and returns the new value.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Acquire adds member to the concurrency set at key, dropping members
	// older than stale first. It returns the set size after the add; when
	// that exceeds limit the member has already been removed again.
	Acquire(ctx context.Context, key, member string, limit int, now time.Time, stale time.Duration) (int64, error)
	// Release removes member from the concurrency set.
	Release(ctx context.Context, key, member string) error
}

type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Incr runs INCR and EXPIRE in one round trip. The expiry is refreshed on
// every hit, which keeps the key alive no longer than one extra window.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Acquire(ctx context.Context, key, member string, limit int, now time.Time, stale time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", now.Add(-stale).UnixMilli()))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, stale)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit acquire %s: %w", key, err)
	}

	count := card.Val()
	if count > int64(limit) {
		if err := s.Release(ctx, key, member); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *RedisStore) Release(ctx context.Context, key, member string) error {
	if err := s.client.ZRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("rate limit release %s: %w", key, err)
	}
	return nil
}
