package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter counts failed attempts per key with an expiry.
type RetryCounter struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRetryCounter(rdb redis.Cmdable, prefix string, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, prefix: prefix, ttl: ttl}
}

// IncrementAndGet increments the count for key and returns the new value.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	fullKey := r.prefix + key
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}
