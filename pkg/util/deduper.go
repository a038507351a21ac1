package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper claims keys in Redis with SETNX so concurrent processes do not
// repeat the same unit of work within the TTL.
type Deduper struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb redis.Cmdable, prefix string, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce returns true if this caller is the first to claim key.
// When Redis is unreachable it fails open and returns true together with the error.
func (d *Deduper) AcquireOnce(ctx context.Context, key string) (bool, error) {
	fullKey := d.prefix + key

	ok, err := d.rdb.SetNX(ctx, fullKey, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("dedup_key", fullKey),
			zap.Error(err),
		)
		return true, err
	}

	if !ok {
		d.logger.Info("Skipped duplicated work", zap.String("dedup_key", fullKey))
	}
	return ok, nil
}

// Release drops a claim so the work can be attempted again.
func (d *Deduper) Release(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, d.prefix+key).Err()
}
