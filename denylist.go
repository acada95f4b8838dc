package vaultauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// denyList records explicitly invalidated refresh jtis. Entries carry the
// token's remaining lifetime as TTL, so redis expires them exactly when
// the token would have stopped mattering anyway.
type denyList struct {
	redis  *redis.Client
	prefix string
}

func newDenyList(client *redis.Client, prefix string) *denyList {
	return &denyList{redis: client, prefix: prefix}
}

func (d *denyList) key(jti string) string {
	return d.prefix + ":deny:" + jti
}

func (d *denyList) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired; nothing to deny.
		return nil
	}
	if err := d.redis.Set(ctx, d.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (d *denyList) Contains(ctx context.Context, jti string) (bool, error) {
	err := d.redis.Get(ctx, d.key(jti)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return true, nil
}
