package vaultauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errMFALimited = errors.New("mfa rate limited")

// mfaLimiter budgets failed second-factor attempts per user with a fixed
// INCR/EXPIRE window.
type mfaLimiter struct {
	redis       *redis.Client
	prefix      string
	maxAttempts int
	window      time.Duration
}

func newMFALimiter(client *redis.Client, prefix string, maxAttempts int, window time.Duration) *mfaLimiter {
	return &mfaLimiter{
		redis:       client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

func (l *mfaLimiter) key(userID string) string {
	return l.prefix + ":mfaatt:" + userID
}

func (l *mfaLimiter) Check(ctx context.Context, userID string) error {
	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	if count >= int64(l.maxAttempts) {
		return errMFALimited
	}
	return nil
}

func (l *mfaLimiter) RecordFailure(ctx context.Context, userID string) error {
	count, err := l.redis.Incr(ctx, l.key(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(userID), l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
		}
	}
	if count >= int64(l.maxAttempts) {
		return errMFALimited
	}
	return nil
}

func (l *mfaLimiter) Reset(ctx context.Context, userID string) error {
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	return nil
}
