package vaultauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var errLoginLimited = errors.New("login rate limited")

// loginLimiter budgets failed logins per identifier, and per client IP
// when one is in the context. Either bucket tripping denies.
type loginLimiter struct {
	redis  *redis.Client
	prefix string
	cfg    LoginConfig
}

func newLoginLimiter(client *redis.Client, prefix string, cfg LoginConfig) *loginLimiter {
	return &loginLimiter{
		redis:  client,
		prefix: prefix,
		cfg:    cfg,
	}
}

func (l *loginLimiter) identifierKey(identifier string) string {
	return l.prefix + ":loginatt:id:" + identifier
}

func (l *loginLimiter) ipKey(ip string) string {
	return l.prefix + ":loginatt:ip:" + ip
}

func (l *loginLimiter) Check(ctx context.Context, identifier, ip string) error {
	keys := []string{l.identifierKey(identifier)}
	if ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	for _, key := range keys {
		count, err := l.redis.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if count >= int64(l.cfg.MaxAttempts) {
			return errLoginLimited
		}
	}
	return nil
}

func (l *loginLimiter) RecordFailure(ctx context.Context, identifier, ip string) error {
	keys := []string{l.identifierKey(identifier)}
	if ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	for _, key := range keys {
		count, err := l.redis.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if count == 1 {
			if err := l.redis.Expire(ctx, key, l.cfg.Cooldown).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
	}
	return nil
}

func (l *loginLimiter) Reset(ctx context.Context, identifier, ip string) error {
	keys := []string{l.identifierKey(identifier)}
	if ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
