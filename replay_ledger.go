package vaultauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// replayLedger remembers accepted TOTP codes so a valid code cannot
// verify twice. Consume is SET NX with a TTL covering the code's whole
// acceptance window (period times skew on both sides, plus one period of
// slack), so entries garbage-collect themselves.
type replayLedger struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func newReplayLedger(client *redis.Client, prefix string, period uint, skew uint) *replayLedger {
	if period == 0 {
		period = 30
	}
	window := time.Duration(period) * time.Second
	return &replayLedger{
		redis:  client,
		prefix: prefix,
		ttl:    window * time.Duration(2*skew+2),
	}
}

func (l *replayLedger) key(userID, code string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + code))
	return l.prefix + ":replay:" + userID + ":" + hex.EncodeToString(sum[:])
}

// Consume claims the code for this user. The second concurrent claim of
// the same code loses.
func (l *replayLedger) Consume(ctx context.Context, userID, code string) (bool, error) {
	ok, err := l.redis.SetNX(ctx, l.key(userID, code), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	return ok, nil
}

// PurgeUser drops all ledger entries for one user. Used when MFA is
// disabled or reset so a re-enrolled secret starts clean.
func (l *replayLedger) PurgeUser(ctx context.Context, userID string) error {
	pattern := l.prefix + ":replay:" + userID + ":*"
	iter := l.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := l.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	return nil
}
