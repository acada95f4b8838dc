package vaultauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rotation outcomes from the CAS script.
const (
	familyStatusNotFound int64 = 0
	familyStatusRotated  int64 = 1
	familyStatusRevoked  int64 = 2
	familyStatusReuse    int64 = 3
)

// rotateFamilyScript compares the presented jti against the family's
// current jti and swaps it in one atomic step. A mismatch on a live
// family means a superseded token came back: the script revokes the
// family itself, so detection and revocation cannot race apart.
const rotateFamilyScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 2
end
local current = redis.call("HGET", KEYS[1], "jti")
if current ~= ARGV[1] then
  redis.call("HSET", KEYS[1], "revoked", "1")
  return 3
end
redis.call("HSET", KEYS[1], "jti", ARGV[2])
return 1
`

var rotateFamilyLua = redis.NewScript(rotateFamilyScript)

// familyStore persists refresh token families. Each family is one hash
// keyed by family id, plus a membership zset scored by expiry so cleanup
// can sweep without scanning the keyspace.
type familyStore struct {
	redis      *redis.Client
	prefix     string
	refreshTTL time.Duration
}

func newFamilyStore(client *redis.Client, prefix string, refreshTTL time.Duration) *familyStore {
	return &familyStore{
		redis:      client,
		prefix:     prefix,
		refreshTTL: refreshTTL,
	}
}

func (s *familyStore) key(familyID string) string {
	return s.prefix + ":fam:" + familyID
}

func (s *familyStore) indexKey() string {
	return s.prefix + ":fam:index"
}

// Create registers a new family holding its first refresh jti.
func (s *familyStore) Create(ctx context.Context, familyID, userID, jti string) error {
	now := time.Now()
	expiresAt := now.Add(s.refreshTTL)

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.key(familyID), map[string]interface{}{
		"user_id":    userID,
		"jti":        jti,
		"revoked":    "0",
		"created_at": strconv.FormatInt(now.Unix(), 10),
		"expires_at": strconv.FormatInt(expiresAt.Unix(), 10),
	})
	pipe.Expire(ctx, s.key(familyID), s.refreshTTL)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(expiresAt.Unix()),
		Member: familyID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Rotate swaps currentJTI for nextJTI and reports the outcome.
func (s *familyStore) Rotate(ctx context.Context, familyID, currentJTI, nextJTI string) (int64, error) {
	status, err := rotateFamilyLua.Run(ctx, s.redis,
		[]string{s.key(familyID)}, currentJTI, nextJTI).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return status, nil
}

// Revoke marks the family revoked. The record keeps its TTL so it stays
// queryable for audit until natural expiry.
func (s *familyStore) Revoke(ctx context.Context, familyID string) error {
	if err := s.redis.HSet(ctx, s.key(familyID), "revoked", "1").Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get loads one family record. Returns nil when the family is unknown.
func (s *familyStore) Get(ctx context.Context, familyID string) (*TokenFamily, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(familyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	expiresAt, _ := strconv.ParseInt(fields["expires_at"], 10, 64)

	return &TokenFamily{
		FamilyID:  familyID,
		UserID:    fields["user_id"],
		CreatedAt: time.Unix(createdAt, 0).UTC(),
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
		Revoked:   fields["revoked"] == "1",
	}, nil
}

// CurrentJTI reports the family's live refresh jti, or "" when unknown.
func (s *familyStore) CurrentJTI(ctx context.Context, familyID string) (string, error) {
	jti, err := s.redis.HGet(ctx, s.key(familyID), "jti").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return jti, nil
}

// SweepExpired removes families whose expiry has passed and returns how
// many were removed. Revoked families that have not yet expired are left
// in place.
func (s *familyStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	limit := strconv.FormatInt(now.Unix(), 10)
	expired, err := s.redis.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	pipe := s.redis.TxPipeline()
	for _, familyID := range expired {
		pipe.Del(ctx, s.key(familyID))
	}
	pipe.ZRemRangeByScore(ctx, s.indexKey(), "-inf", limit)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return len(expired), nil
}
