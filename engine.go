package vaultauth

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/docsafe/vaultauth/cryptox"
	"github.com/docsafe/vaultauth/jwt"
	"github.com/docsafe/vaultauth/password"
	"github.com/docsafe/vaultauth/totp"
)

// Engine is the authentication core. Instances are configured through
// [Builder] and immutable afterwards; all mutable state lives in redis
// and in the caller's [UserProvider].
type Engine struct {
	config       Config
	userProvider UserProvider

	hasher       *password.Hasher
	hashThrottle *rate.Limiter
	jwtManager   *jwt.Manager

	families     *familyStore
	denylist     *denyList
	replayLedger *replayLedger
	loginLimiter *loginLimiter
	mfaLimiter   *mfaLimiter

	audit   *auditDispatcher
	metrics *Metrics
}

// Close flushes and stops the audit dispatcher. Safe on a nil receiver.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// withStoreTimeout bounds one store round trip. Every redis call in the
// hot path goes through this; a hung store turns into an error, never a
// hung request.
func (e *Engine) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := e.config.Store.OpTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (e *Engine) totpOptions() totp.Options {
	return totp.Options{
		Period:    e.config.MFA.Period,
		Skew:      e.config.MFA.Skew,
		Digits:    e.config.MFA.Digits,
		Algorithm: e.config.MFA.Algorithm,
	}
}

// sealSecret encrypts a TOTP secret before it is handed to the provider.
// The provider only ever sees the sealed form.
func (e *Engine) sealSecret(secret string) ([]byte, error) {
	return cryptox.Seal(e.config.MFA.SecretEncryptionKey, []byte(secret))
}

func (e *Engine) openSecret(sealed []byte) (string, error) {
	plain, err := cryptox.Open(e.config.MFA.SecretEncryptionKey, sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
