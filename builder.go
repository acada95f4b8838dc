package vaultauth

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/docsafe/vaultauth/jwt"
	"github.com/docsafe/vaultauth/password"
)

// Builder assembles an [Engine]. A Builder is single-use; Build fails on
// the second call.
type Builder struct {
	config Config
	redis  *redis.Client

	userProvider UserProvider
	auditSink    AuditSink

	built bool
}

// New creates a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the full configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the redis client backing families, deny-list, the
// replay ledger, and limiters. Required.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the caller's user database adapter. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the destination for audit events. Defaults to a
// NoOpSink when auditing is enabled without a sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Cost:           cfg.Password.Cost,
		MinLength:      cfg.Password.MinLength,
		MinCharClasses: cfg.Password.MinCharClasses,
		RejectCommon:   cfg.Password.RejectCommon,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hashRate := cfg.Password.HashRatePerSec
	if hashRate <= 0 {
		hashRate = 50
	}
	hashBurst := cfg.Password.HashBurst
	if hashBurst <= 0 {
		hashBurst = 25
	}

	engine := &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		hasher:       hasher,
		hashThrottle: rate.NewLimiter(rate.Limit(hashRate), hashBurst),
		jwtManager:   jm,
		families:     newFamilyStore(b.redis, cfg.Store.KeyPrefix, cfg.JWT.RefreshTTL),
		denylist:     newDenyList(b.redis, cfg.Store.KeyPrefix),
		replayLedger: newReplayLedger(b.redis, cfg.Store.KeyPrefix, cfg.MFA.Period, cfg.MFA.Skew),
		loginLimiter: newLoginLimiter(b.redis, cfg.Store.KeyPrefix, cfg.Login),
		mfaLimiter:   newMFALimiter(b.redis, cfg.Store.KeyPrefix, cfg.MFA.MaxAttempts, cfg.MFA.AttemptWindow),
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:      NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
