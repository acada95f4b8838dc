package vaultauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/docsafe/vaultauth/cryptox"
)

// Config is the complete Engine configuration. Zero values are filled in
// from defaults by [New]; Validate runs during Build.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	MFA      MFAConfig
	Backup   BackupConfig
	Login    LoginConfig
	Store    StoreConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// JWTConfig controls token issuance. Keys are passed to the jwt
// subpackage unchanged; hs256 needs a >=32 byte secret, ed25519 a raw or
// PEM-encoded key pair.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// PasswordConfig controls the bcrypt hasher and the login-time hashing
// throttle. HashRatePerSec bounds bcrypt work across the whole process;
// it is a back-pressure valve, not a per-user limiter.
type PasswordConfig struct {
	Cost           int
	MinLength      int
	MinCharClasses int
	RejectCommon   bool
	UpgradeOnLogin bool
	HashRatePerSec float64
	HashBurst      int
}

// MFAConfig controls the TOTP engine, the per-user attempt budget, and
// secret storage. SecretEncryptionKey must be 32 bytes; TOTP secrets are
// sealed under it before they reach the provider.
type MFAConfig struct {
	Issuer              string
	Period              uint
	Skew                uint
	Digits              int
	Algorithm           string
	SecretEntropy       int
	SecretEncryptionKey []byte
	MaxAttempts         int
	AttemptWindow       time.Duration
	AdminRole           string
}

// BackupConfig controls recovery-code batches.
type BackupConfig struct {
	Count  int
	Length int
}

// LoginConfig controls the per-identifier failed-login limiter.
type LoginConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// StoreConfig controls redis key layout and the per-call deadline applied
// to every store operation. A timed-out store call is an error; nothing
// in the token path degrades to fail-open.
type StoreConfig struct {
	KeyPrefix string
	OpTimeout time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

const (
	minBackupCodeCount = 5
	maxBackupCodeCount = 20
)

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Issuer:        "docsafe",
		},
		Password: PasswordConfig{
			Cost:           12,
			MinLength:      10,
			MinCharClasses: 2,
			RejectCommon:   true,
			UpgradeOnLogin: true,
			HashRatePerSec: 50,
			HashBurst:      25,
		},
		MFA: MFAConfig{
			Issuer:        "DocSafe",
			Period:        30,
			Skew:          1,
			Digits:        6,
			Algorithm:     "SHA1",
			SecretEntropy: 20,
			MaxAttempts:   5,
			AttemptWindow: time.Minute,
			AdminRole:     "admin",
		},
		Backup: BackupConfig{
			Count:  10,
			Length: 8,
		},
		Login: LoginConfig{
			MaxAttempts: 10,
			Cooldown:    5 * time.Minute,
		},
		Store: StoreConfig{
			KeyPrefix: "va",
			OpTimeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first configuration problem found. Key material
// checks beyond length live in the jwt subpackage.
func (c Config) Validate() error {
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("vaultauth: token TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("vaultauth: access TTL must be shorter than refresh TTL")
	}
	if c.Backup.Count < minBackupCodeCount || c.Backup.Count > maxBackupCodeCount {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrBackupCodeCount,
			c.Backup.Count, minBackupCodeCount, maxBackupCodeCount)
	}
	if c.Backup.Length < 8 {
		return errors.New("vaultauth: backup code length must be at least 8")
	}
	if len(c.MFA.SecretEncryptionKey) != cryptox.KeySize {
		return fmt.Errorf("vaultauth: MFA secret encryption key must be %d bytes", cryptox.KeySize)
	}
	if c.MFA.MaxAttempts <= 0 || c.MFA.AttemptWindow <= 0 {
		return errors.New("vaultauth: MFA attempt budget must be positive")
	}
	if c.MFA.AdminRole == "" {
		return errors.New("vaultauth: MFA admin role must be set")
	}
	if c.Login.MaxAttempts <= 0 || c.Login.Cooldown <= 0 {
		return errors.New("vaultauth: login attempt budget must be positive")
	}
	if c.Store.OpTimeout <= 0 {
		return errors.New("vaultauth: store op timeout must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.MFA.SecretEncryptionKey = cloneBytes(cfg.MFA.SecretEncryptionKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
