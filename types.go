package vaultauth

import (
	"context"
	"time"
)

// MFAState is the lifecycle state of an account's second factor.
type MFAState uint8

const (
	// MFADisabled means no second factor is configured.
	MFADisabled MFAState = iota
	// MFASetupPending means a secret has been provisioned but not yet
	// confirmed with a valid code.
	MFASetupPending
	// MFAEnabled means setup was confirmed; login requires a second factor.
	MFAEnabled
)

func (s MFAState) String() string {
	switch s {
	case MFADisabled:
		return "disabled"
	case MFASetupPending:
		return "setup_pending"
	case MFAEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// UserRecord is the account view the Engine needs from the caller's user
// database. The provider owns everything else about the account.
type UserRecord struct {
	UserID       string
	Identifier   string
	PasswordHash string
	Role         string
}

// MFARecord is the persisted second-factor state for one account. The
// TOTP secret is stored AEAD-encrypted; the Engine decrypts it only for
// the duration of a verification.
type MFARecord struct {
	State           MFAState
	EncryptedSecret []byte
	CreatedAt       time.Time
	ConfirmedAt     time.Time
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code. The
// plaintext is shown to the user once at generation and never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// TokenPair is the result of a successful login or rotation. The refresh
// token belongs to FamilyID; presenting a superseded refresh token from
// the same family revokes all of it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	FamilyID     string
}

// MFASetup is returned by [Engine.SetupMFA]. The secret, QR code, and
// plaintext backup codes are shown to the user exactly once; the Engine
// keeps only the encrypted secret and the code hashes.
type MFASetup struct {
	SecretBase32 string
	URI          string
	QRPNG        []byte
	BackupCodes  []string
}

// TokenFamily is the audit view of one refresh lineage, returned by
// [Engine.FamilyInfo]. Revoked families stay queryable until they expire.
type TokenFamily struct {
	FamilyID  string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// UserProvider is the interface callers implement to integrate vaultauth
// with their user database. Credential lookup and password updates are
// keyed the way the caller's schema is keyed; MFA and backup-code state
// is opaque to the caller and owned by the Engine.
//
// ConsumeBackupCode must be atomic: when two concurrent calls present the
// same hash, exactly one may return true. A consumed code must also stop
// appearing in GetBackupCodes — the Engine counts the remaining records
// to report how many codes are left and to tell an exhausted set apart
// from a wrong guess, so a provider that keeps consumed rows visible
// breaks both.
type UserProvider interface {
	GetUserByIdentifier(identifier string) (UserRecord, error)
	GetUserByID(userID string) (UserRecord, error)
	UpdatePasswordHash(userID string, newHash string) error

	GetMFARecord(ctx context.Context, userID string) (*MFARecord, error)
	PutMFARecord(ctx context.Context, userID string, record MFARecord) error
	DeleteMFARecord(ctx context.Context, userID string) error

	GetBackupCodes(ctx context.Context, userID string) ([]BackupCodeRecord, error)
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error
	ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, error)
}
