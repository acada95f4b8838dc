package vaultauth

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called before
	// Build completed or with a nil receiver.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials covers unknown identifier and wrong password
	// uniformly; callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by operations addressed at a user id that
	// the provider does not know.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoginRateLimited is returned when the identifier has exceeded the
	// configured failed-login budget.
	ErrLoginRateLimited = errors.New("login rate limited")

	// ErrMFARequired is returned by Login when the account has MFA enabled
	// and no second-factor code was supplied.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFANotEnabled is returned when a second-factor operation targets
	// an account without MFA.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFAAlreadyEnabled is returned by SetupMFA on an account that has
	// already confirmed MFA.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFASetupPending is returned when a verification path requires an
	// enabled record but setup has not been confirmed yet.
	ErrMFASetupPending = errors.New("mfa setup not confirmed")
	// ErrMFACodeMalformed is returned when a submitted code matches neither
	// the TOTP nor the backup-code shape. No store is consulted.
	ErrMFACodeMalformed = errors.New("mfa code malformed")
	// ErrMFACodeInvalid is returned when a well-formed code fails
	// verification.
	ErrMFACodeInvalid = errors.New("mfa code invalid")
	// ErrMFACodeReplayed is returned when a valid TOTP code is submitted a
	// second time within its window.
	ErrMFACodeReplayed = errors.New("mfa code already used")
	// ErrMFARateLimited is returned when the per-user MFA attempt budget is
	// exhausted.
	ErrMFARateLimited = errors.New("mfa attempts rate limited")
	// ErrMFAUnavailable is returned when the MFA backend (redis or the
	// provider) cannot be reached. Verification fails closed.
	ErrMFAUnavailable = errors.New("mfa backend unavailable")
	// ErrAdminRequired is returned by ResetMFA when the acting user does
	// not hold the administrative role.
	ErrAdminRequired = errors.New("admin role required")

	// ErrBackupCodeCount is returned when the configured backup-code batch
	// size is outside the supported range.
	ErrBackupCodeCount = errors.New("backup code count out of range")
	// ErrBackupCodesExhausted is returned when no unused backup codes
	// remain for the account.
	ErrBackupCodesExhausted = errors.New("backup codes exhausted")

	// ErrRefreshMalformed is returned for refresh input that is not a JWT.
	ErrRefreshMalformed = errors.New("refresh token malformed")
	// ErrRefreshExpired is returned for a refresh token past its expiry.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrRefreshInvalid is returned for refresh tokens with bad signatures,
	// wrong type, or missing claims.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrRefreshRevoked is returned when the token or its family has been
	// explicitly invalidated.
	ErrRefreshRevoked = errors.New("refresh token revoked")
	// ErrRefreshReuse is returned when a superseded refresh token is
	// presented again. The whole family is revoked as a side effect.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrFamilyNotFound is returned when the token's family record does not
	// exist (expired and swept, or never issued here).
	ErrFamilyNotFound = errors.New("token family not found")

	// ErrStoreUnavailable wraps redis failures on token-family and
	// deny-list operations. All of them fail closed.
	ErrStoreUnavailable = errors.New("token store unavailable")
)
