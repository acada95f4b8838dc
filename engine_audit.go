package vaultauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventTokensIssued         = "tokens_issued"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventFamilyRevoked        = "family_revoked"
	auditEventFamiliesSwept        = "families_swept"
	auditEventLogout               = "logout"
	auditEventMFASetupRequested    = "mfa_setup_requested"
	auditEventMFAEnabled           = "mfa_enabled"
	auditEventMFADisabled          = "mfa_disabled"
	auditEventMFAReset             = "mfa_reset"
	auditEventMFASuccess           = "mfa_success"
	auditEventMFAFailure           = "mfa_failure"
	auditEventMFARateLimited       = "mfa_rate_limited"
	auditEventMFAReplayBlocked     = "mfa_replay_blocked"
	auditEventBackupCodesGenerated = "backup_codes_generated"
	auditEventBackupCodeUsed       = "backup_code_used"
	auditEventBackupCodeFailed     = "backup_code_failed"
	auditEventBackupCodesExhausted = "backup_codes_exhausted"
)

// AuditErrorCode is the stable, coarse error label recorded on events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrMFARequired        AuditErrorCode = "mfa_required"
	auditErrMFAState           AuditErrorCode = "mfa_state"
	auditErrMFAMalformed       AuditErrorCode = "mfa_code_malformed"
	auditErrMFAInvalid         AuditErrorCode = "mfa_code_invalid"
	auditErrMFAReplay          AuditErrorCode = "mfa_code_replayed"
	auditErrAdminRequired      AuditErrorCode = "admin_required"
	auditErrBackupExhausted    AuditErrorCode = "backup_codes_exhausted"
	auditErrRefreshMalformed   AuditErrorCode = "refresh_malformed"
	auditErrRefreshExpired     AuditErrorCode = "refresh_expired"
	auditErrRefreshInvalid     AuditErrorCode = "refresh_invalid"
	auditErrRefreshRevoked     AuditErrorCode = "refresh_revoked"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrFamilyNotFound     AuditErrorCode = "family_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	familyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        newAuditEventID(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		FamilyID:  familyID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrMFARateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFANotEnabled),
		errors.Is(err, ErrMFAAlreadyEnabled),
		errors.Is(err, ErrMFASetupPending):
		return auditErrMFAState
	case errors.Is(err, ErrMFACodeMalformed):
		return auditErrMFAMalformed
	case errors.Is(err, ErrMFACodeInvalid):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFACodeReplayed):
		return auditErrMFAReplay
	case errors.Is(err, ErrAdminRequired):
		return auditErrAdminRequired
	case errors.Is(err, ErrBackupCodesExhausted):
		return auditErrBackupExhausted
	case errors.Is(err, ErrRefreshMalformed):
		return auditErrRefreshMalformed
	case errors.Is(err, ErrRefreshExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrRefreshRevoked):
		return auditErrRefreshRevoked
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrFamilyNotFound):
		return auditErrFamilyNotFound
	case errors.Is(err, ErrMFAUnavailable),
		errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
