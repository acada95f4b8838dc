package vaultauth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/docsafe/vaultauth/totp"
)

// SetupMFA provisions a fresh TOTP secret plus a backup-code batch for
// the account and moves it to setup_pending. The caller must re-present
// the account password; a stolen access token alone cannot re-enroll the
// second factor. The secret, QR code, and plaintext backup codes are
// returned exactly once; only the sealed secret and the code hashes are
// persisted. Calling SetupMFA again before confirmation replaces the
// pending secret and the codes.
func (e *Engine) SetupMFA(ctx context.Context, userID, pass string) (*MFASetup, error) {
	if e == nil || e.userProvider == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if err := e.reverifyPassword(ctx, user, pass); err != nil {
		e.emitAudit(ctx, auditEventMFASetupRequested, false, userID, "", err, nil)
		return nil, err
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	record, err := e.userProvider.GetMFARecord(storeCtx, userID)
	cancel()
	if err != nil {
		return nil, ErrMFAUnavailable
	}
	if record != nil && record.State == MFAEnabled {
		e.emitAudit(ctx, auditEventMFASetupRequested, false, userID, "", ErrMFAAlreadyEnabled, nil)
		return nil, ErrMFAAlreadyEnabled
	}

	secret, err := totp.GenerateSecret(e.config.MFA.SecretEntropy)
	if err != nil {
		return nil, err
	}
	sealed, err := e.sealSecret(secret)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel = e.withStoreTimeout(ctx)
	err = e.userProvider.PutMFARecord(storeCtx, userID, MFARecord{
		State:           MFASetupPending,
		EncryptedSecret: sealed,
		CreatedAt:       time.Now().UTC(),
	})
	cancel()
	if err != nil {
		return nil, ErrMFAUnavailable
	}

	codes, err := e.replaceBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	opts := e.totpOptions()
	uri, err := totp.ProvisioningURI(secret, user.Identifier, e.config.MFA.Issuer, opts)
	if err != nil {
		return nil, err
	}
	qr, err := totp.QRCode(secret, user.Identifier, e.config.MFA.Issuer, opts, 256)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricMFASetup)
	e.emitAudit(ctx, auditEventMFASetupRequested, true, userID, "", nil, nil)

	return &MFASetup{
		SecretBase32: secret,
		URI:          uri,
		QRPNG:        qr,
		BackupCodes:  codes,
	}, nil
}

// ConfirmMFA proves the user's authenticator produces valid codes and
// transitions setup_pending to enabled. Any successful VerifyMFA call in
// the pending state completes setup the same way; ConfirmMFA is the
// named path enrollment UIs call.
func (e *Engine) ConfirmMFA(ctx context.Context, userID, code string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	record, err := e.userProvider.GetMFARecord(storeCtx, userID)
	cancel()
	if err != nil {
		return ErrMFAUnavailable
	}
	switch {
	case record == nil || record.State == MFADisabled:
		return ErrMFANotEnabled
	case record.State == MFAEnabled:
		return ErrMFAAlreadyEnabled
	}

	if err := e.verifyTOTPCode(ctx, userID, record, code); err != nil {
		return err
	}

	return e.completeSetup(ctx, userID, record)
}

// completeSetup flips a pending record to enabled after one proven
// verification.
func (e *Engine) completeSetup(ctx context.Context, userID string, record *MFARecord) error {
	record.State = MFAEnabled
	record.ConfirmedAt = time.Now().UTC()

	storeCtx, cancel := e.withStoreTimeout(ctx)
	err := e.userProvider.PutMFARecord(storeCtx, userID, *record)
	cancel()
	if err != nil {
		return ErrMFAUnavailable
	}

	e.metricInc(MetricMFAEnabled)
	e.emitAudit(ctx, auditEventMFAEnabled, true, userID, "", nil, nil)
	return nil
}

// VerifyMFA checks a second-factor code for an MFA-enabled account. The
// code's shape picks the path: six digits is TOTP, a backup-shaped code
// is a backup code, anything else is rejected before touching any store.
func (e *Engine) VerifyMFA(ctx context.Context, userID, code string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	kind := e.classifyCode(code)
	if kind == codeShapeUnknown {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, userID, "", ErrMFACodeMalformed, nil)
		return ErrMFACodeMalformed
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	record, err := e.userProvider.GetMFARecord(storeCtx, userID)
	cancel()
	if err != nil {
		return ErrMFAUnavailable
	}
	if record == nil || record.State == MFADisabled {
		return ErrMFANotEnabled
	}

	if kind == codeShapeTOTP {
		if err := e.verifyTOTPCode(ctx, userID, record, code); err != nil {
			return err
		}
		e.metricInc(MetricMFASuccess)
		e.emitAudit(ctx, auditEventMFASuccess, true, userID, "", nil, func() map[string]string {
			return map[string]string{"method": "totp"}
		})
	} else if err := e.verifyBackupCode(ctx, userID, code); err != nil {
		return err
	}

	// First successful verification completes a pending setup.
	if record.State == MFASetupPending {
		return e.completeSetup(ctx, userID, record)
	}
	return nil
}

// DisableMFA turns the second factor off and deletes the MFA record, the
// backup codes, and the user's replay ledger entries. The caller must
// re-present the account password unless adminOverride is set; override
// callers are expected to have run their own authorization check (see
// [Engine.ResetMFA] for the audited admin path).
func (e *Engine) DisableMFA(ctx context.Context, userID, pass string, adminOverride bool) error {
	if e == nil || e.userProvider == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	record, err := e.userProvider.GetMFARecord(storeCtx, userID)
	cancel()
	if err != nil {
		return ErrMFAUnavailable
	}
	if record == nil || record.State != MFAEnabled {
		return ErrMFANotEnabled
	}

	if !adminOverride {
		user, err := e.userProvider.GetUserByID(userID)
		if err != nil {
			return ErrUserNotFound
		}
		if err := e.reverifyPassword(ctx, user, pass); err != nil {
			e.emitAudit(ctx, auditEventMFADisabled, false, userID, "", err, nil)
			return err
		}
	}

	if err := e.purgeMFAState(ctx, userID); err != nil {
		return err
	}

	e.metricInc(MetricMFADisabled)
	e.emitAudit(ctx, auditEventMFADisabled, true, userID, "", nil, nil)
	return nil
}

// reverifyPassword re-checks the account password for sensitive MFA
// state changes. Wrong and empty passwords surface identically.
func (e *Engine) reverifyPassword(ctx context.Context, user UserRecord, pass string) error {
	if pass == "" {
		return ErrInvalidCredentials
	}
	if err := e.hashThrottle.Wait(ctx); err != nil {
		return ErrLoginRateLimited
	}
	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	return nil
}

// ResetMFA is the administrative recovery path for a user locked out of
// both factors. The acting user must hold the configured admin role; no
// code is required. The target account drops back to disabled and must
// re-enroll.
func (e *Engine) ResetMFA(ctx context.Context, adminUserID, targetUserID string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	admin, err := e.userProvider.GetUserByID(adminUserID)
	if err != nil {
		return ErrUserNotFound
	}
	if admin.Role != e.config.MFA.AdminRole {
		e.emitAudit(ctx, auditEventMFAReset, false, targetUserID, "", ErrAdminRequired, func() map[string]string {
			return map[string]string{"admin_user_id": adminUserID}
		})
		return ErrAdminRequired
	}
	if _, err := e.userProvider.GetUserByID(targetUserID); err != nil {
		return ErrUserNotFound
	}

	if err := e.purgeMFAState(ctx, targetUserID); err != nil {
		return err
	}

	e.metricInc(MetricMFAReset)
	e.emitAudit(ctx, auditEventMFAReset, true, targetUserID, "", nil, func() map[string]string {
		return map[string]string{"admin_user_id": adminUserID}
	})
	return nil
}

// verifyTOTPCode runs the limiter, the cryptographic check, and the
// replay ledger in that order. The ledger is consulted only after the
// code proves valid, so attackers cannot probe it with garbage.
func (e *Engine) verifyTOTPCode(ctx context.Context, userID string, record *MFARecord, code string) error {
	storeCtx, cancel := e.withStoreTimeout(ctx)
	err := e.mfaLimiter.Check(storeCtx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, errMFALimited) {
			e.metricInc(MetricMFARateLimited)
			e.emitAudit(ctx, auditEventMFARateLimited, false, userID, "", ErrMFARateLimited, nil)
			return ErrMFARateLimited
		}
		return ErrMFAUnavailable
	}

	secret, err := e.openSecret(record.EncryptedSecret)
	if err != nil {
		return ErrMFAUnavailable
	}

	ok, err := totp.VerifyCode(secret, code, time.Now(), e.totpOptions())
	if err != nil {
		if errors.Is(err, totp.ErrInvalidCode) {
			return e.failMFAAttempt(ctx, userID, ErrMFACodeMalformed)
		}
		return ErrMFAUnavailable
	}
	if !ok {
		return e.failMFAAttempt(ctx, userID, ErrMFACodeInvalid)
	}

	storeCtx, cancel = e.withStoreTimeout(ctx)
	fresh, err := e.replayLedger.Consume(storeCtx, userID, code)
	cancel()
	if err != nil {
		return ErrMFAUnavailable
	}
	if !fresh {
		e.metricInc(MetricMFAReplayBlocked)
		e.emitAudit(ctx, auditEventMFAReplayBlocked, false, userID, "", ErrMFACodeReplayed, nil)
		return ErrMFACodeReplayed
	}

	storeCtx, cancel = e.withStoreTimeout(ctx)
	err = e.mfaLimiter.Reset(storeCtx, userID)
	cancel()
	if err != nil {
		log.Print("vaultauth: mfa limiter reset failed")
	}
	return nil
}

func (e *Engine) failMFAAttempt(ctx context.Context, userID string, cause error) error {
	storeCtx, cancel := e.withStoreTimeout(ctx)
	err := e.mfaLimiter.RecordFailure(storeCtx, userID)
	cancel()
	e.metricInc(MetricMFAFailure)
	if err != nil {
		if errors.Is(err, errMFALimited) {
			e.metricInc(MetricMFARateLimited)
			e.emitAudit(ctx, auditEventMFARateLimited, false, userID, "", ErrMFARateLimited, nil)
			return ErrMFARateLimited
		}
		return ErrMFAUnavailable
	}
	e.emitAudit(ctx, auditEventMFAFailure, false, userID, "", cause, nil)
	return cause
}

func (e *Engine) purgeMFAState(ctx context.Context, userID string) error {
	storeCtx, cancel := e.withStoreTimeout(ctx)
	defer cancel()

	if err := e.userProvider.DeleteMFARecord(storeCtx, userID); err != nil {
		return ErrMFAUnavailable
	}
	if err := e.userProvider.ReplaceBackupCodes(storeCtx, userID, nil); err != nil {
		return ErrMFAUnavailable
	}
	if err := e.replayLedger.PurgeUser(storeCtx, userID); err != nil {
		return err
	}
	if err := e.mfaLimiter.Reset(storeCtx, userID); err != nil {
		log.Print("vaultauth: mfa limiter reset failed during purge")
	}
	return nil
}

type codeShape int

const (
	codeShapeUnknown codeShape = iota
	codeShapeTOTP
	codeShapeBackup
)

// classifyCode routes by shape alone. The two alphabets are disjoint
// enough that a code can never be both: TOTP codes are exactly Digits
// decimal digits, backup codes are longer and drawn from the uppercase
// backup alphabet.
func (e *Engine) classifyCode(code string) codeShape {
	if totp.IsCodeShape(code, e.config.MFA.Digits) {
		return codeShapeTOTP
	}
	if isBackupCodeShape(canonicalizeBackupCode(code), e.config.Backup.Length) {
		return codeShapeBackup
	}
	return codeShapeUnknown
}
