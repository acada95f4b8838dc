package vaultauth

import (
	"context"
	"crypto/sha256"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/docsafe/vaultauth/internal"
)

// backupCodeAlphabet avoids lookalike characters (0/O, 1/I/L) so codes
// survive being read over the phone or copied from paper.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RegenerateBackupCodes replaces the account's entire backup-code batch.
// It demands a valid TOTP code: a stolen backup code must not be able to
// mint more backup codes.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	record, err := e.userProvider.GetMFARecord(storeCtx, userID)
	cancel()
	if err != nil {
		return nil, ErrMFAUnavailable
	}
	if record == nil || record.State == MFADisabled {
		return nil, ErrMFANotEnabled
	}
	if record.State == MFASetupPending {
		return nil, ErrMFASetupPending
	}

	if err := e.verifyTOTPCode(ctx, userID, record, totpCode); err != nil {
		return nil, err
	}

	codes, err := e.replaceBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricBackupCodesRegenerated)
	return codes, nil
}

// RemainingBackupCodes reports how many unused backup codes the account
// still holds.
func (e *Engine) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	if e == nil || e.userProvider == nil {
		return 0, ErrEngineNotReady
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	defer cancel()

	records, err := e.userProvider.GetBackupCodes(storeCtx, userID)
	if err != nil {
		return 0, ErrMFAUnavailable
	}
	return len(records), nil
}

// replaceBackupCodes generates a fresh batch, persists the hashes as a
// whole-set replacement, and returns the formatted plaintext codes.
func (e *Engine) replaceBackupCodes(ctx context.Context, userID string) ([]string, error) {
	count := e.config.Backup.Count
	length := e.config.Backup.Length

	plain := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := newBackupCode(length)
		if err != nil {
			return nil, err
		}
		plain = append(plain, formatBackupCode(code))
		records = append(records, BackupCodeRecord{
			Hash: backupCodeHash(userID, code),
		})
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	err := e.userProvider.ReplaceBackupCodes(storeCtx, userID, records)
	cancel()
	if err != nil {
		return nil, ErrMFAUnavailable
	}

	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, userID, "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(count)}
	})

	return plain, nil
}

// verifyBackupCode consumes one backup code atomically through the
// provider. Exactly one of two racing submissions of the same code may
// succeed.
func (e *Engine) verifyBackupCode(ctx context.Context, userID, code string) error {
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

	canonical := canonicalizeBackupCode(code)
	hash := backupCodeHash(userID, canonical)

	storeCtx, cancel = e.withStoreTimeout(ctx)
	consumed, err := e.userProvider.ConsumeBackupCode(storeCtx, userID, hash)
	cancel()
	if err != nil {
		return ErrMFAUnavailable
	}
	if !consumed {
		e.metricInc(MetricBackupCodeFailed)
		storeCtx, cancel = e.withStoreTimeout(ctx)
		recErr := e.mfaLimiter.RecordFailure(storeCtx, userID)
		cancel()
		e.metricInc(MetricMFAFailure)
		if recErr != nil {
			if errors.Is(recErr, errMFALimited) {
				e.metricInc(MetricMFARateLimited)
				e.emitAudit(ctx, auditEventMFARateLimited, false, userID, "", ErrMFARateLimited, nil)
				return ErrMFARateLimited
			}
			return ErrMFAUnavailable
		}

		// An empty set is a lockout, not one wrong guess; say so instead
		// of a generic mismatch.
		cause := ErrMFACodeInvalid
		storeCtx, cancel = e.withStoreTimeout(ctx)
		left, listErr := e.userProvider.GetBackupCodes(storeCtx, userID)
		cancel()
		if listErr == nil && len(left) == 0 {
			cause = ErrBackupCodesExhausted
			e.metricInc(MetricBackupCodesExhausted)
		}
		e.emitAudit(ctx, auditEventBackupCodeFailed, false, userID, "", cause, nil)
		return cause
	}

	storeCtx, cancel = e.withStoreTimeout(ctx)
	err = e.mfaLimiter.Reset(storeCtx, userID)
	cancel()
	if err != nil {
		log.Print("vaultauth: mfa limiter reset failed")
	}

	e.metricInc(MetricMFASuccess)
	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, auditEventBackupCodeUsed, true, userID, "", nil, nil)

	// Exhaustion is not an error for this login, but the account is now
	// one lost phone away from lockout; surface it loudly.
	storeCtx, cancel = e.withStoreTimeout(ctx)
	remaining, err := e.userProvider.GetBackupCodes(storeCtx, userID)
	cancel()
	if err == nil && len(remaining) == 0 {
		e.metricInc(MetricBackupCodesExhausted)
		e.emitAudit(ctx, auditEventBackupCodesExhausted, true, userID, "", nil, nil)
	}

	return nil
}

func newBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := internal.RandomIndex(len(backupCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n])
	}
	return b.String(), nil
}

// formatBackupCode inserts a hyphen at the midpoint for readability.
// Canonicalization strips it back out.
func formatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

func canonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

func isBackupCodeShape(canonical string, length int) bool {
	if len(canonical) != length {
		return false
	}
	for i := 0; i < len(canonical); i++ {
		if !strings.ContainsRune(backupCodeAlphabet, rune(canonical[i])) {
			return false
		}
	}
	return true
}

// backupCodeHash binds the hash to the user so identical codes issued to
// different users never collide in storage.
func backupCodeHash(userID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}
