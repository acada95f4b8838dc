package vaultauth

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
)

// Authenticate verifies identifier+password and returns the account.
// Unknown identifier and wrong password both surface as
// [ErrInvalidCredentials]; the limiter and audit trail see the
// distinction, callers do not.
func (e *Engine) Authenticate(ctx context.Context, identifier, pass string) (*UserRecord, error) {
	if e == nil || e.hasher == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	storeCtx, cancel := e.withStoreTimeout(ctx)
	err := e.loginLimiter.Check(storeCtx, identifier, ip)
	cancel()
	if err != nil {
		// A store outage is retryable and must not read as a rate limit.
		if !errors.Is(err, errLoginLimited) {
			return nil, err
		}
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return nil, ErrLoginRateLimited
	}

	if identifier == "" || pass == "" {
		return nil, e.failLogin(ctx, identifier, ip, "", "empty_input")
	}

	user, err := e.userProvider.GetUserByIdentifier(identifier)
	if err != nil {
		return nil, e.failLogin(ctx, identifier, ip, "", "user_not_found")
	}

	// Process-wide bcrypt budget: under a credential-stuffing burst the
	// limiter queues hashing work instead of letting it starve the host.
	if err := e.hashThrottle.Wait(ctx); err != nil {
		return nil, ErrLoginRateLimited
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, identifier, ip, user.UserID, "password_mismatch")
	}

	if e.config.Password.UpgradeOnLogin {
		if needs, err := e.hasher.NeedsUpgrade(user.PasswordHash); err == nil && needs {
			if upgraded, err := e.hasher.Hash(pass); err == nil {
				// Best-effort; a failed rehash must not block login.
				if err := e.userProvider.UpdatePasswordHash(user.UserID, upgraded); err != nil {
					log.Print("vaultauth: password hash upgrade update failed")
				}
			}
		}
	}
	pass = ""

	storeCtx, cancel = e.withStoreTimeout(ctx)
	err = e.loginLimiter.Reset(storeCtx, identifier, ip)
	cancel()
	if err != nil {
		log.Print("vaultauth: login limiter reset failed")
	}

	return &user, nil
}

func (e *Engine) failLogin(ctx context.Context, identifier, ip, userID, reason string) error {
	storeCtx, cancel := e.withStoreTimeout(ctx)
	err := e.loginLimiter.RecordFailure(storeCtx, identifier, ip)
	cancel()
	if err != nil {
		log.Print("vaultauth: login limiter increment failed")
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"reason":     reason,
		}
	})
	return ErrInvalidCredentials
}

// Login authenticates credentials, enforces the second factor when the
// account has MFA enabled, and issues a token pair bound to a fresh
// family. When MFA is enabled and mfaCode is empty, Login returns
// [ErrMFARequired] without consuming an attempt.
func (e *Engine) Login(ctx context.Context, identifier, pass, mfaCode string) (*TokenPair, error) {
	user, err := e.Authenticate(ctx, identifier, pass)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	record, err := e.userProvider.GetMFARecord(storeCtx, user.UserID)
	cancel()
	if err != nil {
		return nil, ErrMFAUnavailable
	}
	if record != nil && record.State == MFAEnabled {
		if mfaCode == "" {
			e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrMFARequired, nil)
			return nil, ErrMFARequired
		}
		if err := e.VerifyMFA(ctx, user.UserID, mfaCode); err != nil {
			return nil, err
		}
	}

	pair, err := e.IssueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, pair.FamilyID, nil, func() map[string]string {
		return map[string]string{"identifier": user.Identifier}
	})
	return pair, nil
}

// IssueTokens mints an access+refresh pair and registers a new token
// family holding the refresh token's jti.
func (e *Engine) IssueTokens(ctx context.Context, user *UserRecord) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if user == nil || user.UserID == "" {
		return nil, ErrUserNotFound
	}

	familyID := uuid.NewString()

	refresh, err := e.jwtManager.CreateRefresh(user.Identifier, user.UserID, user.Role, familyID)
	if err != nil {
		return nil, err
	}
	claims, err := e.jwtManager.DecodeUnverified(refresh)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	err = e.families.Create(storeCtx, familyID, user.UserID, claims.ID)
	cancel()
	if err != nil {
		return nil, err
	}

	access, err := e.jwtManager.CreateAccess(user.Identifier, user.UserID, user.Role)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenPairIssued)
	e.emitAudit(ctx, auditEventTokensIssued, true, user.UserID, familyID, nil, nil)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		FamilyID:     familyID,
	}, nil
}
