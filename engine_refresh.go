package vaultauth

import (
	"context"
	"errors"
	"time"

	"github.com/docsafe/vaultauth/jwt"
)

// Rotate exchanges a refresh token for a fresh token pair within the same
// family. Each refresh token is single-use: presenting one that has
// already been rotated is treated as theft evidence and revokes the
// entire family.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.parseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, nil)
		return nil, err
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	denied, err := e.denylist.Contains(storeCtx, claims.ID)
	cancel()
	if err != nil {
		return nil, err
	}
	if denied {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UserID, claims.Family, ErrRefreshRevoked, nil)
		return nil, ErrRefreshRevoked
	}

	nextRefresh, err := e.jwtManager.CreateRefresh(claims.Subject, claims.UserID, claims.Role, claims.Family)
	if err != nil {
		return nil, err
	}
	nextClaims, err := e.jwtManager.DecodeUnverified(nextRefresh)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel = e.withStoreTimeout(ctx)
	status, err := e.families.Rotate(storeCtx, claims.Family, claims.ID, nextClaims.ID)
	cancel()
	if err != nil {
		return nil, err
	}

	switch status {
	case familyStatusRotated:
		// Below.
	case familyStatusNotFound:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UserID, claims.Family, ErrFamilyNotFound, nil)
		return nil, ErrFamilyNotFound
	case familyStatusRevoked:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UserID, claims.Family, ErrRefreshRevoked, nil)
		return nil, ErrRefreshRevoked
	case familyStatusReuse:
		// The CAS script already revoked the family.
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricFamilyRevoked)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, claims.UserID, claims.Family, ErrRefreshReuse, nil)
		e.emitAudit(ctx, auditEventFamilyRevoked, true, claims.UserID, claims.Family, nil, func() map[string]string {
			return map[string]string{"reason": "refresh_reuse"}
		})
		return nil, ErrRefreshReuse
	default:
		e.metricInc(MetricRefreshFailure)
		return nil, ErrStoreUnavailable
	}

	// The superseded jti is NOT deny-listed here. It must keep hitting
	// the CAS mismatch path so that presenting it again is classified as
	// reuse and revokes the family; the deny-list is logout-only.
	access, err := e.jwtManager.CreateAccess(claims.Subject, claims.UserID, claims.Role)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricTokenPairIssued)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, claims.UserID, claims.Family, nil, nil)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: nextRefresh,
		FamilyID:     claims.Family,
	}, nil
}

// InvalidateRefreshToken is the logout path: it deny-lists the token's
// jti and revokes its family, independent of rotation state.
func (e *Engine) InvalidateRefreshToken(ctx context.Context, refreshToken string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.parseRefresh(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditEventLogout, false, "", "", err, nil)
		return err
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	defer cancel()

	if err := e.denylist.Add(storeCtx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
		return err
	}
	if err := e.families.Revoke(storeCtx, claims.Family); err != nil {
		return err
	}

	e.metricInc(MetricFamilyRevoked)
	e.emitAudit(ctx, auditEventFamilyRevoked, true, claims.UserID, claims.Family, nil, func() map[string]string {
		return map[string]string{"reason": "logout"}
	})
	e.emitAudit(ctx, auditEventLogout, true, claims.UserID, claims.Family, nil, nil)
	return nil
}

// IsRefreshTokenValid reports whether the token would currently rotate:
// well-formed, unexpired, not deny-listed, and still its family's live
// token. Store failures report invalid.
func (e *Engine) IsRefreshTokenValid(ctx context.Context, refreshToken string) bool {
	if e == nil || e.jwtManager == nil {
		return false
	}

	claims, err := e.parseRefresh(refreshToken)
	if err != nil {
		return false
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	defer cancel()

	denied, err := e.denylist.Contains(storeCtx, claims.ID)
	if err != nil || denied {
		return false
	}

	family, err := e.families.Get(storeCtx, claims.Family)
	if err != nil || family == nil || family.Revoked {
		return false
	}
	current, err := e.families.CurrentJTI(storeCtx, claims.Family)
	if err != nil {
		return false
	}
	return current == claims.ID
}

// ValidateAccess verifies an access token's signature, expiry, and type,
// and returns its claims.
func (e *Engine) ValidateAccess(tokenStr string) (*jwt.Claims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	return e.jwtManager.ParseAccess(tokenStr)
}

// FamilyInfo returns the audit view of one family, including revoked
// families that have not yet expired.
func (e *Engine) FamilyInfo(ctx context.Context, familyID string) (*TokenFamily, error) {
	if e == nil || e.families == nil {
		return nil, ErrEngineNotReady
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	defer cancel()

	family, err := e.families.Get(storeCtx, familyID)
	if err != nil {
		return nil, err
	}
	if family == nil {
		return nil, ErrFamilyNotFound
	}
	return family, nil
}

// CleanupExpiredFamilies sweeps families whose refresh TTL has elapsed
// and returns how many were removed. Revoked-but-unexpired families are
// kept for audit.
func (e *Engine) CleanupExpiredFamilies(ctx context.Context) (int, error) {
	if e == nil || e.families == nil {
		return 0, ErrEngineNotReady
	}

	storeCtx, cancel := e.withStoreTimeout(ctx)
	defer cancel()

	removed, err := e.families.SweepExpired(storeCtx, time.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		for i := 0; i < removed; i++ {
			e.metricInc(MetricFamiliesSwept)
		}
		e.emitAudit(ctx, auditEventFamiliesSwept, true, "", "", nil, nil)
	}
	return removed, nil
}

func (e *Engine) parseRefresh(refreshToken string) (*jwt.Claims, error) {
	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrRefreshMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrRefreshExpired
		default:
			return nil, ErrRefreshInvalid
		}
	}
	return claims, nil
}
