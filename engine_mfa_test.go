package vaultauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMFASetupProvisionsPendingSecret(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	setup, err := engine.SetupMFA(ctx, "u1", testPassword)
	if err != nil {
		t.Fatalf("SetupMFA failed: %v", err)
	}
	if setup.SecretBase32 == "" || len(setup.QRPNG) == 0 {
		t.Fatal("expected secret and QR code from setup")
	}
	if len(setup.BackupCodes) != cfg.Backup.Count {
		t.Fatalf("expected %d backup codes from setup, got %d", cfg.Backup.Count, len(setup.BackupCodes))
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("expected otpauth uri, got %s", setup.URI)
	}
	if !strings.Contains(setup.URI, "alice") {
		t.Fatalf("expected account label in uri, got %s", setup.URI)
	}

	up.mu.Lock()
	record, ok := up.mfaRecords["u1"]
	up.mu.Unlock()
	if !ok || record.State != MFASetupPending {
		t.Fatalf("expected setup_pending record, got %+v", record)
	}
	if len(record.EncryptedSecret) == 0 {
		t.Fatal("expected a persisted encrypted secret")
	}
	if strings.Contains(string(record.EncryptedSecret), setup.SecretBase32) {
		t.Fatal("provider must never see the plaintext secret")
	}
}

func TestMFASetupUnknownUser(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	if _, err := engine.SetupMFA(context.Background(), "ghost", testPassword); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMFASetupDemandsPassword(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	for _, pass := range []string{"", "wrong-password-999"} {
		if _, err := engine.SetupMFA(ctx, "u1", pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("password %q: expected ErrInvalidCredentials, got %v", pass, err)
		}
	}

	up.mu.Lock()
	_, provisioned := up.mfaRecords["u1"]
	up.mu.Unlock()
	if provisioned {
		t.Fatal("expected no record provisioned without the password")
	}
}

func TestMFASetupAgainReplacesPendingSecret(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	first, err := engine.SetupMFA(ctx, "u1", testPassword)
	if err != nil {
		t.Fatalf("first SetupMFA failed: %v", err)
	}
	second, err := engine.SetupMFA(ctx, "u1", testPassword)
	if err != nil {
		t.Fatalf("second SetupMFA failed: %v", err)
	}
	if first.SecretBase32 == second.SecretBase32 {
		t.Fatal("expected re-setup to mint a fresh secret")
	}

	// Only the latest secret confirms.
	stale := totpCodeAt(t, cfg, first.SecretBase32, time.Now())
	if err := engine.ConfirmMFA(ctx, "u1", stale); !errors.Is(err, ErrMFACodeInvalid) {
		t.Fatalf("expected stale secret to fail, got %v", err)
	}
	fresh := totpCodeAt(t, cfg, second.SecretBase32, time.Now())
	if err := engine.ConfirmMFA(ctx, "u1", fresh); err != nil {
		t.Fatalf("expected fresh secret to confirm, got %v", err)
	}
}

func TestMFAConfirmEnablesAccountAndKeepsCodeHashes(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	_, codes := enableMFA(t, engine, cfg, "u1")

	if len(codes) != cfg.Backup.Count {
		t.Fatalf("expected %d backup codes, got %d", cfg.Backup.Count, len(codes))
	}

	up.mu.Lock()
	record := up.mfaRecords["u1"]
	stored := len(up.backupCodes["u1"])
	up.mu.Unlock()
	if record.State != MFAEnabled {
		t.Fatalf("expected enabled state, got %v", record.State)
	}
	if record.ConfirmedAt.IsZero() {
		t.Fatal("expected ConfirmedAt to be set")
	}
	if stored != cfg.Backup.Count {
		t.Fatalf("expected %d stored hashes, got %d", cfg.Backup.Count, stored)
	}
}

func TestMFAConfirmWithoutSetup(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	if err := engine.ConfirmMFA(context.Background(), "u1", "123456"); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("expected ErrMFANotEnabled, got %v", err)
	}
}

func TestMFAConfirmTwiceRejected(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	secret, _ := enableMFA(t, engine, cfg, "u1")

	code := totpCodeAt(t, cfg, secret, time.Now().Add(-time.Duration(cfg.MFA.Period)*time.Second))
	if err := engine.ConfirmMFA(context.Background(), "u1", code); !errors.Is(err, ErrMFAAlreadyEnabled) {
		t.Fatalf("expected ErrMFAAlreadyEnabled, got %v", err)
	}
	if _, err := engine.SetupMFA(context.Background(), "u1", testPassword); !errors.Is(err, ErrMFAAlreadyEnabled) {
		t.Fatalf("expected SetupMFA to reject enabled account, got %v", err)
	}
}

func TestVerifyMFAAcceptsNeighbouringWindows(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	secret, _ := enableMFA(t, engine, cfg, "u1")
	period := time.Duration(cfg.MFA.Period) * time.Second

	if err := engine.VerifyMFA(ctx, "u1", totpCodeAt(t, cfg, secret, time.Now().Add(-period))); err != nil {
		t.Fatalf("previous window code rejected: %v", err)
	}
	if err := engine.VerifyMFA(ctx, "u1", totpCodeAt(t, cfg, secret, time.Now().Add(period))); err != nil {
		t.Fatalf("next window code rejected: %v", err)
	}
}

func TestVerifyMFARejectsReplay(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	secret, _ := enableMFA(t, engine, cfg, "u1")

	code := totpCodeAt(t, cfg, secret, time.Now().Add(-time.Duration(cfg.MFA.Period)*time.Second))
	if err := engine.VerifyMFA(ctx, "u1", code); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	if err := engine.VerifyMFA(ctx, "u1", code); !errors.Is(err, ErrMFACodeReplayed) {
		t.Fatalf("expected ErrMFACodeReplayed, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricMFAReplayBlocked] != 1 {
		t.Fatalf("expected 1 replay blocked, got %d", snap.Counters[MetricMFAReplayBlocked])
	}
}

func TestVerifyMFAMalformedCodeTouchesNoStores(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	enableMFA(t, engine, cfg, "u1")
	up.resetCalls()

	for _, code := range []string{"", "12345", "1234567", "abc!!!", "short"} {
		if err := engine.VerifyMFA(context.Background(), "u1", code); !errors.Is(err, ErrMFACodeMalformed) {
			t.Fatalf("code %q: expected ErrMFACodeMalformed, got %v", code, err)
		}
	}
	if calls := up.totalCalls(); calls != 0 {
		t.Fatalf("expected no provider calls for malformed codes, got %d", calls)
	}
}

func TestVerifyMFADisabledAccount(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	if err := engine.VerifyMFA(context.Background(), "u1", "123456"); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("disabled account: expected ErrMFANotEnabled, got %v", err)
	}
}

func TestVerifyMFACompletesPendingSetup(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	setup, err := engine.SetupMFA(ctx, "u1", testPassword)
	if err != nil {
		t.Fatalf("SetupMFA failed: %v", err)
	}

	if err := engine.VerifyMFA(ctx, "u1", totpCodeAt(t, cfg, setup.SecretBase32, time.Now())); err != nil {
		t.Fatalf("VerifyMFA in pending state failed: %v", err)
	}

	up.mu.Lock()
	record := up.mfaRecords["u1"]
	up.mu.Unlock()
	if record.State != MFAEnabled {
		t.Fatalf("expected first verification to enable MFA, got %v", record.State)
	}
	if record.ConfirmedAt.IsZero() {
		t.Fatal("expected ConfirmedAt to be set")
	}
}

func TestVerifyMFABackupCodeCompletesPendingSetup(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	setup, err := engine.SetupMFA(ctx, "u1", testPassword)
	if err != nil {
		t.Fatalf("SetupMFA failed: %v", err)
	}

	if err := engine.VerifyMFA(ctx, "u1", setup.BackupCodes[0]); err != nil {
		t.Fatalf("backup code in pending state failed: %v", err)
	}

	up.mu.Lock()
	record := up.mfaRecords["u1"]
	up.mu.Unlock()
	if record.State != MFAEnabled {
		t.Fatalf("expected backup-code verification to enable MFA, got %v", record.State)
	}
}

func TestVerifyMFAWrongCodeCountsFailure(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	secret, _ := enableMFA(t, engine, cfg, "u1")

	bad := wrongTOTPCode(totpCodeAt(t, cfg, secret, time.Now()))
	if err := engine.VerifyMFA(ctx, "u1", bad); !errors.Is(err, ErrMFACodeInvalid) {
		t.Fatalf("expected ErrMFACodeInvalid, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricMFAFailure] == 0 {
		t.Fatal("expected MetricMFAFailure to be counted")
	}
}

func TestVerifyMFARateLimitsAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.MFA.MaxAttempts = 3
	cfg.MFA.AttemptWindow = time.Minute
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	secret, _ := enableMFA(t, engine, cfg, "u1")

	bad := wrongTOTPCode(totpCodeAt(t, cfg, secret, time.Now()))
	for i := 0; i < 2; i++ {
		if err := engine.VerifyMFA(ctx, "u1", bad); !errors.Is(err, ErrMFACodeInvalid) {
			t.Fatalf("attempt %d: expected ErrMFACodeInvalid, got %v", i, err)
		}
	}
	// The third failure lands on the budget boundary.
	if err := engine.VerifyMFA(ctx, "u1", bad); !errors.Is(err, ErrMFARateLimited) {
		t.Fatalf("expected ErrMFARateLimited on final attempt, got %v", err)
	}

	// Even a valid code is refused until the window passes.
	good := totpCodeAt(t, cfg, secret, time.Now().Add(-time.Duration(cfg.MFA.Period)*time.Second))
	if err := engine.VerifyMFA(ctx, "u1", good); !errors.Is(err, ErrMFARateLimited) {
		t.Fatalf("expected valid code to be rate limited, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricMFARateLimited] < 2 {
		t.Fatalf("expected rate-limited counter >= 2, got %d", snap.Counters[MetricMFARateLimited])
	}
}

func TestDisableMFAPurgesAllState(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	enableMFA(t, engine, cfg, "u1")

	if err := engine.DisableMFA(ctx, "u1", testPassword, false); err != nil {
		t.Fatalf("DisableMFA failed: %v", err)
	}

	up.mu.Lock()
	_, hasRecord := up.mfaRecords["u1"]
	remaining := len(up.backupCodes["u1"])
	up.mu.Unlock()
	if hasRecord {
		t.Fatal("expected MFA record deleted")
	}
	if remaining != 0 {
		t.Fatalf("expected backup codes cleared, %d remain", remaining)
	}

	if err := engine.VerifyMFA(ctx, "u1", "123456"); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("expected ErrMFANotEnabled after disable, got %v", err)
	}
}

func TestDisableMFARequiresPassword(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	enableMFA(t, engine, cfg, "u1")

	for _, pass := range []string{"", "wrong-password-999"} {
		if err := engine.DisableMFA(ctx, "u1", pass, false); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("password %q: expected ErrInvalidCredentials, got %v", pass, err)
		}
	}

	up.mu.Lock()
	record, ok := up.mfaRecords["u1"]
	up.mu.Unlock()
	if !ok || record.State != MFAEnabled {
		t.Fatal("expected MFA to stay enabled after rejected disable")
	}

	// The override path skips the password entirely.
	if err := engine.DisableMFA(ctx, "u1", "", true); err != nil {
		t.Fatalf("admin override disable failed: %v", err)
	}
}

func TestDisableMFANotEnabled(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	if err := engine.DisableMFA(ctx, "u1", testPassword, false); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("disabled account: expected ErrMFANotEnabled, got %v", err)
	}

	if _, err := engine.SetupMFA(ctx, "u1", testPassword); err != nil {
		t.Fatalf("SetupMFA failed: %v", err)
	}
	if err := engine.DisableMFA(ctx, "u1", testPassword, false); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("pending account: expected ErrMFANotEnabled, got %v", err)
	}
}

func TestResetMFARequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, sink, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	enableMFA(t, engine, cfg, "u1")

	// u1 is a member, not an admin.
	if err := engine.ResetMFA(ctx, "u1", "u1"); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired, got %v", err)
	}
	up.mu.Lock()
	_, stillEnabled := up.mfaRecords["u1"]
	up.mu.Unlock()
	if !stillEnabled {
		t.Fatal("expected MFA state untouched after refused reset")
	}

	if err := engine.ResetMFA(ctx, "u9", "u1"); err != nil {
		t.Fatalf("admin ResetMFA failed: %v", err)
	}
	up.mu.Lock()
	_, hasRecord := up.mfaRecords["u1"]
	up.mu.Unlock()
	if hasRecord {
		t.Fatal("expected MFA record purged by admin reset")
	}

	engine.Close()
	events := auditEventsOfType(drainAudit(sink), auditEventMFAReset)
	if len(events) != 2 {
		t.Fatalf("expected 2 mfa_reset events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Metadata["admin_user_id"] == "" {
			t.Fatalf("expected acting admin recorded, got %+v", ev)
		}
	}
}

func TestResetMFAUnknownUsers(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	ctx := context.Background()
	if err := engine.ResetMFA(ctx, "ghost", "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown admin: expected ErrUserNotFound, got %v", err)
	}
	if err := engine.ResetMFA(ctx, "u9", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown target: expected ErrUserNotFound, got %v", err)
	}
}

func TestVerifyMFAProviderOutage(t *testing.T) {
	cfg := testConfig()
	up := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, up)
	defer done()

	enableMFA(t, engine, cfg, "u1")

	up.mu.Lock()
	up.mfaErr = errors.New("backend down")
	up.mu.Unlock()

	if err := engine.VerifyMFA(context.Background(), "u1", "123456"); !errors.Is(err, ErrMFAUnavailable) {
		t.Fatalf("expected ErrMFAUnavailable, got %v", err)
	}
}
