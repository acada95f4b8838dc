package internaldefs

import (
	vaultauth "github.com/docsafe/vaultauth"
)

// CounterDef names one engine counter for export. Instances are built at
// package init and treated as immutable.
type CounterDef struct {
	ID   vaultauth.MetricID
	Name string
	Help string
}

// CounterDefs maps every engine counter to its exported name. Both
// exporters iterate this slice so the two surfaces can never disagree.
var CounterDefs = []CounterDef{
	{ID: vaultauth.MetricLoginSuccess, Name: "vaultauth_login_success_total", Help: "Successful login attempts."},
	{ID: vaultauth.MetricLoginFailure, Name: "vaultauth_login_failure_total", Help: "Failed login attempts."},
	{ID: vaultauth.MetricLoginRateLimited, Name: "vaultauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: vaultauth.MetricTokenPairIssued, Name: "vaultauth_token_pair_issued_total", Help: "Token pairs issued by login and rotation."},
	{ID: vaultauth.MetricRefreshSuccess, Name: "vaultauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: vaultauth.MetricRefreshFailure, Name: "vaultauth_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: vaultauth.MetricRefreshReuseDetected, Name: "vaultauth_refresh_reuse_detected_total", Help: "Refresh token reuses detected."},
	{ID: vaultauth.MetricFamilyRevoked, Name: "vaultauth_family_revoked_total", Help: "Token family revocations from any cause."},
	{ID: vaultauth.MetricFamiliesSwept, Name: "vaultauth_families_swept_total", Help: "Expired token families removed by cleanup."},
	{ID: vaultauth.MetricMFASetup, Name: "vaultauth_mfa_setup_total", Help: "Provisioned MFA secrets awaiting confirmation."},
	{ID: vaultauth.MetricMFAEnabled, Name: "vaultauth_mfa_enabled_total", Help: "MFA setup confirmations."},
	{ID: vaultauth.MetricMFADisabled, Name: "vaultauth_mfa_disabled_total", Help: "User-initiated MFA disables."},
	{ID: vaultauth.MetricMFAReset, Name: "vaultauth_mfa_reset_total", Help: "Administrative MFA resets."},
	{ID: vaultauth.MetricMFASuccess, Name: "vaultauth_mfa_success_total", Help: "Accepted second-factor codes."},
	{ID: vaultauth.MetricMFAFailure, Name: "vaultauth_mfa_failure_total", Help: "Rejected second-factor codes."},
	{ID: vaultauth.MetricMFARateLimited, Name: "vaultauth_mfa_rate_limited_total", Help: "Second-factor attempts denied by the limiter."},
	{ID: vaultauth.MetricMFAReplayBlocked, Name: "vaultauth_mfa_replay_blocked_total", Help: "Valid TOTP codes rejected as replays."},
	{ID: vaultauth.MetricBackupCodeUsed, Name: "vaultauth_backup_code_used_total", Help: "Consumed backup codes."},
	{ID: vaultauth.MetricBackupCodeFailed, Name: "vaultauth_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: vaultauth.MetricBackupCodesRegenerated, Name: "vaultauth_backup_codes_regenerated_total", Help: "Backup-code batch regenerations."},
	{ID: vaultauth.MetricBackupCodesExhausted, Name: "vaultauth_backup_codes_exhausted_total", Help: "Verifications that consumed an account's last backup code."},
}

// AuditDroppedName is the exported name of the dispatcher drop counter,
// which lives outside the engine's MetricID space.
const AuditDroppedName = "vaultauth_audit_dropped_total"

// AuditDroppedHelp describes the dispatcher drop counter.
const AuditDroppedHelp = "Audit events dropped by dispatcher backpressure."
