// Package vaultauth is the authentication core for the DocSafe document
// vault: password verification, TOTP and backup-code MFA, JWT issuance,
// and single-use refresh token rotation with family-wide revocation.
//
// The package is a library, not a service. Callers wire in their own user
// database through [UserProvider] and a redis client for the shared
// mutable state (token families, deny-list, replay ledger, rate
// limiters). Build an [Engine] with [New]:
//
//	engine, err := vaultauth.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithUserProvider(provider).
//		Build()
//
// Engines are immutable after Build and safe for concurrent use. Every
// MFA and token-family state transition is reflected in the audit
// stream; see [AuditSink].
//
// The zero-knowledge key hierarchy used for document encryption lives in
// the cryptox subpackage and has no redis or provider dependencies.
package vaultauth
