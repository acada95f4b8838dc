// Package middleware exposes HTTP adapters over vaultauth access-token
// validation.
//
// # Guards
//
//   - [Guard] — bearer-token verification, claims into context.
//   - [RequireRole] — Guard plus a role equality check.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls; every accept
// or reject decision is delegated to [vaultauth.Engine.ValidateAccess].
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Touch refresh tokens; rotation stays a JSON API concern.
package middleware
