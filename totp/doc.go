// Package totp implements the RFC 6238 time-based one-time password engine
// used by the vaultauth MFA orchestrator: secret generation and validation,
// code generation and clock-drift-tolerant verification, provisioning URIs,
// and QR rendering.
//
// Code verification here answers exactly one question: is the code
// cryptographically valid for this secret within the tolerated window.
// Replay protection is a separate concern owned by the engine's used-code
// ledger; the two must never be conflated.
package totp
