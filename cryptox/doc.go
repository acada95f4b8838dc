// Package cryptox implements the vault's client-side key hierarchy and the
// symmetric sealing primitives built on it.
//
// The hierarchy is a one-way ratchet: a password-derived master key
// (PBKDF2-HMAC-SHA256) feeds HKDF to produce per-session keys, which feed
// HKDF again to produce per-document keys. Lower keys cannot recover the
// keys above them. None of the keys are ever persisted; the only value a
// server stores is the Verifier payload, a fixed marker sealed under the
// master key, which lets a client prove it re-derived the right key
// without the server ever seeing it.
//
// # What this package must NOT do
//
//   - Persist or log any derived key.
//   - Accept iteration counts below the hard floor, whatever the caller's
//     configuration says.
//   - Reuse nonces: Seal draws a fresh random nonce per call.
package cryptox
