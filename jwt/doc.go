// Package jwt issues and verifies the signed access and refresh tokens of
// the vaultauth engine.
//
// A [Manager] is pinned to exactly one signing algorithm at construction;
// parsing rejects any token signed with a different algorithm — including
// "none" — even when it would verify under some other key. Refresh tokens
// additionally carry the token-family id consumed by the rotation tracker.
//
// # What this package must NOT do
//
//   - Default to unverified decoding. [Manager.DecodeUnverified] exists for
//     observability call sites only and is named so it cannot be mistaken
//     for verification.
//   - Reuse a jti. Every minted token gets a fresh UUID, so two tokens with
//     identical claims created in the same instant remain distinct.
package jwt
