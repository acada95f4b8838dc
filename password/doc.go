// Package password provides the bcrypt credential-hashing primitive used by
// the vaultauth engine, together with the password strength policy enforced
// at hash time.
//
// Hashing and verification are pure functions over their inputs: the package
// performs no I/O, keeps no state beyond its immutable configuration, and
// never logs plaintext.
//
// # What this package must NOT do
//
//   - Accept a cost factor below 12 (brute-force floor) or above 16
//     (single-hash latency would leave the interactive band).
//   - Return an error for a wrong-but-well-formed password on Verify;
//     mismatch is a (false, nil) result, not a failure.
package password
