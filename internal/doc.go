// Package internal contains helper utilities that are intentionally private to
// vaultauth, currently secure random generation for backup-code material.
//
// # What this package must NOT do
//
//   - Export types that appear in the public vaultauth API.
//   - Be imported by any package outside the vaultauth module.
package internal
