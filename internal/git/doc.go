// Package git checks whether the vault file is exposed through git.
//
// Checks performed:
//   - Whether the vault file is tracked by git (should not be)
//   - Whether the vault file is in .gitignore (should be)
//
// The vault only holds envelopes and password hashes, but a leaked file can
// still be attacked offline.
package git
