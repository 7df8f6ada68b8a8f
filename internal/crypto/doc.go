// Package crypto provides the password and secret primitives for passvault.
//
// Master password hashing uses Argon2id with:
//   - 16-byte random salt per hash
//   - t=3, m=64 MiB, p=4 by default
//   - PHC string output ($argon2id$v=19$m=..,t=..,p=..$salt$hash) so the
//     stored value carries everything the Verifier needs
//
// Verification recomputes the hash with the stored parameters and compares
// in constant time. A decoy hash of the same cost is available for callers
// that must not reveal whether a username exists.
//
// Secret encryption re-derives a 256-bit key from the master password with
// HKDF-SHA256 on every call and seals the value with an AEAD:
//   - AES-256-GCM, 12-byte random nonce (default)
//   - XChaCha20-Poly1305, 24-byte random nonce
//
// Envelope layout: version | algorithm | nonce | ciphertext || tag. The
// two header bytes are authenticated as associated data.
//
// Memory safety:
//   - Derived keys and intermediate plaintext are wiped with secret.Wipe
//   - Decrypt returns plaintext in a secret.Buffer; call Destroy when done
package crypto
