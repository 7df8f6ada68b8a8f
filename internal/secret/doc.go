// Package secret holds master passwords and decrypted values in memory
// that is locked against swapping and wiped when released.
//
// A Buffer is backed by a memguard LockedBuffer:
//   - the source slice is copied into guarded memory and wiped in place
//   - the guarded region is read-only for the lifetime of the Buffer
//   - Destroy wipes and unmaps the region; it is safe to call more than once
//
// Buffers never print, log or marshal their contents. Every formatting path
// returns a redaction marker instead.
//
// Short-lived plain slices (derived keys, intermediate plaintext) should be
// released with Wipe.
package secret
