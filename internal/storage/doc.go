// Package storage provides the BBolt database behind a passvault file.
//
// Database structure uses four top level buckets:
//   - config: format version, timestamps, vault ID (unencrypted)
//   - masters: one MasterRecord per identity, holding only the password hash
//   - index: per identity sub-bucket of public Entry records (for ls)
//   - blobs: per identity sub-bucket of encrypted envelopes
//
// The unencrypted index lets passvault ls work without a password. Secret
// values only ever reach this package as sealed envelope bytes.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage
