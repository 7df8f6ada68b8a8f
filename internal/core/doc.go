// Package core is the cryptographic core of passvault. It exposes the four
// operations the rest of the program builds on:
//   - CreateMaster: hash a master password for storage
//   - Authenticate: check a candidate against the stored hash and open a Session
//   - Session.EncryptSecret: seal one secret under the master password
//   - Session.DecryptSecret: open one envelope under the master password
//
// Authentication is bounded: an Authenticator allows DefaultMaxAttempts
// failures, after which it only returns ErrAuthExhausted. The core never
// exits the process; the caller decides what exhaustion means.
//
// A Session holds the verified master password in a secret.Buffer from
// successful authentication until Close, which wipes it. Lookups of stored
// hashes are the caller's job, through a LookupFunc. When the lookup reports
// ErrUnknownUser the Authenticator still spends a full hash verification
// against a decoy, so a missing username costs the same as a wrong password.
package core
