// Package vault ties the credential core to the bbolt file.
//
// A Vault opens the database per operation, so several passvault processes
// can take turns on the same file. Secret values cross this package only as
// sealed envelopes on the way in and as secret.Buffer values on the way out.
package vault
