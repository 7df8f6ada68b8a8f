// Package keyring caches master passwords in the OS keyring so repeated
// commands can skip the prompt.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "passvault"

// ErrNotFound is returned when no password is cached.
var ErrNotFound = keyring.ErrNotFound

func account(vaultID, username string) string {
	return vaultID + "/" + username
}

// SavePassword stores the password of username in vault vaultID
func SavePassword(vaultID, username string, password []byte) error {
	return keyring.Set(serviceName, account(vaultID, username), string(password))
}

// GetPassword retrieves a cached password. The caller wipes the result.
func GetPassword(vaultID, username string) ([]byte, error) {
	password, err := keyring.Get(serviceName, account(vaultID, username))
	if err != nil {
		return nil, err
	}
	return []byte(password), nil
}

// DeletePassword removes a password from the OS keyring. Deleting a missing
// entry is not an error.
func DeletePassword(vaultID, username string) error {
	err := keyring.Delete(serviceName, account(vaultID, username))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasPassword checks if a password is stored in the keyring
func HasPassword(vaultID, username string) bool {
	_, err := keyring.Get(serviceName, account(vaultID, username))
	return err == nil
}
