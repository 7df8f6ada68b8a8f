package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/passvault/internal/keyring"
)

// KeyringSave saves the master password to the OS keyring
func (e *Env) KeyringSave(ctx context.Context, userFlag string) {
	username := e.username(userFlag)

	password, err := e.Prompt.ReadPassword("Enter password: ")
	if err != nil {
		e.fail("%s", err)
	}
	defer wipe(password)

	// Unlock wipes its argument, verify a copy
	candidate := append([]byte(nil), password...)
	session, err := e.Vault.Unlock(ctx, username, candidate)
	if err != nil {
		e.HandleError(err)
	}
	username = session.Username()
	session.Close()

	vaultID, err := e.Vault.GetOrCreateVaultID()
	if err != nil {
		e.HandleError(err)
	}

	if err := keyring.SavePassword(vaultID, username, password); err != nil {
		e.fail("failed to save to keyring: %s", err)
	}

	fmt.Fprintln(e.Out, "Password saved to keyring")
}

// KeyringDelete removes the master password from the OS keyring
func (e *Env) KeyringDelete(userFlag string) {
	username := e.username(userFlag)
	vaultID, err := e.Vault.GetVaultID()
	if err != nil || !keyring.HasPassword(vaultID, username) {
		fmt.Fprintln(e.Out, "No password stored in keyring")
		return
	}

	if err := keyring.DeletePassword(vaultID, username); err != nil {
		e.fail("failed to delete from keyring: %s", err)
	}

	fmt.Fprintln(e.Out, "Password removed from keyring")
}

// KeyringStatus checks if a password is stored in the keyring
func (e *Env) KeyringStatus(userFlag string) {
	username := e.username(userFlag)
	vaultID, err := e.Vault.GetVaultID()
	if err == nil && keyring.HasPassword(vaultID, username) {
		fmt.Fprintln(e.Out, "Password: stored in keyring")
		return
	}
	fmt.Fprintln(e.Out, "Password: not stored")
}
