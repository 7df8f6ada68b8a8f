package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/passvault/internal/keyring"
)

// Passwd changes the master password, and the username when newUser is
// set. Every secret is re-encrypted in the same transaction.
func (e *Env) Passwd(ctx context.Context, userFlag, newUser string) {
	session := e.Login(ctx, userFlag)
	defer session.Close()
	oldUsername := session.Username()

	vaultID, _ := e.Vault.GetVaultID()
	hadKeyring := vaultID != "" && keyring.HasPassword(vaultID, oldUsername)

	newPassword := e.NewPassword("Enter new master password: ")
	// ChangePassword wipes newPassword, keep a copy for the keyring
	var keep []byte
	if hadKeyring {
		keep = append([]byte(nil), newPassword...)
		defer wipe(keep)
	}

	next, err := e.Vault.ChangePassword(ctx, session, newUser, newPassword)
	if err != nil {
		e.HandleError(err)
	}
	defer next.Close()

	if hadKeyring {
		if oldUsername != next.Username() {
			_ = keyring.DeletePassword(vaultID, oldUsername)
		}
		if err := keyring.SavePassword(vaultID, next.Username(), keep); err == nil {
			fmt.Fprintln(e.Out, "Keyring updated with new password")
		}
	}

	// Old envelopes stay in free pages until compaction
	e.compact()

	fmt.Fprintln(e.Out, "password changed successfully")
}
