package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/illarion/passvault/internal/git"
	"github.com/illarion/passvault/internal/keyring"
	"github.com/illarion/passvault/internal/vault"
)

// Status shows the current state of the vault (no password required)
func (e *Env) Status(ctx context.Context, userFlag string) {
	username := e.username(userFlag)
	status, err := e.Vault.Status(ctx, username)
	if errors.Is(err, vault.ErrNotInitialized) {
		fmt.Fprintf(e.Out, "No %s file found\n", e.Config.Path)
		fmt.Fprintln(e.Out, "Run 'passvault init' to create one")
		return
	}
	if err != nil {
		e.HandleError(err)
	}

	size := int64(0)
	if info, err := os.Stat(e.Config.Path); err == nil {
		size = info.Size()
	}

	fmt.Fprintf(e.Out, "Vault:         %s (%s)\n", e.Config.Path, formatSize(size))
	fmt.Fprintf(e.Out, "ID:            %s\n", status.VaultID)
	fmt.Fprintf(e.Out, "Created:       %s\n", status.Created.Format(time.RFC3339))
	fmt.Fprintf(e.Out, "Last modified: %s\n", status.LastModified.Format(time.RFC3339))
	fmt.Fprintf(e.Out, "Cipher:        %s\n", status.Cipher)
	if !e.Core.SingleIdentity() {
		fmt.Fprintf(e.Out, "Users:         %s\n", strings.Join(status.Users, ", "))
	}
	fmt.Fprintf(e.Out, "Secrets:       %d\n", status.SecretCount)

	keyringState := "not stored"
	if status.VaultID != "" && keyring.HasPassword(status.VaultID, username) {
		keyringState = "stored"
	}
	fmt.Fprintf(e.Out, "Keyring:       %s\n", keyringState)

	fmt.Fprint(e.Out, git.Format(status.GitStatus))
}
