package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/passvault/internal/git"
)

// Init creates a new vault file with its first master credential
func (e *Env) Init(ctx context.Context, userFlag string) {
	if e.Vault.Exists() {
		e.fail("%s already exists in this directory", e.Config.Path)
	}

	username := e.username(userFlag)
	password := e.NewPassword("Enter master password: ")
	defer wipe(password)

	if err := e.Vault.Init(ctx, username, password); err != nil {
		e.HandleError(err)
	}

	fmt.Fprintf(e.Out, "✓ Initialized %s\n", e.Config.Path)
	if status, err := e.Vault.Status(ctx, username); err == nil {
		fmt.Fprint(e.Out, git.Format(status.GitStatus))
	}
}

// UserAdd registers another identity in a multi-user vault
func (e *Env) UserAdd(ctx context.Context, username string) {
	if username == "" {
		e.fail("useradd requires a username\nUsage: passvault useradd <username>")
	}
	password := e.NewPassword("Enter master password for " + username + ": ")
	defer wipe(password)

	if err := e.Vault.AddUser(ctx, username, password); err != nil {
		e.HandleError(err)
	}
	fmt.Fprintf(e.Out, "✓ Added user %s\n", username)
}
