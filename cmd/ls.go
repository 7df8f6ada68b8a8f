package cmd

import (
	"context"
	"fmt"
)

// Ls lists stored secrets (no password required)
func (e *Env) Ls(ctx context.Context, userFlag string) {
	username := e.username(userFlag)
	entries, err := e.Vault.List(ctx, username)
	if err != nil {
		e.HandleError(err)
	}

	if len(entries) == 0 {
		fmt.Fprintf(e.Out, "No secrets in %s\n", e.Config.Path)
		return
	}

	fmt.Fprintf(e.Out, "Secrets in %s:\n", e.Config.Path)
	for _, entry := range entries {
		fmt.Fprintf(e.Out, "  %s", entry.Name)
		if entry.URL != "" {
			fmt.Fprintf(e.Out, " (%s)", entry.URL)
		}
		if entry.Description != "" {
			fmt.Fprintf(e.Out, " - %s", entry.Description)
		}
		fmt.Fprintf(e.Out, "  [%s]\n", entry.ID)
	}
}
