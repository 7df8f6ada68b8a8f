package cmd

import (
	"context"
	"fmt"
)

// Remove deletes secrets from the vault and compacts the file so their
// envelopes do not linger in free pages.
func (e *Env) Remove(ctx context.Context, names []string, userFlag string) {
	if len(names) == 0 {
		e.fail("rm requires at least one name\nUsage: passvault rm <name|id> [name...]")
	}

	session := e.Login(ctx, userFlag)
	defer session.Close()

	removed := 0
	for _, name := range names {
		if err := e.Vault.Remove(ctx, session, name); err != nil {
			if removed > 0 {
				e.compact()
			}
			e.HandleError(err)
		}
		removed++
		fmt.Fprintf(e.Out, "removed: %s\n", name)
	}

	e.compact()
}

func (e *Env) compact() {
	if err := e.Vault.Compact(); err != nil {
		fmt.Fprintf(e.Err, "warning: compaction failed: %s\n", err)
	}
}
