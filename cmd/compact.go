package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/passvault/internal/vault"
)

// Compact compacts the vault database to reclaim unused space
func (e *Env) Compact(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		e.HandleError(err)
	}

	info, err := os.Stat(e.Config.Path)
	if os.IsNotExist(err) {
		e.HandleError(vault.ErrNotInitialized)
	}
	if err != nil {
		e.HandleError(err)
	}
	sizeBefore := info.Size()

	if err := e.Vault.Compact(); err != nil {
		e.HandleError(err)
	}

	info, err = os.Stat(e.Config.Path)
	if err != nil {
		e.HandleError(err)
	}

	fmt.Fprintf(e.Out, "Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(info.Size()))
}
