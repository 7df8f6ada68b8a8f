package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/passvault/internal/storage"
)

// EntryFlags are the public fields settable from the command line.
type EntryFlags struct {
	User        string
	Name        string // update only: rename to
	Username    string
	URL         string
	Description string
}

func (f EntryFlags) entry(name string) storage.Entry {
	return storage.Entry{Name: name, Username: f.Username, URL: f.URL, Description: f.Description}
}

// Add encrypts a new secret. The value is read without echo.
func (e *Env) Add(ctx context.Context, name string, flags EntryFlags) {
	if name == "" {
		e.fail("add requires a name\nUsage: passvault add [flags] <name>")
	}

	session := e.Login(ctx, flags.User)
	defer session.Close()

	value, err := e.Prompt.ReadPassword("Secret value: ")
	if err != nil {
		e.fail("%s", err)
	}
	defer wipe(value)

	if err := e.Vault.Add(ctx, session, flags.entry(name), value); err != nil {
		e.HandleError(err)
	}
	fmt.Fprintf(e.Out, "stored: %s\n", name)
}

// Update changes the public fields of a secret, and its value when
// newValue is set.
func (e *Env) Update(ctx context.Context, nameOrID string, flags EntryFlags, newValue bool) {
	if nameOrID == "" {
		e.fail("update requires a name or ID\nUsage: passvault update [flags] <name|id>")
	}

	session := e.Login(ctx, flags.User)
	defer session.Close()

	var value []byte
	if newValue {
		v, err := e.Prompt.ReadPassword("New secret value: ")
		if err != nil {
			e.fail("%s", err)
		}
		value = v
		defer wipe(value)
	}

	if err := e.Vault.Update(ctx, session, nameOrID, flags.entry(flags.Name), value); err != nil {
		e.HandleError(err)
	}
	if flags.Name != "" && flags.Name != nameOrID {
		fmt.Fprintf(e.Out, "renamed: %s -> %s\n", nameOrID, flags.Name)
		return
	}
	fmt.Fprintf(e.Out, "updated: %s\n", nameOrID)
}
