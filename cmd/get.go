package cmd

import (
	"context"
	"fmt"
)

// Get decrypts one secret and prints it with its details. With valueOnly
// just the value is written, for piping.
func (e *Env) Get(ctx context.Context, nameOrID, userFlag string, valueOnly bool) {
	if nameOrID == "" {
		e.fail("get requires a name or ID\nUsage: passvault get [-q] <name|id>")
	}

	session := e.Login(ctx, userFlag)
	defer session.Close()

	s, err := e.Vault.Get(ctx, session, nameOrID)
	if err != nil {
		e.HandleError(err)
	}
	defer s.Value.Destroy()

	if valueOnly {
		e.Out.Write(s.Value.Bytes())
		fmt.Fprintln(e.Out)
		return
	}

	fmt.Fprintf(e.Out, "ID:          %s\n", s.ID)
	fmt.Fprintf(e.Out, "Name:        %s\n", s.Name)
	fmt.Fprintf(e.Out, "Username:    %s\n", orNA(s.Username))
	fmt.Fprintf(e.Out, "Password:    ")
	e.Out.Write(s.Value.Bytes())
	fmt.Fprintln(e.Out)
	fmt.Fprintf(e.Out, "URL:         %s\n", orNA(s.URL))
	fmt.Fprintf(e.Out, "Description: %s\n", orNA(s.Description))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
