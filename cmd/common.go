package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/awnumar/memguard"
	"github.com/illarion/passvault/internal/config"
	"github.com/illarion/passvault/internal/core"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/keyring"
	"github.com/illarion/passvault/internal/prompt"
	"github.com/illarion/passvault/internal/secret"
	"github.com/illarion/passvault/internal/vault"
	"github.com/rs/zerolog"
)

// Env carries what every command needs.
type Env struct {
	Config *config.Config
	Log    zerolog.Logger
	Core   *core.Core
	Vault  *vault.Vault
	Prompt *prompt.Prompter
	Out    io.Writer
	Err    io.Writer

	// Exit ends the process. It defaults to memguard.SafeExit, which wipes
	// every locked buffer first.
	Exit func(code int)
}

// NewEnv wires the core and vault for cfg.
func NewEnv(cfg *config.Config, log zerolog.Logger) *Env {
	c := core.New(append(cfg.CoreOptions(), core.WithLogger(log))...)
	return &Env{
		Config: cfg,
		Log:    log,
		Core:   c,
		Vault:  vault.New(cfg.Path, c, log),
		Prompt: prompt.New(os.Stdin, os.Stderr, cfg.VisibleInput),
		Out:    os.Stdout,
		Err:    os.Stderr,
		Exit:   memguard.SafeExit,
	}
}

func (e *Env) fail(format string, args ...any) {
	fmt.Fprintf(e.Err, "Error: "+format+"\n", args...)
	e.Exit(1)
}

// username returns the identity to act as: the flag value, or a prompt in
// multi-user mode. Single identity mode ignores both.
func (e *Env) username(flagValue string) string {
	if e.Core.SingleIdentity() || flagValue != "" {
		return e.Core.Identity(flagValue)
	}
	name, err := e.Prompt.ReadLine("Username: ")
	if err != nil {
		e.fail("%s", err)
	}
	return name
}

// Credentials returns the credential source used by every command that
// needs a session. The first attempt tries PASSVAULT_PASSWORD, then the OS
// keyring; later attempts always prompt.
func (e *Env) Credentials(username string) core.CredentialSource {
	vaultID, _ := e.Vault.GetVaultID()
	first, fromKeyring := true, false

	return func(ctx context.Context, prev core.AuthResult) (string, []byte, error) {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		if prev.Status == core.AuthInvalid {
			if fromKeyring {
				fmt.Fprintln(e.Err, "warning: keyring password is stale (run: passvault keyring save)")
				fromKeyring = false
			}
			fmt.Fprintf(e.Err, "invalid credentials, %d attempt(s) remaining\n", prev.Remaining)
		}
		if first {
			first = false
			if pw := prompt.FromEnv(e.Config.Password); pw != nil {
				return username, pw, nil
			}
			if vaultID != "" {
				if pw, err := keyring.GetPassword(vaultID, username); err == nil {
					e.Log.Debug().Msg("using password from keyring")
					fromKeyring = true
					return username, pw, nil
				}
			}
		}
		pw, err := e.Prompt.ReadPassword("Enter password: ")
		return username, pw, err
	}
}

// Login opens a session or exits.
func (e *Env) Login(ctx context.Context, userFlag string) *core.Session {
	session, err := e.Vault.Login(ctx, e.Credentials(e.username(userFlag)))
	if err != nil {
		e.HandleError(err)
	}
	return session
}

// NewPassword reads a password for init and passwd: PASSVAULT_PASSWORD when
// set, otherwise a confirmed prompt.
func (e *Env) NewPassword(label string) []byte {
	if pw := prompt.FromEnv(e.Config.Password); pw != nil {
		return pw
	}
	pw, err := e.Prompt.ReadPasswordConfirm(label)
	if err != nil {
		e.fail("%s", err)
	}
	return pw
}

// HandleError prints err in user terms and exits with status 1
func (e *Env) HandleError(err error) {
	switch {
	case errors.Is(err, core.ErrAuthExhausted):
		fmt.Fprintln(e.Err, "Max attempts reached. Exiting...")
	case errors.Is(err, core.ErrInvalidCredentials):
		fmt.Fprintln(e.Err, "Error: invalid credentials")
	case errors.Is(err, crypto.ErrDecryption):
		fmt.Fprintln(e.Err, "Error: could not decrypt")
	case errors.Is(err, vault.ErrNotInitialized):
		fmt.Fprintf(e.Err, "Error: passvault not initialized\n")
		fmt.Fprintf(e.Err, "Run 'passvault init' first\n")
	case errors.Is(err, vault.ErrAlreadyExists):
		fmt.Fprintf(e.Err, "Error: %s already exists\n", e.Config.Path)
		fmt.Fprintf(e.Err, "Use 'passvault status' to see current state\n")
	case errors.Is(err, vault.ErrNotFound):
		fmt.Fprintln(e.Err, "Error: no such secret")
		fmt.Fprintln(e.Err, "Use 'passvault ls' to see stored secrets")
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(e.Err, "Interrupted")
	default:
		fmt.Fprintf(e.Err, "Error: %s\n", err)
	}
	e.Exit(1)
}

// wipe is a deferred helper for password slices.
func wipe(b []byte) { secret.Wipe(b) }

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
