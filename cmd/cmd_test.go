package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/illarion/passvault/internal/config"
	"github.com/illarion/passvault/internal/core"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/prompt"
	"github.com/illarion/passvault/internal/vault"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type exitCode int

type testEnv struct {
	*Env
	out, err *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	keyring.MockInit()

	cfg := &config.Config{
		Path:           filepath.Join(t.TempDir(), vault.DefaultFile),
		SingleIdentity: true,
		MaxAttempts:    core.DefaultMaxAttempts,
		LogLevel:       "warn",
		Cipher:         "aes-256-gcm",
		Argon2:         config.Argon2{Time: 1, MemKiB: 1024, Threads: 1},
	}
	require.NoError(t, cfg.Validate())

	e := NewEnv(cfg, zerolog.Nop())
	te := &testEnv{Env: e, out: &bytes.Buffer{}, err: &bytes.Buffer{}}
	e.Out, e.Err = te.out, te.err
	e.Exit = func(code int) { panic(exitCode(code)) }
	return te
}

// run feeds input to the prompter and returns the exit code fn ended with,
// or -1 when it returned normally.
func (te *testEnv) run(input string, fn func()) (code int) {
	te.out.Reset()
	te.err.Reset()
	te.Prompt = prompt.NewReader(strings.NewReader(input), &bytes.Buffer{})
	defer func() {
		if r := recover(); r != nil {
			c, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			code = int(c)
		}
	}()
	fn()
	return -1
}

func TestInitAddGet(t *testing.T) {
	ctx := context.Background()
	te := newTestEnv(t)

	code := te.run("Tr0ub4dor&3\nTr0ub4dor&3\n", func() { te.Init(ctx, "") })
	require.Equal(t, -1, code, te.err.String())
	assert.Contains(t, te.out.String(), "Initialized")

	code = te.run("Tr0ub4dor&3\n", func() { te.Init(ctx, "") })
	assert.Equal(t, 1, code)
	assert.Contains(t, te.err.String(), "already exists")

	code = te.run("Tr0ub4dor&3\nhunter2\n", func() {
		te.Add(ctx, "github", EntryFlags{URL: "github.com", Username: "alice"})
	})
	require.Equal(t, -1, code, te.err.String())

	code = te.run("Tr0ub4dor&3\n", func() { te.Get(ctx, "github", "", true) })
	require.Equal(t, -1, code, te.err.String())
	assert.Equal(t, "hunter2\n", te.out.String())

	code = te.run("Tr0ub4dor&3\n", func() { te.Get(ctx, "github", "", false) })
	require.Equal(t, -1, code, te.err.String())
	assert.Contains(t, te.out.String(), "Password:    hunter2")
	assert.Contains(t, te.out.String(), "URL:         github.com")
	assert.Contains(t, te.out.String(), "Description: N/A")

	code = te.run("", func() { te.Ls(ctx, "") })
	require.Equal(t, -1, code)
	assert.Contains(t, te.out.String(), "github (github.com)")

	code = te.run("Tr0ub4dor&3\n", func() { te.Get(ctx, "gitlab", "", true) })
	assert.Equal(t, 1, code)
	assert.Contains(t, te.err.String(), "no such secret")
}

func TestLoginExhaustion(t *testing.T) {
	ctx := context.Background()
	te := newTestEnv(t)
	require.Equal(t, -1, te.run("Tr0ub4dor&3\nTr0ub4dor&3\n", func() { te.Init(ctx, "") }))

	code := te.run("one\ntwo\nthree\nTr0ub4dor&3\n", func() { te.Get(ctx, "github", "", true) })
	assert.Equal(t, 1, code)
	errOut := te.err.String()
	assert.Contains(t, errOut, "invalid credentials, 2 attempt(s) remaining")
	assert.Contains(t, errOut, "invalid credentials, 1 attempt(s) remaining")
	assert.Contains(t, errOut, "Max attempts reached. Exiting...")
	assert.Empty(t, te.out.String())
}

func TestEnvPassword(t *testing.T) {
	ctx := context.Background()
	te := newTestEnv(t)
	te.Config.Password = "Tr0ub4dor&3"

	require.Equal(t, -1, te.run("", func() { te.Init(ctx, "") }))
	require.Equal(t, -1, te.run("hunter2\n", func() { te.Add(ctx, "github", EntryFlags{}) }))

	code := te.run("", func() { te.Get(ctx, "github", "", true) })
	require.Equal(t, -1, code, te.err.String())
	assert.Equal(t, "hunter2\n", te.out.String())
}

func TestKeyringAndPasswd(t *testing.T) {
	ctx := context.Background()
	te := newTestEnv(t)
	require.Equal(t, -1, te.run("Tr0ub4dor&3\nTr0ub4dor&3\n", func() { te.Init(ctx, "") }))
	require.Equal(t, -1, te.run("Tr0ub4dor&3\nhunter2\n", func() { te.Add(ctx, "github", EntryFlags{}) }))

	code := te.run("wrong\n", func() { te.KeyringSave(ctx, "") })
	assert.Equal(t, 1, code)
	assert.Contains(t, te.err.String(), "invalid credentials")

	require.Equal(t, -1, te.run("Tr0ub4dor&3\n", func() { te.KeyringSave(ctx, "") }))
	require.Equal(t, -1, te.run("", func() { te.KeyringStatus("") }))
	assert.Contains(t, te.out.String(), "stored in keyring")

	// no prompt input: the keyring supplies the password
	code = te.run("", func() { te.Get(ctx, "github", "", true) })
	require.Equal(t, -1, code, te.err.String())
	assert.Equal(t, "hunter2\n", te.out.String())

	code = te.run("correct horse\ncorrect horse\n", func() { te.Passwd(ctx, "", "") })
	require.Equal(t, -1, code, te.err.String())
	assert.Contains(t, te.out.String(), "Keyring updated")
	assert.Contains(t, te.out.String(), "password changed successfully")

	code = te.run("", func() { te.Get(ctx, "github", "", true) })
	require.Equal(t, -1, code, te.err.String())
	assert.Equal(t, "hunter2\n", te.out.String())

	require.Equal(t, -1, te.run("", func() { te.KeyringDelete("") }))
	assert.Contains(t, te.out.String(), "Password removed")

	code = te.run("Tr0ub4dor&3\n", func() { te.Get(ctx, "github", "", true) })
	assert.Equal(t, 1, code)

	code = te.run("correct horse\n", func() { te.Get(ctx, "github", "", true) })
	require.Equal(t, -1, code, te.err.String())
}

func TestStaleKeyringFallsBackToPrompt(t *testing.T) {
	ctx := context.Background()
	te := newTestEnv(t)
	require.Equal(t, -1, te.run("Tr0ub4dor&3\nTr0ub4dor&3\n", func() { te.Init(ctx, "") }))
	require.Equal(t, -1, te.run("Tr0ub4dor&3\n", func() { te.KeyringSave(ctx, "") }))
	require.Equal(t, -1, te.run("Tr0ub4dor&3\nhunter2\n", func() { te.Add(ctx, "github", EntryFlags{}) }))

	vaultID, err := te.Vault.GetVaultID()
	require.NoError(t, err)
	require.NoError(t, keyring.Set("passvault", vaultID+"/"+core.DefaultIdentity, "outdated"))

	code := te.run("Tr0ub4dor&3\n", func() { te.Get(ctx, "github", "", true) })
	require.Equal(t, -1, code, te.err.String())
	assert.Contains(t, te.err.String(), "keyring password is stale")
	assert.Equal(t, "hunter2\n", te.out.String())
}

func TestRemoveUpdateStatusCompact(t *testing.T) {
	ctx := context.Background()
	te := newTestEnv(t)
	te.Config.Password = "Tr0ub4dor&3"
	require.Equal(t, -1, te.run("", func() { te.Init(ctx, "") }))
	require.Equal(t, -1, te.run("v1\n", func() { te.Add(ctx, "a", EntryFlags{}) }))
	require.Equal(t, -1, te.run("v2\n", func() { te.Add(ctx, "b", EntryFlags{}) }))

	code := te.run("v3\n", func() { te.Update(ctx, "a", EntryFlags{Description: "rotated"}, true) })
	require.Equal(t, -1, code, te.err.String())
	require.Equal(t, -1, te.run("", func() { te.Get(ctx, "a", "", false) }))
	assert.Contains(t, te.out.String(), "Password:    v3")
	assert.Contains(t, te.out.String(), "Description: rotated")

	require.Equal(t, -1, te.run("", func() { te.Remove(ctx, []string{"b"}, "") }))
	assert.Contains(t, te.out.String(), "removed: b")

	require.Equal(t, -1, te.run("", func() { te.Status(ctx, "") }))
	assert.Contains(t, te.out.String(), "Secrets:       1")
	assert.Contains(t, te.out.String(), "Cipher:        aes-256-gcm")

	require.Equal(t, -1, te.run("", func() { te.Compact(ctx) }))
	assert.Contains(t, te.out.String(), "Compacted:")
}

func TestRemoveCompactsWhenStoppedEarly(t *testing.T) {
	ctx := context.Background()
	te := newTestEnv(t)
	te.Config.Password = "Tr0ub4dor&3"
	require.Equal(t, -1, te.run("", func() { te.Init(ctx, "") }))
	big := strings.Repeat("x", 256*1024)
	require.Equal(t, -1, te.run(big+"\n", func() { te.Add(ctx, "big", EntryFlags{}) }))
	require.Equal(t, -1, te.run("v\n", func() { te.Add(ctx, "keep", EntryFlags{}) }))

	before, err := os.Stat(te.Config.Path)
	require.NoError(t, err)

	code := te.run("", func() { te.Remove(ctx, []string{"big", "missing"}, "") })
	assert.Equal(t, 1, code)
	assert.Contains(t, te.out.String(), "removed: big")
	assert.Contains(t, te.err.String(), "no such secret")

	after, err := os.Stat(te.Config.Path)
	require.NoError(t, err)
	assert.Less(t, after.Size(), before.Size())

	require.Equal(t, -1, te.run("", func() { te.Get(ctx, "keep", "", true) }))
	assert.Equal(t, "v\n", te.out.String())
}

func TestUpdateRename(t *testing.T) {
	ctx := context.Background()
	te := newTestEnv(t)
	te.Config.Password = "Tr0ub4dor&3"
	require.Equal(t, -1, te.run("", func() { te.Init(ctx, "") }))
	require.Equal(t, -1, te.run("hunter2\n", func() { te.Add(ctx, "mail", EntryFlags{}) }))
	require.Equal(t, -1, te.run("pin\n", func() { te.Add(ctx, "bank", EntryFlags{}) }))

	code := te.run("", func() { te.Update(ctx, "mail", EntryFlags{Name: "email"}, false) })
	require.Equal(t, -1, code, te.err.String())
	assert.Contains(t, te.out.String(), "renamed: mail -> email")

	require.Equal(t, -1, te.run("", func() { te.Get(ctx, "email", "", true) }))
	assert.Equal(t, "hunter2\n", te.out.String())
	assert.Equal(t, 1, te.run("", func() { te.Get(ctx, "mail", "", true) }))

	assert.Equal(t, 1, te.run("", func() { te.Update(ctx, "email", EntryFlags{Name: "bank"}, false) }))
	assert.Contains(t, te.err.String(), "already exists")
}

func TestStatusWithoutVault(t *testing.T) {
	te := newTestEnv(t)
	require.Equal(t, -1, te.run("", func() { te.Status(context.Background(), "") }))
	assert.Contains(t, te.out.String(), "passvault init")

	assert.Equal(t, 1, te.run("", func() { te.Compact(context.Background()) }))
	assert.Contains(t, te.err.String(), "not initialized")
}

func TestHandleError(t *testing.T) {
	te := newTestEnv(t)
	tests := []struct {
		err  error
		want string
	}{
		{core.ErrAuthExhausted, "Max attempts reached. Exiting..."},
		{core.ErrInvalidCredentials, "invalid credentials"},
		{crypto.ErrDecryption, "could not decrypt"},
		{vault.ErrNotInitialized, "Run 'passvault init' first"},
		{vault.ErrNotFound, "no such secret"},
		{context.Canceled, "Interrupted"},
		{errors.New("disk full"), "Error: disk full"},
	}
	for _, tt := range tests {
		code := te.run("", func() { te.HandleError(tt.err) })
		assert.Equal(t, 1, code)
		assert.Contains(t, te.err.String(), tt.want)
	}
}

func TestCompletion(t *testing.T) {
	te := newTestEnv(t)
	for _, shell := range []string{"bash", "zsh", "fish"} {
		require.Equal(t, -1, te.run("", func() { te.Completion(shell) }))
		assert.Contains(t, te.out.String(), "passvault")
	}
	assert.Equal(t, 1, te.run("", func() { te.Completion("tcsh") }))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 bytes", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2*1024*1024))
}
