package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/illarion/passvault/internal/core"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/git"
	"github.com/illarion/passvault/internal/secret"
	"github.com/illarion/passvault/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultFile is the vault file name in the working directory.
const DefaultFile = ".passvault"

var (
	ErrNotInitialized = errors.New("passvault not initialized")
	ErrAlreadyExists  = errors.New("passvault already exists")
	ErrNotFound       = errors.New("secret not found")
	ErrEmptyName      = errors.New("secret name is empty")
	ErrNameTaken      = errors.New("a secret with that name already exists")
	ErrUserExists     = errors.New("user already exists")
	ErrSingleIdentity = errors.New("vault uses a single identity")
)

// Vault manages encrypted secrets in one passvault file
type Vault struct {
	path string
	core *core.Core
	log  zerolog.Logger
}

// New creates a Vault for the file at path. c supplies hashing, verification
// and the cipher; log may be zerolog.Nop().
func New(path string, c *core.Core, log zerolog.Logger) *Vault {
	return &Vault{
		path: path,
		core: c,
		log:  log.With().Str("component", "vault").Str("path", path).Logger(),
	}
}

// Path returns the vault file path.
func (v *Vault) Path() string {
	return v.path
}

// Exists reports whether the vault file is present.
func (v *Vault) Exists() bool {
	_, err := os.Stat(v.path)
	return err == nil
}

func (v *Vault) open() (*storage.Storage, error) {
	if !v.Exists() {
		return nil, ErrNotInitialized
	}
	db, err := storage.Open(v.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ok, err := db.IsInitialized()
	if err != nil || !ok {
		db.Close()
		return nil, ErrNotInitialized
	}
	return db, nil
}

// Init creates the vault file with a first master credential. password is
// only read; the caller wipes it.
func (v *Vault) Init(ctx context.Context, username string, password []byte) error {
	if v.Exists() {
		return ErrAlreadyExists
	}

	hash, err := v.core.CreateMaster(ctx, username, password)
	if err != nil {
		return err
	}

	db, err := storage.Open(v.path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	cleanup := func() {
		db.Close()
		os.Remove(v.path)
	}

	if err := db.Initialize(); err != nil {
		cleanup()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	rec := &storage.MasterRecord{Username: v.core.Identity(username), PasswordHash: hash}
	if err := db.CreateMaster(rec); err != nil {
		cleanup()
		return fmt.Errorf("failed to store master credential: %w", err)
	}
	if _, err := db.GetOrCreateVaultID(); err != nil {
		cleanup()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	v.log.Info().Str("username", rec.Username).Msg("vault initialized")
	return nil
}

// AddUser registers another identity in a multi-user vault.
func (v *Vault) AddUser(ctx context.Context, username string, password []byte) error {
	if v.core.SingleIdentity() {
		return ErrSingleIdentity
	}
	hash, err := v.core.CreateMaster(ctx, username, password)
	if err != nil {
		return err
	}

	db, err := v.open()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.CreateMaster(&storage.MasterRecord{Username: username, PasswordHash: hash})
	if errors.Is(err, storage.ErrExists) {
		return ErrUserExists
	}
	return err
}

// lookup adapts storage to core.LookupFunc.
func lookup(db *storage.Storage) core.LookupFunc {
	return func(ctx context.Context, username string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rec, err := db.GetMaster(username)
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", username, core.ErrUnknownUser)
		}
		if err != nil {
			return "", err
		}
		return rec.PasswordHash, nil
	}
}

// Login asks source for credentials until one is accepted or the attempt
// budget is spent, in which case the error is core.ErrAuthExhausted.
// A hash made with outdated parameters is upgraded on success.
func (v *Vault) Login(ctx context.Context, source core.CredentialSource) (*core.Session, error) {
	db, err := v.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	session, err := v.core.Login(ctx, source, lookup(db))
	if err != nil {
		return nil, err
	}
	v.upgradeHash(ctx, db, session)
	return session, nil
}

// Unlock checks a single password, for non-interactive callers.
func (v *Vault) Unlock(ctx context.Context, username string, password []byte) (*core.Session, error) {
	db, err := v.open()
	if err != nil {
		secret.Wipe(password)
		return nil, err
	}
	defer db.Close()

	session, err := v.core.Check(ctx, username, password, lookup(db))
	if err != nil {
		return nil, err
	}
	v.upgradeHash(ctx, db, session)
	return session, nil
}

// upgradeHash rehashes the session password when the stored hash uses
// parameters other than the configured ones. Failures are only logged.
func (v *Vault) upgradeHash(ctx context.Context, db *storage.Storage, session *core.Session) {
	rec, err := db.GetMaster(session.Username())
	if err != nil || !v.core.NeedsRehash(rec.PasswordHash) {
		return
	}
	hash, err := v.core.Rehash(ctx, session)
	if err != nil {
		v.log.Warn().Err(err).Msg("failed to upgrade password hash")
		return
	}
	if err := db.UpdateMasterHash(rec.Username, hash); err != nil {
		v.log.Warn().Err(err).Msg("failed to store upgraded password hash")
		return
	}
	v.log.Info().Str("username", rec.Username).Msg("password hash upgraded")
}

// Add encrypts value under entry.Name, replacing an existing secret with the
// same name. value is only read.
func (v *Vault) Add(ctx context.Context, session *core.Session, entry storage.Entry, value []byte) error {
	entry.Name = strings.TrimSpace(entry.Name)
	if entry.Name == "" {
		return ErrEmptyName
	}

	env, err := session.EncryptSecret(ctx, value)
	if err != nil {
		return err
	}
	data, err := env.MarshalBinary()
	if err != nil {
		return err
	}

	db, err := v.open()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PutSecret(session.Username(), entry, data); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}
	v.log.Info().Str("name", entry.Name).Msg("secret stored")
	return nil
}

// Secret is a decrypted secret together with its public entry. Value must
// be destroyed by the caller.
type Secret struct {
	storage.Entry
	Value *secret.Buffer
}

// Get decrypts the secret identified by name or ID.
func (v *Vault) Get(ctx context.Context, session *core.Session, nameOrID string) (*Secret, error) {
	db, err := v.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	name, err := resolve(db, session.Username(), nameOrID)
	if err != nil {
		return nil, err
	}
	entry, data, err := db.GetSecret(session.Username(), name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var env crypto.Envelope
	if err := env.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	value, err := session.DecryptSecret(ctx, &env)
	if err != nil {
		return nil, err
	}
	return &Secret{Entry: *entry, Value: value}, nil
}

// Update changes the public fields of an existing secret and, when value is
// not nil, its value. A non-empty patch.Name renames the secret. The entry
// keeps its ID.
func (v *Vault) Update(ctx context.Context, session *core.Session, nameOrID string, patch storage.Entry, value []byte) error {
	current, err := v.Get(ctx, session, nameOrID)
	if err != nil {
		return err
	}
	defer current.Value.Destroy()

	next := current.Entry
	if name := strings.TrimSpace(patch.Name); name != "" {
		next.Name = name
	}
	if patch.Username != "" {
		next.Username = patch.Username
	}
	if patch.URL != "" {
		next.URL = patch.URL
	}
	if patch.Description != "" {
		next.Description = patch.Description
	}
	if value == nil {
		value = current.Value.Bytes()
	}

	env, err := session.EncryptSecret(ctx, value)
	if err != nil {
		return err
	}
	data, err := env.MarshalBinary()
	if err != nil {
		return err
	}

	db, err := v.open()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.ReplaceSecret(session.Username(), current.Name, next, data)
	switch {
	case errors.Is(err, storage.ErrExists):
		return ErrNameTaken
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("failed to update secret: %w", err)
	}
	if next.Name != current.Name {
		v.log.Info().Str("name", current.Name).Str("new_name", next.Name).Msg("secret renamed")
	} else {
		v.log.Info().Str("name", next.Name).Msg("secret updated")
	}
	return nil
}

// Remove deletes the secret identified by name or ID. The envelope bytes
// remain in free pages until Compact.
func (v *Vault) Remove(ctx context.Context, session *core.Session, nameOrID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := v.open()
	if err != nil {
		return err
	}
	defer db.Close()

	name, err := resolve(db, session.Username(), nameOrID)
	if err != nil {
		return err
	}
	if err := db.RemoveSecret(session.Username(), name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	v.log.Info().Str("name", name).Msg("secret removed")
	return nil
}

func resolve(db *storage.Storage, owner, nameOrID string) (string, error) {
	entries, err := db.ListEntries(owner)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Name == nameOrID || e.ID == nameOrID {
			return e.Name, nil
		}
	}
	return "", ErrNotFound
}

// List returns the public entries of username (no password required)
func (v *Vault) List(ctx context.Context, username string) ([]storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := v.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return db.ListEntries(v.core.Identity(username))
}

// ChangePassword re-encrypts every secret of session's identity under
// newPassword and replaces the master record in one transaction. newPassword
// is taken over and wiped. An empty newUsername keeps the current identity.
// On success session is closed and the returned session uses the new
// password.
func (v *Vault) ChangePassword(ctx context.Context, session *core.Session, newUsername string, newPassword []byte) (*core.Session, error) {
	db, err := v.open()
	if err != nil {
		secret.Wipe(newPassword)
		return nil, err
	}
	defer db.Close()

	hash, next, err := v.core.Rotate(ctx, session, newUsername, newPassword)
	if err != nil {
		return nil, err
	}

	rec := storage.MasterRecord{Username: next.Username(), PasswordHash: hash}
	err = db.Rekey(session.Username(), rec, func(name string, data []byte) ([]byte, error) {
		var env crypto.Envelope
		if err := env.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		plain, err := session.DecryptSecret(ctx, &env)
		if err != nil {
			return nil, err
		}
		defer plain.Destroy()

		reenc, err := next.EncryptSecret(ctx, plain.Bytes())
		if err != nil {
			return nil, err
		}
		return reenc.MarshalBinary()
	})
	if err != nil {
		next.Close()
		if errors.Is(err, storage.ErrExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to change password: %w", err)
	}

	session.Close()
	v.log.Info().Str("username", next.Username()).Msg("master password changed")
	return next, nil
}

// Compact compacts the database to reclaim unused space.
// This drops the bytes of removed secrets from the file.
func (v *Vault) Compact() error {
	db, err := v.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Compact()
}

// GetVaultID retrieves the vault ID from storage
func (v *Vault) GetVaultID() (string, error) {
	db, err := v.open()
	if err != nil {
		return "", err
	}
	defer db.Close()
	return db.GetVaultID()
}

// GetOrCreateVaultID retrieves existing vault ID or generates a new one
func (v *Vault) GetOrCreateVaultID() (string, error) {
	db, err := v.open()
	if err != nil {
		return "", err
	}
	defer db.Close()
	return db.GetOrCreateVaultID()
}

// StatusInfo contains vault status information
type StatusInfo struct {
	VaultID      string
	Created      time.Time
	LastModified time.Time
	Users        []string
	SecretCount  int
	Cipher       string
	Entries      []storage.Entry
	GitStatus    *git.Status
}

// Status returns the current status (no password required). Entries and
// SecretCount are for username; Users lists every identity.
func (v *Vault) Status(ctx context.Context, username string) (*StatusInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := v.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	status := &StatusInfo{Cipher: v.core.Algorithm().String()}
	status.VaultID, _ = db.GetVaultID()
	status.Created, _ = db.GetCreated()
	status.LastModified, _ = db.GetModified()

	masters, err := db.ListMasters()
	if err != nil {
		return nil, err
	}
	for _, m := range masters {
		status.Users = append(status.Users, m.Username)
	}

	status.Entries, err = db.ListEntries(v.core.Identity(username))
	if err != nil {
		return nil, err
	}
	status.SecretCount = len(status.Entries)

	abs, err := filepath.Abs(v.path)
	if err == nil {
		status.GitStatus = git.CheckVault(ctx, filepath.Dir(abs), filepath.Base(abs))
	}
	return status, nil
}
