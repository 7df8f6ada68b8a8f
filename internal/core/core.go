package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/secret"
	"github.com/rs/zerolog"
)

const (
	// DefaultIdentity is the username used in single identity mode.
	DefaultIdentity = "default"
	// DefaultMaxAttempts is the number of failed authentications allowed.
	DefaultMaxAttempts = 3
)

var (
	ErrAuthExhausted      = errors.New("maximum authentication attempts reached")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownUser        = errors.New("unknown user")
	ErrSessionClosed      = errors.New("session closed")
	ErrEmptyUsername      = errors.New("username is empty")
)

// LookupFunc returns the stored password hash for username. It must return
// an error wrapping ErrUnknownUser when no record exists.
type LookupFunc func(ctx context.Context, username string) (string, error)

// Core bundles the hasher, verifier and cipher with the authentication policy.
type Core struct {
	hasher   *crypto.Hasher
	verifier *crypto.Verifier
	cipher   *crypto.Cipher
	log      zerolog.Logger

	maxAttempts    int
	singleIdentity bool
}

// Option configures a Core.
type Option func(*Core)

// WithCrypto passes options to the hasher, verifier and cipher.
func WithCrypto(opts ...crypto.Option) Option {
	return func(c *Core) {
		c.hasher = crypto.NewHasher(opts...)
		c.verifier = crypto.NewVerifier(opts...)
		c.cipher = crypto.NewCipher(opts...)
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Core) { c.log = l }
}

// WithMaxAttempts sets the failure budget of every Authenticator. Values
// below one are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Core) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithSingleIdentity makes every username resolve to DefaultIdentity.
func WithSingleIdentity(enabled bool) Option {
	return func(c *Core) { c.singleIdentity = enabled }
}

// New creates a Core with default Argon2id parameters, AES-256-GCM, three
// attempts and multi-user identities.
func New(opts ...Option) *Core {
	c := &Core{
		hasher:      crypto.NewHasher(),
		verifier:    crypto.NewVerifier(),
		cipher:      crypto.NewCipher(),
		log:         zerolog.Nop(),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "core").Logger()
	return c
}

// Identity maps a caller supplied username to the identity records are kept under.
func (c *Core) Identity(username string) string {
	if c.singleIdentity {
		return DefaultIdentity
	}
	return username
}

// SingleIdentity reports whether usernames are ignored.
func (c *Core) SingleIdentity() bool {
	return c.singleIdentity
}

// MaxAttempts returns the failure budget given to new Authenticators.
func (c *Core) MaxAttempts() int {
	return c.maxAttempts
}

// CreateMaster hashes password for storage under username. password is only
// read; the caller still owns and wipes it.
func (c *Core) CreateMaster(ctx context.Context, username string, password []byte) (string, error) {
	identity := c.Identity(username)
	if identity == "" {
		return "", ErrEmptyUsername
	}
	hash, err := c.hasher.Hash(ctx, password)
	if err != nil {
		return "", fmt.Errorf("failed to hash master password: %w", err)
	}
	c.log.Info().Str("username", identity).Msg("master credential created")
	return hash, nil
}

// NeedsRehash reports whether hash was made with outdated parameters.
func (c *Core) NeedsRehash(hash string) bool {
	return c.verifier.NeedsRehash(hash)
}

// Check makes a single authentication attempt with a budget of one and
// returns ErrInvalidCredentials instead of a retry status. It suits
// non-interactive callers that have exactly one candidate.
func (c *Core) Check(ctx context.Context, username string, candidate []byte, lookup LookupFunc) (*Session, error) {
	a := &Authenticator{core: c, remaining: 1}
	res, err := a.Authenticate(ctx, username, candidate, lookup)
	if err != nil && !errors.Is(err, ErrAuthExhausted) {
		return nil, err
	}
	if res.Status != AuthSuccess {
		return nil, ErrInvalidCredentials
	}
	return res.Session, nil
}

// Rehash hashes the password of an open session with the current parameters,
// for upgrading a stored hash that NeedsRehash flagged.
func (c *Core) Rehash(ctx context.Context, s *Session) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrSessionClosed
	}
	hash, err := c.hasher.Hash(ctx, s.password.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to hash master password: %w", err)
	}
	return hash, nil
}

// Algorithm returns the AEAD new envelopes are sealed with.
func (c *Core) Algorithm() crypto.Algorithm {
	return c.cipher.Algorithm()
}

// NewAuthenticator starts a fresh attempt budget.
func (c *Core) NewAuthenticator() *Authenticator {
	return &Authenticator{core: c, remaining: c.maxAttempts}
}

// Login runs a new Authenticator until it succeeds or runs out of attempts.
func (c *Core) Login(ctx context.Context, source CredentialSource, lookup LookupFunc) (*Session, error) {
	return c.NewAuthenticator().Login(ctx, source, lookup)
}

// Rotate hashes newPassword and opens a session for it without another
// authentication round, so the caller can re-encrypt from s into next.
// newPassword is taken over and wiped. An empty newUsername keeps the
// current one. s stays open; the caller closes both sessions.
func (c *Core) Rotate(ctx context.Context, s *Session, newUsername string, newPassword []byte) (string, *Session, error) {
	buf := secret.New(newPassword)
	if s.State() != StateAuthenticated {
		buf.Destroy()
		return "", nil, ErrSessionClosed
	}

	if newUsername == "" {
		newUsername = s.Username()
	}
	identity := c.Identity(newUsername)

	hash, err := c.CreateMaster(ctx, identity, buf.Bytes())
	if err != nil {
		buf.Destroy()
		return "", nil, err
	}

	c.log.Info().Str("username", s.Username()).Str("new_username", identity).Msg("master credential rotated")
	return hash, c.newSession(identity, buf), nil
}

func (c *Core) newSession(username string, password *secret.Buffer) *Session {
	return &Session{
		username: username,
		password: password,
		cipher:   c.cipher,
		log:      c.log.With().Str("username", username).Logger(),
	}
}
