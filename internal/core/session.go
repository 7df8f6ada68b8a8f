package core

import (
	"context"
	"sync"

	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/secret"
	"github.com/rs/zerolog"
)

// State of a Session.
type State int

const (
	StateAuthenticated State = iota + 1
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session holds a verified master password until Close. Encrypt and decrypt
// calls may run concurrently; each borrows the password for the duration of
// one cipher call. Close waits for them and wipes the password.
type Session struct {
	mu       sync.RWMutex
	username string
	password *secret.Buffer
	cipher   *crypto.Cipher
	log      zerolog.Logger
	closed   bool
}

// Username returns the identity the session was opened for.
func (s *Session) Username() string {
	return s.username
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return StateClosed
	}
	return StateAuthenticated
}

// EncryptSecret seals plaintext into a new envelope. plaintext is only read.
func (s *Session) EncryptSecret(ctx context.Context, plaintext []byte) (*crypto.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.cipher.Encrypt(ctx, s.password.Bytes(), plaintext)
}

// DecryptSecret opens env. Failures are crypto.ErrDecryption whatever the
// cause. The caller destroys the returned buffer.
func (s *Session) DecryptSecret(ctx context.Context, env *crypto.Envelope) (*secret.Buffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.cipher.Decrypt(ctx, s.password.Bytes(), env)
}

// Close wipes the master password. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.password.Destroy()
	s.closed = true
	s.log.Debug().Msg("session closed")
}
