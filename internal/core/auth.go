package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/secret"
)

// AuthStatus is the outcome of one authentication attempt.
type AuthStatus int

const (
	AuthInvalid AuthStatus = iota + 1
	AuthSuccess
	AuthFatal
)

func (s AuthStatus) String() string {
	switch s {
	case AuthInvalid:
		return "invalid"
	case AuthSuccess:
		return "success"
	case AuthFatal:
		return "fatal"
	}
	return "unknown"
}

// AuthResult is returned by every Authenticate call. Session is set only on
// AuthSuccess. Remaining is the number of attempts left after an AuthInvalid.
type AuthResult struct {
	Status    AuthStatus
	Session   *Session
	Remaining int
}

// CredentialSource supplies one candidate per call. prev is the result of
// the previous attempt and is zero on the first call. The returned password
// is taken over by the Authenticator and wiped.
type CredentialSource func(ctx context.Context, prev AuthResult) (username string, password []byte, err error)

// Authenticator tracks the attempt budget of one login context. Once the
// budget is spent it stays exhausted; create a new one only when the caller's
// policy allows a fresh start.
type Authenticator struct {
	core *Core

	mu        sync.Mutex
	remaining int
	exhausted bool
}

// Remaining returns how many failed attempts are still allowed.
func (a *Authenticator) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining
}

// Exhausted reports whether the attempt budget is spent.
func (a *Authenticator) Exhausted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exhausted
}

// Authenticate checks candidate for username. candidate is taken over and
// wiped on every path; on success it lives on inside the returned Session.
//
// A wrong password, an unknown username and a malformed stored hash all
// count as AuthInvalid. The attempt that spends the budget returns AuthFatal
// with ErrAuthExhausted, and so does every later call, without touching
// lookup or the verifier. Lookup failures other than ErrUnknownUser and
// context cancellation are returned as errors and do not use up an attempt.
func (a *Authenticator) Authenticate(ctx context.Context, username string, candidate []byte, lookup LookupFunc) (AuthResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.exhausted {
		secret.Wipe(candidate)
		return AuthResult{Status: AuthFatal}, ErrAuthExhausted
	}

	password := secret.New(candidate)
	keep := false
	defer func() {
		if !keep {
			password.Destroy()
		}
	}()

	identity := a.core.Identity(username)
	log := a.core.log.With().Str("username", identity).Logger()

	match, err := a.check(ctx, identity, password.Bytes(), lookup)
	if err != nil {
		log.Error().Err(err).Msg("authentication aborted")
		return AuthResult{Status: AuthInvalid, Remaining: a.remaining}, err
	}

	if match {
		keep = true
		log.Info().Msg("authenticated")
		return AuthResult{Status: AuthSuccess, Session: a.core.newSession(identity, password)}, nil
	}

	a.remaining--
	if a.remaining <= 0 {
		a.exhausted = true
		log.Warn().Msg("authentication attempts exhausted")
		return AuthResult{Status: AuthFatal}, ErrAuthExhausted
	}
	log.Warn().Int("remaining", a.remaining).Msg("invalid credentials")
	return AuthResult{Status: AuthInvalid, Remaining: a.remaining}, nil
}

// check returns an error only for failures that must not use up an attempt.
func (a *Authenticator) check(ctx context.Context, identity string, password []byte, lookup LookupFunc) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	verifier := a.core.verifier

	stored, err := "", ErrUnknownUser
	if identity != "" {
		stored, err = lookup(ctx, identity)
	}
	switch {
	case errors.Is(err, ErrUnknownUser):
		if _, err := verifier.VerifyDecoy(ctx, password); err != nil && ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up master credential: %w", err)
	}

	ok, err := verifier.Verify(ctx, password, stored)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if errors.Is(err, crypto.ErrVerification) {
			a.core.log.Warn().Err(err).Str("username", identity).Msg("stored credential rejected")
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Login asks source for candidates until one authenticates or the budget is
// spent. source is never called again after the final failed attempt.
func (a *Authenticator) Login(ctx context.Context, source CredentialSource, lookup LookupFunc) (*Session, error) {
	var prev AuthResult
	for {
		if a.Exhausted() {
			return nil, ErrAuthExhausted
		}
		username, password, err := source(ctx, prev)
		if err != nil {
			secret.Wipe(password)
			return nil, err
		}

		res, err := a.Authenticate(ctx, username, password, lookup)
		if err != nil {
			return nil, err
		}
		if res.Status == AuthSuccess {
			return res.Session, nil
		}
		prev = res
	}
}
