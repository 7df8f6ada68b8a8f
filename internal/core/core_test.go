package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/illarion/passvault/internal/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = crypto.Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

func newTestCore(opts ...Option) *Core {
	return New(append([]Option{WithCrypto(crypto.WithParams(testParams))}, opts...)...)
}

// records is an in-memory LookupFunc that counts calls.
type records struct {
	mu     sync.Mutex
	hashes map[string]string
	calls  int
}

func (r *records) lookup(_ context.Context, username string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	hash, ok := r.hashes[username]
	if !ok {
		return "", fmt.Errorf("%s: %w", username, ErrUnknownUser)
	}
	return hash, nil
}

func setupAlice(t *testing.T, c *Core) *records {
	t.Helper()
	hash, err := c.CreateMaster(context.Background(), "alice", []byte("Tr0ub4dor&3"))
	require.NoError(t, err)
	return &records{hashes: map[string]string{"alice": hash}}
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	recs := setupAlice(t, c)

	auth := c.NewAuthenticator()
	res, err := auth.Authenticate(ctx, "alice", []byte("Tr0ub4dor&3"), recs.lookup)
	require.NoError(t, err)
	require.Equal(t, AuthSuccess, res.Status)
	session := res.Session
	require.NotNil(t, session)
	assert.Equal(t, "alice", session.Username())

	env, err := session.EncryptSecret(ctx, []byte("hunter2"))
	require.NoError(t, err)

	plain, err := session.DecryptSecret(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), plain.Bytes())
	plain.Destroy()
	session.Close()

	auth = c.NewAuthenticator()
	for i := 2; i >= 1; i-- {
		res, err = auth.Authenticate(ctx, "alice", []byte("wrong"), recs.lookup)
		require.NoError(t, err)
		assert.Equal(t, AuthInvalid, res.Status)
		assert.Equal(t, i, res.Remaining)
		assert.Nil(t, res.Session)
	}
	res, err = auth.Authenticate(ctx, "alice", []byte("wrong"), recs.lookup)
	assert.ErrorIs(t, err, ErrAuthExhausted)
	assert.Equal(t, AuthFatal, res.Status)
	assert.True(t, auth.Exhausted())
}

func TestAuthenticateWipesCandidate(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	recs := setupAlice(t, c)
	auth := c.NewAuthenticator()

	good := []byte("Tr0ub4dor&3")
	res, err := auth.Authenticate(ctx, "alice", good, recs.lookup)
	require.NoError(t, err)
	defer res.Session.Close()
	assert.Equal(t, make([]byte, len(good)), good)

	bad := []byte("nope")
	_, err = auth.Authenticate(ctx, "alice", bad, recs.lookup)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, len(bad)), bad)
}

func TestExhaustedAuthenticatorStopsCallingLookup(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	recs := setupAlice(t, c)
	auth := c.NewAuthenticator()

	for i := 0; i < DefaultMaxAttempts; i++ {
		_, _ = auth.Authenticate(ctx, "alice", []byte("wrong"), recs.lookup)
	}
	require.Equal(t, DefaultMaxAttempts, recs.calls)

	late := []byte("Tr0ub4dor&3")
	res, err := auth.Authenticate(ctx, "alice", late, recs.lookup)
	assert.ErrorIs(t, err, ErrAuthExhausted)
	assert.Equal(t, AuthFatal, res.Status)
	assert.Nil(t, res.Session, "correct password after exhaustion must not open a session")
	assert.Equal(t, DefaultMaxAttempts, recs.calls)
	assert.Equal(t, make([]byte, len(late)), late)
}

func TestUnknownUserCountsAsInvalid(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	recs := setupAlice(t, c)
	auth := c.NewAuthenticator()

	res, err := auth.Authenticate(ctx, "mallory", []byte("Tr0ub4dor&3"), recs.lookup)
	require.NoError(t, err)
	assert.Equal(t, AuthInvalid, res.Status)
	assert.Equal(t, 2, res.Remaining)

	res, err = auth.Authenticate(ctx, "", []byte("Tr0ub4dor&3"), recs.lookup)
	require.NoError(t, err)
	assert.Equal(t, AuthInvalid, res.Status)
	assert.Equal(t, 1, recs.calls, "empty username must not reach lookup")
}

func TestMalformedStoredHashCountsAsInvalid(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	recs := &records{hashes: map[string]string{"alice": "$argon2id$garbage"}}

	res, err := c.NewAuthenticator().Authenticate(ctx, "alice", []byte("Tr0ub4dor&3"), recs.lookup)
	require.NoError(t, err)
	assert.Equal(t, AuthInvalid, res.Status)
}

func TestLookupFailureKeepsBudget(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	auth := c.NewAuthenticator()
	boom := errors.New("database is locked")

	res, err := auth.Authenticate(ctx, "alice", []byte("pw"), func(context.Context, string) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, AuthInvalid, res.Status)
	assert.Equal(t, DefaultMaxAttempts, auth.Remaining())
}

func TestCancelledAuthenticateKeepsBudget(t *testing.T) {
	c := newTestCore()
	recs := setupAlice(t, c)
	auth := c.NewAuthenticator()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	candidate := []byte("Tr0ub4dor&3")
	_, err := auth.Authenticate(ctx, "alice", candidate, recs.lookup)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, DefaultMaxAttempts, auth.Remaining())
	assert.Equal(t, make([]byte, len(candidate)), candidate)
}

func TestSingleIdentity(t *testing.T) {
	ctx := context.Background()
	c := newTestCore(WithSingleIdentity(true))
	assert.True(t, c.SingleIdentity())

	hash, err := c.CreateMaster(ctx, "", []byte("Tr0ub4dor&3"))
	require.NoError(t, err)
	recs := &records{hashes: map[string]string{DefaultIdentity: hash}}

	res, err := c.NewAuthenticator().Authenticate(ctx, "whoever", []byte("Tr0ub4dor&3"), recs.lookup)
	require.NoError(t, err)
	require.Equal(t, AuthSuccess, res.Status)
	defer res.Session.Close()
	assert.Equal(t, DefaultIdentity, res.Session.Username())
}

func TestCreateMasterRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()

	_, err := c.CreateMaster(ctx, "", []byte("pw"))
	assert.ErrorIs(t, err, ErrEmptyUsername)

	_, err = c.CreateMaster(ctx, "alice", nil)
	assert.ErrorIs(t, err, crypto.ErrEmptyPassword)
}

func TestLoginRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	recs := setupAlice(t, c)

	var seen []AuthResult
	attempts := []string{"first-wrong", "second-wrong", "Tr0ub4dor&3"}
	source := func(_ context.Context, prev AuthResult) (string, []byte, error) {
		seen = append(seen, prev)
		return "alice", []byte(attempts[len(seen)-1]), nil
	}

	session, err := c.Login(ctx, source, recs.lookup)
	require.NoError(t, err)
	defer session.Close()

	require.Len(t, seen, 3)
	assert.Equal(t, AuthResult{}, seen[0])
	assert.Equal(t, 2, seen[1].Remaining)
	assert.Equal(t, 1, seen[2].Remaining)
}

func TestLoginExhaustionNeverAsksAFourthTime(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	recs := setupAlice(t, c)

	calls := 0
	source := func(context.Context, AuthResult) (string, []byte, error) {
		calls++
		return "alice", []byte("wrong"), nil
	}

	session, err := c.Login(ctx, source, recs.lookup)
	assert.ErrorIs(t, err, ErrAuthExhausted)
	assert.Nil(t, session)
	assert.Equal(t, 3, calls)
}

func TestLoginSourceError(t *testing.T) {
	c := newTestCore()
	recs := setupAlice(t, c)
	eof := errors.New("stdin closed")

	password := []byte("partial")
	_, err := c.Login(context.Background(), func(context.Context, AuthResult) (string, []byte, error) {
		return "", password, eof
	}, recs.lookup)
	assert.ErrorIs(t, err, eof)
	assert.Equal(t, make([]byte, len(password)), password)
}

func TestMaxAttemptsOption(t *testing.T) {
	ctx := context.Background()
	c := newTestCore(WithMaxAttempts(1))
	recs := setupAlice(t, c)

	res, err := c.NewAuthenticator().Authenticate(ctx, "alice", []byte("wrong"), recs.lookup)
	assert.ErrorIs(t, err, ErrAuthExhausted)
	assert.Equal(t, AuthFatal, res.Status)

	assert.Equal(t, DefaultMaxAttempts, newTestCore(WithMaxAttempts(0)).MaxAttempts())
}

func TestLogsNeverContainSecrets(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	c := newTestCore(WithLogger(zerolog.New(&out).Level(zerolog.DebugLevel)))
	hash, err := c.CreateMaster(ctx, "alice", []byte("Tr0ub4dor&3"))
	require.NoError(t, err)
	recs := &records{hashes: map[string]string{"alice": hash}}

	auth := c.NewAuthenticator()
	_, _ = auth.Authenticate(ctx, "alice", []byte("wrong-guess"), recs.lookup)
	res, err := auth.Authenticate(ctx, "alice", []byte("Tr0ub4dor&3"), recs.lookup)
	require.NoError(t, err)
	env, err := res.Session.EncryptSecret(ctx, []byte("hunter2"))
	require.NoError(t, err)
	res.Session.Close()

	logged := out.String()
	assert.Contains(t, logged, "invalid credentials")
	for _, leak := range []string{"Tr0ub4dor&3", "wrong-guess", "hunter2", hash, env.String()} {
		assert.NotContains(t, logged, leak)
	}
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	c := newTestCore()
	recs := setupAlice(t, c)

	s, err := c.Check(ctx, "alice", []byte("Tr0ub4dor&3"), recs.lookup)
	require.NoError(t, err)
	s.Close()

	s, err = c.Check(ctx, "alice", []byte("wrong"), recs.lookup)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, s)
}

func TestCheckSingleAttempt(t *testing.T) {
	ctx := context.Background()
	c := newTestCore(WithMaxAttempts(5))
	recs := setupAlice(t, c)
	recs.calls = 0

	for i := 0; i < 3; i++ {
		s, err := c.Check(ctx, "alice", []byte("wrong"), recs.lookup)
		require.ErrorIs(t, err, ErrInvalidCredentials)
		assert.NotErrorIs(t, err, ErrAuthExhausted)
		assert.Nil(t, s)
	}
	// every call is its own one-attempt budget
	assert.Equal(t, 3, recs.calls)

	s, err := c.Check(ctx, "alice", []byte("Tr0ub4dor&3"), recs.lookup)
	require.NoError(t, err)
	s.Close()
}
