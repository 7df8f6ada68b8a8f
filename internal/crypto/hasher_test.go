package crypto

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testParams keep the suite fast; production uses DefaultParams.
var testParams = Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestHashFreshSaltEachCall(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(WithParams(testParams))
	v := NewVerifier(WithParams(testParams))

	first, err := h.Hash(ctx, []byte("Tr0ub4dor&3"))
	require.NoError(t, err)
	second, err := h.Hash(ctx, []byte("Tr0ub4dor&3"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "$argon2id$v=19$m=1024,t=1,p=1$"), first)
	assert.NotContains(t, first, "Tr0ub4dor&3")

	for _, encoded := range []string{first, second} {
		ok, err := v.Verify(ctx, []byte("Tr0ub4dor&3"), encoded)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = v.Verify(ctx, []byte("Tr0ub4dor&4"), encoded)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestHashDefaultParamsEncoding(t *testing.T) {
	h := NewHasher()
	assert.Equal(t, DefaultParams, h.Params())
	require.NoError(t, DefaultParams.Validate())
}

func TestHashRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(WithParams(testParams))

	_, err := h.Hash(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = h.Hash(ctx, bytes.Repeat([]byte("a"), MaxPasswordLen+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = h.Hash(ctx, bytes.Repeat([]byte("a"), MaxPasswordLen))
	assert.NoError(t, err)
}

func TestHashPrimitiveFailure(t *testing.T) {
	ctx := context.Background()

	_, err := NewHasher(WithParams(testParams), WithRand(failingReader{})).Hash(ctx, []byte("pw"))
	assert.ErrorIs(t, err, ErrHashing)

	bad := testParams
	bad.Threads = 0
	_, err = NewHasher(WithParams(bad)).Hash(ctx, []byte("pw"))
	assert.ErrorIs(t, err, ErrHashing)
}

func TestHashCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHasher(WithParams(testParams)).Hash(ctx, []byte("pw"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero time", func(p *Params) { p.Time = 0 }},
		{"huge time", func(p *Params) { p.Time = maxTime + 1 }},
		{"zero threads", func(p *Params) { p.Threads = 0 }},
		{"memory below threads", func(p *Params) { p.Threads = 4; p.Memory = 16 }},
		{"huge memory", func(p *Params) { p.Memory = maxMemory + 1 }},
		{"short salt", func(p *Params) { p.SaltLen = 4 }},
		{"short key", func(p *Params) { p.KeyLen = 8 }},
		{"long key", func(p *Params) { p.KeyLen = 128 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
	assert.NoError(t, testParams.Validate())
}
