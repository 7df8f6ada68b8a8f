package crypto

import (
	"context"
	"fmt"
	"sync"

	"github.com/illarion/passvault/internal/secret"
)

// Verifier checks candidate passwords against stored Argon2id hashes.
type Verifier struct {
	opts options

	decoyOnce sync.Once
	decoy     string
	decoyErr  error
}

// NewVerifier creates a Verifier. The options only affect the decoy hash and
// NeedsRehash; stored hashes are always checked with their own parameters.
func NewVerifier(opts ...Option) *Verifier {
	return &Verifier{opts: newOptions(opts)}
}

// Verify reports whether candidate matches encoded. The comparison is
// constant time. A malformed encoded value or a candidate that could never
// have been hashed yields ErrVerification.
func (v *Verifier) Verify(ctx context.Context, candidate []byte, encoded string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := checkPassword(candidate); err != nil {
		return false, fmt.Errorf("%w: %w", ErrVerification, err)
	}

	stored, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	computed, err := deriveArgon2(candidate, stored.salt, stored.params)
	if err != nil {
		return false, err
	}
	defer secret.Wipe(computed)

	return ConstantTimeCompare(computed, stored.key), nil
}

// VerifyDecoy spends the same work as Verify against a hash no password can
// match and always returns false. Use it when the stored record is missing.
func (v *Verifier) VerifyDecoy(ctx context.Context, candidate []byte) (bool, error) {
	v.decoyOnce.Do(func() {
		filler, err := readRandom(v.opts.rand, 32)
		if err != nil {
			v.decoyErr = err
			return
		}
		defer secret.Wipe(filler)
		h := &Hasher{opts: v.opts}
		v.decoy, v.decoyErr = h.Hash(context.Background(), filler)
	})
	if v.decoyErr != nil {
		return false, fmt.Errorf("failed to prepare decoy hash: %w", v.decoyErr)
	}

	if checkPassword(candidate) != nil {
		candidate = []byte("decoy-candidate")
	}
	if _, err := v.Verify(ctx, candidate, v.decoy); err != nil {
		return false, err
	}
	return false, nil
}

// NeedsRehash reports whether encoded was produced with parameters other than
// the ones this Verifier was configured with.
func (v *Verifier) NeedsRehash(encoded string) bool {
	stored, err := decodeHash(encoded)
	if err != nil {
		return true
	}
	want := v.opts.params
	return stored.params.Time != want.Time ||
		stored.params.Memory != want.Memory ||
		stored.params.Threads != want.Threads ||
		stored.params.SaltLen != want.SaltLen ||
		stored.params.KeyLen != want.KeyLen
}
