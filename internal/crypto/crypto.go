package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
)

// MaxPasswordLen caps master password input so hashing cost cannot be
// amplified by huge inputs.
const MaxPasswordLen = 4096

var (
	ErrEmptyPassword   = errors.New("password is empty")
	ErrPasswordTooLong = errors.New("password too long")

	// ErrHashing reports a failure of the hashing primitive itself.
	ErrHashing = errors.New("password hashing failed")
	// ErrVerification reports a malformed stored hash or an invalid candidate.
	ErrVerification = errors.New("credential verification failed")
	// ErrDecryption is the only error Decrypt and ParseEnvelope return. It does
	// not say whether the key was wrong or the data was damaged.
	ErrDecryption = errors.New("could not decrypt")
)

type options struct {
	params Params
	alg    Algorithm
	rand   io.Reader
}

// Option configures a Hasher, Verifier or Cipher.
type Option func(*options)

// WithParams sets the Argon2id parameters used for new hashes and decoys.
func WithParams(p Params) Option {
	return func(o *options) { o.params = p }
}

// WithAlgorithm sets the AEAD used for new envelopes.
func WithAlgorithm(a Algorithm) Option {
	return func(o *options) { o.alg = a }
}

// WithRand replaces crypto/rand as the source of salts and nonces.
func WithRand(r io.Reader) Option {
	return func(o *options) { o.rand = r }
}

func newOptions(opts []Option) options {
	o := options{
		params: DefaultParams,
		alg:    AlgAES256GCM,
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func checkPassword(password []byte) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}
	if len(password) > MaxPasswordLen {
		return ErrPasswordTooLong
	}
	return nil
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	return readRandom(rand.Reader, n)
}

func readRandom(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
