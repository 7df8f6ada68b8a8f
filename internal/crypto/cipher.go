package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/illarion/passvault/internal/secret"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	KeySize = 32 // 256-bit AEAD key

	// keySalt is fixed so the key depends on the master password alone;
	// nothing beyond the envelope is stored per secret.
	keySalt = "passvault/secret-cipher/v1"
	keyInfo = "passvault secret key"
)

// Cipher encrypts and decrypts individual secrets under a key derived from
// the master password. It keeps no key material between calls and is safe
// for concurrent use.
type Cipher struct {
	opts options
}

// NewCipher creates a Cipher sealing new envelopes with AES-256-GCM unless
// WithAlgorithm says otherwise. Decrypt accepts every known algorithm.
func NewCipher(opts ...Option) *Cipher {
	return &Cipher{opts: newOptions(opts)}
}

// Algorithm returns the AEAD used for new envelopes.
func (c *Cipher) Algorithm() Algorithm {
	return c.opts.alg
}

// deriveKey expands password into a KeySize key bound to alg.
func deriveKey(password []byte, alg Algorithm) ([]byte, error) {
	info := append([]byte(keyInfo), byte(alg))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, password, []byte(keySalt), info), key); err != nil {
		secret.Wipe(key)
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AlgAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return gcm, nil
	case AlgXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create XChaCha20-Poly1305: %w", err)
		}
		return aead, nil
	}
	return nil, fmt.Errorf("unsupported algorithm %s", alg)
}

// Encrypt seals plaintext under a key derived from password. A fresh random
// nonce is drawn for every call; if the random source fails, nothing is sealed.
func (c *Cipher) Encrypt(ctx context.Context, password, plaintext []byte) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}

	alg := c.opts.alg
	key, err := deriveKey(password, alg)
	if err != nil {
		return nil, err
	}
	defer secret.Wipe(key)

	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}

	nonce, err := readRandom(c.opts.rand, aead.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	env := &Envelope{
		Version:   EnvelopeVersion,
		Algorithm: alg,
		Nonce:     nonce,
	}
	env.Ciphertext = aead.Seal(nil, nonce, plaintext, env.header())
	return env, nil
}

// Decrypt opens env with a key derived from password. Any failure, including
// a wrong password, returns ErrDecryption and no plaintext.
func (c *Cipher) Decrypt(ctx context.Context, password []byte, env *Envelope) (*secret.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if env == nil || len(password) == 0 || env.validate() != nil {
		return nil, ErrDecryption
	}

	key, err := deriveKey(password, env.Algorithm)
	if err != nil {
		return nil, ErrDecryption
	}
	defer secret.Wipe(key)

	aead, err := newAEAD(env.Algorithm, key)
	if err != nil {
		return nil, ErrDecryption
	}

	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, env.header())
	if err != nil {
		secret.Wipe(plaintext)
		return nil, ErrDecryption
	}
	return secret.New(plaintext), nil
}
