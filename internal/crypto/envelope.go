package crypto

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	EnvelopeVersion = 1
	TagSize         = 16 // Poly1305 and GCM tag size
	headerSize      = 2
)

// Algorithm identifies the AEAD an envelope was sealed with.
type Algorithm byte

const (
	AlgAES256GCM         Algorithm = 1
	AlgXChaCha20Poly1305 Algorithm = 2
)

// ParseAlgorithm maps a configuration name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "aes-256-gcm", "":
		return AlgAES256GCM, nil
	case "xchacha20-poly1305":
		return AlgXChaCha20Poly1305, nil
	}
	return 0, fmt.Errorf("unknown cipher %q", name)
}

func (a Algorithm) String() string {
	switch a {
	case AlgAES256GCM:
		return "aes-256-gcm"
	case AlgXChaCha20Poly1305:
		return "xchacha20-poly1305"
	}
	return fmt.Sprintf("unknown(%d)", byte(a))
}

// NonceSize returns the nonce length for a, or 0 for unknown algorithms.
func (a Algorithm) NonceSize() int {
	switch a {
	case AlgAES256GCM:
		return 12
	case AlgXChaCha20Poly1305:
		return chacha20poly1305.NonceSizeX
	}
	return 0
}

// Envelope is one encrypted secret. Ciphertext carries the tag in its last
// TagSize bytes. Envelopes are never modified; re-encryption makes a new one.
type Envelope struct {
	Version    byte
	Algorithm  Algorithm
	Nonce      []byte
	Ciphertext []byte
}

// Tag returns the authentication tag part of the ciphertext.
func (e *Envelope) Tag() []byte {
	if len(e.Ciphertext) < TagSize {
		return nil
	}
	return e.Ciphertext[len(e.Ciphertext)-TagSize:]
}

func (e *Envelope) header() []byte {
	return []byte{e.Version, byte(e.Algorithm)}
}

func (e *Envelope) validate() error {
	if e.Version != EnvelopeVersion {
		return ErrDecryption
	}
	n := e.Algorithm.NonceSize()
	if n == 0 || len(e.Nonce) != n || len(e.Ciphertext) < TagSize {
		return ErrDecryption
	}
	return nil
}

// MarshalBinary encodes e as version | algorithm | nonce | ciphertext.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, fmt.Errorf("invalid envelope")
	}
	out := make([]byte, 0, headerSize+len(e.Nonce)+len(e.Ciphertext))
	out = append(out, e.header()...)
	out = append(out, e.Nonce...)
	out = append(out, e.Ciphertext...)
	return out, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary. data is copied.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return ErrDecryption
	}
	alg := Algorithm(data[1])
	n := alg.NonceSize()
	if data[0] != EnvelopeVersion || n == 0 || len(data) < headerSize+n+TagSize {
		return ErrDecryption
	}

	body := append([]byte(nil), data[headerSize:]...)
	*e = Envelope{
		Version:    data[0],
		Algorithm:  alg,
		Nonce:      body[:n:n],
		Ciphertext: body[n:],
	}
	return nil
}

// String returns the storage form: unpadded base64 of MarshalBinary.
func (e *Envelope) String() string {
	data, err := e.MarshalBinary()
	if err != nil {
		return ""
	}
	return base64.RawStdEncoding.EncodeToString(data)
}

// ParseEnvelope decodes the storage form. Every failure is ErrDecryption.
func ParseEnvelope(s string) (*Envelope, error) {
	data, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrDecryption
	}
	e := &Envelope{}
	if err := e.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return e, nil
}
