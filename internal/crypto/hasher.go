package crypto

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/illarion/passvault/internal/secret"
	"golang.org/x/crypto/argon2"
)

const phcAlgorithm = "argon2id"

// Params are the Argon2id cost parameters. Memory is in KiB.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultParams follow the OWASP Argon2id baseline with extra headroom.
var DefaultParams = Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// Bounds accepted for stored hashes. Anything outside is treated as malformed
// so a tampered record cannot make verification arbitrarily expensive.
const (
	maxTime    = 64
	maxMemory  = 4 * 1024 * 1024
	minSaltLen = 8
	maxSaltLen = 64
	minKeyLen  = 16
	maxKeyLen  = 64
)

var errBadParams = errors.New("argon2 parameters out of range")

// Validate checks p against the bounds the Verifier accepts.
func (p Params) Validate() error {
	switch {
	case p.Time < 1 || p.Time > maxTime:
		return fmt.Errorf("%w: time=%d", errBadParams, p.Time)
	case p.Threads < 1:
		return fmt.Errorf("%w: threads=%d", errBadParams, p.Threads)
	case p.Memory < 8*uint32(p.Threads) || p.Memory > maxMemory:
		return fmt.Errorf("%w: memory=%d", errBadParams, p.Memory)
	case p.SaltLen < minSaltLen || p.SaltLen > maxSaltLen:
		return fmt.Errorf("%w: salt length=%d", errBadParams, p.SaltLen)
	case p.KeyLen < minKeyLen || p.KeyLen > maxKeyLen:
		return fmt.Errorf("%w: key length=%d", errBadParams, p.KeyLen)
	}
	return nil
}

// Hasher turns master passwords into self-describing Argon2id hashes.
type Hasher struct {
	opts options
}

// NewHasher creates a Hasher. Without options it uses DefaultParams and crypto/rand.
func NewHasher(opts ...Option) *Hasher {
	return &Hasher{opts: newOptions(opts)}
}

// Params returns the parameters new hashes are produced with.
func (h *Hasher) Params() Params {
	return h.opts.params
}

// Hash returns a PHC-encoded Argon2id hash of password with a fresh salt.
// Two calls with the same password never return the same string.
func (h *Hasher) Hash(ctx context.Context, password []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkPassword(password); err != nil {
		return "", err
	}
	p := h.opts.params
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashing, err)
	}

	salt, err := readRandom(h.opts.rand, int(p.SaltLen))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashing, err)
	}

	key, err := deriveArgon2(password, salt, p)
	if err != nil {
		return "", err
	}
	defer secret.Wipe(key)

	return encodeHash(p, salt, key), nil
}

// deriveArgon2 turns a panic inside the primitive into ErrHashing.
func deriveArgon2(password, salt []byte, p Params) (key []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			key = nil
			err = fmt.Errorf("%w: %v", ErrHashing, r)
		}
	}()
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, p.KeyLen), nil
}

var b64 = base64.RawStdEncoding

func encodeHash(p Params, salt, key []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, argon2.Version, p.Memory, p.Time, p.Threads,
		b64.EncodeToString(salt), b64.EncodeToString(key))
}

// decodedHash is a parsed PHC string.
type decodedHash struct {
	params Params
	salt   []byte
	key    []byte
}

// decodeHash parses the PHC form written by encodeHash. It accepts nothing else.
func decodeHash(encoded string) (*decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: unexpected hash format", ErrVerification)
	}
	if parts[1] != phcAlgorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrVerification, parts[1])
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version", ErrVerification)
	}

	var p Params
	fields := strings.Split(parts[3], ",")
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: unexpected parameter list", ErrVerification)
	}
	for i, name := range []string{"m", "t", "p"} {
		value, ok := strings.CutPrefix(fields[i], name+"=")
		if !ok {
			return nil, fmt.Errorf("%w: missing parameter %s", ErrVerification, name)
		}
		bits := 32
		if name == "p" {
			bits = 8
		}
		n, err := strconv.ParseUint(value, 10, bits)
		if err != nil {
			return nil, fmt.Errorf("%w: bad parameter %s", ErrVerification, name)
		}
		switch name {
		case "m":
			p.Memory = uint32(n)
		case "t":
			p.Time = uint32(n)
		case "p":
			p.Threads = uint8(n)
		}
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt encoding", ErrVerification)
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return nil, fmt.Errorf("%w: bad hash encoding", ErrVerification)
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerification, err)
	}
	return &decodedHash{params: p, salt: salt, key: key}, nil
}
