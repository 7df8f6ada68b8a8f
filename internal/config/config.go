// Package config loads passvault settings from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/illarion/passvault/internal/core"
	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/logging"
)

// DefaultPath is the vault file created in the working directory.
const DefaultPath = ".passvault"

// Config holds every PASSVAULT_* setting.
type Config struct {
	Path           string `env:"PATH" envDefault:".passvault"`
	SingleIdentity bool   `env:"SINGLE_IDENTITY" envDefault:"true"`
	// VisibleInput echoes typed passwords. Only meant for scripted testing.
	VisibleInput bool   `env:"VISIBLE_INPUT" envDefault:"false"`
	Password     string `env:"PASSWORD"`
	MaxAttempts  int    `env:"MAX_ATTEMPTS" envDefault:"3"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"warn"`
	Cipher       string `env:"CIPHER" envDefault:"aes-256-gcm"`
	Argon2       Argon2 `envPrefix:"ARGON2_"`
}

// Argon2 contains the cost parameters for new master hashes.
type Argon2 struct {
	Time    uint32 `env:"TIME" envDefault:"3"`
	MemKiB  uint32 `env:"MEMORY" envDefault:"65536"`
	Threads uint8  `env:"THREADS" envDefault:"4"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PASSVAULT_"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the core would refuse or silently ignore.
func (c *Config) Validate() error {
	var errs []error
	if c.Path == "" {
		errs = append(errs, errors.New("vault path is empty"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if _, err := crypto.ParseAlgorithm(c.Cipher); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := c.Params().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Params returns the Argon2id parameters for new hashes.
func (c *Config) Params() crypto.Params {
	p := crypto.DefaultParams
	p.Time = c.Argon2.Time
	p.Memory = c.Argon2.MemKiB
	p.Threads = c.Argon2.Threads
	return p
}

// CryptoOptions translates the config into crypto options.
func (c *Config) CryptoOptions() []crypto.Option {
	alg, _ := crypto.ParseAlgorithm(c.Cipher)
	return []crypto.Option{
		crypto.WithParams(c.Params()),
		crypto.WithAlgorithm(alg),
	}
}

// CoreOptions returns the core options this config implies, without a logger.
func (c *Config) CoreOptions() []core.Option {
	return []core.Option{
		core.WithCrypto(c.CryptoOptions()...),
		core.WithMaxAttempts(c.MaxAttempts),
		core.WithSingleIdentity(c.SingleIdentity),
	}
}
