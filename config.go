package acme

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"

	"github.com/kvernetz/netcup-acme/netcup"
)

const (
	// ConfigScope is the secure-config scope the renewal configuration is
	// stored under when running inside a restinpieces app.
	ConfigScope = "acme_config"

	// JobTypeCertRenewal is the queue job type the renewal handler is
	// registered for.
	JobTypeCertRenewal = "cert_renewal"

	// LEDirectoryProduction and LEDirectoryStaging are the Let's Encrypt
	// directory URLs.
	LEDirectoryProduction = "https://acme-v02.api.letsencrypt.org/directory"
	LEDirectoryStaging    = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

// CollectionConfig describes one certificate collection to keep current.
type CollectionConfig struct {
	// Domains covered by the certificate, primary domain first.
	Domains []string `toml:"domains"`
	// Staging orders the certificate from the staging CA.
	Staging bool `toml:"staging"`
}

// Config is the renewal configuration, loaded from TOML with credential
// overrides from the environment.
type Config struct {
	Email string `toml:"email"`
	// CADirectoryURL overrides the directory URL derived from each
	// collection's staging flag. Usually empty.
	CADirectoryURL string `toml:"ca_directory_url"`
	// AccountPrivateKey is the ACME account key in PEM, normally injected
	// via the environment rather than written to the file.
	AccountPrivateKey string `toml:"account_private_key" env:"ACME_ACCOUNT_PRIVATE_KEY"`
	// Solver names the registered challenge solver to use.
	Solver string `toml:"solver"`

	Netcup      netcup.Config      `toml:"netcup"`
	Collections []CollectionConfig `toml:"collections"`
}

// Validate checks the configuration for use by the renewal handler.
func (c *Config) Validate() error {
	if c.Email == "" {
		return errors.New("config: email cannot be empty")
	}
	if c.AccountPrivateKey == "" {
		return errors.New("config: account_private_key cannot be empty")
	}
	if c.Solver == "" {
		return errors.New("config: solver cannot be empty")
	}
	if len(c.Collections) == 0 {
		return errors.New("config: at least one collection is required")
	}
	for i, col := range c.Collections {
		if len(col.Domains) == 0 {
			return fmt.Errorf("config: collection %d has no domains", i)
		}
	}
	if c.Solver == "netcup" {
		if err := c.Netcup.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// DirectoryURL resolves the ACME directory for a collection.
func (c *Config) DirectoryURL(staging bool) string {
	if c.CADirectoryURL != "" {
		return c.CADirectoryURL
	}
	if staging {
		return LEDirectoryStaging
	}
	return LEDirectoryProduction
}

// LoadConfig reads a TOML configuration file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML bytes, applies environment overrides and
// validates. Environment variables only replace values that are actually
// set, so the file remains the baseline.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
