package config

import (
	"errors"
	"os"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/ilyakaznacheev/cleanenv"
)

const minSigningKeyLength = 32

var _ lazarus.Config = (*AppConfig)(nil)

// Load reads the YAML file at path, when it exists, then applies LAZARUS_*
// environment overrides and defaults.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	var err error
	if path != "" && fileExists(path) {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read configuration").
			WithMetadata(map[string]any{"path": path})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot default
func (c *AppConfig) Validate() error {
	if len(c.Auth.SigningKey) < minSigningKeyLength {
		return goerrors.New("signing key must be at least 32 characters", goerrors.CategoryValidation).
			WithTextCode("INVALID_SIGNING_KEY")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres":
	default:
		return goerrors.New("unsupported database driver", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"driver": c.Database.Driver})
	}
	if c.Media.Enabled && c.Media.UploadURL == "" {
		return goerrors.New("media upload url is required when media is enabled", goerrors.CategoryValidation)
	}
	return nil
}

func (c *AppConfig) IsProduction() bool {
	return c != nil && strings.EqualFold(c.AppEnv, "production")
}

func (c *AppConfig) GetSigningKey() string {
	return c.Auth.SigningKey
}

func (c *AppConfig) GetTokenExpiration() time.Duration {
	return c.Auth.TokenTTL
}

func (c *AppConfig) GetIssuer() string {
	return c.Auth.Issuer
}

func (c *AppConfig) GetAudience() []string {
	return c.Auth.Audience
}

func (c *AppConfig) GetResetTokenExpiration() time.Duration {
	return c.Auth.ResetTokenTTL
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
