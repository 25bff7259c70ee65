// Package config loads process configuration from environment variables,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Defaults for the Constant Contact v3 endpoints and the PKCE flow.
const (
	DefaultAuthBaseURL = "https://authz.constantcontact.com/oauth2/default/v1"
	DefaultAPIBaseURL  = "https://api.cc.email/v3"
	DefaultRedirectURI = "http://localhost:3000/oauth/callback"
	DefaultScopes      = "contact_data offline_access"
)

// Config holds all environment-based configuration for ccontacts.
type Config struct {
	// OAuth2 client identity and current refresh token.
	ClientID     string `env:"CC_CLIENT_ID"`
	RefreshToken string `env:"CC_REFRESH_TOKEN"`

	// Optional path of the KEY=value file where rotated refresh tokens
	// are persisted. Also consulted as the .env file to load at startup.
	EnvPath string `env:"CC_ENV_PATH"`

	// Endpoint overrides, mainly for tests.
	AuthBaseURL string `env:"CC_AUTH_BASE_URL" envDefault:"https://authz.constantcontact.com/oauth2/default/v1"`
	APIBaseURL  string `env:"CC_API_BASE_URL" envDefault:"https://api.cc.email/v3"`

	// Authorization-code flow settings.
	RedirectURI string `env:"CC_REDIRECT_URI" envDefault:"http://localhost:3000/oauth/callback"`
	Scopes      string `env:"CC_SCOPES" envDefault:"contact_data offline_access"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from environment variables. It first attempts
// to load a .env file (CC_ENV_PATH if set, otherwise ./.env), then parses
// env vars. A missing .env file is not an error.
func Load() (*Config, error) {
	envPath := os.Getenv("CC_ENV_PATH")
	if envPath == "" {
		envPath = ".env"
	}
	_ = godotenv.Load(envPath)

	warnInsecureEnvFile(envPath)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// ValidateCredentials checks that the values every credentialed command
// needs are present. Commands that only build authorization URLs validate
// ClientID on their own instead.
func (c *Config) ValidateCredentials() error {
	if c.ClientID == "" {
		return fmt.Errorf("CC_CLIENT_ID is required; set it in the environment or a .env file")
	}
	if c.RefreshToken == "" {
		return fmt.Errorf("CC_REFRESH_TOKEN is required; run 'ccontacts auth login' to obtain one")
	}
	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// warnInsecureEnvFile checks whether the env file (if present) has overly
// permissive permissions. Group or world readable files risk exposing the
// refresh token to other users.
func warnInsecureEnvFile(path string) {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: %s has insecure permissions %04o; recommended 0600", path, mode)
	}
}
