package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Environment variable names for Revolut configuration.
const (
	EnvClientID       = "REVOLUT_CLIENT_ID"
	EnvPrivateKey     = "REVOLUT_PRIVATE_KEY"
	EnvPrivateKeyPath = "REVOLUT_PRIVATE_KEY_PATH"
	EnvSandbox        = "REVOLUT_SANDBOX"
	EnvRefreshBuffer  = "REVOLUT_REFRESH_BUFFER_SECONDS"
	EnvTokenTTL       = "REVOLUT_TOKEN_TTL_SECONDS"
	EnvAccessToken    = "REVOLUT_ACCESS_TOKEN"
	EnvRefreshToken   = "REVOLUT_REFRESH_TOKEN"
	EnvRedisURL       = "REDIS_URL"
)

const (
	productionTokenURL = "https://b2b.revolut.com/api/1.0/auth/token"
	sandboxTokenURL    = "https://sandbox-b2b.revolut.com/api/1.0/auth/token"

	productionAPIURL = "https://b2b.revolut.com/api/1.0"
	sandboxAPIURL    = "https://sandbox-b2b.revolut.com/api/1.0"

	// Revolut access tokens last 40 minutes; refresh starts 5 minutes early.
	defaultTokenTTL      = 40 * time.Minute
	defaultRefreshBuffer = 5 * time.Minute
)

var errBothKeySources = errors.New("inline private key and private key path are mutually exclusive")

// Config holds Revolut OAuth2 client configuration. It is built once
// (typically via FromEnv) and passed to the token manager at construction;
// nothing in the token lifecycle reads process environment after that.
type Config struct {
	ClientID       string
	PrivateKeyPEM  string
	PrivateKeyPath string
	Sandbox        bool

	RefreshBuffer   time.Duration
	DefaultTokenTTL time.Duration

	// TokenEndpoint overrides the sandbox/production token URL when set.
	TokenEndpoint string
	// APIBase overrides the sandbox/production API base URL when set.
	APIBase string

	// Static credentials used to seed a tenant that has never been
	// authorized in this process (first-run bootstrap).
	BootstrapAccessToken  string
	BootstrapRefreshToken string

	// RedisURL enables the durable token tier when non-empty.
	RedisURL string
}

// FromEnv builds a Config from environment variables, falling back to the
// production defaults. Duration values are given in seconds.
func FromEnv() Config {
	cfg := Config{
		RefreshBuffer:   defaultRefreshBuffer,
		DefaultTokenTTL: defaultTokenTTL,
	}
	applyEnvOverrides(&cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvClientID); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv(EnvPrivateKey); v != "" {
		cfg.PrivateKeyPEM = v
	}
	if v := os.Getenv(EnvPrivateKeyPath); v != "" {
		cfg.PrivateKeyPath = v
	}
	if v := os.Getenv(EnvSandbox); v != "" {
		cfg.Sandbox = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvRefreshBuffer); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.RefreshBuffer = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv(EnvTokenTTL); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.DefaultTokenTTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv(EnvAccessToken); v != "" {
		cfg.BootstrapAccessToken = v
	}
	if v := os.Getenv(EnvRefreshToken); v != "" {
		cfg.BootstrapRefreshToken = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		cfg.RedisURL = v
	}
}

// Validate checks for configuration mistakes that would otherwise surface
// as confusing runtime failures.
func (c Config) Validate() error {
	if c.PrivateKeyPEM != "" && c.PrivateKeyPath != "" {
		return errBothKeySources
	}
	return nil
}

// TokenURL returns the OAuth2 token endpoint for the configured environment.
func (c Config) TokenURL() string {
	if c.TokenEndpoint != "" {
		return c.TokenEndpoint
	}
	if c.Sandbox {
		return sandboxTokenURL
	}
	return productionTokenURL
}

// APIBaseURL returns the Business API base URL for the configured environment.
func (c Config) APIBaseURL() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	if c.Sandbox {
		return sandboxAPIURL
	}
	return productionAPIURL
}
