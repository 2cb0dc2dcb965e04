// Package config builds the agent's runtime configuration from functional
// options layered over environment variables and an optional config file,
// in the same defaults-then-env-then-file-then-options-then-validate
// precedence the rest of this codebase uses for its configuration surfaces.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mozilla-releng/balrogagent/internal/apperrors"
)

var (
	errMissingAdminURL     = errors.New("admin service URL is required")
	errMissingCredentials  = errors.New("OAuth2 client id, secret, and token URL are required")
	errNonPositiveInterval = errors.New("polling interval must be positive")
)

// ClientCredentials is the OAuth2 client-credentials material used to
// authenticate against the admin service.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	Audience     string
	TokenURL     string
}

// Config is the agent's complete runtime configuration.
type Config struct {
	AdminURL     string
	TelemetryURL string
	Credentials  ClientCredentials
	Interval     time.Duration
	Once         bool
	LogLevel     string
	LogFormat    string
	OTELEndpoint string
}

// Option mutates a Config during construction; an error aborts NewConfig.
type Option func(*Config) error

// DefaultConfig returns the zero-value-safe defaults applied before
// environment variables and explicit options.
func DefaultConfig() *Config {
	return &Config{
		Interval:  5 * time.Minute,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadFromEnv overlays BALROGAGENT_* environment variables onto c.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("BALROGAGENT_ADMIN_URL"); v != "" {
		c.AdminURL = v
	}
	if v := os.Getenv("BALROGAGENT_TELEMETRY_URL"); v != "" {
		c.TelemetryURL = v
	}
	if v := os.Getenv("BALROGAGENT_CLIENT_ID"); v != "" {
		c.Credentials.ClientID = v
	}
	if v := os.Getenv("BALROGAGENT_CLIENT_SECRET"); v != "" {
		c.Credentials.ClientSecret = v
	}
	if v := os.Getenv("BALROGAGENT_AUDIENCE"); v != "" {
		c.Credentials.Audience = v
	}
	if v := os.Getenv("BALROGAGENT_TOKEN_URL"); v != "" {
		c.Credentials.TokenURL = v
	}
	if v := os.Getenv("BALROGAGENT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return apperrors.NewFatalConfigError("parse BALROGAGENT_INTERVAL", err)
		}
		c.Interval = d
	}
	if v := os.Getenv("BALROGAGENT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BALROGAGENT_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("BALROGAGENT_OTEL_ENDPOINT"); v != "" {
		c.OTELEndpoint = v
	}
	if v := os.Getenv("BALROGAGENT_ONCE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.NewFatalConfigError("parse BALROGAGENT_ONCE", err)
		}
		c.Once = b
	}
	return nil
}

// Validate checks that the configuration is sufficient to start a cycle.
func (c *Config) Validate() error {
	if c.AdminURL == "" {
		return apperrors.NewFatalConfigError("validate", errMissingAdminURL)
	}
	if c.Credentials.ClientID == "" || c.Credentials.ClientSecret == "" || c.Credentials.TokenURL == "" {
		return apperrors.NewFatalConfigError("validate", errMissingCredentials)
	}
	if c.Interval <= 0 {
		return apperrors.NewFatalConfigError("validate", errNonPositiveInterval)
	}
	return nil
}

// NewConfig applies defaults, then the environment, then opts, in that
// order, validating the result before returning it.
func NewConfig(opts ...Option) (*Config, error) {
	c := DefaultConfig()

	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, apperrors.NewFatalConfigError("apply option", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// fileConfig is the on-disk shape for a config file: a flattened subset of
// Config using the field names operators actually write, independent of the
// struct's internal layout.
type fileConfig struct {
	AdminURL     string `json:"admin_url" yaml:"admin_url"`
	TelemetryURL string `json:"telemetry_url" yaml:"telemetry_url"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	Audience     string `json:"audience" yaml:"audience"`
	TokenURL     string `json:"token_url" yaml:"token_url"`
	Interval     string `json:"interval" yaml:"interval"`
	Once         *bool  `json:"once" yaml:"once"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	LogFormat    string `json:"log_format" yaml:"log_format"`
	OTELEndpoint string `json:"otel_endpoint" yaml:"otel_endpoint"`
}

// WithConfigFile overlays a JSON or YAML config file onto c, ahead of any
// options that follow it in the NewConfig call — the same
// defaults-then-env-then-file-then-options precedence the admin service's
// own configuration surfaces use. The format is chosen from the file
// extension (.json, .yaml, .yml).
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		cleanPath := filepath.Clean(path)
		data, err := os.ReadFile(cleanPath) // nosec G304 -- operator-supplied path
		if err != nil {
			return fmt.Errorf("read config file %s: %w", cleanPath, err)
		}

		var fc fileConfig
		switch ext := filepath.Ext(cleanPath); ext {
		case ".json":
			if err := json.Unmarshal(data, &fc); err != nil {
				return fmt.Errorf("parse JSON config file %s: %w", cleanPath, err)
			}
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return fmt.Errorf("parse YAML config file %s: %w", cleanPath, err)
			}
		default:
			return fmt.Errorf("unsupported config file extension %q", ext)
		}

		applyFileConfig(c, fc)
		return nil
	}
}

func applyFileConfig(c *Config, fc fileConfig) {
	if fc.AdminURL != "" {
		c.AdminURL = fc.AdminURL
	}
	if fc.TelemetryURL != "" {
		c.TelemetryURL = fc.TelemetryURL
	}
	if fc.ClientID != "" {
		c.Credentials.ClientID = fc.ClientID
	}
	if fc.ClientSecret != "" {
		c.Credentials.ClientSecret = fc.ClientSecret
	}
	if fc.Audience != "" {
		c.Credentials.Audience = fc.Audience
	}
	if fc.TokenURL != "" {
		c.Credentials.TokenURL = fc.TokenURL
	}
	if fc.Interval != "" {
		if d, err := time.ParseDuration(fc.Interval); err == nil {
			c.Interval = d
		}
	}
	if fc.Once != nil {
		c.Once = *fc.Once
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		c.LogFormat = fc.LogFormat
	}
	if fc.OTELEndpoint != "" {
		c.OTELEndpoint = fc.OTELEndpoint
	}
}

func WithAdminURL(url string) Option {
	return func(c *Config) error { c.AdminURL = url; return nil }
}

func WithTelemetryURL(url string) Option {
	return func(c *Config) error { c.TelemetryURL = url; return nil }
}

func WithCredentials(creds ClientCredentials) Option {
	return func(c *Config) error { c.Credentials = creds; return nil }
}

func WithInterval(d time.Duration) Option {
	return func(c *Config) error { c.Interval = d; return nil }
}

func WithOnce(once bool) Option {
	return func(c *Config) error { c.Once = once; return nil }
}

func WithLogLevel(level string) Option {
	return func(c *Config) error { c.LogLevel = level; return nil }
}

func WithLogFormat(format string) Option {
	return func(c *Config) error { c.LogFormat = format; return nil }
}

func WithOTELEndpoint(endpoint string) Option {
	return func(c *Config) error { c.OTELEndpoint = endpoint; return nil }
}
