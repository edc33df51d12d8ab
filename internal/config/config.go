// Package config provides configuration loading using koanf.
// Precedence: OTPF_* environment variables, then compiled defaults.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

// EnvPrefix is stripped from environment variable names before they are
// mapped to config keys. A double underscore separates nested sections, so
// OTPF_PROVIDER__BASE_URL sets provider.base_url.
const EnvPrefix = "OTPF_"

// Provider modes.
const (
	ProviderModeSandbox = "sandbox"
	ProviderModeHTTP    = "http"
)

// Config holds all service configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	// Logging configuration
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	HTTP     HTTPConfig     `koanf:"http"`
	Provider ProviderConfig `koanf:"provider"`
	OTP      OTPConfig      `koanf:"otp"`
	Telegram TelegramConfig `koanf:"telegram"`
	Auth     AuthConfig     `koanf:"auth"`

	// Infrastructure configurations
	Redis RedisConfig `koanf:"redis"`

	// OpenTelemetry configuration
	OTEL OTELConfig `koanf:"otel"`
}

// HTTPConfig holds the HTTP API listener configuration.
type HTTPConfig struct {
	Port int `koanf:"port"`
}

// ProviderConfig holds the number provider client configuration.
type ProviderConfig struct {
	Mode        string              `koanf:"mode"`     // "sandbox" or "http"
	BaseURL     string              `koanf:"base_url"` // Required in production
	APIKey      domain.SecretString `koanf:"api_key"`  // Required in production
	Timeout     time.Duration       `koanf:"timeout"`
	RateLimit   float64             `koanf:"rate_limit"` // requests per second
	Burst       int                 `koanf:"burst"`
	RevealAfter int                 `koanf:"reveal_after"` // sandbox only
	SandboxTTL  time.Duration       `koanf:"sandbox_ttl"`  // sandbox only
}

// OTPConfig holds session manager behaviour.
type OTPConfig struct {
	AutoCheckInterval time.Duration `koanf:"auto_check_interval"`
	NotifyInterim     bool          `koanf:"notify_interim"`
	AllocationLimit   int           `koanf:"allocation_limit"` // 0 disables the limiter
	AllocationWindow  time.Duration `koanf:"allocation_window"`
}

// TelegramConfig holds the Telegram transport configuration.
type TelegramConfig struct {
	Token       domain.SecretString `koanf:"token"` // Empty disables the bot
	PollTimeout time.Duration       `koanf:"poll_timeout"`
}

// AuthConfig holds HTTP API bearer token configuration.
type AuthConfig struct {
	JWTSecret domain.SecretString `koanf:"jwt_secret"` // Required in production
	Issuer    string              `koanf:"issuer"`
	Audience  string              `koanf:"audience"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string              `koanf:"addr"` // Empty disables the allocation limiter
	Password domain.SecretString `koanf:"password"`
	DB       int                 `koanf:"db"`
	Timeout  time.Duration       `koanf:"timeout"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint string `koanf:"endpoint"` // Empty disables OTLP export
	Insecure bool   `koanf:"insecure"` // Plaintext gRPC, for a collector sidecar
}

func defaults() *Config {
	return &Config{
		Environment: "local",
		LogLevel:    "info",
		LogFormat:   "json",

		HTTP: HTTPConfig{
			Port: 8080,
		},
		Provider: ProviderConfig{
			Mode:        ProviderModeSandbox,
			Timeout:     domain.ProviderTimeout,
			RateLimit:   domain.ProviderRateLimit,
			Burst:       domain.ProviderBurst,
			RevealAfter: domain.SandboxRevealAfter,
			SandboxTTL:  domain.SandboxTTL,
		},
		OTP: OTPConfig{
			AutoCheckInterval: domain.AutoCheckInterval,
			AllocationLimit:   domain.AllocationRateLimit,
			AllocationWindow:  domain.AllocationRateLimitWindow,
		},
		Telegram: TelegramConfig{
			PollTimeout: domain.TelegramPollTimeout,
		},
		Auth: AuthConfig{
			Issuer:   "otp-fetcher",
			Audience: "otp-fetcher-api",
		},
		Redis: RedisConfig{
			Timeout: domain.RedisTimeout,
		},
		OTEL: OTELConfig{
			Insecure: true,
		},
	}
}

// envKey maps OTPF_PROVIDER__BASE_URL to provider.base_url.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Load loads configuration following the precedence:
// 1. Environment variables with the OTPF_ prefix (highest)
// 2. Compiled defaults (lowest)
//
// Required keys missing in production cause a startup failure.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	cfg := defaults()

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Provider.Mode {
	case ProviderModeSandbox, ProviderModeHTTP:
	default:
		return fmt.Errorf("%w: provider.mode %q", domain.ErrInvalidInput, cfg.Provider.Mode)
	}
	if cfg.OTP.AutoCheckInterval <= 0 {
		return fmt.Errorf("%w: otp.auto_check_interval must be positive", domain.ErrInvalidInput)
	}
	if cfg.Provider.Mode == ProviderModeHTTP && cfg.Provider.BaseURL == "" {
		return fmt.Errorf("%w: provider.base_url", domain.ErrConfigRequired)
	}

	if !cfg.IsProd() {
		return nil
	}

	if cfg.Provider.Mode != ProviderModeHTTP {
		return fmt.Errorf("%w: provider.mode must be %q in prod", domain.ErrInvalidInput, ProviderModeHTTP)
	}
	if cfg.Provider.APIKey.IsEmpty() {
		return fmt.Errorf("%w: provider.api_key", domain.ErrConfigRequired)
	}
	if cfg.Auth.JWTSecret.IsEmpty() {
		return fmt.Errorf("%w: auth.jwt_secret", domain.ErrConfigRequired)
	}
	return nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
