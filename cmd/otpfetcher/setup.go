package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aelexs/otp-fetcher/internal/auth"
	"github.com/aelexs/otp-fetcher/internal/config"
	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/otp/adapter"
	"github.com/aelexs/otp-fetcher/internal/otp/app"
	"github.com/aelexs/otp-fetcher/internal/otp/port"
	"github.com/aelexs/otp-fetcher/internal/provider"
	"github.com/aelexs/otp-fetcher/internal/redis"
	"github.com/aelexs/otp-fetcher/internal/server"
)

// devJWTSecret signs API tokens in local development when no secret is
// configured. Production refuses to start without OTPF_AUTH__JWT_SECRET.
const devJWTSecret domain.SecretString = "local-dev-jwt-secret-32-bytes-ok!"

// setup is the composition root. It creates the provider client, the
// optional Redis allocation limiter, the session manager and the transports.
func setup(ctx context.Context, deps server.SetupDeps) (func(context.Context) error, error) {
	cfg := deps.Config
	logger := deps.Logger
	clock := domain.RealClock{}
	catalog := domain.DefaultCatalog()

	// 1. Provider.
	prov, err := createProvider(cfg, catalog, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("otpfetcher setup: create provider: %w", err)
	}

	// 2. Allocation limiter (optional).
	var (
		redisClient *redis.Client
		limiter     app.AllocationLimiter
	)
	if cfg.Redis.Addr != "" && cfg.OTP.AllocationLimit > 0 {
		redisClient = redis.NewClient(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password.Expose(),
			DB:       cfg.Redis.DB,
			Timeout:  cfg.Redis.Timeout,
		})
		if err := redisClient.Ping(ctx); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("otpfetcher setup: %w", err)
		}
		limiter = adapter.NewRateLimiter(redisClient.RDB)
		logger.InfoContext(ctx, "allocation limiter enabled",
			slog.String("redis_addr", cfg.Redis.Addr),
			slog.Int("limit", cfg.OTP.AllocationLimit),
			slog.Duration("window", cfg.OTP.AllocationWindow),
		)
	}

	// 3. Session manager.
	manager := app.NewManager(app.ManagerConfig{
		Provider:          prov,
		Limiter:           limiter,
		Catalog:           catalog,
		Clock:             clock,
		Logger:            logger,
		AutoCheckInterval: cfg.OTP.AutoCheckInterval,
		NotifyInterim:     cfg.OTP.NotifyInterim,
		AllocationLimit:   cfg.OTP.AllocationLimit,
		AllocationWindow:  cfg.OTP.AllocationWindow,
	})

	// 4. HTTP API.
	secret, err := jwtSecret(cfg)
	if err != nil {
		manager.Close()
		closeRedis(redisClient)
		return nil, fmt.Errorf("otpfetcher setup: %w", err)
	}
	if secret == devJWTSecret {
		logger.WarnContext(ctx, "using the development JWT secret; set OTPF_AUTH__JWT_SECRET")
	}
	validator := auth.NewValidator(auth.ValidatorConfig{
		Secret:   secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Clock:    clock,
	})
	port.NewHTTPHandler(manager, port.HTTPConfig{
		Validator: validator,
		Clock:     clock,
		Logger:    logger,
	}).Register(deps.HTTPMux)

	// 5. Chat transport (optional).
	commands := port.NewCommandHandler(manager, port.CommandConfig{
		AutoCheckInterval: cfg.OTP.AutoCheckInterval,
		Logger:            logger,
	})
	var bot *port.TelegramBot
	if !cfg.Telegram.Token.IsEmpty() {
		bot, err = port.NewTelegramBot(port.TelegramConfig{
			Token:       cfg.Telegram.Token,
			PollTimeout: cfg.Telegram.PollTimeout,
			Logger:      logger,
		}, commands)
		if err != nil {
			manager.Close()
			closeRedis(redisClient)
			return nil, fmt.Errorf("otpfetcher setup: %w", err)
		}
		bot.Start()
	} else {
		logger.InfoContext(ctx, "telegram token not set, chat transport disabled")
	}

	logger.InfoContext(ctx, "otp fetcher initialized",
		slog.String("provider_mode", cfg.Provider.Mode),
		slog.Duration("auto_check_interval", cfg.OTP.AutoCheckInterval),
	)

	cleanup := func(_ context.Context) error {
		if bot != nil {
			bot.Stop()
		}
		manager.Close()
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	}
	return cleanup, nil
}

// createProvider returns the provider client for the configured mode.
// Sandbox: an in-process fake that logs instead of calling anything.
// HTTP: the provider's JSON API.
func createProvider(cfg *config.Config, catalog *domain.Catalog, clock domain.Clock, logger *slog.Logger) (provider.Client, error) {
	switch cfg.Provider.Mode {
	case config.ProviderModeHTTP:
		c, err := provider.NewHTTPClient(provider.HTTPConfig{
			BaseURL:   cfg.Provider.BaseURL,
			APIKey:    cfg.Provider.APIKey,
			Timeout:   cfg.Provider.Timeout,
			RateLimit: cfg.Provider.RateLimit,
			Burst:     cfg.Provider.Burst,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderModeSandbox:
		logger.Info("using sandbox provider", slog.Int("reveal_after", cfg.Provider.RevealAfter))
		return provider.NewSandbox(provider.SandboxConfig{
			Catalog:     catalog,
			RevealAfter: cfg.Provider.RevealAfter,
			TTL:         cfg.Provider.SandboxTTL,
			Clock:       clock,
			Logger:      logger,
		}), nil
	default:
		return nil, fmt.Errorf("provider mode %q: %w", cfg.Provider.Mode, domain.ErrInvalidInput)
	}
}

// jwtSecret returns the configured signing secret, falling back to
// devJWTSecret outside production.
func jwtSecret(cfg *config.Config) (domain.SecretString, error) {
	if !cfg.Auth.JWTSecret.IsEmpty() {
		return cfg.Auth.JWTSecret, nil
	}
	if cfg.IsProd() {
		return "", fmt.Errorf("auth.jwt_secret: %w", domain.ErrConfigRequired)
	}
	return devJWTSecret, nil
}

func closeRedis(c *redis.Client) {
	if c != nil {
		_ = c.Close()
	}
}
