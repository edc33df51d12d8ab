// Package server provides the service lifecycle runner: signal handling,
// config loading, observability init, health checks, the composition-root
// setup hook, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aelexs/otp-fetcher/internal/config"
	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/observability"
)

// SetupDeps is what the runner hands to a service's composition root.
type SetupDeps struct {
	Config  *config.Config
	Logger  *slog.Logger
	HTTPMux *http.ServeMux
}

// SetupFunc wires a service's components onto the shared mux. The returned
// cleanup runs after the HTTP server has drained and before telemetry is
// flushed.
type SetupFunc func(ctx context.Context, deps SetupDeps) (cleanup func(context.Context) error, err error)

// Params configures a service's lifecycle runner.
type Params struct {
	// Name identifies the service (e.g. "otpfetcher").
	Name string

	// Version is reported as the telemetry service.version.
	Version string

	// PortFromConfig extracts the HTTP port for this service from config.
	PortFromConfig func(cfg *config.Config) int

	// Setup is optional. A nil Setup serves only /healthz.
	Setup SetupFunc
}

// Run executes the full service lifecycle: signal handling, config loading,
// observability initialization, HTTP server with health checks, and graceful
// shutdown. If ln is non-nil, it is used instead of creating a new listener
// from config (enables port-0 testing).
func Run(ctx context.Context, p Params, ln net.Listener) error {
	// Signal-based cancellation: ctx.Done() closes on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Load configuration
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize structured logging with secret redaction
	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: p.Name,
		Environment: cfg.Environment,
	})

	// --- Startup order: tracer -> metrics -> HTTP server ---

	telemetry := observability.TelemetryConfig{
		ServiceName:    p.Name,
		ServiceVersion: p.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
	}

	tracerProvider, err := observability.InitTracer(ctx, telemetry)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}

	metricsProvider, err := observability.InitMetrics(ctx, telemetry)
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	// Health check shutdown coordination via atomic flag.
	var shuttingDown atomic.Bool

	// Setup HTTP server with health check
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"shutting_down","service":%q}`, p.Name)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":%q}`, p.Name)
	})

	var cleanup func(context.Context) error
	if p.Setup != nil {
		cleanup, err = p.Setup(ctx, SetupDeps{
			Config:  cfg,
			Logger:  logger,
			HTTPMux: mux,
		})
		if err != nil {
			shutdownTelemetry(logger, metricsProvider, tracerProvider)
			return fmt.Errorf("setup %s: %w", p.Name, err)
		}
	}

	// Bind listener (use injected listener or create from config).
	if ln == nil {
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", p.PortFromConfig(cfg)))
		if err != nil {
			runCleanup(logger, cleanup)
			shutdownTelemetry(logger, metricsProvider, tracerProvider)
			return fmt.Errorf("listen: %w", err)
		}
	}

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second, // streaming handlers extend their own deadline
		IdleTimeout:  60 * time.Second,
	}

	// --- Structured concurrency via errgroup ---
	g, ctx := errgroup.WithContext(ctx)

	// Goroutine 1: Serve HTTP
	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", ln.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	// Goroutine 2: Shutdown trigger: waits for context cancellation, then drains.
	// Shutdown order is explicit reverse of startup: HTTP server -> setup cleanup -> metrics -> tracer.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		// 1. Mark shutting down; health checks return 503
		shuttingDown.Store(true)

		// 2. Drain delay to let load balancer propagate endpoint removal
		time.Sleep(domain.ShutdownDrainDelay)

		// 3. Drain HTTP server (reverse of startup: HTTP started last, stops first)
		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := server.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}

		// 4. Release service components (pollers, bot, Redis)
		runCleanup(logger, cleanup)

		// 5. Flush OTEL (reverse: metrics first, then tracer)
		shutdownTelemetry(logger, metricsProvider, tracerProvider)

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}

func runCleanup(logger *slog.Logger, cleanup func(context.Context) error) {
	if cleanup == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
	defer cancel()
	if err := cleanup(ctx); err != nil {
		logger.Error("service cleanup error", slog.String("error", err.Error()))
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownTelemetry(logger *slog.Logger, metricsProvider, tracerProvider shutdowner) {
	otelCtx, otelCancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
	defer otelCancel()
	if err := metricsProvider.Shutdown(otelCtx); err != nil {
		logger.Error("failed to shutdown metrics", slog.String("error", err.Error()))
	}
	if err := tracerProvider.Shutdown(otelCtx); err != nil {
		logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
	}
}
