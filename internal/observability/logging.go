package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig holds configuration for the structured logger.
type LogConfig struct {
	Level       string // "debug", "info", "warn", "error"
	Format      string // "json" or "text"
	ServiceName string
	Environment string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// sensitivePatterns contains field name patterns that should be redacted.
// These patterns are matched case-insensitively against attribute keys.
// Received OTP codes are treated as secrets.
var sensitivePatterns = []string{
	"_key",
	"_secret",
	"_token",
	"_password",
	"otp",
	"verification_code",
	"authorization",
	"bearer",
	"apikey",
	"secret",
	"password",
}

// phoneKeys hold rented numbers. Their values are masked rather than dropped
// so support can still correlate a session by its last digits.
var phoneKeys = map[string]bool{
	"phone":        true,
	"phone_number": true,
	"number":       true,
	"msisdn":       true,
}

// ParseLevel maps a config level name to a slog level. Unknown names are
// treated as info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger creates a new structured logger with secret redaction and
// phone number masking. The returned logger is also set as the default via
// slog.SetDefault.
func InitLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
	)

	slog.SetDefault(logger)
	return logger
}

// NewRedactingHandler creates a JSON slog handler that applies the same
// redaction as InitLogger, after any ReplaceAttr already in opts.
func NewRedactingHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}

	originalReplace := opts.ReplaceAttr
	opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if originalReplace != nil {
			a = originalReplace(groups, a)
		}
		return redactAttr(groups, a)
	}

	return slog.NewJSONHandler(w, opts)
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	keyLower := strings.ToLower(a.Key)
	if phoneKeys[keyLower] {
		return slog.String(a.Key, MaskPhone(a.Value.String()))
	}
	for _, pattern := range sensitivePatterns {
		if strings.Contains(keyLower, pattern) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

// MaskPhone keeps only the last four digits of a phone number.
func MaskPhone(s string) string {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) <= 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}

// WithTraceID returns a new logger with the trace ID from context.
func WithTraceID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return logger.With(slog.String("trace_id", traceID))
	}
	return logger
}
