package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/otp-fetcher/internal/otp/app"
	redisclient "github.com/aelexs/otp-fetcher/internal/redis"
)

// rateLimitScript atomically increments a counter and sets a TTL on the
// first write, so the window starts at the first allocation and is not
// extended by later ones.
const rateLimitScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

// RateLimiter is a fixed-window counter backed by Redis. It reports Redis
// failures as errors; whether to fail open is the caller's decision.
type RateLimiter struct {
	cmd redisclient.Cmdable
}

var _ app.AllocationLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter that uses cmd for Redis operations.
func NewRateLimiter(cmd redisclient.Cmdable) *RateLimiter {
	return &RateLimiter{cmd: cmd}
}

// CheckAndIncrement counts one request against key and reports whether the
// count is still within limit for the current window of windowSeconds.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit, windowSeconds int) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.ratelimit.check")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "EVAL"),
	)

	if windowSeconds < 1 {
		windowSeconds = 1
	}

	count, err := r.cmd.Eval(ctx, rateLimitScript, []string{key}, windowSeconds).Int64()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("rate limit check %q: %w", key, err)
	}

	span.SetAttributes(attribute.Int64("ratelimit.count", count))
	return count <= int64(limit), nil
}
