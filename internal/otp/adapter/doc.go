// Package adapter contains implementations of interfaces defined in
// otp/app. The Redis allocation limiter lives here.
package adapter

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("otp/adapter")
