package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/observability"
)

// CreateSession rents a number for the country/service pair and makes it the
// user's session, replacing (and stopping the auto-check of) any previous
// one. Input is validated against the catalog before any I/O. When the
// provider fails the previous session is left untouched.
func (m *Manager) CreateSession(ctx context.Context, userID, country, service string) (_ *CreateResult, err error) {
	ctx, span := tracer.Start(ctx, "otp.create_session")
	defer span.End()
	defer func() { observability.RecordError(span, err) }()

	logger := observability.WithTraceID(ctx, m.logger)

	// 1. Validate identity and the country/service pair.
	uid, err := m.userID(userID)
	if err != nil {
		return nil, err
	}
	c, svc, err := m.catalog.Validate(country, service)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("country", c.Code), attribute.String("service", svc.ID))

	// 2. Allocation rate limit (fail-open: log and continue if Redis fails).
	if err := m.checkAllocationLimit(ctx, uid, logger); err != nil {
		return nil, err
	}

	// 3. Serialise with every other operation on this user's session.
	unlock, err := m.locks.lock(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer unlock()

	// 4. Rent the number.
	alloc, err := m.provider.AllocateNumber(ctx, c.Code, svc.ID)
	if err != nil {
		logger.WarnContext(ctx, "number allocation failed",
			slog.String("user_id", uid.String()),
			slog.String("country", c.Code),
			slog.String("service", svc.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("create session: %w", err)
	}

	phone, err := domain.NewPhoneNumber(alloc.PhoneNumber, c.Code)
	if err != nil {
		return nil, fmt.Errorf("create session: provider returned %v: %w", err, domain.ErrInternal)
	}
	if alloc.SessionID == "" {
		return nil, fmt.Errorf("create session: provider returned no session id: %w", domain.ErrInternal)
	}

	// 5. Install the session, ending the previous session's auto-check.
	if prev, ok := m.store.Get(uid); ok && prev.PollHandle != nil {
		m.endAutoCheck(ctx, prev.PollHandle, stoppedNotification(uid, StopReplaced))
	}
	sess := Session{
		ID:          domain.GenerateSessionID(),
		UserID:      uid,
		Country:     c,
		Service:     svc,
		PhoneNumber: phone,
		ProviderRef: alloc.SessionID,
		Status:      domain.SessionPending,
		CreatedAt:   m.clock.Now(),
	}
	m.store.Put(uid, sess)

	sessionsCreatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("country", c.Code),
		attribute.String("service", svc.ID),
	))
	logger.InfoContext(ctx, "otp session created",
		slog.String("user_id", uid.String()),
		slog.String("session_id", sess.ID.String()),
		slog.String("phone_masked", phone.Masked()),
		slog.String("country", c.Code),
		slog.String("service", svc.ID),
	)

	return &CreateResult{Session: sess, Message: createdMessage(sess)}, nil
}

func (m *Manager) checkAllocationLimit(ctx context.Context, uid domain.UserID, logger *slog.Logger) error {
	if m.limiter == nil || m.allocationLimit <= 0 {
		return nil
	}

	allowed, err := m.limiter.CheckAndIncrement(
		ctx,
		"otp_alloc:user:"+uid.String(),
		m.allocationLimit,
		int(m.allocationWindow.Seconds()),
	)
	if err != nil {
		logger.WarnContext(ctx, "allocation rate limit check failed, proceeding (fail-open)",
			slog.String("user_id", uid.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !allowed {
		_, span := tracer.Start(ctx, "otp.allocation_rate_limited")
		span.SetStatus(codes.Error, "allocation rate limited")
		span.End()
		return fmt.Errorf("create session: %w", domain.ErrRateLimited)
	}
	return nil
}
