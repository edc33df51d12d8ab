package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/observability"
)

// CheckUserOTP asks the provider whether the user's code has arrived.
//
// A received code is stored on the session and ends any auto-check, whose
// sink gets the code with StopChecked. A session that already holds a code
// answers without a provider call. While the code is pending the result is
// CheckWaiting and nothing changes. Expiry and provider failures are returned
// as errors and leave the session as it was.
//
// Concurrent checks for the same user share one provider call. The shared
// call is detached from the caller that started it and bounded by
// domain.CheckTimeout, so a caller that gives up does not fail the others.
func (m *Manager) CheckUserOTP(ctx context.Context, userID string) (_ *CheckResult, err error) {
	ctx, span := tracer.Start(ctx, "otp.check")
	defer span.End()
	defer func() { observability.RecordError(span, err) }()

	uid, err := m.userID(userID)
	if err != nil {
		return nil, err
	}

	ch := m.checks.DoChan(uid.String(), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), domain.CheckTimeout)
		defer cancel()

		unlock, err := m.locks.lock(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("check otp: %w", err)
		}
		defer unlock()

		res, err := m.checkOnce(ctx, uid)
		if err != nil {
			return nil, err
		}
		if res.Status == CheckReceived {
			n := Notification{
				Kind:    NotificationReceived,
				UserID:  uid,
				Code:    res.Code,
				Message: res.Message,
				Reason:  StopChecked,
			}
			res.Session = m.detachPoll(ctx, uid, res.Session, n)
		}
		return res, nil
	})

	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		checksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		return nil, fmt.Errorf("check otp: %w", ctx.Err())
	}
	span.SetAttributes(attribute.Bool("shared", r.Shared))
	if r.Err != nil {
		checksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		return nil, r.Err
	}

	res := *r.Val.(*CheckResult)
	checksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(res.Status))))
	return &res, nil
}

// checkOnce runs a single check. The caller holds the user's lock.
func (m *Manager) checkOnce(ctx context.Context, uid domain.UserID) (*CheckResult, error) {
	sess, ok := m.store.Get(uid)
	if !ok {
		return nil, domain.ErrNoActiveSession
	}

	if sess.Received() {
		return &CheckResult{
			Status:  CheckReceived,
			Code:    sess.OTP,
			Session: sess,
			Message: receivedMessage(sess),
		}, nil
	}

	code, err := m.provider.FetchCode(ctx, sess.ProviderRef)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotYetAvailable):
		return &CheckResult{
			Status:  CheckWaiting,
			Session: sess,
			Message: waitingMessage(sess),
		}, nil
	default:
		observability.WithTraceID(ctx, m.logger).WarnContext(ctx, "otp check failed",
			slog.String("user_id", uid.String()),
			slog.String("session_id", sess.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("check otp: %w", err)
	}

	now := m.clock.Now()
	err = m.store.Update(uid, func(s *Session) error {
		if s.ID != sess.ID {
			return domain.ErrNoActiveSession
		}
		s.Status = domain.SessionReceived
		s.OTP = code
		s.ReceivedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check otp: %w", err)
	}

	sess.Status = domain.SessionReceived
	sess.OTP = code
	sess.ReceivedAt = now

	observability.WithTraceID(ctx, m.logger).InfoContext(ctx, "otp received",
		slog.String("user_id", uid.String()),
		slog.String("session_id", sess.ID.String()),
		slog.Duration("wait", now.Sub(sess.CreatedAt)),
	)

	return &CheckResult{
		Status:  CheckReceived,
		Code:    code,
		Session: sess,
		Message: receivedMessage(sess),
	}, nil
}
