package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/observability"
)

// AutoCheck is the PollHandle StartAutoCheck installs on a session: the poll
// task plus the sink it reports to. Whoever ends it first, the loop itself or
// an outside stop, delivers the sink's one terminal notification.
type AutoCheck struct {
	id    AutoCheckID
	task  *PollTask
	sink  Sink
	ended atomic.Bool
}

// ID returns the id StartAutoCheck reported for this auto-check.
func (a *AutoCheck) ID() AutoCheckID { return a.id }

// Task returns the underlying poll task.
func (a *AutoCheck) Task() *PollTask { return a.task }

// Stop cancels the poll task without notifying the sink. The Manager ends
// auto-checks through end; Stop is what the store calls on handles it drops.
func (a *AutoCheck) Stop() bool { return a.task.Stop() }

// Ended reports whether the terminal notification has been delivered.
func (a *AutoCheck) Ended() bool { return a.ended.Load() }

// StartAutoCheck schedules a background check of the user's session every
// interval and returns an id for it. An auto-check already running for the
// user is replaced; its sink gets a stopped notification with StopReplaced.
func (m *Manager) StartAutoCheck(ctx context.Context, userID string, sink Sink) (_ AutoCheckID, err error) {
	ctx, span := tracer.Start(ctx, "otp.start_auto_check")
	defer span.End()
	defer func() { observability.RecordError(span, err) }()

	uid, err := m.userID(userID)
	if err != nil {
		return 0, err
	}
	if sink == nil {
		return 0, fmt.Errorf("start auto-check: nil sink: %w", domain.ErrInvalidInput)
	}

	unlock, err := m.locks.lock(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("start auto-check: %w", err)
	}
	defer unlock()

	ac, err := m.startLocked(ctx, uid, sink)
	if err != nil {
		return 0, err
	}
	return ac.id, nil
}

// StopAutoCheck cancels the user's auto-check. It reports whether one was
// running. The sink gets its stopped notification before StopAutoCheck
// returns and nothing after it.
func (m *Manager) StopAutoCheck(ctx context.Context, userID string) bool {
	return m.stopAutoCheck(ctx, userID, 0)
}

// StopAutoCheckIf is StopAutoCheck restricted to the auto-check id names. It
// does nothing once that auto-check has ended or been replaced.
func (m *Manager) StopAutoCheckIf(ctx context.Context, userID string, id AutoCheckID) bool {
	if id == 0 {
		return false
	}
	return m.stopAutoCheck(ctx, userID, id)
}

// stopAutoCheck stops the user's auto-check; an id of 0 matches any.
func (m *Manager) stopAutoCheck(ctx context.Context, userID string, id AutoCheckID) bool {
	ctx, span := tracer.Start(ctx, "otp.stop_auto_check")
	defer span.End()

	uid, err := m.userID(userID)
	if err != nil {
		return false
	}

	unlock, err := m.locks.lock(ctx, uid)
	if err != nil {
		observability.RecordError(span, err)
		return false
	}
	defer unlock()

	sess, ok := m.store.Get(uid)
	if !ok || sess.PollHandle == nil {
		return false
	}
	if id != 0 {
		if ac, ok := sess.PollHandle.(*AutoCheck); !ok || ac.id != id {
			return false
		}
	}
	m.detachPoll(ctx, uid, sess, stoppedNotification(uid, StopRequested))
	return true
}

// ToggleAutoCheck stops the user's auto-check if one is running and starts
// one otherwise, as a single step. It reports whether auto-check is now on.
func (m *Manager) ToggleAutoCheck(ctx context.Context, userID string, sink Sink) (enabled bool, err error) {
	ctx, span := tracer.Start(ctx, "otp.toggle_auto_check")
	defer span.End()
	defer func() { observability.RecordError(span, err) }()

	uid, err := m.userID(userID)
	if err != nil {
		return false, err
	}
	if sink == nil {
		return false, fmt.Errorf("toggle auto-check: nil sink: %w", domain.ErrInvalidInput)
	}

	unlock, err := m.locks.lock(ctx, uid)
	if err != nil {
		return false, fmt.Errorf("toggle auto-check: %w", err)
	}
	defer unlock()

	sess, ok := m.store.Get(uid)
	if !ok {
		return false, domain.ErrNoActiveSession
	}
	if sess.PollHandle != nil {
		m.detachPoll(ctx, uid, sess, stoppedNotification(uid, StopRequested))
		return false, nil
	}
	if _, err := m.startLocked(ctx, uid, sink); err != nil {
		return false, err
	}
	return true, nil
}

// startLocked schedules the auto-check. The caller holds the user's lock.
func (m *Manager) startLocked(ctx context.Context, uid domain.UserID, sink Sink) (*AutoCheck, error) {
	sess, ok := m.store.Get(uid)
	if !ok {
		return nil, domain.ErrNoActiveSession
	}

	ac := &AutoCheck{id: AutoCheckID(m.autoCheckSeq.Add(1)), sink: sink}
	// The first tick runs one interval from now, and it takes the user's
	// lock, which is held until ac.task is set.
	task, err := m.poller.Start(uid.String(), m.tick(uid, sess.ID, ac))
	if err != nil {
		return nil, fmt.Errorf("start auto-check: %w", err)
	}
	ac.task = task

	var prev PollHandle
	err = m.store.Update(uid, func(s *Session) error {
		prev = s.PollHandle
		s.PollHandle = ac
		return nil
	})
	if err != nil {
		task.Stop()
		return nil, fmt.Errorf("start auto-check: %w", err)
	}
	if prev != nil {
		m.endAutoCheck(ctx, prev, stoppedNotification(uid, StopReplaced))
	}

	observability.WithTraceID(ctx, m.logger).InfoContext(ctx, "auto-check started",
		slog.String("user_id", uid.String()),
		slog.String("session_id", sess.ID.String()),
		slog.Uint64("auto_check_id", uint64(ac.id)),
	)
	return ac, nil
}

// detachPoll clears the session's poll handle and ends it with n. The caller
// holds the user's lock. It returns sess with the handle cleared.
func (m *Manager) detachPoll(ctx context.Context, uid domain.UserID, sess Session, n Notification) Session {
	var handle PollHandle
	_ = m.store.Update(uid, func(s *Session) error {
		handle = s.PollHandle
		s.PollHandle = nil
		return nil
	})
	if handle != nil {
		m.endAutoCheck(ctx, handle, n)
	}
	sess.PollHandle = nil
	return sess
}

// endAutoCheck stops h and, unless its sink already got a terminal
// notification, delivers n.
func (m *Manager) endAutoCheck(ctx context.Context, h PollHandle, n Notification) {
	h.Stop()
	ac, ok := h.(*AutoCheck)
	if !ok || !ac.ended.CompareAndSwap(false, true) {
		return
	}
	m.emit(ctx, ac.sink, n)
}

// tick is one auto-check iteration for the session sessID. It runs under the
// user's lock, so stop, clear and create cannot interleave with it. Those
// deliver the terminal notification themselves; a task cancelled while
// waiting for the lock ends without one.
func (m *Manager) tick(uid domain.UserID, sessID domain.SessionID, ac *AutoCheck) TickFunc {
	return func(ctx context.Context) bool {
		unlock, err := m.locks.lock(ctx, uid)
		if err != nil {
			return true
		}
		defer unlock()

		if ctx.Err() != nil || ac.Ended() {
			return true
		}
		sess, ok := m.store.Get(uid)
		if !ok || sess.ID != sessID || sess.PollHandle != PollHandle(ac) {
			return true
		}

		ctx, span := tracer.Start(ctx, "otp.auto_check_tick")
		defer span.End()

		res, err := m.checkOnce(ctx, uid)
		if ctx.Err() != nil {
			// Shutdown cancelled the provider call; Close notifies.
			return true
		}

		switch {
		case err != nil:
			observability.RecordError(span, err)
			m.detachPoll(ctx, uid, sess, Notification{
				Kind:    NotificationFailed,
				UserID:  uid,
				Message: failedMessage(sess, err),
				Err:     err,
			})
			return true

		case res.Status == CheckReceived:
			m.detachPoll(ctx, uid, sess, Notification{
				Kind:    NotificationReceived,
				UserID:  uid,
				Code:    res.Code,
				Message: res.Message,
			})
			return true

		default:
			if m.notifyInterim {
				m.emit(ctx, ac.sink, Notification{
					Kind:    NotificationWaiting,
					UserID:  uid,
					Message: res.Message,
				})
			}
			return false
		}
	}
}

func stoppedNotification(uid domain.UserID, reason StopReason) Notification {
	return Notification{
		Kind:    NotificationStopped,
		UserID:  uid,
		Message: stoppedMessage(reason),
		Reason:  reason,
	}
}

func (m *Manager) emit(ctx context.Context, sink Sink, n Notification) {
	autocheckNotificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(n.Kind))))

	defer func() {
		if r := recover(); r != nil {
			observability.WithTraceID(ctx, m.logger).ErrorContext(ctx, "notification sink panicked",
				slog.String("user_id", n.UserID.String()),
				slog.Any("panic", r),
			)
		}
	}()
	sink(n)
}
