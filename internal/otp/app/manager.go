package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/observability"
	"github.com/aelexs/otp-fetcher/internal/provider"
)

var tracer = otel.Tracer("otp/app")

var (
	sessionsCreatedTotal        metric.Int64Counter
	checksTotal                 metric.Int64Counter
	autocheckNotificationsTotal metric.Int64Counter
	autocheckActive             metric.Int64ObservableGauge
)

func init() {
	m := otel.Meter("otp/app")

	sessionsCreatedTotal, _ = m.Int64Counter("otp_sessions_created_total",
		metric.WithDescription("Total OTP sessions created"))
	checksTotal, _ = m.Int64Counter("otp_checks_total",
		metric.WithDescription("Total manual OTP checks by result"))
	autocheckNotificationsTotal, _ = m.Int64Counter("otp_autocheck_notifications_total",
		metric.WithDescription("Total auto-check notifications by kind"))
	autocheckActive, _ = m.Int64ObservableGauge("otp_autocheck_active",
		metric.WithDescription("Auto-check tasks currently scheduled"))
}

// AllocationLimiter bounds how often a user may rent a number.
type AllocationLimiter interface {
	CheckAndIncrement(ctx context.Context, key string, limit, windowSeconds int) (bool, error)
}

// ManagerConfig holds the dependencies for Manager.
type ManagerConfig struct {
	Provider provider.Client
	Store    *SessionStore // optional; a fresh store is created when nil
	Limiter  AllocationLimiter
	Catalog  *domain.Catalog
	Clock    domain.Clock
	Logger   *slog.Logger

	AutoCheckInterval time.Duration
	NotifyInterim     bool // emit a waiting notification on every pending tick
	AllocationLimit   int  // allocations per user per window; 0 disables
	AllocationWindow  time.Duration
}

// Manager owns every user's OTP session and its auto-check task.
type Manager struct {
	provider provider.Client
	store    *SessionStore
	limiter  AllocationLimiter
	catalog  *domain.Catalog
	clock    domain.Clock
	logger   *slog.Logger

	poller           *Poller
	locks            *userLocks
	checks           singleflight.Group
	autoCheckSeq     atomic.Uint64
	notifyInterim    bool
	allocationLimit  int
	allocationWindow time.Duration

	gaugeReg metric.Registration
}

// NewManager creates a Manager. Close must be called to stop background
// checks.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		provider:         cfg.Provider,
		store:            cfg.Store,
		limiter:          cfg.Limiter,
		catalog:          cfg.Catalog,
		clock:            cfg.Clock,
		logger:           cfg.Logger,
		poller:           NewPoller(cfg.AutoCheckInterval),
		locks:            newUserLocks(),
		notifyInterim:    cfg.NotifyInterim,
		allocationLimit:  cfg.AllocationLimit,
		allocationWindow: cfg.AllocationWindow,
	}
	if m.store == nil {
		m.store = NewSessionStore()
	}
	if m.catalog == nil {
		m.catalog = domain.DefaultCatalog()
	}
	if m.clock == nil {
		m.clock = domain.RealClock{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.allocationWindow <= 0 {
		m.allocationWindow = domain.AllocationRateLimitWindow
	}

	reg, err := otel.Meter("otp/app").RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(autocheckActive, int64(m.poller.Len()))
		return nil
	}, autocheckActive)
	if err == nil {
		m.gaugeReg = reg
	}
	return m
}

// Catalog returns the reference catalog of countries and services.
func (m *Manager) Catalog() *domain.Catalog {
	return m.catalog
}

// GetUserSession returns a copy of the user's session.
func (m *Manager) GetUserSession(userID string) (Session, bool) {
	uid, err := domain.NewUserID(userID)
	if err != nil {
		return Session{}, false
	}
	return m.store.Get(uid)
}

// GetAllSessions returns a snapshot of every session.
func (m *Manager) GetAllSessions() map[domain.UserID]Session {
	return m.store.ListAll()
}

// ClearSession removes the user's session and stops its auto-check. It
// reports whether a session existed.
func (m *Manager) ClearSession(ctx context.Context, userID string) bool {
	ctx, span := tracer.Start(ctx, "otp.clear_session")
	defer span.End()

	uid, err := domain.NewUserID(userID)
	if err != nil {
		return false
	}

	unlock, err := m.locks.lock(ctx, uid)
	if err != nil {
		observability.RecordError(span, err)
		return false
	}
	defer unlock()

	old, _ := m.store.Get(uid)
	removed := m.store.Remove(uid)
	if old.PollHandle != nil {
		m.endAutoCheck(ctx, old.PollHandle, stoppedNotification(uid, StopCleared))
	}
	if removed {
		observability.WithTraceID(ctx, m.logger).InfoContext(ctx, "otp session cleared",
			slog.String("user_id", uid.String()))
	}
	span.SetAttributes(attribute.Bool("removed", removed))
	return removed
}

// GetCountries asks the provider for its country list. It doubles as a
// connectivity check; errors are returned unchanged.
func (m *Manager) GetCountries(ctx context.Context) ([]provider.Country, error) {
	ctx, span := tracer.Start(ctx, "otp.get_countries")
	defer span.End()

	countries, err := m.provider.ListCountries(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("countries", len(countries)))
	return countries, nil
}

// Close stops every auto-check and waits for the poller goroutines to exit.
// Sinks of auto-checks that were still running get a stopped notification
// with StopShutdown.
func (m *Manager) Close() {
	m.poller.Close()

	ctx := context.Background()
	for uid, sess := range m.store.ListAll() {
		if sess.PollHandle == nil {
			continue
		}
		var handle PollHandle
		_ = m.store.Update(uid, func(s *Session) error {
			handle = s.PollHandle
			s.PollHandle = nil
			return nil
		})
		if handle != nil {
			m.endAutoCheck(ctx, handle, stoppedNotification(uid, StopShutdown))
		}
	}

	if m.gaugeReg != nil {
		_ = m.gaugeReg.Unregister()
	}
}

func (m *Manager) userID(raw string) (domain.UserID, error) {
	uid, err := domain.NewUserID(raw)
	if err != nil {
		return domain.UserID{}, fmt.Errorf("user id: %w", err)
	}
	return uid, nil
}
