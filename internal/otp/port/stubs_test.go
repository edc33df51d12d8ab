package port

import (
	"context"
	"sync"
	"time"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/otp/app"
	"github.com/aelexs/otp-fetcher/internal/provider"
)

// ---------------------------------------------------------------------------
// Stub: implements otpService for unit tests. Unset functions behave as if
// the user has no session.
// ---------------------------------------------------------------------------

type stubService struct {
	createSessionFn   func(ctx context.Context, userID, country, service string) (*app.CreateResult, error)
	checkUserOTPFn    func(ctx context.Context, userID string) (*app.CheckResult, error)
	startAutoCheckFn  func(ctx context.Context, userID string, sink app.Sink) (app.AutoCheckID, error)
	stopAutoCheckFn   func(ctx context.Context, userID string) bool
	stopIfFn          func(ctx context.Context, userID string, id app.AutoCheckID) bool
	toggleAutoCheckFn func(ctx context.Context, userID string, sink app.Sink) (bool, error)
	getUserSessionFn  func(userID string) (app.Session, bool)
	getAllSessionsFn  func() map[domain.UserID]app.Session
	clearSessionFn    func(ctx context.Context, userID string) bool
	getCountriesFn    func(ctx context.Context) ([]provider.Country, error)
}

func (s *stubService) Catalog() *domain.Catalog {
	return domain.DefaultCatalog()
}

func (s *stubService) CreateSession(ctx context.Context, userID, country, service string) (*app.CreateResult, error) {
	if s.createSessionFn == nil {
		return nil, domain.ErrProviderUnavailable
	}
	return s.createSessionFn(ctx, userID, country, service)
}

func (s *stubService) CheckUserOTP(ctx context.Context, userID string) (*app.CheckResult, error) {
	if s.checkUserOTPFn == nil {
		return nil, domain.ErrNoActiveSession
	}
	return s.checkUserOTPFn(ctx, userID)
}

func (s *stubService) StartAutoCheck(ctx context.Context, userID string, sink app.Sink) (app.AutoCheckID, error) {
	if s.startAutoCheckFn == nil {
		return 0, domain.ErrNoActiveSession
	}
	return s.startAutoCheckFn(ctx, userID, sink)
}

func (s *stubService) StopAutoCheck(ctx context.Context, userID string) bool {
	if s.stopAutoCheckFn == nil {
		return false
	}
	return s.stopAutoCheckFn(ctx, userID)
}

func (s *stubService) StopAutoCheckIf(ctx context.Context, userID string, id app.AutoCheckID) bool {
	if s.stopIfFn == nil {
		return false
	}
	return s.stopIfFn(ctx, userID, id)
}

func (s *stubService) ToggleAutoCheck(ctx context.Context, userID string, sink app.Sink) (bool, error) {
	if s.toggleAutoCheckFn == nil {
		return false, domain.ErrNoActiveSession
	}
	return s.toggleAutoCheckFn(ctx, userID, sink)
}

func (s *stubService) GetUserSession(userID string) (app.Session, bool) {
	if s.getUserSessionFn == nil {
		return app.Session{}, false
	}
	return s.getUserSessionFn(userID)
}

func (s *stubService) GetAllSessions() map[domain.UserID]app.Session {
	if s.getAllSessionsFn == nil {
		return map[domain.UserID]app.Session{}
	}
	return s.getAllSessionsFn()
}

func (s *stubService) ClearSession(ctx context.Context, userID string) bool {
	if s.clearSessionFn == nil {
		return false
	}
	return s.clearSessionFn(ctx, userID)
}

func (s *stubService) GetCountries(ctx context.Context) ([]provider.Country, error) {
	if s.getCountriesFn == nil {
		return nil, domain.ErrProviderUnavailable
	}
	return s.getCountriesFn(ctx)
}

var _ otpService = (*stubService)(nil)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var fixedTime = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

type stubHandle struct{}

func (stubHandle) Stop() bool { return true }

func testSession(userID string) app.Session {
	catalog := domain.DefaultCatalog()
	country, _ := catalog.LookupCountry("US")
	svc, _ := catalog.LookupService("whatsapp")
	return app.Session{
		ID:          domain.GenerateSessionID(),
		UserID:      domain.MustUserID(userID),
		Country:     country,
		Service:     svc,
		PhoneNumber: domain.MustPhoneNumber("+12025550143", "US"),
		ProviderRef: "prov-1",
		Status:      domain.SessionPending,
		CreatedAt:   fixedTime,
	}
}

func receivedSession(userID, code string) app.Session {
	s := testSession(userID)
	s.Status = domain.SessionReceived
	s.OTP = code
	s.ReceivedAt = fixedTime.Add(time.Minute)
	return s
}

type replies struct {
	mu   sync.Mutex
	msgs []string
}

func (r *replies) reply(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
}

func (r *replies) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func (r *replies) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}
