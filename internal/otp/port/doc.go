// Package port contains entry points into the OTP session manager.
// The chat command layer, the Telegram transport and the HTTP API live here.
// Ports translate external protocols into app layer calls.
package port

import (
	"context"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/otp/app"
	"github.com/aelexs/otp-fetcher/internal/provider"
)

// otpService is a narrow, consumer-defined interface for the session manager
// operations the ports require. *app.Manager satisfies it.
type otpService interface {
	Catalog() *domain.Catalog
	CreateSession(ctx context.Context, userID, country, service string) (*app.CreateResult, error)
	CheckUserOTP(ctx context.Context, userID string) (*app.CheckResult, error)
	StartAutoCheck(ctx context.Context, userID string, sink app.Sink) (app.AutoCheckID, error)
	StopAutoCheck(ctx context.Context, userID string) bool
	StopAutoCheckIf(ctx context.Context, userID string, id app.AutoCheckID) bool
	ToggleAutoCheck(ctx context.Context, userID string, sink app.Sink) (bool, error)
	GetUserSession(userID string) (app.Session, bool)
	GetAllSessions() map[domain.UserID]app.Session
	ClearSession(ctx context.Context, userID string) bool
	GetCountries(ctx context.Context) ([]provider.Country, error)
}

var _ otpService = (*app.Manager)(nil)
