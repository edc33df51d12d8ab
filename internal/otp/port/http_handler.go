package port

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	apiv1 "github.com/aelexs/otp-fetcher/api/v1"
	"github.com/aelexs/otp-fetcher/internal/auth"
	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/errmap"
	"github.com/aelexs/otp-fetcher/internal/observability"
	"github.com/aelexs/otp-fetcher/internal/otp/app"
	"github.com/aelexs/otp-fetcher/pkg/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxRequestBody      = 4 << 10
	defaultPingInterval = 15 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// tokenValidator validates bearer tokens. *auth.Validator satisfies it.
type tokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// HTTPConfig holds configuration for creating an HTTPHandler.
type HTTPConfig struct {
	Validator *auth.Validator
	Clock     domain.Clock
	Logger    *slog.Logger
	// PingInterval spaces keep-alive frames on event streams.
	PingInterval time.Duration
	// WriteTimeout bounds each write on an event stream.
	WriteTimeout time.Duration
}

// HTTPHandler serves the JSON API and the auto-check event stream.
type HTTPHandler struct {
	svc          otpService
	tokens       tokenValidator
	clock        domain.Clock
	logger       *slog.Logger
	pingInterval time.Duration
	writeTimeout time.Duration
}

// NewHTTPHandler creates an HTTPHandler backed by svc.
func NewHTTPHandler(svc *app.Manager, cfg HTTPConfig) *HTTPHandler {
	return newHTTPHandler(svc, cfg.Validator, cfg)
}

func newHTTPHandler(svc otpService, tokens tokenValidator, cfg HTTPConfig) *HTTPHandler {
	if cfg.Clock == nil {
		cfg.Clock = domain.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &HTTPHandler{
		svc:          svc,
		tokens:       tokens,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
	}
}

// Register mounts the API routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/openapi.json", h.openAPI)
	mux.HandleFunc("GET /v1/catalog", h.catalog)

	mux.Handle("PUT /v1/session", h.authenticated(h.createSession))
	mux.Handle("GET /v1/session", h.authenticated(h.getSession))
	mux.Handle("DELETE /v1/session", h.authenticated(h.clearSession))
	mux.Handle("POST /v1/session/check", h.authenticated(h.checkSession))
	mux.Handle("GET /v1/session/events", h.authenticated(h.streamEvents))
	mux.Handle("DELETE /v1/session/auto", h.authenticated(h.stopAutoCheck))
	mux.Handle("GET /v1/sessions", h.authenticated(h.requireScope(auth.ScopeAdmin, h.listSessions)))
	mux.Handle("GET /v1/provider/countries", h.authenticated(h.providerCountries))
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return c
}

func (h *HTTPHandler) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			h.writeError(w, r, fmt.Errorf("missing bearer token: %w", domain.ErrUnauthorized))
			return
		}
		claims, err := h.tokens.ValidateAccessToken(token)
		if err != nil {
			h.logger.DebugContext(r.Context(), "token rejected", slog.String("error", err.Error()))
			h.writeError(w, r, fmt.Errorf("invalid or expired token: %w", domain.ErrUnauthorized))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func (h *HTTPHandler) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c := claimsFromContext(r.Context()); c == nil || !c.HasScope(scope) {
			h.writeError(w, r, fmt.Errorf("scope %q required: %w", scope, domain.ErrForbidden))
			return
		}
		next(w, r)
	}
}

// extractToken reads the bearer token from the Authorization header, or from
// the token query parameter for EventSource clients that cannot set headers.
func extractToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		const prefix = "Bearer "
		if len(v) > len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
			return strings.TrimSpace(v[len(prefix):])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func userFromRequest(r *http.Request) string {
	if c := claimsFromContext(r.Context()); c != nil {
		return c.Subject
	}
	return ""
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type createSessionRequest struct {
	Country string `json:"country"`
	Service string `json:"service"`
}

type sessionResponse struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	PhoneNumber  string     `json:"phone_number"`
	PhoneDisplay string     `json:"phone_display"`
	Country      string     `json:"country"`
	Service      string     `json:"service"`
	Status       string     `json:"status"`
	OTP          string     `json:"otp,omitempty"`
	AutoCheck    bool       `json:"auto_check"`
	CreatedAt    time.Time  `json:"created_at"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
}

func toSessionResponse(s app.Session) sessionResponse {
	resp := sessionResponse{
		ID:           s.ID.String(),
		UserID:       s.UserID.String(),
		PhoneNumber:  s.PhoneNumber.String(),
		PhoneDisplay: s.PhoneNumber.Display(),
		Country:      s.Country.Code,
		Service:      s.Service.ID,
		Status:       string(s.Status),
		OTP:          s.OTP,
		AutoCheck:    s.AutoCheckEnabled(),
		CreatedAt:    s.CreatedAt.UTC(),
	}
	if !s.ReceivedAt.IsZero() {
		t := s.ReceivedAt.UTC()
		resp.ReceivedAt = &t
	}
	return resp
}

type createSessionResponse struct {
	Session sessionResponse `json:"session"`
	Message string          `json:"message"`
}

type checkResponse struct {
	Status  string          `json:"status"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message"`
	Session sessionResponse `json:"session"`
}

type catalogCountry struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	DialCode string `json:"dial_code"`
}

type catalogService struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type catalogResponse struct {
	Countries []catalogCountry `json:"countries"`
	Services  []catalogService `json:"services"`
}

type providerCountry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type providerCountriesResponse struct {
	Countries []providerCountry `json:"countries"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (h *HTTPHandler) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(apiv1.Spec)
}

func (h *HTTPHandler) catalog(w http.ResponseWriter, r *http.Request) {
	cat := h.svc.Catalog()
	resp := catalogResponse{
		Countries: make([]catalogCountry, 0),
		Services:  make([]catalogService, 0),
	}
	for _, c := range cat.Countries() {
		resp.Countries = append(resp.Countries, catalogCountry{Code: c.Code, Name: c.Name, DialCode: c.DialCode})
	}
	for _, s := range cat.Services() {
		resp.Services = append(resp.Services, catalogService{ID: s.ID, Name: s.Name})
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *HTTPHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.CreateSession(r.Context(), userFromRequest(r), req.Country, req.Service)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, createSessionResponse{
		Session: toSessionResponse(result.Session),
		Message: result.Message,
	})
}

func (h *HTTPHandler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.svc.GetUserSession(userFromRequest(r))
	if !ok {
		h.writeError(w, r, domain.ErrNoActiveSession)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

func (h *HTTPHandler) clearSession(w http.ResponseWriter, r *http.Request) {
	if !h.svc.ClearSession(r.Context(), userFromRequest(r)) {
		h.writeError(w, r, domain.ErrNoActiveSession)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) checkSession(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CheckUserOTP(r.Context(), userFromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, checkResponse{
		Status:  string(result.Status),
		Code:    result.Code,
		Message: result.Message,
		Session: toSessionResponse(result.Session),
	})
}

func (h *HTTPHandler) stopAutoCheck(w http.ResponseWriter, r *http.Request) {
	userID := userFromRequest(r)
	if _, ok := h.svc.GetUserSession(userID); !ok {
		h.writeError(w, r, domain.ErrNoActiveSession)
		return
	}
	stopped := h.svc.StopAutoCheck(r.Context(), userID)
	h.writeJSON(w, r, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (h *HTTPHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	all := h.svc.GetAllSessions()
	resp := listSessionsResponse{Sessions: make([]sessionResponse, 0, len(all))}
	for _, s := range all {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s))
	}
	sort.Slice(resp.Sessions, func(i, j int) bool { return resp.Sessions[i].UserID < resp.Sessions[j].UserID })
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *HTTPHandler) providerCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.svc.GetCountries(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := providerCountriesResponse{Countries: make([]providerCountry, 0, len(countries))}
	for _, c := range countries {
		resp.Countries = append(resp.Countries, providerCountry{Code: c.Code, Name: c.Name})
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// streamEvents starts an auto-check for the caller's session and streams its
// progress as server-sent events. The stream ends after a terminal frame,
// which includes a stopped frame when a check, clear, new session or another
// auto-check ends this one. A client disconnect stops the auto-check the
// stream started, and only that one.
func (h *HTTPHandler) streamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromRequest(r)
	logger := observability.WithTraceID(ctx, h.logger)

	sess, ok := h.svc.GetUserSession(userID)
	if !ok {
		h.writeError(w, r, domain.ErrNoActiveSession)
		return
	}

	// The sink runs under the user's session lock, so it never blocks past
	// the end of this handler.
	done := make(chan struct{})
	events := make(chan app.Notification, 8)
	sink := func(n app.Notification) {
		if n.Terminal() {
			select {
			case events <- n:
			case <-done:
			}
			return
		}
		select {
		case events <- n:
		default:
			// slow client; interim frames are advisory
		}
	}

	var autoCheck app.AutoCheckID
	if !sess.Received() {
		id, err := h.svc.StartAutoCheck(ctx, userID, sink)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		autoCheck = id
		if cur, ok := h.svc.GetUserSession(userID); ok {
			sess = cur
		}
	}
	defer func() {
		close(done)
		if autoCheck != 0 {
			h.svc.StopAutoCheckIf(context.WithoutCancel(ctx), userID, autoCheck)
		}
	}()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(t protocol.FrameType, payload interface{}) bool {
		frame, err := protocol.NewFrame(t, payload)
		if err != nil {
			logger.ErrorContext(ctx, "encode event frame", slog.String("error", err.Error()))
			return false
		}
		if err := rc.SetWriteDeadline(h.clock.Now().Add(h.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return false
		}
		if _, err := frame.WriteTo(w); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send(protocol.FrameTypeSession, protocol.Session{
		SessionID:   sess.ID.String(),
		PhoneNumber: sess.PhoneNumber.String(),
		Country:     sess.Country.Code,
		Service:     sess.Service.ID,
		Status:      string(sess.Status),
		AutoCheck:   sess.AutoCheckEnabled(),
		CreatedAt:   sess.CreatedAt.UnixMilli(),
	}) {
		return
	}

	if sess.Received() {
		send(protocol.FrameTypeReceived, protocol.Received{
			Code:       sess.OTP,
			Message:    "Code already received.",
			ReceivedAt: sess.ReceivedAt.UnixMilli(),
		})
		return
	}

	logger.InfoContext(ctx, "event stream opened", slog.String("user_id", userID))
	defer logger.InfoContext(ctx, "event stream closed", slog.String("user_id", userID))

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if !send(protocol.FrameTypePing, protocol.Ping{Timestamp: h.clock.Now().UnixMilli()}) {
				return
			}
		case n := <-events:
			t, payload := h.notificationFrame(n)
			if !send(t, payload) || t.Terminal() {
				return
			}
		}
	}
}

func (h *HTTPHandler) notificationFrame(n app.Notification) (protocol.FrameType, interface{}) {
	switch n.Kind {
	case app.NotificationReceived:
		return protocol.FrameTypeReceived, protocol.Received{
			Code:       n.Code,
			Message:    n.Message,
			ReceivedAt: h.clock.Now().UnixMilli(),
		}
	case app.NotificationFailed:
		return protocol.FrameTypeFailed, protocol.Failed{
			Code:    errmap.ToHTTPError(n.Err).Code,
			Message: n.Message,
		}
	case app.NotificationStopped:
		return protocol.FrameTypeStopped, protocol.Stopped{
			Reason:  string(n.Reason),
			Message: n.Message,
		}
	default:
		return protocol.FrameTypeWaiting, protocol.Waiting{Message: n.Message}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return fmt.Errorf("read body: %w", domain.ErrInvalidInput)
	}
	if len(body) > maxRequestBody {
		return fmt.Errorf("body exceeds %d bytes: %w", maxRequestBody, domain.ErrInvalidInput)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", domain.ErrInvalidInput)
	}
	return nil
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "encode response", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httpErr := errmap.ToHTTPError(err)
	if httpErr.StatusCode >= http.StatusInternalServerError {
		observability.WithTraceID(r.Context(), h.logger).ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	h.writeJSON(w, r, httpErr.StatusCode, httpErr)
}
