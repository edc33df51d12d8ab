package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// maxResponseBytes caps how much of a provider response body is read.
	maxResponseBytes = 1 << 20
	// maxErrorDetail caps, in runes, the provider text quoted in errors.
	maxErrorDetail = 200
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL   string
	APIKey    domain.SecretString
	Timeout   time.Duration // per call; defaults to domain.ProviderTimeout
	RateLimit float64       // outbound requests per second; <= 0 disables the bucket
	Burst     int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPClient talks to the provider's JSON API.
type HTTPClient struct {
	baseURL string
	apiKey  domain.SecretString
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPClient validates cfg and returns a client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("provider: base url %q: %w", cfg.BaseURL, domain.ErrInvalidInput)
	}

	c := &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = domain.ProviderTimeout
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

type allocateRequest struct {
	Country string `json:"country"`
	Service string `json:"service"`
}

type allocateResponse struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
}

type codeResponse struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

type countriesResponse struct {
	Countries []struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"countries"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// AllocateNumber implements Client.
func (c *HTTPClient) AllocateNumber(ctx context.Context, country, service string) (alloc *Allocation, err error) {
	ctx, span := tracer.Start(ctx, "provider.allocate_number")
	span.SetAttributes(attribute.String("country", country), attribute.String("service", service))
	defer func() { finish(ctx, span, opAllocate, err) }()

	status, body, err := c.do(ctx, http.MethodPost, "/v1/numbers", allocateRequest{Country: country, Service: service})
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return nil, statusError(opAllocate, status, body, domain.ErrInvalidParameters)
	case status == http.StatusNotFound || status == http.StatusConflict || errorCode(body) == "no_numbers":
		return nil, statusError(opAllocate, status, body, domain.ErrNoNumbersAvailable)
	default:
		return nil, statusError(opAllocate, status, body, classifyStatus(status))
	}

	var parsed allocateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("provider: %s: parse response: %v: %w", opAllocate, err, domain.ErrInternal)
	}
	if parsed.ID == "" || parsed.PhoneNumber == "" {
		return nil, fmt.Errorf("provider: %s: response missing id or phone_number: %w", opAllocate, domain.ErrInternal)
	}

	return &Allocation{PhoneNumber: parsed.PhoneNumber, SessionID: parsed.ID}, nil
}

// FetchCode implements Client.
func (c *HTTPClient) FetchCode(ctx context.Context, providerSessionID string) (code string, err error) {
	ctx, span := tracer.Start(ctx, "provider.fetch_code")
	defer func() { finish(ctx, span, opFetchCode, err) }()

	if providerSessionID == "" {
		return "", fmt.Errorf("provider: %s: empty session id: %w", opFetchCode, domain.ErrInvalidParameters)
	}

	status, body, err := c.do(ctx, http.MethodGet, "/v1/numbers/"+url.PathEscape(providerSessionID)+"/code", nil)
	if err != nil {
		return "", err
	}

	switch status {
	case http.StatusOK:
	case http.StatusAccepted, http.StatusNoContent:
		return "", fmt.Errorf("provider: %s: %w", opFetchCode, domain.ErrNotYetAvailable)
	case http.StatusNotFound, http.StatusGone:
		return "", statusError(opFetchCode, status, body, domain.ErrSessionExpired)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "", statusError(opFetchCode, status, body, domain.ErrInvalidParameters)
	default:
		return "", statusError(opFetchCode, status, body, classifyStatus(status))
	}

	var parsed codeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("provider: %s: parse response: %v: %w", opFetchCode, err, domain.ErrInternal)
	}
	code = strings.TrimSpace(parsed.Code)
	if code == "" || parsed.Status == "pending" {
		return "", fmt.Errorf("provider: %s: %w", opFetchCode, domain.ErrNotYetAvailable)
	}
	return code, nil
}

// ListCountries implements Client.
func (c *HTTPClient) ListCountries(ctx context.Context) (countries []Country, err error) {
	ctx, span := tracer.Start(ctx, "provider.list_countries")
	defer func() { finish(ctx, span, opCountries, err) }()

	status, body, err := c.do(ctx, http.MethodGet, "/v1/countries", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(opCountries, status, body, classifyStatus(status))
	}

	var parsed countriesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("provider: %s: parse response: %v: %w", opCountries, err, domain.ErrInternal)
	}

	countries = make([]Country, 0, len(parsed.Countries))
	for _, pc := range parsed.Countries {
		countries = append(countries, Country{Code: pc.Code, Name: pc.Name})
	}
	return countries, nil
}

// do performs one request and returns the status and body. Only transport
// level failures are returned as errors; status handling is the caller's.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	// The timeout covers the wait for a token too.
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("provider: rate limiter: %v: %w", err, domain.ErrProviderUnavailable)
		}
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("provider: marshal request: %v: %w", err, domain.ErrInternal)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("provider: build request: %v: %w", err, domain.ErrInternal)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !c.apiKey.IsEmpty() {
		req.Header.Set("Authorization", "Bearer "+c.apiKey.Expose())
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "provider request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return 0, nil, fmt.Errorf("provider: send request: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("provider: read response: %v: %w", err, domain.ErrProviderUnavailable)
	}

	c.logger.DebugContext(ctx, "provider request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp.StatusCode, body, nil
}

// classifyStatus maps statuses without an operation-specific meaning.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return domain.ErrProviderUnavailable
	default:
		return domain.ErrInternal
	}
}

// errorCode extracts the machine-readable code from an error body, if any.
func errorCode(body []byte) string {
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	return parsed.Error
}

func statusError(op string, status int, body []byte, sentinel error) error {
	detail := strings.TrimSpace(string(body))
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && (parsed.Message != "" || parsed.Error != "") {
		detail = parsed.Message
		if detail == "" {
			detail = parsed.Error
		}
	}
	if r := []rune(detail); len(r) > maxErrorDetail {
		detail = string(r[:maxErrorDetail])
	}
	if detail == "" {
		return fmt.Errorf("provider: %s: status %d: %w", op, status, sentinel)
	}
	return fmt.Errorf("provider: %s: status %d: %s: %w", op, status, detail, sentinel)
}

var _ Client = (*HTTPClient)(nil)
