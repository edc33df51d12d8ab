package provider

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aelexs/otp-fetcher/internal/auth"
	"github.com/aelexs/otp-fetcher/internal/domain"
)

// SandboxConfig configures a Sandbox.
type SandboxConfig struct {
	Catalog     *domain.Catalog
	RevealAfter int           // fetches before the code is released; <= 1 releases on the first fetch
	TTL         time.Duration // allocation lifetime; <= 0 means allocations never expire
	Clock       domain.Clock
	Logger      *slog.Logger

	// GenerateCode overrides code generation, mainly for tests.
	GenerateCode func() (string, error)
}

// Sandbox is an in-process provider for local development. It rents fake
// numbers for catalog countries and releases a random code after a fixed
// number of fetches. It logs instead of contacting anything.
type Sandbox struct {
	catalog      *domain.Catalog
	revealAfter  int
	ttl          time.Duration
	clock        domain.Clock
	logger       *slog.Logger
	generateCode func() (string, error)

	mu          sync.Mutex
	allocations map[string]*sandboxAllocation
}

type sandboxAllocation struct {
	phone     string
	code      string
	fetches   int
	expiresAt time.Time
}

// NewSandbox creates a Sandbox.
func NewSandbox(cfg SandboxConfig) *Sandbox {
	s := &Sandbox{
		catalog:      cfg.Catalog,
		revealAfter:  cfg.RevealAfter,
		ttl:          cfg.TTL,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		generateCode: cfg.GenerateCode,
		allocations:  make(map[string]*sandboxAllocation),
	}
	if s.catalog == nil {
		s.catalog = domain.DefaultCatalog()
	}
	if s.clock == nil {
		s.clock = domain.RealClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.generateCode == nil {
		s.generateCode = auth.GenerateOTP
	}
	return s
}

// AllocateNumber implements Client.
func (s *Sandbox) AllocateNumber(ctx context.Context, country, service string) (*Allocation, error) {
	c, ok := s.catalog.LookupCountry(country)
	if !ok {
		return nil, fmt.Errorf("sandbox: country %q: %w", country, domain.ErrInvalidParameters)
	}
	if _, ok := s.catalog.LookupService(service); !ok {
		return nil, fmt.Errorf("sandbox: service %q: %w", service, domain.ErrInvalidParameters)
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w: %w", domain.ErrInternal, err)
	}
	subscriber, err := rand.Int(rand.Reader, big.NewInt(10_000_000))
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w: %w", domain.ErrInternal, err)
	}

	id := uuid.NewString()
	alloc := &sandboxAllocation{
		phone: fmt.Sprintf("+%s555%07d", c.DialCode, subscriber.Int64()),
		code:  code,
	}
	if s.ttl > 0 {
		alloc.expiresAt = s.clock.Now().Add(s.ttl)
	}

	s.mu.Lock()
	s.allocations[id] = alloc
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "sandbox number allocated",
		slog.String("provider_session_id", id),
		slog.String("country", c.Code),
		slog.String("service", domain.NormalizeServiceID(service)),
	)
	return &Allocation{PhoneNumber: alloc.phone, SessionID: id}, nil
}

// FetchCode implements Client.
func (s *Sandbox) FetchCode(_ context.Context, providerSessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alloc, ok := s.allocations[providerSessionID]
	if !ok {
		return "", fmt.Errorf("sandbox: allocation %q: %w", providerSessionID, domain.ErrSessionExpired)
	}
	if !alloc.expiresAt.IsZero() && !s.clock.Now().Before(alloc.expiresAt) {
		delete(s.allocations, providerSessionID)
		return "", fmt.Errorf("sandbox: allocation %q: %w", providerSessionID, domain.ErrSessionExpired)
	}

	alloc.fetches++
	if alloc.fetches < s.revealAfter {
		return "", fmt.Errorf("sandbox: %w", domain.ErrNotYetAvailable)
	}
	return alloc.code, nil
}

// ListCountries implements Client.
func (s *Sandbox) ListCountries(context.Context) ([]Country, error) {
	countries := s.catalog.Countries()
	out := make([]Country, 0, len(countries))
	for _, c := range countries {
		out = append(out, Country{Code: c.Code, Name: c.Name})
	}
	return out, nil
}

var _ Client = (*Sandbox)(nil)
