package provider_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/domain/domaintest"
	"github.com/aelexs/otp-fetcher/internal/provider"
)

func newSandbox(clock domain.Clock) *provider.Sandbox {
	return provider.NewSandbox(provider.SandboxConfig{
		RevealAfter:  3,
		TTL:          time.Minute,
		Clock:        clock,
		GenerateCode: func() (string, error) { return "246810", nil },
	})
}

func TestSandboxAllocate(t *testing.T) {
	sb := newSandbox(domaintest.NewFakeClock(time.Now()))

	alloc, err := sb.AllocateNumber(t.Context(), "GB", "WhatsApp")
	require.NoError(t, err)
	assert.NotEmpty(t, alloc.SessionID)
	assert.True(t, strings.HasPrefix(alloc.PhoneNumber, "+44555"), alloc.PhoneNumber)

	phone, err := domain.NewPhoneNumber(alloc.PhoneNumber, "GB")
	require.NoError(t, err)
	assert.False(t, phone.IsZero())
}

func TestSandboxAllocateRejectsUnknownPairs(t *testing.T) {
	sb := newSandbox(domain.RealClock{})

	_, err := sb.AllocateNumber(t.Context(), "ZZ", "whatsapp")
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	_, err = sb.AllocateNumber(t.Context(), "US", "myspace")
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestSandboxAllocateCodeFailure(t *testing.T) {
	sb := provider.NewSandbox(provider.SandboxConfig{
		GenerateCode: func() (string, error) { return "", errors.New("entropy exhausted") },
	})

	_, err := sb.AllocateNumber(t.Context(), "US", "uber")
	assert.ErrorIs(t, err, domain.ErrInternal)
}

func TestSandboxRevealsAfterFetches(t *testing.T) {
	sb := newSandbox(domain.RealClock{})
	alloc, err := sb.AllocateNumber(t.Context(), "US", "telegram")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := sb.FetchCode(t.Context(), alloc.SessionID)
		assert.ErrorIs(t, err, domain.ErrNotYetAvailable, "fetch %d", i+1)
	}

	code, err := sb.FetchCode(t.Context(), alloc.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "246810", code)

	code, err = sb.FetchCode(t.Context(), alloc.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "246810", code, "code stays readable after release")
}

func TestSandboxExpiry(t *testing.T) {
	clock := domaintest.NewFakeClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	sb := newSandbox(clock)
	alloc, err := sb.AllocateNumber(t.Context(), "IN", "google")
	require.NoError(t, err)

	clock.Advance(time.Minute)

	_, err = sb.FetchCode(t.Context(), alloc.SessionID)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = sb.FetchCode(t.Context(), "never-allocated")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestSandboxListCountries(t *testing.T) {
	sb := newSandbox(domain.RealClock{})

	countries, err := sb.ListCountries(t.Context())
	require.NoError(t, err)
	assert.Len(t, countries, 10)
	assert.Equal(t, provider.Country{Code: "BR", Name: "Brazil"}, countries[0])
}
