package errmap_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/errmap"
)

func TestToReply(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errmap.ReplyCategory
	}{
		{"nil error", nil, errmap.ReplyOK},
		{"ErrNotYetAvailable", domain.ErrNotYetAvailable, errmap.ReplyWaiting},
		{"ErrNoActiveSession", domain.ErrNoActiveSession, errmap.ReplyNoSession},
		{"ErrInvalidCountry", domain.ErrInvalidCountry, errmap.ReplyInvalidCountry},
		{"ErrInvalidService", domain.ErrInvalidService, errmap.ReplyInvalidService},
		{"ErrEmptyID", domain.ErrEmptyID, errmap.ReplyInvalidInput},
		{"ErrInvalidID", domain.ErrInvalidID, errmap.ReplyInvalidInput},
		{"ErrInvalidInput", domain.ErrInvalidInput, errmap.ReplyInvalidInput},
		{"ErrInvalidParameters", domain.ErrInvalidParameters, errmap.ReplyRejected},
		{"ErrNoNumbersAvailable", domain.ErrNoNumbersAvailable, errmap.ReplyNoNumbers},
		{"ErrSessionExpired", domain.ErrSessionExpired, errmap.ReplyExpired},
		{"ErrProviderUnavailable", domain.ErrProviderUnavailable, errmap.ReplyProviderDown},
		{"ErrRateLimited", domain.ErrRateLimited, errmap.ReplyRateLimited},
		{"ErrUnavailable", domain.ErrUnavailable, errmap.ReplyUnavailable},
		{"ErrInternal", domain.ErrInternal, errmap.ReplyInternal},
		{"wrapped ErrSessionExpired", fmt.Errorf("check: %w", domain.ErrSessionExpired), errmap.ReplyExpired},
		{"unknown error", errors.New("boom"), errmap.ReplyInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errmap.ToReply(tt.err).Category)
		})
	}
}

func TestToReplyText(t *testing.T) {
	assert.Empty(t, errmap.ToReply(nil).Text)
	assert.Empty(t, errmap.ToReply(domain.ErrNotYetAvailable).Text, "waiting is not an error")

	// Categories render distinct text so users can tell failures apart.
	seen := map[string]errmap.ReplyCategory{}
	for _, err := range []error{
		domain.ErrNoActiveSession, domain.ErrInvalidCountry, domain.ErrInvalidService,
		domain.ErrInvalidInput, domain.ErrInvalidParameters, domain.ErrNoNumbersAvailable,
		domain.ErrSessionExpired, domain.ErrProviderUnavailable, domain.ErrRateLimited,
		domain.ErrUnavailable, domain.ErrInternal,
	} {
		r := errmap.ToReply(err)
		assert.NotEmpty(t, r.Text, r.Category)
		if prev, dup := seen[r.Text]; dup {
			t.Errorf("%s and %s share reply text %q", prev, r.Category, r.Text)
		}
		seen[r.Text] = r.Category
	}

	// Internal details never leak into chat.
	r := errmap.ToReply(errors.New("dial tcp 10.0.0.7:443: connection refused"))
	assert.NotContains(t, r.Text, "10.0.0.7")
}
