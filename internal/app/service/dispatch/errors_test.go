package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drydocs/billing/internal/app/service/addon"
	"github.com/drydocs/billing/internal/app/service/subscription"
)

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"ignored", ErrIgnored, true},
		{"wrapped ignored", fmt.Errorf("checkout mode setup: %w", ErrIgnored), true},
		{"malformed payload", errMalformedPayload, true},
		{"invalid grant", addon.ErrInvalidGrant, true},
		{"wrapped invalid grant", fmt.Errorf("%w: unknown addon key", addon.ErrInvalidGrant), true},
		{"user not found", subscription.ErrUserNotFound, true},
		{"db failure is transient", errors.New("connection refused"), false},
		{"wrapped db failure is transient", fmt.Errorf("failed to save: %w", errors.New("timeout")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPermanent(tt.err))
		})
	}
}
