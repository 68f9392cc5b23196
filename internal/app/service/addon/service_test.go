package addon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drydocs/billing/pkg/config"
	"github.com/drydocs/billing/pkg/types"
)

func newTestService() *Service {
	cfg := &config.Config{
		AddonItems: []*types.AddonItem{
			{Key: "report_pack_10", ReportLimit: 10, ProviderPriceID: "price_pack10"},
		},
	}
	return NewService(nil, cfg, zap.NewNop().Sugar(), nil, nil)
}

func TestApply_RejectsInvalidGrants(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	tests := []struct {
		name  string
		grant Grant
	}{
		{
			name:  "unknown addon key",
			grant: Grant{UserID: "u1", AddonKey: "mystery_pack", SessionID: "cs_1"},
		},
		{
			name:  "missing user id",
			grant: Grant{AddonKey: "report_pack_10", SessionID: "cs_1"},
		},
		{
			name:  "negative credits",
			grant: Grant{UserID: "u1", AddonKey: "report_pack_10", Credits: -5, SessionID: "cs_1"},
		},
		{
			name:  "no provider transaction id",
			grant: Grant{UserID: "u1", AddonKey: "report_pack_10"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied, err := s.Apply(ctx, tt.grant)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidGrant)
			assert.False(t, applied)
		})
	}
}

func TestParseCredits(t *testing.T) {
	assert.Equal(t, 10, parseCredits("10"))
	assert.Equal(t, 0, parseCredits(""))
	assert.Equal(t, 0, parseCredits("ten"))
}
