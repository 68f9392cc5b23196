package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydocs/billing/pkg/types"
)

func TestGetAddonItemByKey(t *testing.T) {
	cfg := &Config{
		AddonItems: []*types.AddonItem{
			{Key: "report_pack_10", ReportLimit: 10, ProviderPriceID: "price_a"},
			{Key: "report_pack_50", ReportLimit: 50, ProviderPriceID: "price_b"},
		},
	}

	item := cfg.GetAddonItemByKey("report_pack_50")
	require.NotNil(t, item)
	assert.Equal(t, 50, item.ReportLimit)

	assert.Nil(t, cfg.GetAddonItemByKey("report_pack_100"))
	assert.Nil(t, cfg.GetAddonItemByKey(""))
}

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.Env)
	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Stripe.SignatureToleranceSeconds)
	assert.Equal(t, 5, cfg.Stripe.CallTimeoutSeconds)
	assert.True(t, cfg.Billing.LedgerEnabled)
	assert.Equal(t, 3, cfg.Billing.SignupBonusCredits)
	assert.Equal(t, 72, cfg.Billing.ReconcileWindowHours)
}
