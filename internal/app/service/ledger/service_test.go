package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/drydocs/billing/internal/models"
	"github.com/drydocs/billing/pkg/config"
)

func TestService_DisabledLedgerIsNoop(t *testing.T) {
	cfg := &config.Config{}
	cfg.Billing.LedgerEnabled = false
	s := New(nil, cfg, zap.NewNop().Sugar())

	assert.False(t, s.Enabled())

	done, err := s.IsAlreadyCompleted(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, done)

	err = s.UpsertStatus(context.Background(), UpsertParams{
		ProviderEventID: "evt_1",
		EventType:       "customer.subscription.updated",
		Status:          models.BillingEventStatusProcessing,
	})
	require.NoError(t, err)
}

func TestService_EnabledFlagFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Billing.LedgerEnabled = true
	s := New(nil, cfg, zap.NewNop().Sugar())
	assert.True(t, s.Enabled())
}

func TestBuildStatusUpdates_FailureIncrementsRetryCount(t *testing.T) {
	row := &models.BillingEvent{Status: models.BillingEventStatusProcessing}
	updates := buildStatusUpdates(row, UpsertParams{
		ProviderEventID: "evt_1",
		Status:          models.BillingEventStatusFailed,
		Error:           errors.New("db down"),
	})

	require.NotNil(t, updates)
	assert.Equal(t, models.BillingEventStatusFailed, updates["status"])
	assert.Equal(t, gorm.Expr("retry_count + 1"), updates["retry_count"])
	assert.Equal(t, "db down", updates["error_message"])
}

func TestBuildStatusUpdates_RetryThenCompletion(t *testing.T) {
	row := &models.BillingEvent{Status: models.BillingEventStatusFailed, RetryCount: 1}

	updates := buildStatusUpdates(row, UpsertParams{
		ProviderEventID: "evt_1",
		Status:          models.BillingEventStatusProcessing,
	})
	require.NotNil(t, updates)
	// re-entering processing must not touch the retry counter
	assert.NotContains(t, updates, "retry_count")
	assert.Equal(t, models.BillingEventStatusProcessing, row.Status)

	updates = buildStatusUpdates(row, UpsertParams{
		ProviderEventID: "evt_1",
		Status:          models.BillingEventStatusCompleted,
		UserID:          "u1",
	})
	require.NotNil(t, updates)
	assert.Equal(t, models.BillingEventStatusCompleted, updates["status"])
	assert.Equal(t, "u1", updates["user_id"])
	assert.Contains(t, updates, "processed_at")
}

func TestBuildStatusUpdates_CompletedRowIsImmutable(t *testing.T) {
	row := &models.BillingEvent{Status: models.BillingEventStatusCompleted}
	for _, next := range []models.BillingEventStatus{
		models.BillingEventStatusProcessing,
		models.BillingEventStatusFailed,
		models.BillingEventStatusCompleted,
	} {
		assert.Nil(t, buildStatusUpdates(row, UpsertParams{ProviderEventID: "evt_1", Status: next}))
	}
	assert.Equal(t, models.BillingEventStatusCompleted, row.Status)
}
