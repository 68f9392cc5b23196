package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/drydocs/billing/internal/models"
	"github.com/drydocs/billing/pkg/config"
	"github.com/drydocs/billing/pkg/logctx"
	"github.com/drydocs/billing/pkg/tool"
)

// Service is the idempotency ledger: the single gate that protects every
// downstream handler from duplicate webhook work. Handlers do not need their
// own per-event duplicate checks; the addon path additionally dedupes per
// purchase because one purchase can arrive under two different event types.
type Service struct {
	db      *gorm.DB
	log     *zap.SugaredLogger
	enabled bool
}

func New(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *Service {
	if !cfg.Billing.LedgerEnabled {
		log.Warnw("billing event ledger disabled by config; webhook dedup is off")
	}
	return &Service{db: db, log: log, enabled: cfg.Billing.LedgerEnabled}
}

// Enabled reports whether ledger rows are being kept.
func (s *Service) Enabled() bool { return s.enabled }

// IsAlreadyCompleted reports whether the event was fully processed before.
// On true the caller must acknowledge the delivery without reprocessing.
func (s *Service) IsAlreadyCompleted(ctx context.Context, providerEventID string) (bool, error) {
	if !s.enabled {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.BillingEvent{}).
		Where("provider_event_id = ? AND status = ?", providerEventID, models.BillingEventStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check billing event %s: %w", providerEventID, err)
	}
	return count > 0, nil
}

// UpsertParams carries one status advance for a provider event.
type UpsertParams struct {
	ProviderEventID string
	EventType       string
	RawPayload      []byte
	Status          models.BillingEventStatus
	UserID          string
	Error           error
}

// UpsertStatus creates the ledger row on first sight and advances its status
// afterwards. RetryCount is incremented on every transition into failed. A
// completed row is terminal; attempts to move it are logged and dropped.
func (s *Service) UpsertStatus(ctx context.Context, p UpsertParams) error {
	if !s.enabled {
		return nil
	}

	var row models.BillingEvent
	err := s.db.WithContext(ctx).
		Where("provider_event_id = ?", p.ProviderEventID).
		First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load billing event %s: %w", p.ProviderEventID, err)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.BillingEvent{
			ID:              tool.GenerateUUIDV7(),
			ProviderEventID: p.ProviderEventID,
			EventType:       p.EventType,
			Status:          p.Status,
			RawPayload:      datatypes.JSON(p.RawPayload),
		}
		applyOutcome(&row, p)
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// concurrent delivery won the insert; fall through to update
				return s.advanceExisting(ctx, p)
			}
			return fmt.Errorf("failed to create billing event %s: %w", p.ProviderEventID, err)
		}
		return nil
	}

	return s.advanceExisting(ctx, p)
}

func (s *Service) advanceExisting(ctx context.Context, p UpsertParams) error {
	var row models.BillingEvent
	if err := s.db.WithContext(ctx).
		Where("provider_event_id = ?", p.ProviderEventID).
		First(&row).Error; err != nil {
		return fmt.Errorf("failed to reload billing event %s: %w", p.ProviderEventID, err)
	}

	updates := buildStatusUpdates(&row, p)
	if updates == nil {
		logctx.FromCtx(ctx, s.log).Warnw("billing event status transition rejected",
			"provider_event_id", p.ProviderEventID, "from", row.Status, "to", p.Status)
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&models.BillingEvent{}).
		Where("provider_event_id = ?", p.ProviderEventID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update billing event %s: %w", p.ProviderEventID, err)
	}
	return nil
}

// buildStatusUpdates returns the column updates advancing row to p.Status, or
// nil when the lifecycle rejects the transition. RetryCount is incremented on
// every transition into failed.
func buildStatusUpdates(row *models.BillingEvent, p UpsertParams) map[string]any {
	if !row.CanTransitionTo(p.Status) {
		return nil
	}

	updates := map[string]any{"status": p.Status}
	if p.Status == models.BillingEventStatusFailed {
		updates["retry_count"] = gorm.Expr("retry_count + 1")
	}
	row.Status = p.Status
	applyOutcome(row, p)
	if row.UserID != nil {
		updates["user_id"] = *row.UserID
	}
	if row.ProcessedAt != nil {
		updates["processed_at"] = *row.ProcessedAt
	}
	if row.ErrorMessage != nil {
		updates["error_message"] = *row.ErrorMessage
	}
	return updates
}

func applyOutcome(row *models.BillingEvent, p UpsertParams) {
	if p.UserID != "" {
		row.UserID = lo.ToPtr(p.UserID)
	}
	if p.Error != nil {
		row.ErrorMessage = lo.ToPtr(p.Error.Error())
	}
	if p.Status == models.BillingEventStatusCompleted {
		row.ProcessedAt = lo.ToPtr(time.Now())
	}
}

// Get returns the ledger row for a provider event id.
func (s *Service) Get(ctx context.Context, providerEventID string) (*models.BillingEvent, error) {
	var row models.BillingEvent
	if err := s.db.WithContext(ctx).
		Where("provider_event_id = ?", providerEventID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
