package statistics

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/drydocs/billing/internal/models"
)

// Service aggregates daily billing figures for the admin dashboard.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

type DailyEventCount struct {
	Day    time.Time                 `json:"day"`
	Status models.BillingEventStatus `json:"status"`
	Count  int64                     `json:"count"`
}

type DailyAddonRevenue struct {
	Day      time.Time `json:"day"`
	Currency string    `json:"currency"`
	Amount   int64     `json:"amount"`
	Credits  int64     `json:"credits"`
}

// EventCounts returns per-day ledger outcome counts inside [from, to).
func (s *Service) EventCounts(ctx context.Context, from, to time.Time) ([]*DailyEventCount, error) {
	var rows []*DailyEventCount
	err := s.db.WithContext(ctx).Model(&models.BillingEvent{}).
		Select("date_trunc('day', created_at) AS day, status, count(*) AS count").
		Where("created_at >= ? AND created_at < ?", from, to).
		Group("day, status").
		Order("day").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate event counts: %w", err)
	}
	return rows, nil
}

// AddonRevenue returns per-day completed addon purchase totals inside [from, to).
func (s *Service) AddonRevenue(ctx context.Context, from, to time.Time) ([]*DailyAddonRevenue, error) {
	var rows []*DailyAddonRevenue
	err := s.db.WithContext(ctx).Model(&models.AddonPurchase{}).
		Select("date_trunc('day', purchased_at) AS day, currency, sum(amount) AS amount, sum(report_limit) AS credits").
		Where("status = ? AND purchased_at >= ? AND purchased_at < ?", models.AddonPurchaseStatusCompleted, from, to).
		Group("day, currency").
		Order("day").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate addon revenue: %w", err)
	}
	return rows, nil
}

// FillMissingDays pads gaps so charts render continuous series.
func FillMissingDays(items []*DailyEventCount, from, to time.Time) []*DailyEventCount {
	byDay := lo.GroupBy(items, func(it *DailyEventCount) time.Time { return it.Day })
	var out []*DailyEventCount
	for d := from.Truncate(24 * time.Hour); d.Before(to); d = d.AddDate(0, 0, 1) {
		if rows, ok := byDay[d]; ok {
			out = append(out, rows...)
			continue
		}
		out = append(out, &DailyEventCount{Day: d, Status: models.BillingEventStatusCompleted, Count: 0})
	}
	return out
}
