package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drydocs/billing/internal/app/service/mailer"
	"github.com/drydocs/billing/internal/models"
	"github.com/drydocs/billing/internal/platform/stripeapi"
	"github.com/drydocs/billing/pkg/config"
	"github.com/drydocs/billing/pkg/logctx"
	"github.com/drydocs/billing/pkg/tool"
	"github.com/drydocs/billing/pkg/types"
)

// ErrUserNotFound marks a provider event that references no known billing
// user. Retrying cannot fix it, so the dispatcher acknowledges and skips.
var ErrUserNotFound = errors.New("no billing user for provider customer")

type Service struct {
	db     *gorm.DB
	cfg    *config.Config
	log    *zap.SugaredLogger
	stripe *stripeapi.Client
	mail   *mailer.Service
}

func NewService(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger, stripe *stripeapi.Client, mail *mailer.Service) *Service {
	return &Service{db: db, cfg: cfg, log: log, stripe: stripe, mail: mail}
}

// ApplyStateParams is one provider-reported subscription snapshot.
type ApplyStateParams struct {
	ProviderEventID string
	// UserID from checkout metadata, if the event carried it. Either it or
	// CustomerID must resolve to a billing user.
	UserID         string
	CustomerID     string
	SubscriptionID string
	ProviderStatus string
	Plan           string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	// ResetUsage zeroes the monthly report counter and advances the reset
	// date to the next billing cycle boundary. Set on subscription.created,
	// invoice payment success, and initial activation.
	ResetUsage bool
	Reason     types.SubscriptionChangeReason
}

// ApplyState derives the internal state from a provider snapshot and persists
// it. The signup bonus and its latch are written in one conditional UPDATE so
// a crash mid-apply can never re-grant the bonus on redelivery.
func (s *Service) ApplyState(ctx context.Context, p ApplyStateParams) error {
	next := FromProviderStatus(p.ProviderStatus)

	var before, after *models.UserBilling
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockUser(ctx, tx, p.UserID, p.CustomerID)
		if err != nil {
			return err
		}
		cp := *row
		before = &cp

		grantBonus := ShouldGrantSignupBonus(row.Status, row.NextBillingDate != nil, row.SignupBonusApplied, next)
		if grantBonus {
			// single atomic write: credits and latch together, guarded by the
			// latch itself so concurrent activations grant at most once
			res := tx.WithContext(ctx).Model(&models.UserBilling{}).
				Where("user_id = ? AND signup_bonus_applied = ?", row.UserID, false).
				Updates(map[string]any{
					"credits_remaining":    gorm.Expr("credits_remaining + ?", s.cfg.Billing.SignupBonusCredits),
					"signup_bonus_applied": true,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to grant signup bonus: %w", res.Error)
			}
			if res.RowsAffected > 0 {
				row.CreditsRemaining += s.cfg.Billing.SignupBonusCredits
				row.SignupBonusApplied = true
			}
		}

		updates := map[string]any{
			"status": next,
		}
		row.Status = next
		if p.Plan != "" {
			updates["plan"] = p.Plan
			row.Plan = p.Plan
		}
		if p.CustomerID != "" {
			updates["stripe_customer_id"] = p.CustomerID
			row.StripeCustomerID = p.CustomerID
		}
		if p.SubscriptionID != "" {
			updates["stripe_subscription_id"] = p.SubscriptionID
			row.StripeSubscriptionID = p.SubscriptionID
		}
		if p.PeriodStart != nil {
			updates["current_period_start"] = *p.PeriodStart
			row.CurrentPeriodStart = p.PeriodStart
		}
		if p.PeriodEnd != nil {
			updates["current_period_end"] = *p.PeriodEnd
			updates["next_billing_date"] = *p.PeriodEnd
			row.CurrentPeriodEnd = p.PeriodEnd
			row.NextBillingDate = p.PeriodEnd
		}
		if p.ResetUsage || (grantBonus && next == types.SubscriptionStatusActive) {
			reset := NextMonthlyReset(time.Now())
			updates["monthly_reports_used"] = 0
			updates["monthly_reset_date"] = reset
			row.MonthlyReportsUsed = 0
			row.MonthlyResetDate = &reset
		}

		if err := tx.WithContext(ctx).Model(&models.UserBilling{}).
			Where("user_id = ?", row.UserID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update user billing state: %w", err)
		}
		after = row
		return nil
	})
	if err != nil {
		return err
	}

	s.saveStateLog(ctx, p.ProviderEventID, p.Reason, before, after)
	return nil
}

// HandleDeleted applies subscription.deleted: the user becomes canceled but
// keeps credits and access through the already-paid period end. The
// cancellation notice is best-effort.
func (s *Service) HandleDeleted(ctx context.Context, p ApplyStateParams) error {
	var before, after *models.UserBilling
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.lockUser(ctx, tx, p.UserID, p.CustomerID)
		if err != nil {
			return err
		}
		cp := *row
		before = &cp

		updates := map[string]any{"status": types.SubscriptionStatusCanceled}
		row.Status = types.SubscriptionStatusCanceled
		// credits_remaining deliberately untouched; access runs to period end
		if p.PeriodEnd != nil {
			updates["current_period_end"] = *p.PeriodEnd
			row.CurrentPeriodEnd = p.PeriodEnd
		}
		if err := tx.WithContext(ctx).Model(&models.UserBilling{}).
			Where("user_id = ?", row.UserID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to mark subscription canceled: %w", err)
		}
		after = row
		return nil
	})
	if err != nil {
		return err
	}

	s.saveStateLog(ctx, p.ProviderEventID, types.SubscriptionChangeReasonDeleted, before, after)

	accessEnd := time.Now()
	if after.CurrentPeriodEnd != nil {
		accessEnd = *after.CurrentPeriodEnd
	}
	email, plan, userID := after.Email, after.Plan, after.UserID
	s.notifyAsync(ctx, userID, "cancellation notice", func(ctx context.Context) error {
		return s.mail.SendCancellationNotice(ctx, email, plan, accessEnd)
	})
	return nil
}

// HandleInvoicePaid applies invoice.payment_succeeded: the subscription is
// active, billing dates advance, and the monthly usage counter resets. Period
// dates are taken from the payload when present, otherwise retrieved from the
// provider under the call timeout.
func (s *Service) HandleInvoicePaid(ctx context.Context, p ApplyStateParams) error {
	if p.PeriodEnd == nil && p.SubscriptionID != "" {
		sub, err := s.stripe.GetSubscription(ctx, p.SubscriptionID)
		if err != nil {
			return err
		}
		p.ProviderStatus = string(sub.Status)
		if len(sub.Items.Data) > 0 {
			item := sub.Items.Data[0]
			start := time.Unix(item.CurrentPeriodStart, 0)
			end := time.Unix(item.CurrentPeriodEnd, 0)
			p.PeriodStart, p.PeriodEnd = &start, &end
			if item.Price != nil {
				p.Plan = item.Price.LookupKey
			}
		}
	}
	if p.ProviderStatus == "" {
		p.ProviderStatus = "active"
	}
	p.ResetUsage = true
	p.Reason = types.SubscriptionChangeReasonInvoicePaid
	return s.ApplyState(ctx, p)
}

// HandleInvoiceFailed applies invoice.payment_failed: the user goes past_due
// and receives a dunning notice with a payment-update link. The notice runs
// off the request path; its failure never fails the webhook.
func (s *Service) HandleInvoiceFailed(ctx context.Context, p ApplyStateParams) error {
	p.ProviderStatus = "past_due"
	p.Reason = types.SubscriptionChangeReasonInvoiceFailed
	if err := s.ApplyState(ctx, p); err != nil {
		return err
	}

	customerID := p.CustomerID
	s.notifyAsync(ctx, "", "dunning notice", func(ctx context.Context) error {
		row, err := s.GetByCustomerID(ctx, customerID)
		if err != nil {
			return err
		}
		portalURL, err := s.stripe.CreateBillingPortalURL(ctx, customerID)
		if err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("billing portal link failed", "customer_id", customerID, "error", err)
			portalURL = ""
		}
		return s.mail.SendDunningNotice(ctx, row.Email, row.Plan, portalURL)
	})
	return nil
}

// GetByCustomerID loads the billing slice for a provider customer.
func (s *Service) GetByCustomerID(ctx context.Context, customerID string) (*models.UserBilling, error) {
	var row models.UserBilling
	err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByUserID loads the billing slice for an internal user.
func (s *Service) GetByUserID(ctx context.Context, userID string) (*models.UserBilling, error) {
	var row models.UserBilling
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// lockUser resolves the billing row by user id or provider customer id,
// creating it when checkout metadata identifies a user we have not billed
// before. The row lock serializes racing deliveries for the same user.
func (s *Service) lockUser(ctx context.Context, tx *gorm.DB, userID, customerID string) (*models.UserBilling, error) {
	var row models.UserBilling
	q := tx.WithContext(ctx).Clauses(lockForUpdate())
	var err error
	switch {
	case userID != "":
		err = q.Where("user_id = ?", userID).First(&row).Error
	case customerID != "":
		err = q.Where("stripe_customer_id = ?", customerID).First(&row).Error
	default:
		return nil, ErrUserNotFound
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if userID == "" {
			return nil, ErrUserNotFound
		}
		row = models.UserBilling{
			UserID:           userID,
			StripeCustomerID: customerID,
			Status:           types.SubscriptionStatusTrial,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// racing delivery created it first; lock that row instead
				if err := tx.WithContext(ctx).Clauses(lockForUpdate()).
					Where("user_id = ?", userID).First(&row).Error; err != nil {
					return nil, fmt.Errorf("failed to reload user billing row: %w", err)
				}
				return &row, nil
			}
			return nil, fmt.Errorf("failed to create user billing row: %w", err)
		}
		return &row, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user billing row: %w", err)
	}
	return &row, nil
}

func lockForUpdate() clause.Locking { return clause.Locking{Strength: "UPDATE"} }

// notifyAsync delivers a notice off the webhook request path so a slow mail
// exchange cannot push the response past the provider's redelivery timeout.
// The request context's values survive, its cancelation does not.
func (s *Service) notifyAsync(ctx context.Context, userID, what string, send func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := send(ctx); err != nil {
			logctx.FromCtx(ctx, s.log).Errorw(what+" failed", "user_id", userID, "error", err)
		}
	}()
}

// saveStateLog writes the audit row asynchronously; errors are logged, never returned.
func (s *Service) saveStateLog(ctx context.Context, eventID string, reason types.SubscriptionChangeReason, before, after *models.UserBilling) {
	go func() {
		if after == nil {
			return
		}
		log := &models.BillingStateLog{
			ID:              tool.GenerateUUIDV7(),
			UserID:          after.UserID,
			ProviderEventID: eventID,
			Reason:          reason,
			Before:          datatypes.NewJSONType(before),
			After:           datatypes.NewJSONType(after),
			Extra:           datatypes.JSONMap{},
		}
		if err := s.db.Save(log).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save billing state log: %v", err)
		}
	}()
}
