package addon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/drydocs/billing/internal/app/service/subscription"
	"github.com/drydocs/billing/internal/models"
	"github.com/drydocs/billing/internal/platform/stripeapi"
	"github.com/drydocs/billing/pkg/config"
	"github.com/drydocs/billing/pkg/logctx"
	"github.com/drydocs/billing/pkg/tool"
)

// ErrInvalidGrant marks a permanently malformed purchase report: missing ids,
// unknown addon key, or a non-positive credit amount. Redelivery cannot fix
// it, so callers acknowledge and drop it.
var ErrInvalidGrant = errors.New("invalid addon grant")

// Service is the credit ledger. Two independent provider paths (checkout
// completion and payment-intent success) can report the same real-world
// purchase; either may arrive first, or both may arrive. The AddonPurchase
// insert is the lock that makes Apply exactly-once per provider transaction.
type Service struct {
	db     *gorm.DB
	cfg    *config.Config
	log    *zap.SugaredLogger
	stripe *stripeapi.Client
	subSvc *subscription.Service
}

func NewService(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger, stripe *stripeapi.Client, subSvc *subscription.Service) *Service {
	return &Service{db: db, cfg: cfg, log: log, stripe: stripe, subSvc: subSvc}
}

// Grant is one provider-reported addon purchase.
type Grant struct {
	UserID   string
	AddonKey string
	// Credits defaults to the catalog's report limit when zero.
	Credits  int
	Amount   int64
	Currency string
	// SessionID and PaymentIntentID are the provider transaction identifiers;
	// at least one must be set. When both are known the payment intent id is
	// the canonical key and the session id rides along, so whichever path
	// reports first claims the purchase for both.
	SessionID       string
	PaymentIntentID string
}

// Apply grants the purchase's credits exactly once. It returns true when this
// call performed the grant, false when the purchase was already recorded.
// The purchase insert and the credit increment run in one transaction: either
// both land or neither does, so a crash between them cannot double-credit on
// redelivery.
func (s *Service) Apply(ctx context.Context, g Grant) (bool, error) {
	item := s.cfg.GetAddonItemByKey(g.AddonKey)
	if item == nil {
		return false, fmt.Errorf("%w: unknown addon key %q", ErrInvalidGrant, g.AddonKey)
	}
	if g.Credits == 0 {
		g.Credits = item.ReportLimit
	}
	if g.UserID == "" || g.Credits <= 0 {
		return false, fmt.Errorf("%w: user=%q credits=%d", ErrInvalidGrant, g.UserID, g.Credits)
	}
	if g.SessionID == "" && g.PaymentIntentID == "" {
		return false, fmt.Errorf("%w: no provider transaction id", ErrInvalidGrant)
	}

	purchase := &models.AddonPurchase{
		ID:          tool.GenerateUUIDV7(),
		UserID:      g.UserID,
		AddonKey:    g.AddonKey,
		ReportLimit: g.Credits,
		Amount:      g.Amount,
		Currency:    g.Currency,
		Status:      models.AddonPurchaseStatusCompleted,
		PurchasedAt: time.Now(),
	}
	if g.SessionID != "" {
		purchase.StripeSessionID = lo.ToPtr(g.SessionID)
	}
	if g.PaymentIntentID != "" {
		purchase.StripePaymentIntentID = lo.ToPtr(g.PaymentIntentID)
	}

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(purchase).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// another delivery or the other trigger path already claimed
				// this transaction id; credits were granted with that insert
				logctx.FromCtx(ctx, s.log).Infow("addon purchase already recorded",
					"session_id", g.SessionID, "payment_intent_id", g.PaymentIntentID)
				return nil
			}
			return fmt.Errorf("failed to record addon purchase: %w", err)
		}

		res := tx.Model(&models.UserBilling{}).
			Where("user_id = ?", g.UserID).
			UpdateColumn("credits_remaining", gorm.Expr("credits_remaining + ?", g.Credits))
		if res.Error != nil {
			return fmt.Errorf("failed to increment credits: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// purchase before any subscription event: create the billing row
			row := &models.UserBilling{UserID: g.UserID, CreditsRemaining: g.Credits}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("failed to create user billing row: %w", err)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		logctx.FromCtx(ctx, s.log).Infow("addon credits applied",
			"user_id", g.UserID, "addon_key", g.AddonKey, "credits", g.Credits)
	}
	return applied, nil
}

// ReconcilePending sweeps the provider for recently succeeded addon payment
// intents for the user and replays them through Apply. Apply is idempotent,
// so replaying an already-recorded purchase is a no-op. Returns how many
// missed purchases were newly applied.
func (s *Service) ReconcilePending(ctx context.Context, userID string) (int, error) {
	row, err := s.subSvc.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if row.StripeCustomerID == "" {
		return 0, nil
	}

	window := time.Duration(s.cfg.Billing.ReconcileWindowHours) * time.Hour
	intents, err := s.stripe.ListSucceededPaymentIntents(ctx, row.StripeCustomerID, window)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, pi := range intents {
		key := pi.Metadata["addon_key"]
		if key == "" {
			continue
		}
		grant := Grant{
			UserID:          userID,
			AddonKey:        key,
			Credits:         parseCredits(pi.Metadata["report_limit"]),
			Amount:          pi.Amount,
			Currency:        string(pi.Currency),
			PaymentIntentID: pi.ID,
		}
		applied, err := s.Apply(ctx, grant)
		if err != nil {
			if errors.Is(err, ErrInvalidGrant) {
				logctx.FromCtx(ctx, s.log).Warnw("skipping malformed addon payment intent",
					"payment_intent_id", pi.ID, "error", err)
				continue
			}
			return processed, err
		}
		if applied {
			processed++
		}
	}
	return processed, nil
}

func parseCredits(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
