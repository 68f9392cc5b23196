package models

import (
	"time"

	"github.com/drydocs/billing/pkg/types"
)

// UserBilling is the billing-owned slice of the user record. No component
// outside the billing pipeline mutates these fields.
type UserBilling struct {
	UserID string                   `gorm:"column:user_id;type:varchar(64);primary_key" json:"user_id"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;default:'trial'" json:"status"`
	Plan   string                   `gorm:"column:plan;type:varchar(64)" json:"plan"`

	StripeCustomerID     string `gorm:"column:stripe_customer_id;type:varchar(128);index" json:"stripe_customer_id"`
	StripeSubscriptionID string `gorm:"column:stripe_subscription_id;type:varchar(128);index" json:"stripe_subscription_id"`

	CurrentPeriodStart *time.Time `gorm:"column:current_period_start;default:null" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	NextBillingDate    *time.Time `gorm:"column:next_billing_date;default:null" json:"next_billing_date"`

	MonthlyReportsUsed int        `gorm:"column:monthly_reports_used;not null;default:0" json:"monthly_reports_used"`
	MonthlyResetDate   *time.Time `gorm:"column:monthly_reset_date;default:null" json:"monthly_reset_date"`
	CreditsRemaining   int        `gorm:"column:credits_remaining;not null;default:0" json:"credits_remaining"`

	// SignupBonusApplied is a one-way latch: once true it is never reset, so
	// the new-subscriber bonus is granted at most once regardless of how many
	// times the subscription passes through active.
	SignupBonusApplied bool `gorm:"column:signup_bonus_applied;not null;default:false" json:"signup_bonus_applied"`

	Email string `gorm:"column:email;type:varchar(255)" json:"email"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserBilling) TableName() string { return "user_billing" }

// HasAccess reports whether the user may generate reports right now. A
// canceled subscription keeps access through the already-paid period end.
func (u *UserBilling) HasAccess(at time.Time) bool {
	if u == nil {
		return false
	}
	if u.Status.Valid() {
		return true
	}
	if u.Status == types.SubscriptionStatusCanceled && u.CurrentPeriodEnd != nil {
		return u.CurrentPeriodEnd.After(at)
	}
	return false
}
