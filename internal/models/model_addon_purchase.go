package models

import "time"

type AddonPurchaseStatus string

const (
	AddonPurchaseStatusPending   AddonPurchaseStatus = "pending"
	AddonPurchaseStatusCompleted AddonPurchaseStatus = "completed"
)

// AddonPurchase records a one-time credit-pack purchase. The unique indexes on
// the provider transaction identifiers are the concurrency-control primitive:
// among concurrent or duplicate apply attempts for the same real-world
// purchase, exactly one insert succeeds. The row and the matching credit
// increment are written in one transaction, so a completed row always implies
// the credits were granted exactly once.
type AddonPurchase struct {
	ID          string  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID      string  `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	AddonKey    string  `gorm:"column:addon_key;type:varchar(64);not null" json:"addon_key"`
	ReportLimit int     `gorm:"column:report_limit;not null" json:"report_limit"`
	Amount      int64   `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency    string  `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	// Two independent provider paths can report the same purchase: checkout
	// completion carries the session id, the backup path the payment intent id.
	StripeSessionID       *string `gorm:"column:stripe_session_id;type:varchar(128);uniqueIndex" json:"stripe_session_id"`
	StripePaymentIntentID *string `gorm:"column:stripe_payment_intent_id;type:varchar(128);uniqueIndex" json:"stripe_payment_intent_id"`

	Status      AddonPurchaseStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	PurchasedAt time.Time           `gorm:"column:purchased_at;not null" json:"purchased_at"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (AddonPurchase) TableName() string { return "addon_purchase" }
