package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/drydocs/billing/pkg/types"
)

// BillingStateLog is an append-only audit trail of user billing-state changes,
// one row per applied transition with before/after snapshots.
type BillingStateLog struct {
	ID              string                                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID          string                                `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	ProviderEventID string                                `gorm:"column:provider_event_id;type:varchar(128)" json:"provider_event_id"`
	Reason          types.SubscriptionChangeReason        `gorm:"column:reason;type:varchar(32);not null" json:"reason"`
	Before          datatypes.JSONType[*UserBilling]      `gorm:"column:before;type:jsonb" json:"before"`
	After           datatypes.JSONType[*UserBilling]      `gorm:"column:after;type:jsonb" json:"after"`
	Extra           datatypes.JSONMap                     `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt       time.Time                             `json:"created_at"`
}

func (BillingStateLog) TableName() string { return "billing_state_log" }
