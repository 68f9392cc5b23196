package models

import (
	"time"

	"gorm.io/datatypes"
)

type BillingEventStatus string

const (
	BillingEventStatusPending    BillingEventStatus = "pending"
	BillingEventStatusProcessing BillingEventStatus = "processing"
	BillingEventStatusCompleted  BillingEventStatus = "completed"
	BillingEventStatusFailed     BillingEventStatus = "failed"
	BillingEventStatusSkipped    BillingEventStatus = "skipped"
)

// terminal statuses never regress; see BillingEvent.CanTransitionTo.
var billingEventStatusRank = map[BillingEventStatus]int{
	BillingEventStatusPending:    0,
	BillingEventStatusProcessing: 1,
	BillingEventStatusFailed:     2,
	BillingEventStatusSkipped:    2,
	BillingEventStatusCompleted:  3,
}

// BillingEvent is the idempotency ledger row: one row per provider event id,
// created on first sighting, advanced by the processing pipeline, never deleted.
// At most one row reaches completed per ProviderEventID; a completed row is the
// source of truth that a redelivery is a no-op.
type BillingEvent struct {
	ID              string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ProviderEventID string             `gorm:"column:provider_event_id;type:varchar(128);not null;uniqueIndex" json:"provider_event_id"`
	EventType       string             `gorm:"column:event_type;type:varchar(128);not null;index" json:"event_type"`
	RawPayload      datatypes.JSON     `gorm:"column:raw_payload;type:jsonb" json:"raw_payload"`
	Status          BillingEventStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	UserID          *string            `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	ProcessedAt     *time.Time         `gorm:"column:processed_at;default:null" json:"processed_at"`
	RetryCount      int                `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	ErrorMessage    *string            `gorm:"column:error_message;type:text" json:"error_message"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (BillingEvent) TableName() string { return "billing_event" }

// CanTransitionTo reports whether advancing to next is a legal lifecycle move.
// A failed row may be retried (back through processing); a completed row is final.
func (e *BillingEvent) CanTransitionTo(next BillingEventStatus) bool {
	if e == nil {
		return true
	}
	if e.Status == BillingEventStatusCompleted {
		return false
	}
	if e.Status == BillingEventStatusFailed || e.Status == BillingEventStatusSkipped {
		// retries re-enter processing and may then complete or fail again
		return next != BillingEventStatusPending
	}
	return billingEventStatusRank[next] >= billingEventStatusRank[e.Status]
}
