package types

import "time"

// SubscriptionStatus is the internal subscription state derived from
// provider-reported subscription objects.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial    SubscriptionStatus = "trial"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// Valid reports whether the status grants access to paid features.
// CANCELED users keep access until their paid period end, which is
// checked separately against the billing dates.
func (s SubscriptionStatus) Valid() bool {
	return s == SubscriptionStatusTrial || s == SubscriptionStatusActive
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCreated       SubscriptionChangeReason = "created"
	SubscriptionChangeReasonUpdated       SubscriptionChangeReason = "updated"
	SubscriptionChangeReasonDeleted       SubscriptionChangeReason = "deleted"
	SubscriptionChangeReasonInvoicePaid   SubscriptionChangeReason = "invoice_paid"
	SubscriptionChangeReasonInvoiceFailed SubscriptionChangeReason = "invoice_failed"
	SubscriptionChangeReasonCheckout      SubscriptionChangeReason = "checkout"
)

// SubscriptionInfo is the user-facing view of the billing state.
type SubscriptionInfo struct {
	Status             SubscriptionStatus `json:"status"`
	Plan               string             `json:"plan"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end"`
	NextBillingDate    *time.Time         `json:"next_billing_date"`
	MonthlyReportsUsed int                `json:"monthly_reports_used"`
	CreditsRemaining   int                `json:"credits_remaining"`
}
