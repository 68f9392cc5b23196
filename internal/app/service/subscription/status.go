package subscription

import (
	"time"

	"github.com/drydocs/billing/pkg/types"
)

// FromProviderStatus maps the provider's reported subscription status string
// to the internal state. Pure; unrecognized statuses map to canceled so an
// unknown provider state never grants access.
func FromProviderStatus(providerStatus string) types.SubscriptionStatus {
	switch providerStatus {
	case "active":
		return types.SubscriptionStatusActive
	case "trialing":
		return types.SubscriptionStatusTrial
	case "past_due", "unpaid":
		return types.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return types.SubscriptionStatusCanceled
	case "incomplete", "paused":
		return types.SubscriptionStatusExpired
	default:
		return types.SubscriptionStatusCanceled
	}
}

// NextMonthlyReset returns the billing cycle boundary: midnight UTC on the
// first day of the month following now.
func NextMonthlyReset(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// ShouldGrantSignupBonus reports whether entering next counts as the user's
// first-ever activation. The persisted latch is checked again inside the
// conditional UPDATE, so this is a fast-path decision, not the guarantee.
func ShouldGrantSignupBonus(prev types.SubscriptionStatus, hadBillingDate bool, bonusApplied bool, next types.SubscriptionStatus) bool {
	if bonusApplied || next != types.SubscriptionStatusActive {
		return false
	}
	return prev != types.SubscriptionStatusActive || !hadBillingDate
}
