package dispatch

import (
	"errors"

	"github.com/drydocs/billing/internal/app/service/addon"
	"github.com/drydocs/billing/internal/app/service/subscription"
)

var (
	// ErrInvalidSignature rejects payloads that fail HMAC verification. They
	// never occupy ledger space and the provider gets a 400 (no retry).
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrIgnored marks a verified event that carries nothing for us, e.g. a
	// payment intent without addon metadata. Acknowledged, not retried.
	ErrIgnored = errors.New("event carries no actionable data")

	// errMalformedPayload marks an event whose data object failed to decode.
	// Redelivery sends the same bytes, so retrying is pointless.
	errMalformedPayload = errors.New("malformed event payload")
)

// isPermanent reports whether err can never be fixed by a provider
// redelivery. Permanent failures are acknowledged with 200 and the ledger row
// marked skipped; everything else is transient and returns 500 so the
// provider retries with backoff.
func isPermanent(err error) bool {
	return errors.Is(err, ErrIgnored) ||
		errors.Is(err, errMalformedPayload) ||
		errors.Is(err, addon.ErrInvalidGrant) ||
		errors.Is(err, subscription.ErrUserNotFound)
}
