package types

// AddonItem describes a purchasable one-time credit pack. The catalog is
// loaded from configuration; the provider reports purchases by AddonKey
// via checkout metadata.
type AddonItem struct {
	Key         string `json:"key" mapstructure:"key"`
	ReportLimit int    `json:"report_limit" mapstructure:"report_limit"`
	// ProviderPriceID is the provider-side price identifier for the pack.
	ProviderPriceID string `json:"provider_price_id" mapstructure:"provider_price_id"`
}

type EventOutcome string

const (
	EventOutcomeCompleted EventOutcome = "completed"
	EventOutcomeFailed    EventOutcome = "failed"
	EventOutcomeSkipped   EventOutcome = "skipped"
	EventOutcomeDuplicate EventOutcome = "duplicate"
)
