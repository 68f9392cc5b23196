package dispatch

import (
	"encoding/json"
	"fmt"
	"time"
)

// Lean payload structs decoded from event.Data.Raw. The SDK's full structs
// shift between API versions (period fields moved from the subscription to
// its items); decoding only the fields we read keeps the pipeline stable
// across payload vintages.

type subscriptionPayload struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				LookupKey string `json:"lookup_key"`
				Nickname  string `json:"nickname"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// periodBounds prefers the top-level period fields and falls back to the
// first subscription item when the payload is from a newer API version.
func (p *subscriptionPayload) periodBounds() (*time.Time, *time.Time) {
	start, end := p.CurrentPeriodStart, p.CurrentPeriodEnd
	if end == 0 && len(p.Items.Data) > 0 {
		start, end = p.Items.Data[0].CurrentPeriodStart, p.Items.Data[0].CurrentPeriodEnd
	}
	var ps, pe *time.Time
	if start > 0 {
		t := time.Unix(start, 0)
		ps = &t
	}
	if end > 0 {
		t := time.Unix(end, 0)
		pe = &t
	}
	return ps, pe
}

func (p *subscriptionPayload) plan() string {
	if len(p.Items.Data) == 0 {
		return ""
	}
	if k := p.Items.Data[0].Price.LookupKey; k != "" {
		return k
	}
	return p.Items.Data[0].Price.Nickname
}

type invoicePayload struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p *invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	return p.Parent.SubscriptionDetails.Subscription
}

type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	PaymentIntent     string            `json:"payment_intent"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

func (p *checkoutSessionPayload) userID() string {
	if uid := p.Metadata["user_id"]; uid != "" {
		return uid
	}
	return p.ClientReferenceID
}

type paymentIntentPayload struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

func decodePayload(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedPayload, err)
	}
	return nil
}
