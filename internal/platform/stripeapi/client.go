package stripeapi

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/subscription"
	"go.uber.org/zap"

	cfgpkg "github.com/drydocs/billing/pkg/config"
)

// Client wraps the provider SDK calls the webhook handlers block on. Every
// call carries a context bounded by the configured timeout; the provider's
// webhook response budget is single-digit seconds, and a lookup that runs
// past it just turns the delivery into a redelivery.
type Client struct {
	cfg *cfgpkg.Config
	log *zap.SugaredLogger
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.Stripe.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is not configured")
	}
	stripe.Key = cfg.Stripe.SecretKey
	return &Client{cfg: cfg, log: log}, nil
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.Stripe.CallTimeout())
}

// GetSubscription retrieves the full subscription object, used when a webhook
// payload carries only the subscription id (e.g. invoice events) and the
// handler needs period dates and plan interval.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription %s: %w", subscriptionID, err)
	}
	return sub, nil
}

// ListSucceededPaymentIntents returns succeeded payment intents for the
// customer created within the window, newest first. Used by the
// reconciliation job to find purchases whose webhook delivery was lost.
func (c *Client) ListSucceededPaymentIntents(ctx context.Context, customerID string, window time.Duration) ([]*stripe.PaymentIntent, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	params := &stripe.PaymentIntentListParams{
		Customer: stripe.String(customerID),
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: time.Now().Add(-window).Unix(),
		},
	}
	params.Context = ctx

	var out []*stripe.PaymentIntent
	iter := paymentintent.List(params)
	for iter.Next() {
		pi := iter.PaymentIntent()
		if pi.Status == stripe.PaymentIntentStatusSucceeded {
			out = append(out, pi)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payment intents for %s: %w", customerID, err)
	}
	return out, nil
}

// CreateBillingPortalURL creates a short-lived billing portal session so a
// dunning email can link the user straight to payment-method update.
func (c *Client) CreateBillingPortalURL(ctx context.Context, customerID string) (string, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	params := &stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.cfg.Stripe.PortalReturnURL),
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create billing portal session: %w", err)
	}
	return sess.URL, nil
}
