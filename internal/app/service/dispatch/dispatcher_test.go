package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drydocs/billing/pkg/config"
)

func newTestDispatcher() *Dispatcher {
	cfg := &config.Config{}
	cfg.Stripe.WebhookSecret = "whsec_test"
	cfg.Stripe.SignatureToleranceSeconds = 300
	return NewDispatcher(cfg, zap.NewNop().Sugar(), nil, nil, nil, nil)
}

func TestNewDispatcher_RoutesCoverHandledTypes(t *testing.T) {
	d := newTestDispatcher()

	want := []string{
		"customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"invoice.payment_succeeded",
		"invoice.payment_failed",
		"checkout.session.completed",
		"payment_intent.succeeded",
	}
	for _, typ := range want {
		assert.Contains(t, d.routes, typ)
	}
	assert.Len(t, d.routes, len(want))
}

func TestProcessWebhook_RejectsBadSignature(t *testing.T) {
	d := newTestDispatcher()

	res, err := d.ProcessWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Nil(t, res)
}

func TestProcessWebhook_RejectsMissingSignatureHeader(t *testing.T) {
	d := newTestDispatcher()

	_, err := d.ProcessWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
