package dispatch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/drydocs/billing/internal/app/service/addon"
	"github.com/drydocs/billing/internal/app/service/ledger"
	"github.com/drydocs/billing/internal/models"
	"github.com/drydocs/billing/pkg/types"
)

type fakeLedger struct {
	completed        map[string]bool
	statuses         []models.BillingEventStatus
	failOnCompletion bool
}

func (f *fakeLedger) IsAlreadyCompleted(_ context.Context, providerEventID string) (bool, error) {
	return f.completed[providerEventID], nil
}

func (f *fakeLedger) UpsertStatus(_ context.Context, p ledger.UpsertParams) error {
	if f.failOnCompletion && p.Status == models.BillingEventStatusCompleted {
		return errors.New("ledger write failed")
	}
	f.statuses = append(f.statuses, p.Status)
	if p.Status == models.BillingEventStatusCompleted {
		f.completed[p.ProviderEventID] = true
	}
	return nil
}

func (f *fakeLedger) Get(_ context.Context, _ string) (*models.BillingEvent, error) {
	return nil, errors.New("not found")
}

type fakeGranter struct {
	grants []addon.Grant
}

func (f *fakeGranter) Apply(_ context.Context, g addon.Grant) (bool, error) {
	f.grants = append(f.grants, g)
	return true, nil
}

func eventJSON(id, typ string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":%q,"type":%q,"data":{"object":{}}}`,
		id, stripe.APIVersion, typ))
}

func signatureHeader(secret string, payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestProcessWebhook_SecondDeliveryIsDuplicate(t *testing.T) {
	d := newTestDispatcher()
	fl := &fakeLedger{completed: map[string]bool{}}
	d.ledger = fl

	calls := 0
	d.routes["customer.subscription.updated"] = func(_ context.Context, _ *stripe.Event) (string, error) {
		calls++
		return "u1", nil
	}

	payload := eventJSON("evt_1", "customer.subscription.updated")
	sig := signatureHeader("whsec_test", payload, time.Now())

	res, err := d.ProcessWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, types.EventOutcomeCompleted, res.Outcome)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []models.BillingEventStatus{
		models.BillingEventStatusProcessing,
		models.BillingEventStatusCompleted,
	}, fl.statuses)

	res, err = d.ProcessWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, types.EventOutcomeDuplicate, res.Outcome)
	assert.Equal(t, 1, calls, "handler must not run again for a completed event")
	assert.Len(t, fl.statuses, 2, "no further ledger writes on a duplicate")
}

func TestProcessWebhook_UnknownTypeAcknowledged(t *testing.T) {
	d := newTestDispatcher()
	fl := &fakeLedger{completed: map[string]bool{}}
	d.ledger = fl

	payload := eventJSON("evt_2", "invoice.finalized")
	sig := signatureHeader("whsec_test", payload, time.Now())

	res, err := d.ProcessWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, types.EventOutcomeSkipped, res.Outcome)
	assert.Equal(t, []models.BillingEventStatus{models.BillingEventStatusSkipped}, fl.statuses)
}

func TestProcessWebhook_TransientErrorRequestsRedelivery(t *testing.T) {
	d := newTestDispatcher()
	fl := &fakeLedger{completed: map[string]bool{}}
	d.ledger = fl

	d.routes["customer.subscription.updated"] = func(_ context.Context, _ *stripe.Event) (string, error) {
		return "", errors.New("connection refused")
	}

	payload := eventJSON("evt_3", "customer.subscription.updated")
	sig := signatureHeader("whsec_test", payload, time.Now())

	res, err := d.ProcessWebhook(context.Background(), payload, sig)
	require.Error(t, err)
	assert.Equal(t, types.EventOutcomeFailed, res.Outcome)
	assert.Equal(t, models.BillingEventStatusFailed, fl.statuses[len(fl.statuses)-1])
}

func TestProcessWebhook_PermanentErrorAcknowledged(t *testing.T) {
	d := newTestDispatcher()
	fl := &fakeLedger{completed: map[string]bool{}}
	d.ledger = fl

	d.routes["customer.subscription.updated"] = func(_ context.Context, _ *stripe.Event) (string, error) {
		return "", fmt.Errorf("%w: nothing here", ErrIgnored)
	}

	payload := eventJSON("evt_4", "customer.subscription.updated")
	sig := signatureHeader("whsec_test", payload, time.Now())

	res, err := d.ProcessWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, types.EventOutcomeSkipped, res.Outcome)
	assert.Equal(t, models.BillingEventStatusSkipped, fl.statuses[len(fl.statuses)-1])
}

func TestProcessWebhook_CompletionWriteFailureRequestsRedelivery(t *testing.T) {
	d := newTestDispatcher()
	fl := &fakeLedger{completed: map[string]bool{}, failOnCompletion: true}
	d.ledger = fl

	d.routes["customer.subscription.updated"] = func(_ context.Context, _ *stripe.Event) (string, error) {
		return "u1", nil
	}

	payload := eventJSON("evt_5", "customer.subscription.updated")
	sig := signatureHeader("whsec_test", payload, time.Now())

	res, err := d.ProcessWebhook(context.Background(), payload, sig)
	require.Error(t, err)
	assert.Equal(t, types.EventOutcomeFailed, res.Outcome)
}

// Both purchase trigger paths must claim the same provider transaction id, so
// that whichever arrives second hits the unique index and grants nothing.
func TestAddonTriggerPathsShareTransactionKey(t *testing.T) {
	d := newTestDispatcher()
	fg := &fakeGranter{}
	d.addonSvc = fg

	sessRaw := `{
		"id": "cs_1", "mode": "payment", "payment_intent": "pi_1",
		"payment_status": "paid", "amount_total": 2900, "currency": "usd",
		"metadata": {"user_id": "u1", "addon_key": "report_pack_10"}
	}`
	ev := &stripe.Event{ID: "evt_cs", Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: json.RawMessage(sessRaw)}}
	userID, err := d.handleCheckoutCompleted(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	piRaw := `{
		"id": "pi_1", "amount": 2900, "currency": "usd",
		"metadata": {"user_id": "u1", "addon_key": "report_pack_10"}
	}`
	ev2 := &stripe.Event{ID: "evt_pi", Type: "payment_intent.succeeded",
		Data: &stripe.EventData{Raw: json.RawMessage(piRaw)}}
	_, err = d.handlePaymentIntentSucceeded(context.Background(), ev2)
	require.NoError(t, err)

	require.Len(t, fg.grants, 2)
	assert.Equal(t, "cs_1", fg.grants[0].SessionID)
	assert.Equal(t, "pi_1", fg.grants[0].PaymentIntentID)
	assert.Equal(t, "pi_1", fg.grants[1].PaymentIntentID)
	assert.Equal(t, fg.grants[0].PaymentIntentID, fg.grants[1].PaymentIntentID)
}
