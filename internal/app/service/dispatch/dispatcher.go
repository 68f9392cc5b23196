package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/drydocs/billing/internal/app/service/addon"
	"github.com/drydocs/billing/internal/app/service/ledger"
	"github.com/drydocs/billing/internal/app/service/subscription"
	"github.com/drydocs/billing/internal/models"
	"github.com/drydocs/billing/internal/platform/stripeapi"
	"github.com/drydocs/billing/pkg/config"
	"github.com/drydocs/billing/pkg/logctx"
	"github.com/drydocs/billing/pkg/metrics"
	"github.com/drydocs/billing/pkg/types"
)

// handlerFunc applies one verified event. The returned user id, when known,
// is recorded on the ledger row.
type handlerFunc func(ctx context.Context, event *stripe.Event) (string, error)

// Result describes how a delivery was resolved, for the HTTP layer and metrics.
type Result struct {
	EventID   string
	EventType string
	Outcome   types.EventOutcome
}

// eventLedger and creditGranter are the store seams the pipeline writes
// through; production wiring passes the concrete services.
type eventLedger interface {
	IsAlreadyCompleted(ctx context.Context, providerEventID string) (bool, error)
	UpsertStatus(ctx context.Context, p ledger.UpsertParams) error
	Get(ctx context.Context, providerEventID string) (*models.BillingEvent, error)
}

type creditGranter interface {
	Apply(ctx context.Context, g addon.Grant) (bool, error)
}

// Dispatcher runs the webhook pipeline: signature verification, idempotency
// ledger gate, static type routing, ledger status advance. Each delivery is
// an independent request; the provider's redelivery-with-backoff is the only
// retry mechanism, so every path through here must be redelivery safe.
type Dispatcher struct {
	cfg      *config.Config
	Logger   *zap.SugaredLogger
	ledger   eventLedger
	subSvc   *subscription.Service
	addonSvc creditGranter
	stripe   *stripeapi.Client

	routes   map[string]handlerFunc
	eventCnt *prometheus.CounterVec
}

func NewDispatcher(cfg *config.Config, log *zap.SugaredLogger, led *ledger.Service, subSvc *subscription.Service, addonSvc *addon.Service, sc *stripeapi.Client) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		Logger:   log,
		ledger:   led,
		subSvc:   subSvc,
		addonSvc: addonSvc,
		stripe:   sc,
	}
	d.routes = map[string]handlerFunc{
		"customer.subscription.created": d.handleSubscriptionCreated,
		"customer.subscription.updated": d.handleSubscriptionUpdated,
		"customer.subscription.deleted": d.handleSubscriptionDeleted,
		"invoice.payment_succeeded":     d.handleInvoicePaid,
		"invoice.payment_failed":        d.handleInvoiceFailed,
		"checkout.session.completed":    d.handleCheckoutCompleted,
		"payment_intent.succeeded":      d.handlePaymentIntentSucceeded,
	}

	collector := metrics.NewMetric(metrics.MetricWebhookEvents, "billing")
	if err := prometheus.Register(collector); err == nil {
		d.eventCnt = collector.(*prometheus.CounterVec)
	} else {
		log.Warnw("webhook metric registration failed", "err", err)
	}
	return d
}

// ProcessWebhook handles one raw delivery. A nil error means the delivery is
// acknowledged (200); ErrInvalidSignature means reject without retry (400);
// any other error asks the provider to redeliver (500).
func (d *Dispatcher) ProcessWebhook(ctx context.Context, payload []byte, sigHeader string) (*Result, error) {
	event, err := webhook.ConstructEventWithTolerance(payload, sigHeader, d.cfg.Stripe.WebhookSecret, d.cfg.Stripe.SignatureTolerance())
	if err != nil {
		// unverified payloads never enter the ledger
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	log := logctx.FromCtx(ctx, d.Logger).With("event_id", event.ID, "event_type", string(event.Type))
	res := &Result{EventID: event.ID, EventType: string(event.Type)}

	done, err := d.ledger.IsAlreadyCompleted(ctx, event.ID)
	if err != nil {
		return res, err
	}
	if done {
		log.Infow("event skipped, already completed")
		res.Outcome = types.EventOutcomeDuplicate
		d.count(res)
		return res, nil
	}

	handler, known := d.routes[string(event.Type)]
	if !known {
		// an unhandled event type is not a failure
		log.Infow("unhandled event type, acknowledging")
		d.upsert(ctx, &event, payload, models.BillingEventStatusSkipped, "", nil)
		res.Outcome = types.EventOutcomeSkipped
		d.count(res)
		return res, nil
	}

	if err := d.upsert(ctx, &event, payload, models.BillingEventStatusProcessing, "", nil); err != nil {
		return res, err
	}

	userID, err := handler(ctx, &event)
	switch {
	case err == nil:
		// a lost completion write would strand the row in processing; ask for
		// redelivery so the row reaches completed
		if err = d.upsert(ctx, &event, payload, models.BillingEventStatusCompleted, userID, nil); err != nil {
			res.Outcome = types.EventOutcomeFailed
			break
		}
		res.Outcome = types.EventOutcomeCompleted
		log.Infow("event processed", "user_id", userID)
	case isPermanent(err):
		// malformed or inapplicable: acknowledge, never retried
		d.upsert(ctx, &event, payload, models.BillingEventStatusSkipped, userID, err)
		res.Outcome = types.EventOutcomeSkipped
		log.Warnw("event dropped", "error", err)
		err = nil
	default:
		d.upsert(ctx, &event, payload, models.BillingEventStatusFailed, userID, err)
		res.Outcome = types.EventOutcomeFailed
		log.Errorw("event failed, provider will redeliver", "error", err)
	}

	d.count(res)
	return res, err
}

// Replay re-runs a stored ledger row through its handler. Used by the admin
// replay endpoint for rows stuck in failed; the same idempotent path applies.
func (d *Dispatcher) Replay(ctx context.Context, providerEventID string) (*Result, error) {
	row, err := d.ledger.Get(ctx, providerEventID)
	if err != nil {
		return nil, err
	}

	var event stripe.Event
	if err := decodePayload(row.RawPayload, &event); err != nil {
		return nil, err
	}
	res := &Result{EventID: event.ID, EventType: string(event.Type)}

	if row.Status == models.BillingEventStatusCompleted {
		res.Outcome = types.EventOutcomeDuplicate
		return res, nil
	}
	handler, known := d.routes[string(event.Type)]
	if !known {
		res.Outcome = types.EventOutcomeSkipped
		return res, nil
	}

	d.upsert(ctx, &event, row.RawPayload, models.BillingEventStatusProcessing, "", nil)
	userID, err := handler(ctx, &event)
	if err != nil {
		status := models.BillingEventStatusFailed
		if isPermanent(err) {
			status = models.BillingEventStatusSkipped
		}
		d.upsert(ctx, &event, row.RawPayload, status, userID, err)
		res.Outcome = types.EventOutcomeFailed
		return res, err
	}
	if err := d.upsert(ctx, &event, row.RawPayload, models.BillingEventStatusCompleted, userID, nil); err != nil {
		res.Outcome = types.EventOutcomeFailed
		return res, err
	}
	res.Outcome = types.EventOutcomeCompleted
	return res, nil
}

func (d *Dispatcher) upsert(ctx context.Context, event *stripe.Event, payload []byte, status models.BillingEventStatus, userID string, cause error) error {
	err := d.ledger.UpsertStatus(ctx, ledger.UpsertParams{
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		RawPayload:      payload,
		Status:          status,
		UserID:          userID,
		Error:           cause,
	})
	if err != nil {
		logctx.FromCtx(ctx, d.Logger).Errorw("ledger upsert failed", "event_id", event.ID, "status", status, "error", err)
	}
	return err
}

func (d *Dispatcher) count(res *Result) {
	if d.eventCnt == nil {
		return
	}
	d.eventCnt.WithLabelValues(res.EventType, string(res.Outcome)).Inc()
}

func (d *Dispatcher) handleSubscriptionCreated(ctx context.Context, event *stripe.Event) (string, error) {
	return d.applySubscriptionEvent(ctx, event, true, types.SubscriptionChangeReasonCreated)
}

func (d *Dispatcher) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) (string, error) {
	return d.applySubscriptionEvent(ctx, event, false, types.SubscriptionChangeReasonUpdated)
}

func (d *Dispatcher) applySubscriptionEvent(ctx context.Context, event *stripe.Event, resetUsage bool, reason types.SubscriptionChangeReason) (string, error) {
	var sub subscriptionPayload
	if err := decodePayload(event.Data.Raw, &sub); err != nil {
		return "", err
	}
	start, end := sub.periodBounds()
	p := subscription.ApplyStateParams{
		ProviderEventID: event.ID,
		UserID:          sub.Metadata["user_id"],
		CustomerID:      sub.Customer,
		SubscriptionID:  sub.ID,
		ProviderStatus:  sub.Status,
		Plan:            sub.plan(),
		PeriodStart:     start,
		PeriodEnd:       end,
		ResetUsage:      resetUsage,
		Reason:          reason,
	}
	return p.UserID, d.subSvc.ApplyState(ctx, p)
}

func (d *Dispatcher) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) (string, error) {
	var sub subscriptionPayload
	if err := decodePayload(event.Data.Raw, &sub); err != nil {
		return "", err
	}
	_, end := sub.periodBounds()
	p := subscription.ApplyStateParams{
		ProviderEventID: event.ID,
		UserID:          sub.Metadata["user_id"],
		CustomerID:      sub.Customer,
		SubscriptionID:  sub.ID,
		PeriodEnd:       end,
	}
	return p.UserID, d.subSvc.HandleDeleted(ctx, p)
}

func (d *Dispatcher) handleInvoicePaid(ctx context.Context, event *stripe.Event) (string, error) {
	var inv invoicePayload
	if err := decodePayload(event.Data.Raw, &inv); err != nil {
		return "", err
	}
	p := subscription.ApplyStateParams{
		ProviderEventID: event.ID,
		CustomerID:      inv.Customer,
		SubscriptionID:  inv.subscriptionID(),
	}
	return "", d.subSvc.HandleInvoicePaid(ctx, p)
}

func (d *Dispatcher) handleInvoiceFailed(ctx context.Context, event *stripe.Event) (string, error) {
	var inv invoicePayload
	if err := decodePayload(event.Data.Raw, &inv); err != nil {
		return "", err
	}
	p := subscription.ApplyStateParams{
		ProviderEventID: event.ID,
		CustomerID:      inv.Customer,
		SubscriptionID:  inv.subscriptionID(),
	}
	return "", d.subSvc.HandleInvoiceFailed(ctx, p)
}

// handleCheckoutCompleted branches on the session mode: one-time payments are
// addon credit purchases, subscription mode activates the recurring plan.
func (d *Dispatcher) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) (string, error) {
	var sess checkoutSessionPayload
	if err := decodePayload(event.Data.Raw, &sess); err != nil {
		return "", err
	}

	switch sess.Mode {
	case "payment":
		if sess.PaymentStatus != "" && sess.PaymentStatus != "paid" {
			return sess.userID(), fmt.Errorf("%w: session %s not paid (%s)", ErrIgnored, sess.ID, sess.PaymentStatus)
		}
		grant := addon.Grant{
			UserID:          sess.userID(),
			AddonKey:        sess.Metadata["addon_key"],
			Credits:         atoiOrZero(sess.Metadata["report_limit"]),
			Amount:          sess.AmountTotal,
			Currency:        sess.Currency,
			SessionID:       sess.ID,
			PaymentIntentID: sess.PaymentIntent,
		}
		_, err := d.addonSvc.Apply(ctx, grant)
		return grant.UserID, err

	case "subscription":
		// the session payload has no subscription state; fetch it
		if sess.Subscription == "" {
			return sess.userID(), fmt.Errorf("%w: session %s has no subscription", ErrIgnored, sess.ID)
		}
		sub, err := d.stripe.GetSubscription(ctx, sess.Subscription)
		if err != nil {
			return sess.userID(), err
		}
		p := subscription.ApplyStateParams{
			ProviderEventID: event.ID,
			UserID:          sess.userID(),
			CustomerID:      sess.Customer,
			SubscriptionID:  sub.ID,
			ProviderStatus:  string(sub.Status),
			ResetUsage:      true,
			Reason:          types.SubscriptionChangeReasonCheckout,
		}
		if len(sub.Items.Data) > 0 {
			item := sub.Items.Data[0]
			start := timeFromUnix(item.CurrentPeriodStart)
			end := timeFromUnix(item.CurrentPeriodEnd)
			p.PeriodStart, p.PeriodEnd = start, end
			if item.Price != nil {
				p.Plan = item.Price.LookupKey
			}
		}
		return p.UserID, d.subSvc.ApplyState(ctx, p)

	default:
		return sess.userID(), fmt.Errorf("%w: unsupported checkout mode %q", ErrIgnored, sess.Mode)
	}
}

// handlePaymentIntentSucceeded is the backup trigger path for addon
// purchases. Payment intents without addon metadata belong to subscription
// invoices and are acknowledged untouched.
func (d *Dispatcher) handlePaymentIntentSucceeded(ctx context.Context, event *stripe.Event) (string, error) {
	var pi paymentIntentPayload
	if err := decodePayload(event.Data.Raw, &pi); err != nil {
		return "", err
	}
	if pi.Metadata["addon_key"] == "" {
		return "", fmt.Errorf("%w: payment intent %s is not an addon purchase", ErrIgnored, pi.ID)
	}
	grant := addon.Grant{
		UserID:          pi.Metadata["user_id"],
		AddonKey:        pi.Metadata["addon_key"],
		Credits:         atoiOrZero(pi.Metadata["report_limit"]),
		Amount:          pi.Amount,
		Currency:        pi.Currency,
		PaymentIntentID: pi.ID,
	}
	_, err := d.addonSvc.Apply(ctx, grant)
	return grant.UserID, err
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func timeFromUnix(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	t := time.Unix(v, 0)
	return &t
}
