package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drydocs/billing/internal/app/service/dispatch"
	"github.com/drydocs/billing/pkg/logctx"
)

// maxWebhookBodySize bounds provider webhook payloads (64 KB); real events
// are far smaller and the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// @Summary      Stripe Webhook
// @Description  Receives provider billing events. The raw body is HMAC-verified against the Stripe-Signature header.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  map[string]string
// @Router       /webhooks/stripe [post]
// ApiStripeWebhook handles Stripe webhook deliveries. Response codes drive the
// provider's retry behavior: 200 acknowledges (including duplicates and
// unknown types), 400 rejects bad signatures permanently, 500 requests
// redelivery with backoff.
func ApiStripeWebhook(d *dispatch.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logctx.FromGin(c, d.Logger)

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodySize)
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Warnw("webhook body read failed", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		res, err := d.ProcessWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			if errors.Is(err, dispatch.ErrInvalidSignature) {
				log.Warnw("webhook signature rejected", "error", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"received": true, "status": string(res.Outcome)})
	}
}

func RegisterWebhookRoutes(r gin.IRouter, d *dispatch.Dispatcher) {
	r.POST("/stripe", ApiStripeWebhook(d))
}
