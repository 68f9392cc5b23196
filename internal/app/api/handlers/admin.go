package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/drydocs/billing/internal/app/service/dispatch"
	"github.com/drydocs/billing/internal/app/service/ledger"
	"github.com/drydocs/billing/internal/app/service/statistics"
	"github.com/drydocs/billing/pkg/response"
)

// @Summary      List billing events
// @Description  Paginated, filterable listing of the webhook idempotency ledger.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ledger.ScanEventsRequest true "Scan request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/billing/events/list [post]
func ApiListBillingEvents(led *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ledger.ScanEventsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := led.ScanEvents(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Replay billing event
// @Description  Re-runs a stored event through the processing pipeline. Safe for completed events (no-op).
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Provider event id"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/billing/events/{id}/replay [post]
func ApiReplayBillingEvent(d *dispatch.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID := c.Param("id")
		if eventID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing event id"))
			return
		}
		res, err := d.Replay(c.Request.Context(), eventID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type statsQuery struct {
	From time.Time `form:"from" time_format:"2006-01-02"`
	To   time.Time `form:"to" time_format:"2006-01-02"`
}

// @Summary      Daily billing statistics
// @Description  Per-day webhook outcome counts and addon revenue for the dashboard.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/billing/statistics [get]
func ApiBillingStatistics(stats *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q statsQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if q.To.IsZero() {
			q.To = time.Now()
		}
		if q.From.IsZero() {
			q.From = q.To.AddDate(0, -1, 0)
		}

		events, err := stats.EventCounts(c.Request.Context(), q.From, q.To)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		events = statistics.FillMissingDays(events, q.From, q.To)
		revenue, err := stats.AddonRevenue(c.Request.Context(), q.From, q.To)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(gin.H{"events": events, "addon_revenue": revenue}))
	}
}

func RegisterAdminBillingRoutes(r gin.IRouter, led *ledger.Service, d *dispatch.Dispatcher, stats *statistics.Service) {
	r.POST("/billing/events/list", ApiListBillingEvents(led))
	r.POST("/billing/events/:id/replay", ApiReplayBillingEvent(d))
	r.GET("/billing/statistics", ApiBillingStatistics(stats))
}
