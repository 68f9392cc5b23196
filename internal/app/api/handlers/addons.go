package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drydocs/billing/internal/app/api/middleware"
	"github.com/drydocs/billing/internal/app/service/addon"
	"github.com/drydocs/billing/internal/app/service/subscription"
	"github.com/drydocs/billing/pkg/response"
)

type checkPendingResp struct {
	Processed int `json:"processed"`
}

// @Summary      Reconcile pending addon purchases
// @Description  Sweeps the provider for recently succeeded addon payments whose webhook was lost and applies them.
// @Tags         Billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/addons/check-pending [post]
func ApiCheckPendingAddons(svc *addon.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserIDFromGin(c)
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user"))
			return
		}

		n, err := svc.ReconcilePending(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, subscription.ErrUserNotFound) {
				c.JSON(http.StatusOK, response.OKT(checkPendingResp{Processed: 0}))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(checkPendingResp{Processed: n}))
	}
}

// @Summary      Current billing state
// @Description  Returns the caller's subscription status, usage counters, and remaining credits.
// @Tags         Billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/me [get]
func ApiBillingInfo(svc *subscription.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserIDFromGin(c)
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user"))
			return
		}
		row, err := svc.GetByUserID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, subscription.ErrUserNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "no billing record"))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(row))
	}
}

func RegisterBillingRoutes(r gin.IRouter, addonSvc *addon.Service, subSvc *subscription.Service) {
	r.POST("/addons/check-pending", ApiCheckPendingAddons(addonSvc))
	r.GET("/me", ApiBillingInfo(subSvc))
}
