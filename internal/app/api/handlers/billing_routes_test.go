package handlers

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func routeSet(r *gin.Engine) func(string) bool {
	routes := r.Routes()
	return func(target string) bool {
		for _, rt := range routes {
			if rt.Method+" "+rt.Path == target {
				return true
			}
		}
		return false
	}
}

func TestRegisterWebhookRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterWebhookRoutes(r.Group("/webhooks"), nil)

	contains := routeSet(r)
	require.True(t, contains("POST /webhooks/stripe"))
}

func TestRegisterBillingRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterBillingRoutes(r.Group("/api/v1/billing"), nil, nil)

	contains := routeSet(r)
	require.True(t, contains("POST /api/v1/billing/addons/check-pending"))
	require.True(t, contains("GET /api/v1/billing/me"))
}

func TestRegisterAdminBillingRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterAdminBillingRoutes(r.Group("/api/v1/admin"), nil, nil, nil)

	contains := routeSet(r)
	require.True(t, contains("POST /api/v1/admin/billing/events/list"))
	require.True(t, contains("POST /api/v1/admin/billing/events/:id/replay"))
	require.True(t, contains("GET /api/v1/admin/billing/statistics"))
}
