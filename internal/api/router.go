package api

import (
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"prodtrack-backend/config"
	"prodtrack-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Reference lists change only when the seed command runs.
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/bootstrap", h.GetBootstrap)
		api.GET("/machines", caching, GetMachines(h.store))
		api.GET("/phases", caching, GetPhases(h.store))
		api.PUT("/selection", h.PutSelection)

		api.GET("/machines/:machine_id/orders", h.GetOrders)
		api.POST("/orders/:order_id/start", h.StartOrder)
		api.POST("/orders/:order_id/terminate", h.TerminateOrder)
		api.PUT("/orders/:order_id/machine", h.ReassignOrder)

		api.GET("/handoffs/:token", h.GetHandoff)
		api.POST("/handoffs/:token/pick", h.PickDestination)
		api.DELETE("/handoffs/:token", h.CancelHandoff)

		api.POST("/scans", h.PostScan)
		api.GET("/scans/:token", h.GetScan)
		api.PUT("/scans/:token", h.PutScan)
		api.DELETE("/scans/:token", h.DeleteScan)
		api.POST("/scans/:token/start", h.StartScan)

		api.GET("/share", h.GetShare)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
