package http

import (
	"reward_engine/internal/config"
	"reward_engine/internal/http/handlers"
	"reward_engine/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, health *handlers.HealthHandler, rl *middleware.RateLimiter, cfg *config.Config) {
	// Health checks (no rate limiting)
	r.GET("/health", health.Health)
	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)

	v1 := r.Group("/api/v1")
	v1.Use(rl.PerIP("api", cfg.APIRateLimit, cfg.APIRateWindow))
	v1.Use(middleware.UserIdentity())

	v1.GET("/quota", h.GetQuota)
	v1.POST("/quota/reset", h.ResetQuota)

	// views are limited per user on top of the per-IP limit
	v1.POST("/views", rl.PerUser("views", cfg.ViewRateLimit, cfg.ViewRateWindow), h.RecordView)

	boxes := v1.Group("/boxes")
	{
		boxes.GET("", h.ListBoxes)
		boxes.POST("/:id/open", h.OpenBox)
	}
}
