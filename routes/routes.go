package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callpilot/handlers"
	"callpilot/middleware"
)

// RegisterCampaignRoutes registers the client-facing campaign API. These
// routes sit behind the per-IP rate limiter.
func RegisterCampaignRoutes(r *gin.Engine) {
	api := r.Group("/campaigns")
	api.Use(middleware.RateLimitMiddleware())
	{
		api.POST("", handlers.CreateCampaign)
		api.GET("/:id", handlers.GetCampaign)
		api.POST("/:id/confirm", handlers.ConfirmCampaign)
	}
}

// RegisterSettingsRoutes registers the server-wide settings endpoints.
func RegisterSettingsRoutes(r *gin.Engine) {
	api := r.Group("/settings")
	api.Use(middleware.RateLimitMiddleware())
	{
		api.GET("/call-mode", handlers.GetCallMode)
		api.PUT("/call-mode", handlers.SetCallMode)
	}
}

// RegisterTwilioRoutes registers the carrier webhooks and the media stream.
// These are not rate limited: the carrier retries webhooks aggressively and
// the stream carries live audio.
func RegisterTwilioRoutes(r *gin.Engine) {
	api := r.Group("/twilio")
	{
		api.POST("/voice", handlers.VoiceWebhook)
		api.POST("/voice/status", handlers.StatusWebhook)
		api.GET("/stream/:callSid", handlers.MediaStream)
	}
}

// RegisterHealthRoutes registers the liveness probe.
func RegisterHealthRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
