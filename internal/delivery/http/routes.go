package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safeeats/backend/config"
	"github.com/safeeats/backend/internal/domain"
	"github.com/safeeats/backend/internal/infrastructure/metrics"
)

// RouterDeps are the optional collaborators of the router
type RouterDeps struct {
	Limiter domain.RateLimiter // nil disables rate limiting
	Metrics *metrics.Metrics   // nil disables /metrics
}

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, deps RouterDeps) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check and metrics stay outside the rate limit
	router.GET("/health", handler.HealthCheck)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	if deps.Limiter != nil {
		var recorder domain.ScanRecorder
		if deps.Metrics != nil {
			recorder = deps.Metrics
		}
		v1.Use(RateLimitMiddleware(deps.Limiter, recorder, retryAfter(cfg.RateLimit.PerMinute)))
	}
	{
		v1.POST("/analyze", handler.Analyze)
		v1.GET("/allergens", handler.ListAllergens)

		scan := v1.Group("/scan")
		{
			scan.POST("/text", handler.ScanText)
			scan.POST("/barcode", handler.ScanBarcode)
		}
	}

	return router
}

// retryAfter is the time until one more token is available at perMinute
func retryAfter(perMinute int) time.Duration {
	if perMinute <= 0 {
		return time.Minute
	}
	wait := time.Minute / time.Duration(perMinute)
	if wait < time.Second {
		return time.Second
	}
	return wait
}
