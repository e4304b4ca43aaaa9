package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/safeeats/backend/config"
	httpDelivery "github.com/safeeats/backend/internal/delivery/http"
	"github.com/safeeats/backend/internal/domain"
	"github.com/safeeats/backend/internal/infrastructure/cache"
	"github.com/safeeats/backend/internal/infrastructure/detection"
	"github.com/safeeats/backend/internal/infrastructure/metrics"
	"github.com/safeeats/backend/internal/infrastructure/openfoodfacts"
	"github.com/safeeats/backend/internal/infrastructure/ratelimit"
	"github.com/safeeats/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting SafeEats Backend v%s", cfg.Server.Version)
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)
	log.Printf("Cache Type: %s", cfg.Cache.Type)

	// Initialize infrastructure dependencies
	var (
		scanCache domain.CacheRepository
		limiter   domain.RateLimiter
	)

	switch cfg.Cache.Type {
	case "redis":
		client, err := cache.NewRedisClient(context.Background(), cfg.Cache.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()

		scanCache = cache.NewRedisCache(client, cache.DefaultKeyPrefix)
		if cfg.RateLimit.Enabled {
			limiter = ratelimit.NewRedisLimiter(client, cache.DefaultKeyPrefix, cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
		}
	default:
		scanCache = cache.NewMemoryCache(cfg.Cache.CleanupInterval)
		if cfg.RateLimit.Enabled {
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst, 10*time.Minute)
		}
	}

	if limiter != nil {
		log.Printf("Rate limit: %d/min per client (burst %d)", cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	} else {
		log.Printf("Rate limit: disabled")
	}

	// Detection layer is optional
	var detector domain.DetectionClient
	if cfg.Detection.BaseURL != "" {
		client := detection.NewClient(cfg.Detection.BaseURL, detection.Config{
			Timeout:           cfg.Detection.Timeout,
			MaxRetries:        cfg.Detection.MaxRetries,
			RequestsPerSecond: cfg.Detection.RequestsPerSecond,
			Burst:             cfg.Detection.Burst,
		})

		// Enable debug mode in development environment
		if cfg.Server.Environment == "development" {
			client.SetDebug(true)
			log.Printf("Detection client debug mode enabled")
		}

		detector = client
		log.Printf("Detection service configured: %s", cfg.Detection.BaseURL)
	} else {
		log.Printf("WARNING: Detection service not configured - scans use local matching only")
	}

	products := openfoodfacts.NewClient(cfg.OpenFoodFacts.BaseURL, cfg.OpenFoodFacts.UserAgent, cfg.OpenFoodFacts.Timeout)
	log.Printf("Product database: %s", cfg.OpenFoodFacts.BaseURL)

	var m *metrics.Metrics
	var recorder domain.ScanRecorder
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		recorder = m
	}

	// Initialize usecase layer
	scanService := usecase.NewScanService(
		scanCache,
		detector,
		products,
		recorder,
		usecase.ScanServiceConfig{
			MaxTextLength:      cfg.Matching.MaxTextLength,
			MinTextLength:      cfg.Matching.MinTextLength,
			DetectionCacheTTL:  cfg.Detection.CacheTTL,
			ProductCacheTTL:    cfg.OpenFoodFacts.CacheTTL,
			EnableDebugLogging: cfg.Matching.EnableDebugLogging,
		},
	)

	log.Printf("Matching: text length %d-%d, debug=%v",
		cfg.Matching.MinTextLength,
		cfg.Matching.MaxTextLength,
		cfg.Matching.EnableDebugLogging)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(scanService, cfg.Server.Version)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler, httpDelivery.RouterDeps{
		Limiter: limiter,
		Metrics: m,
	})

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server listening on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
