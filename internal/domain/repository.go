package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching serialized values
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// DetectionClient defines the interface for the external ML detection service
type DetectionClient interface {
	DetectText(ctx context.Context, text string) (*DetectionResponse, error)
	Health(ctx context.Context) error
}

// ProductLookup defines the interface for barcode lookups in a product database
type ProductLookup interface {
	GetProduct(ctx context.Context, barcode string) (*Product, error)
}

// RateLimiter decides whether a request identified by key may proceed
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ScanRecorder receives scan outcomes for monitoring
type ScanRecorder interface {
	RecordScan(kind string, result *ScanResult)
	RecordDetection(duration time.Duration, err error)
	RecordRateLimited()
}
