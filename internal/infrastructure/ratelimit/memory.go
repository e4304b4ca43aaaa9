package ratelimit

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// MemoryLimiter keeps one token bucket per key in process memory.
// Keys untouched for idleTTL are evicted.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters *gocache.Cache
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

// NewMemoryLimiter allows perMinute requests per key with the given burst
func NewMemoryLimiter(perMinute, burst int, idleTTL time.Duration) *MemoryLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}

	return &MemoryLimiter{
		limiters: gocache.New(idleTTL, idleTTL),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		idleTTL:  idleTTL,
	}
}

// Allow consumes one token for key
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.limiterFor(key).Allow(), nil
}

// limiterFor returns the key's bucket, creating it on first use and refreshing its idle timer
func (l *MemoryLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	var limiter *rate.Limiter
	if v, found := l.limiters.Get(key); found {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	l.limiters.Set(key, limiter, l.idleTTL)
	return limiter
}

// Len returns the number of tracked keys
func (l *MemoryLimiter) Len() int {
	return l.limiters.ItemCount()
}
