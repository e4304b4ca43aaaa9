package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/safeeats/backend/internal/domain"
	"golang.org/x/time/rate"
)

// Config holds tuning for the detection service client
type Config struct {
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
	Debug             bool
}

// Client handles communication with the ML allergen detection service
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	maxRetries  int
	backoff     func(attempt int) time.Duration
	debug       bool
}

// NewClient creates a new detection service client
func NewClient(baseURL string, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(baseURL, "/"),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxRetries:  cfg.MaxRetries,
		backoff:     exponentialBackoff,
		debug:       cfg.Debug,
	}
}

// SetDebug toggles verbose request logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// exponentialBackoff returns the wait before retrying: 500ms, 1s, 2s, ...
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// DetectText submits label text to the service and decodes the detected allergens
func (c *Client) DetectText(ctx context.Context, text string) (*domain.DetectionResponse, error) {
	params := url.Values{}
	params.Add("text", text)
	reqURL := fmt.Sprintf("%s/detect-text?%s", c.baseURL, params.Encode())

	if c.debug {
		log.Printf("[DETECTION] DetectText called with %d chars", len(text))
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrDetectionUnavailable, err)
		}

		body, status, err := c.do(ctx, http.MethodPost, reqURL)
		if err != nil {
			log.Printf("[DETECTION] Request error (attempt %d): %v", attempt, err)
			lastErr = fmt.Errorf("%w: %v", domain.ErrDetectionUnavailable, err)
			if !c.wait(ctx, attempt) {
				break
			}
			continue
		}

		// 5xx is retried, 4xx means the request itself is wrong
		if status >= http.StatusInternalServerError {
			log.Printf("[DETECTION] Service error (attempt %d) - Status: %d", attempt, status)
			lastErr = fmt.Errorf("%w: status %d", domain.ErrDetectionUnavailable, status)
			if !c.wait(ctx, attempt) {
				break
			}
			continue
		}
		if status != http.StatusOK {
			log.Printf("[DETECTION] Request rejected - Status: %d, Body: %s", status, string(body))
			return nil, fmt.Errorf("%w: status %d", domain.ErrDetectionUnavailable, status)
		}

		var detection domain.DetectionResponse
		if err := json.Unmarshal(body, &detection); err != nil {
			log.Printf("[DETECTION] JSON decode error: %v", err)
			return nil, fmt.Errorf("%w: decode response: %v", domain.ErrDetectionUnavailable, err)
		}

		if !detection.Success {
			reason := "unknown error"
			if detection.Error != nil && *detection.Error != "" {
				reason = *detection.Error
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrDetectionUnavailable, reason)
		}

		if c.debug {
			log.Printf("[DETECTION] Detected %d allergen labels (avg confidence %.2f)",
				len(detection.DetectedAllergens), detection.AvgConfidence)
		}
		return &detection, nil
	}

	log.Printf("[DETECTION] All %d attempts failed", c.maxRetries)
	return nil, lastErr
}

// Health checks that the detection service answers on /health
func (c *Client) Health(ctx context.Context) error {
	_, status, err := c.do(ctx, http.MethodGet, c.baseURL+"/health")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDetectionUnavailable, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: health status %d", domain.ErrDetectionUnavailable, status)
	}
	return nil
}

// do executes a request and returns the drained body with its status code
func (c *Client) do(ctx context.Context, method, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SafeEats/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// wait sleeps for the backoff of the given attempt.
// Returns false when no attempts are left or the context is done.
func (c *Client) wait(ctx context.Context, attempt int) bool {
	if attempt >= c.maxRetries {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff(attempt)):
		return true
	}
}
