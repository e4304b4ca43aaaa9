package openfoodfacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/safeeats/backend/internal/domain"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public OpenFoodFacts instance
const DefaultBaseURL = "https://world.openfoodfacts.org"

// productResponse is the v0 product endpoint payload
type productResponse struct {
	Status        int        `json:"status"`
	StatusVerbose string     `json:"status_verbose"`
	Code          string     `json:"code"`
	Product       offProduct `json:"product"`
}

type offProduct struct {
	ProductName     string   `json:"product_name"`
	Brands          string   `json:"brands"`
	Allergens       string   `json:"allergens"`
	AllergensTags   []string `json:"allergens_tags"`
	IngredientsText string   `json:"ingredients_text"`
}

// Client looks packaged foods up in OpenFoodFacts by barcode
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	rateLimiter *rate.Limiter
}

// NewClient creates a new OpenFoodFacts client
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = "SafeEats/1.0"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// OpenFoodFacts asks for at most 100 product reads per minute
	limiter := rate.NewLimiter(rate.Limit(100.0/60.0), 10)

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:     strings.TrimRight(baseURL, "/"),
		userAgent:   userAgent,
		rateLimiter: limiter,
	}
}

// GetProduct fetches a product by barcode
func (c *Client) GetProduct(ctx context.Context, barcode string) (*domain.Product, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrProductLookupFailure, err)
	}

	reqURL := fmt.Sprintf("%s/api/v0/product/%s.json", c.baseURL, barcode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[OFF] Request error for %s: %v", barcode, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrProductLookupFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrProductNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("[OFF] API error - Status: %d, Body: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("%w: status %d", domain.ErrProductLookupFailure, resp.StatusCode)
	}

	var payload productResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProductLookupFailure, err)
	}

	if payload.Status == 0 {
		log.Printf("[OFF] Product %s not found (%s)", barcode, payload.StatusVerbose)
		return nil, domain.ErrProductNotFound
	}

	return MapToProduct(barcode, payload.Product), nil
}
