package http

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safeeats/backend/internal/domain"
	"github.com/safeeats/backend/internal/usecase"
)

// ScanUsecase is the scan service as seen by the HTTP layer
type ScanUsecase interface {
	Analyze(request *domain.AnalyzeRequest) (*domain.AnalysisResult, error)
	ScanText(ctx context.Context, request *domain.ScanTextRequest) (*domain.ScanResult, error)
	ScanBarcode(ctx context.Context, request *domain.ScanBarcodeRequest) (*domain.ScanResult, error)
	DetectionStatus(ctx context.Context) string
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	scans   ScanUsecase
	version string
}

// NewHandler creates a new HTTP handler
func NewHandler(scans ScanUsecase, version string) *Handler {
	if version == "" {
		version = "1.0.0"
	}
	return &Handler{
		scans:   scans,
		version: version,
	}
}

// HealthCheck returns the health status of the API and its detection backend
func (h *Handler) HealthCheck(c *gin.Context) {
	detection := usecase.DetectionDisabled
	if h.scans != nil {
		detection = h.scans.DetectionStatus(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "safeeats-backend",
		"version":   h.version,
		"detection": detection,
	})
}

// Analyze runs the allergen matcher on raw text
func (h *Handler) Analyze(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var request domain.AnalyzeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	result, err := h.scans.Analyze(&request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ScanText handles label text scan requests
func (h *Handler) ScanText(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var request domain.ScanTextRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	result, err := h.scans.ScanText(c.Request.Context(), &request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ScanBarcode handles barcode scan requests
func (h *Handler) ScanBarcode(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var request domain.ScanBarcodeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	result, err := h.scans.ScanBarcode(c.Request.Context(), &request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListAllergens returns the allergens covered by the fallback keyword scan
func (h *Handler) ListAllergens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"allergens": usecase.CommonAllergens(),
	})
}

// ready rejects requests when no scan service is wired
func (h *Handler) ready(c *gin.Context) bool {
	if h.scans == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scan service not configured"})
		return false
	}
	return true
}

// writeError maps domain errors to HTTP status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTextTooLong):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidBarcode),
		errors.Is(err, domain.ErrInvalidProfile):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
	case errors.Is(err, domain.ErrProductLookupFailure):
		log.Printf("[HTTP] Product lookup failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "product database temporarily unavailable"})
	default:
		log.Printf("[HTTP] Unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
