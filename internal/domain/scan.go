package domain

import "time"

// Detection layer names reported in ScanResult.Layers
const (
	LayerDetection = "detection"
	LayerProfile   = "profile"
	LayerBarcode   = "barcode"
	LayerKeywords  = "keywords"
)

// AnalyzeRequest is the body of the bare matcher endpoint
type AnalyzeRequest struct {
	Text    string                 `json:"text" binding:"required"`
	Profile []AllergenProfileEntry `json:"profile,omitempty"`
}

// ScanTextRequest represents a label text scan request
type ScanTextRequest struct {
	Text    string                 `json:"text" binding:"required"`
	Profile []AllergenProfileEntry `json:"profile,omitempty"`
}

// ScanBarcodeRequest represents a barcode scan request
type ScanBarcodeRequest struct {
	Barcode string                 `json:"barcode" binding:"required"`
	Profile []AllergenProfileEntry `json:"profile,omitempty"`
}

// ScanResult is the merged outcome of all detection layers for one scan
type ScanResult struct {
	ScanID         string          `json:"scanId"`
	Classification Classification  `json:"classification"`
	Matches        []MatchResult   `json:"matches"`
	Layers         []string        `json:"layers"`
	Precautionary  bool            `json:"precautionary"`
	Product        *ProductSummary `json:"product,omitempty"`
	Warning        string          `json:"warning,omitempty"`
	AnalyzedAt     time.Time       `json:"analyzedAt"`
}

// ProductSummary is the product information echoed back on barcode scans
type ProductSummary struct {
	Barcode         string `json:"barcode"`
	Name            string `json:"name"`
	Brand           string `json:"brand,omitempty"`
	IngredientsText string `json:"ingredientsText,omitempty"`
}

// Product represents a packaged food from the product database
type Product struct {
	Barcode         string   `json:"barcode"`
	Name            string   `json:"name"`
	Brand           string   `json:"brand,omitempty"`
	IngredientsText string   `json:"ingredientsText,omitempty"`
	AllergensText   string   `json:"allergensText,omitempty"`
	AllergenTags    []string `json:"allergenTags,omitempty"` // e.g. "en:milk"
}

// DetectedEntity is a single allergen span reported by the ML detection service
type DetectedEntity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// DetectionResponse represents the response from the ML detection service
type DetectionResponse struct {
	Success           bool                        `json:"success"`
	Error             *string                     `json:"error,omitempty"`
	RawText           string                      `json:"raw_text"`
	CleanedText       string                      `json:"cleaned_text"`
	DetectedAllergens map[string][]DetectedEntity `json:"detected_allergens"`
	AvgConfidence     float64                     `json:"avg_confidence"`
}
