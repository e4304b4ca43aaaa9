package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/safeeats/backend/internal/domain"
)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	data     map[string][]byte
	getError error
	setError error
	setCalls int
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		data: make(map[string][]byte),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.setCalls++
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

// MockDetectionClient is a mock implementation of domain.DetectionClient
type MockDetectionClient struct {
	response    *domain.DetectionResponse
	detectError error
	healthError error
	calls       int
	lastText    string
}

func (m *MockDetectionClient) DetectText(ctx context.Context, text string) (*domain.DetectionResponse, error) {
	m.calls++
	m.lastText = text
	if m.detectError != nil {
		return nil, m.detectError
	}
	return m.response, nil
}

func (m *MockDetectionClient) Health(ctx context.Context) error {
	return m.healthError
}

// MockProductLookup is a mock implementation of domain.ProductLookup
type MockProductLookup struct {
	product *domain.Product
	err     error
	calls   int
}

func (m *MockProductLookup) GetProduct(ctx context.Context, barcode string) (*domain.Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.product, nil
}

// MockScanRecorder captures recorded metrics
type MockScanRecorder struct {
	scans      map[string]domain.Classification
	detections int
	failures   int
}

func NewMockScanRecorder() *MockScanRecorder {
	return &MockScanRecorder{scans: make(map[string]domain.Classification)}
}

func (m *MockScanRecorder) RecordScan(kind string, result *domain.ScanResult) {
	m.scans[kind] = result.Classification
}

func (m *MockScanRecorder) RecordDetection(duration time.Duration, err error) {
	m.detections++
	if err != nil {
		m.failures++
	}
}

func (m *MockScanRecorder) RecordRateLimited() {}

func detectionOf(labels map[string]string) *domain.DetectionResponse {
	resp := &domain.DetectionResponse{
		Success:           true,
		DetectedAllergens: make(map[string][]domain.DetectedEntity),
	}
	for label, text := range labels {
		resp.DetectedAllergens[label] = []domain.DetectedEntity{{Text: text, Label: label, Confidence: 0.9}}
	}
	return resp
}

func TestNewScanService(t *testing.T) {
	t.Run("creates service with default values", func(t *testing.T) {
		svc := NewScanService(NewMockCacheRepository(), nil, nil, nil, ScanServiceConfig{})
		if svc.config.MaxTextLength != 10000 {
			t.Errorf("MaxTextLength = %d, want 10000", svc.config.MaxTextLength)
		}
		if svc.config.MinTextLength != 3 {
			t.Errorf("MinTextLength = %d, want 3", svc.config.MinTextLength)
		}
		if svc.config.DetectionCacheTTL != time.Hour {
			t.Errorf("DetectionCacheTTL = %v, want 1h", svc.config.DetectionCacheTTL)
		}
		if svc.config.ProductCacheTTL != 24*time.Hour {
			t.Errorf("ProductCacheTTL = %v, want 24h", svc.config.ProductCacheTTL)
		}
	})

	t.Run("creates service with custom values", func(t *testing.T) {
		svc := NewScanService(nil, nil, nil, nil, ScanServiceConfig{MaxTextLength: 50, ProductCacheTTL: time.Minute})
		if svc.config.MaxTextLength != 50 {
			t.Errorf("MaxTextLength = %d, want 50", svc.config.MaxTextLength)
		}
		if svc.config.ProductCacheTTL != time.Minute {
			t.Errorf("ProductCacheTTL = %v, want 1m", svc.config.ProductCacheTTL)
		}
	})
}

func TestScanText_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewScanService(NewMockCacheRepository(), nil, nil, nil, ScanServiceConfig{MaxTextLength: 20})

	t.Run("returns error for nil request", func(t *testing.T) {
		_, err := svc.ScanText(ctx, nil)
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("returns error for text shorter than minimum after cleaning", func(t *testing.T) {
		_, err := svc.ScanText(ctx, &domain.ScanTextRequest{Text: "  a_b  "})
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("returns error for text over the limit", func(t *testing.T) {
		_, err := svc.ScanText(ctx, &domain.ScanTextRequest{Text: strings.Repeat("x", 21)})
		if !errors.Is(err, domain.ErrTextTooLong) {
			t.Errorf("error = %v, want ErrTextTooLong", err)
		}
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		if _, err := svc.ScanText(ctx, &domain.ScanTextRequest{Text: strings.Repeat("é", 20)}); err != nil {
			t.Errorf("error = %v, want nil for 20 two-byte characters", err)
		}
	})
}

func TestScanText_ProfileWithoutDetection(t *testing.T) {
	svc := NewScanService(NewMockCacheRepository(), nil, nil, nil, ScanServiceConfig{})

	result, err := svc.ScanText(context.Background(), &domain.ScanTextRequest{
		Text:    "Wheat flour, sugar, eggs, milk, butter",
		Profile: profileOf("Egg", "Milk"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Classification != domain.ClassificationUnsafe {
		t.Errorf("Classification = %s, want UNSAFE", result.Classification)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("len(Matches) = %d, want 2", len(result.Matches))
	}
	if len(result.Layers) != 1 || result.Layers[0] != domain.LayerProfile {
		t.Errorf("Layers = %v, want [profile]", result.Layers)
	}
	if result.ScanID == "" {
		t.Error("ScanID should be set")
	}
	if result.AnalyzedAt.IsZero() {
		t.Error("AnalyzedAt should be set")
	}
	if result.Warning != "" {
		t.Errorf("Warning = %q, want empty", result.Warning)
	}
}

func TestScanText_CleansBeforeMatching(t *testing.T) {
	svc := NewScanService(nil, nil, nil, nil, ScanServiceConfig{})

	result, err := svc.ScanText(context.Background(), &domain.ScanTextRequest{
		Text:    "<p>Ingredients: ﬂour, <b>sesame</b></p>",
		Profile: profileOf("Sesame", "Flour"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 2 {
		t.Errorf("Matches = %+v, want Sesame and Flour", result.Matches)
	}
}

func TestScanText_DetectionLayer(t *testing.T) {
	ctx := context.Background()

	t.Run("detections matching the profile are unsafe", func(t *testing.T) {
		detector := &MockDetectionClient{response: detectionOf(map[string]string{
			"PEANUT": "arachis oil",
			"SOY":    "soja",
		})}
		recorder := NewMockScanRecorder()
		svc := NewScanService(NewMockCacheRepository(), detector, nil, recorder, ScanServiceConfig{})

		result, err := svc.ScanText(ctx, &domain.ScanTextRequest{
			Text:    "arachis oil, salt",
			Profile: profileOf("Peanut"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Classification != domain.ClassificationUnsafe {
			t.Errorf("Classification = %s, want UNSAFE", result.Classification)
		}
		if len(result.Matches) != 1 {
			t.Fatalf("Matches = %+v, want only the peanut detection", result.Matches)
		}
		m := result.Matches[0]
		if m.Name != "Peanut" || m.Source != domain.SourceOCR || m.Snippet != "arachis oil" {
			t.Errorf("Match = %+v, want Peanut/ocr/arachis oil", m)
		}
		if recorder.detections != 1 {
			t.Errorf("RecordDetection calls = %d, want 1", recorder.detections)
		}
		if recorder.scans["text"] != domain.ClassificationUnsafe {
			t.Errorf("recorded classification = %s, want UNSAFE", recorder.scans["text"])
		}
	})

	t.Run("anonymous detections are caution", func(t *testing.T) {
		detector := &MockDetectionClient{response: detectionOf(map[string]string{"TREE_NUT": "hazelnut"})}
		svc := NewScanService(NewMockCacheRepository(), detector, nil, nil, ScanServiceConfig{})

		result, err := svc.ScanText(ctx, &domain.ScanTextRequest{Text: "sugar, salt"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Classification != domain.ClassificationCaution {
			t.Errorf("Classification = %s, want CAUTION", result.Classification)
		}
		if len(result.Matches) != 1 || result.Matches[0].Name != "Tree Nut" {
			t.Errorf("Matches = %+v, want Tree Nut", result.Matches)
		}
	})

	t.Run("profile and detection results are merged by name", func(t *testing.T) {
		detector := &MockDetectionClient{response: detectionOf(map[string]string{
			"MILK":   "milk",
			"GLUTEN": "wheat",
		})}
		svc := NewScanService(NewMockCacheRepository(), detector, nil, nil, ScanServiceConfig{})

		result, err := svc.ScanText(ctx, &domain.ScanTextRequest{
			Text: "wheat flour, milk",
			Profile: []domain.AllergenProfileEntry{
				{Name: "Milk"},
				{Name: "Gluten", Synonyms: []string{"wheat"}},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Matches) != 2 {
			t.Fatalf("Matches = %+v, want Milk and Gluten once each", result.Matches)
		}
		for _, m := range result.Matches {
			if m.Source != domain.SourceIngredients {
				t.Errorf("%s Source = %s, want the profile match to win", m.Name, m.Source)
			}
		}
		want := []string{domain.LayerProfile, domain.LayerDetection}
		if len(result.Layers) != 2 || result.Layers[0] != want[0] || result.Layers[1] != want[1] {
			t.Errorf("Layers = %v, want %v", result.Layers, want)
		}
	})

	t.Run("responses are cached by cleaned text", func(t *testing.T) {
		cache := NewMockCacheRepository()
		detector := &MockDetectionClient{response: detectionOf(map[string]string{"EGG": "egg"})}
		svc := NewScanService(cache, detector, nil, nil, ScanServiceConfig{})

		for _, text := range []string{"egg noodles", "  egg\n noodles "} {
			if _, err := svc.ScanText(ctx, &domain.ScanTextRequest{Text: text}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if detector.calls != 1 {
			t.Errorf("DetectText calls = %d, want 1", detector.calls)
		}
		if _, ok := cache.data[detectionCacheKey("egg noodles")]; !ok {
			t.Error("detection response should be cached under the text digest")
		}
	})

	t.Run("cache failures do not fail the scan", func(t *testing.T) {
		cache := NewMockCacheRepository()
		cache.getError = errors.New("connection refused")
		cache.setError = errors.New("connection refused")
		detector := &MockDetectionClient{response: detectionOf(map[string]string{"EGG": "egg"})}
		svc := NewScanService(cache, detector, nil, nil, ScanServiceConfig{})

		result, err := svc.ScanText(ctx, &domain.ScanTextRequest{Text: "egg noodles"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Matches) == 0 {
			t.Error("expected the detection to be reported")
		}
	})
}

func TestScanText_DetectionFallback(t *testing.T) {
	ctx := context.Background()
	detector := &MockDetectionClient{detectError: domain.ErrDetectionUnavailable}
	recorder := NewMockScanRecorder()
	svc := NewScanService(NewMockCacheRepository(), detector, nil, recorder, ScanServiceConfig{})

	t.Run("falls back to profile matching with a warning", func(t *testing.T) {
		result, err := svc.ScanText(ctx, &domain.ScanTextRequest{
			Text:    "Contains: milk",
			Profile: profileOf("Milk"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Classification != domain.ClassificationUnsafe {
			t.Errorf("Classification = %s, want UNSAFE", result.Classification)
		}
		if result.Warning == "" {
			t.Error("Warning should explain the fallback")
		}
		if recorder.failures != 1 {
			t.Errorf("recorded failures = %d, want 1", recorder.failures)
		}
	})

	t.Run("anonymous fallback uses the keyword scan", func(t *testing.T) {
		result, err := svc.ScanText(ctx, &domain.ScanTextRequest{Text: "soya lecithin, wheat flour"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Classification != domain.ClassificationCaution {
			t.Errorf("Classification = %s, want CAUTION", result.Classification)
		}
		if len(result.Layers) != 1 || result.Layers[0] != domain.LayerKeywords {
			t.Errorf("Layers = %v, want [keywords]", result.Layers)
		}
		if len(result.Matches) != 2 {
			t.Errorf("Matches = %+v, want wheat and soy", result.Matches)
		}
	})
}

func TestScanText_KeywordFallbackWithProfile(t *testing.T) {
	svc := NewScanService(nil, nil, nil, nil, ScanServiceConfig{})

	t.Run("substring hits for profile allergens are caution", func(t *testing.T) {
		result, err := svc.ScanText(context.Background(), &domain.ScanTextRequest{
			Text:    "peanutbutter cookies",
			Profile: profileOf("Peanut"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Classification != domain.ClassificationCaution {
			t.Errorf("Classification = %s, want CAUTION", result.Classification)
		}
		if len(result.Matches) != 1 || result.Matches[0].Name != "Peanut" {
			t.Errorf("Matches = %+v, want Peanut", result.Matches)
		}
	})

	t.Run("hits outside the profile are ignored", func(t *testing.T) {
		result, err := svc.ScanText(context.Background(), &domain.ScanTextRequest{
			Text:    "milk chocolate",
			Profile: profileOf("Peanut"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Classification != domain.ClassificationSafe {
			t.Errorf("Classification = %s, want SAFE", result.Classification)
		}
		if len(result.Matches) != 0 {
			t.Errorf("Matches = %+v, want none", result.Matches)
		}
	})
}

func TestScanText_Precautionary(t *testing.T) {
	svc := NewScanService(nil, nil, nil, nil, ScanServiceConfig{})

	result, err := svc.ScanText(context.Background(), &domain.ScanTextRequest{
		Text: "Produced in a facility that also processes tree nuts.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Precautionary {
		t.Error("Precautionary = false, want true")
	}
	if result.Classification != domain.ClassificationCaution {
		t.Errorf("Classification = %s, want CAUTION", result.Classification)
	}
}

func nutella() *domain.Product {
	return &domain.Product{
		Barcode:         "3017620422003",
		Name:            "Nutella",
		Brand:           "Ferrero",
		IngredientsText: "Sugar, palm oil, hazelnuts 13%, skimmed milk powder 8.7%, lecithins (soya)",
		AllergensText:   "en:milk,en:nuts,en:soybeans",
		AllergenTags:    []string{"en:milk", "en:nuts", "en:soybeans"},
	}
}

func TestScanBarcode(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects malformed barcodes", func(t *testing.T) {
		svc := NewScanService(nil, nil, &MockProductLookup{}, nil, ScanServiceConfig{})
		for _, barcode := range []string{"", "1234567", "123456789012345", "12345abc9"} {
			_, err := svc.ScanBarcode(ctx, &domain.ScanBarcodeRequest{Barcode: barcode})
			if !errors.Is(err, domain.ErrInvalidBarcode) {
				t.Errorf("ScanBarcode(%q) error = %v, want ErrInvalidBarcode", barcode, err)
			}
		}
	})

	t.Run("profile match on product is unsafe", func(t *testing.T) {
		lookup := &MockProductLookup{product: nutella()}
		recorder := NewMockScanRecorder()
		svc := NewScanService(NewMockCacheRepository(), nil, lookup, recorder, ScanServiceConfig{})

		result, err := svc.ScanBarcode(ctx, &domain.ScanBarcodeRequest{
			Barcode: " 3017620422003 ",
			Profile: profileOf("Milk"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Classification != domain.ClassificationUnsafe {
			t.Errorf("Classification = %s, want UNSAFE", result.Classification)
		}
		if len(result.Matches) != 1 || result.Matches[0].Name != "Milk" {
			t.Errorf("Matches = %+v, want Milk once", result.Matches)
		}
		if result.Product == nil || result.Product.Name != "Nutella" {
			t.Errorf("Product = %+v, want Nutella summary", result.Product)
		}
		if recorder.scans["barcode"] != domain.ClassificationUnsafe {
			t.Errorf("recorded classification = %s, want UNSAFE", recorder.scans["barcode"])
		}
	})

	t.Run("anonymous scan reports tags as caution", func(t *testing.T) {
		svc := NewScanService(NewMockCacheRepository(), nil, &MockProductLookup{product: nutella()}, nil, ScanServiceConfig{})

		result, err := svc.ScanBarcode(ctx, &domain.ScanBarcodeRequest{Barcode: "3017620422003"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Classification != domain.ClassificationCaution {
			t.Errorf("Classification = %s, want CAUTION", result.Classification)
		}
		if result.Matches[0].Source != domain.SourceBarcode {
			t.Errorf("first match Source = %s, want barcode", result.Matches[0].Source)
		}
	})

	t.Run("product is cached", func(t *testing.T) {
		cache := NewMockCacheRepository()
		lookup := &MockProductLookup{product: nutella()}
		svc := NewScanService(cache, nil, lookup, nil, ScanServiceConfig{})

		for i := 0; i < 2; i++ {
			if _, err := svc.ScanBarcode(ctx, &domain.ScanBarcodeRequest{Barcode: "3017620422003"}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if lookup.calls != 1 {
			t.Errorf("GetProduct calls = %d, want 1", lookup.calls)
		}
		var cached domain.Product
		if err := json.Unmarshal(cache.data["product:3017620422003"], &cached); err != nil {
			t.Fatalf("cached product is not valid JSON: %v", err)
		}
		if cached.Name != "Nutella" {
			t.Errorf("cached Name = %q, want Nutella", cached.Name)
		}
	})

	t.Run("propagates not found", func(t *testing.T) {
		svc := NewScanService(nil, nil, &MockProductLookup{err: domain.ErrProductNotFound}, nil, ScanServiceConfig{})

		_, err := svc.ScanBarcode(ctx, &domain.ScanBarcodeRequest{Barcode: "12345678"})
		if !errors.Is(err, domain.ErrProductNotFound) {
			t.Errorf("error = %v, want ErrProductNotFound", err)
		}
	})

	t.Run("wraps unexpected lookup errors", func(t *testing.T) {
		svc := NewScanService(nil, nil, &MockProductLookup{err: errors.New("boom")}, nil, ScanServiceConfig{})

		_, err := svc.ScanBarcode(ctx, &domain.ScanBarcodeRequest{Barcode: "12345678"})
		if !errors.Is(err, domain.ErrProductLookupFailure) {
			t.Errorf("error = %v, want ErrProductLookupFailure", err)
		}
	})

	t.Run("product without ingredients is still analyzed", func(t *testing.T) {
		lookup := &MockProductLookup{product: &domain.Product{Barcode: "12345678", Name: "Water"}}
		svc := NewScanService(nil, nil, lookup, nil, ScanServiceConfig{})

		result, err := svc.ScanBarcode(ctx, &domain.ScanBarcodeRequest{Barcode: "12345678"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Classification != domain.ClassificationSafe {
			t.Errorf("Classification = %s, want SAFE", result.Classification)
		}
	})
}

func TestDetectionStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		detector domain.DetectionClient
		want     string
	}{
		{"disabled without client", nil, DetectionDisabled},
		{"up when healthy", &MockDetectionClient{}, DetectionUp},
		{"down when health fails", &MockDetectionClient{healthError: domain.ErrDetectionUnavailable}, DetectionDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewScanService(nil, tt.detector, nil, nil, ScanServiceConfig{})
			if got := svc.DetectionStatus(ctx); got != tt.want {
				t.Errorf("DetectionStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScanService_Analyze(t *testing.T) {
	svc := NewScanService(nil, nil, nil, nil, ScanServiceConfig{MaxTextLength: 10})

	if _, err := svc.Analyze(&domain.AnalyzeRequest{Text: "   "}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
	if _, err := svc.Analyze(&domain.AnalyzeRequest{Text: strings.Repeat("a", 11)}); !errors.Is(err, domain.ErrTextTooLong) {
		t.Errorf("error = %v, want ErrTextTooLong", err)
	}

	result, err := svc.Analyze(&domain.AnalyzeRequest{Text: "milk", Profile: profileOf("Milk")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Classification != domain.ClassificationUnsafe {
		t.Errorf("Classification = %s, want UNSAFE", result.Classification)
	}
}

func TestSanitizeProfile(t *testing.T) {
	got := SanitizeProfile([]domain.AllergenProfileEntry{
		{Name: "  Milk ", Synonyms: []string{" whey", "", "  "}},
		{Name: "   ", Synonyms: []string{"egg"}},
		{Name: "Soy"},
	})

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "Milk" || len(got[0].Synonyms) != 1 || got[0].Synonyms[0] != "whey" {
		t.Errorf("got[0] = %+v, want Milk with [whey]", got[0])
	}
	if got[1].Name != "Soy" || got[1].Synonyms != nil {
		t.Errorf("got[1] = %+v, want Soy without synonyms", got[1])
	}
}
