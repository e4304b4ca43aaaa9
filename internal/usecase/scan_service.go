package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/safeeats/backend/internal/domain"
	"github.com/safeeats/backend/internal/infrastructure/detection"
	"github.com/safeeats/backend/internal/infrastructure/openfoodfacts"
)

// barcodePattern accepts EAN-8 through GTIN-14
var barcodePattern = regexp.MustCompile(`^\d{8,14}$`)

// detectionWarning is surfaced when scans fall back to local matching
const detectionWarning = "allergen detection service unavailable; results are based on local matching only"

// Detection service states reported by DetectionStatus
const (
	DetectionUp       = "up"
	DetectionDown     = "down"
	DetectionDisabled = "disabled"
)

// ScanServiceConfig holds configuration for the scan service
type ScanServiceConfig struct {
	MaxTextLength      int
	MinTextLength      int
	DetectionCacheTTL  time.Duration
	ProductCacheTTL    time.Duration
	EnableDebugLogging bool
}

// ScanService runs label text and barcodes through every detection layer and merges the verdicts
type ScanService struct {
	cache    domain.CacheRepository
	detector domain.DetectionClient
	products domain.ProductLookup
	recorder domain.ScanRecorder
	cleaner  *TextCleaner
	config   ScanServiceConfig
	now      func() time.Time
}

// NewScanService creates a new scan service with dependencies.
// detector, products and recorder may be nil: the layer or metric is then skipped.
func NewScanService(
	cache domain.CacheRepository,
	detector domain.DetectionClient,
	products domain.ProductLookup,
	recorder domain.ScanRecorder,
	config ScanServiceConfig,
) *ScanService {
	if config.MaxTextLength <= 0 {
		config.MaxTextLength = 10000
	}
	if config.MinTextLength <= 0 {
		config.MinTextLength = 3
	}
	if config.DetectionCacheTTL == 0 {
		config.DetectionCacheTTL = time.Hour
	}
	if config.ProductCacheTTL == 0 {
		config.ProductCacheTTL = 24 * time.Hour
	}

	return &ScanService{
		cache:    cache,
		detector: detector,
		products: products,
		recorder: recorder,
		cleaner:  NewTextCleaner(config.EnableDebugLogging),
		config:   config,
		now:      time.Now,
	}
}

// layerOutcome is what a single detection layer contributed
type layerOutcome struct {
	name           string
	matches        []domain.MatchResult
	classification domain.Classification
}

// Analyze runs the bare matcher with the service's input length cap
func (s *ScanService) Analyze(request *domain.AnalyzeRequest) (*domain.AnalysisResult, error) {
	if request == nil || strings.TrimSpace(request.Text) == "" {
		return nil, domain.ErrInvalidRequest
	}
	if utf8.RuneCountInString(request.Text) > s.config.MaxTextLength {
		return nil, fmt.Errorf("%w: limit is %d characters", domain.ErrTextTooLong, s.config.MaxTextLength)
	}

	result := Analyze(request.Text, request.Profile)
	return &result, nil
}

// ScanText analyzes label text.
// Flow: clean -> validate -> detection (cached) -> profile match -> keyword fallback -> merge
func (s *ScanService) ScanText(ctx context.Context, request *domain.ScanTextRequest) (*domain.ScanResult, error) {
	if request == nil {
		return nil, domain.ErrInvalidRequest
	}

	cleaned := s.cleaner.Clean(request.Text)
	if err := s.validateText(cleaned); err != nil {
		return nil, err
	}
	profile := SanitizeProfile(request.Profile)

	var (
		detectionLayer *layerOutcome
		profileLayer   *layerOutcome
		warning        string
	)

	if s.detector != nil {
		outcome, err := s.runDetection(ctx, cleaned, profile)
		if err != nil {
			log.Printf("[SCAN] Detection failed, falling back to local matching: %v", err)
			warning = detectionWarning
		} else {
			detectionLayer = outcome
		}
	}

	if len(profile) > 0 {
		profileLayer = runProfile(cleaned, profile)
	}

	var keywordLayer *layerOutcome
	if len(profile) == 0 || (countMatches(detectionLayer) == 0 && countMatches(profileLayer) == 0) {
		keywordLayer = runKeywords(cleaned, profile)
	}

	result := s.merge(profileLayer, detectionLayer, nil, keywordLayer)
	result.Precautionary = HasPrecautionaryContext(cleaned)
	result.Warning = warning

	if s.config.EnableDebugLogging {
		log.Printf("[SCAN] Text scan %s: %s with %d matches (layers %v)",
			result.ScanID, result.Classification, len(result.Matches), result.Layers)
	}

	s.record("text", result)
	return result, nil
}

// ScanBarcode looks a product up and analyzes its declared allergens and ingredients.
// Flow: validate -> product (cached) -> barcode tags -> profile match -> keyword fallback -> merge
func (s *ScanService) ScanBarcode(ctx context.Context, request *domain.ScanBarcodeRequest) (*domain.ScanResult, error) {
	if request == nil {
		return nil, domain.ErrInvalidRequest
	}

	barcode := strings.TrimSpace(request.Barcode)
	if !barcodePattern.MatchString(barcode) {
		return nil, fmt.Errorf("%w: %q must be 8 to 14 digits", domain.ErrInvalidBarcode, request.Barcode)
	}
	profile := SanitizeProfile(request.Profile)

	product, err := s.getProduct(ctx, barcode)
	if err != nil {
		return nil, err
	}

	barcodeMatches := openfoodfacts.MapToMatches(product, profile)
	barcodeLayer := &layerOutcome{
		name:           domain.LayerBarcode,
		matches:        barcodeMatches,
		classification: verdictFor(barcodeMatches, profile),
	}

	text := s.cleaner.Clean(strings.Join(nonEmpty(product.IngredientsText, product.AllergensText), ". "))

	var profileLayer *layerOutcome
	if len(profile) > 0 && text != "" {
		profileLayer = runProfile(text, profile)
	}

	var keywordLayer *layerOutcome
	if text != "" && (len(profile) == 0 || (countMatches(barcodeLayer) == 0 && countMatches(profileLayer) == 0)) {
		keywordLayer = runKeywords(text, profile)
	}

	result := s.merge(profileLayer, nil, barcodeLayer, keywordLayer)
	result.Precautionary = HasPrecautionaryContext(text)
	result.Product = &domain.ProductSummary{
		Barcode:         product.Barcode,
		Name:            product.Name,
		Brand:           product.Brand,
		IngredientsText: product.IngredientsText,
	}

	if s.config.EnableDebugLogging {
		log.Printf("[SCAN] Barcode scan %s (%s): %s with %d matches",
			result.ScanID, barcode, result.Classification, len(result.Matches))
	}

	s.record("barcode", result)
	return result, nil
}

// DetectionStatus reports whether the ML detection service is reachable
func (s *ScanService) DetectionStatus(ctx context.Context) string {
	if s.detector == nil {
		return DetectionDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.detector.Health(ctx); err != nil {
		log.Printf("[SCAN] Detection health check failed: %v", err)
		return DetectionDown
	}
	return DetectionUp
}

// validateText enforces the rune-length bounds on cleaned text
func (s *ScanService) validateText(text string) error {
	n := utf8.RuneCountInString(text)
	if n < s.config.MinTextLength {
		return fmt.Errorf("%w: text must be at least %d characters", domain.ErrInvalidRequest, s.config.MinTextLength)
	}
	if n > s.config.MaxTextLength {
		return fmt.Errorf("%w: limit is %d characters", domain.ErrTextTooLong, s.config.MaxTextLength)
	}
	return nil
}

// runDetection queries the detection service, serving repeated texts from cache
func (s *ScanService) runDetection(ctx context.Context, text string, profile []domain.AllergenProfileEntry) (*layerOutcome, error) {
	cacheKey := detectionCacheKey(text)

	response, err := s.getDetectionFromCache(ctx, cacheKey)
	if err != nil {
		start := time.Now()
		response, err = s.detector.DetectText(ctx, text)
		if s.recorder != nil {
			s.recorder.RecordDetection(time.Since(start), err)
		}
		if err != nil {
			return nil, err
		}
		s.setInCache(ctx, cacheKey, response, s.config.DetectionCacheTTL)
	}

	matches := detection.MapToMatches(response, profile)
	return &layerOutcome{
		name:           domain.LayerDetection,
		matches:        matches,
		classification: verdictFor(matches, profile),
	}, nil
}

// getProduct fetches a product from cache or the product database
func (s *ScanService) getProduct(ctx context.Context, barcode string) (*domain.Product, error) {
	cacheKey := "product:" + barcode

	if data, err := s.getCached(ctx, cacheKey); err == nil {
		var product domain.Product
		if err := json.Unmarshal(data, &product); err == nil {
			return &product, nil
		}
		log.Printf("[SCAN] Discarding unreadable cache entry %s", cacheKey)
	}

	if s.products == nil {
		return nil, fmt.Errorf("%w: no product database configured", domain.ErrProductLookupFailure)
	}

	product, err := s.products.GetProduct(ctx, barcode)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) || errors.Is(err, domain.ErrProductLookupFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProductLookupFailure, err)
	}

	s.setInCache(ctx, cacheKey, product, s.config.ProductCacheTTL)
	return product, nil
}

func (s *ScanService) getDetectionFromCache(ctx context.Context, key string) (*domain.DetectionResponse, error) {
	data, err := s.getCached(ctx, key)
	if err != nil {
		return nil, err
	}

	var response domain.DetectionResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, domain.ErrCacheMiss
	}
	return &response, nil
}

// getCached reads a raw cache entry; cache faults count as misses
func (s *ScanService) getCached(ctx context.Context, key string) ([]byte, error) {
	if s.cache == nil {
		return nil, domain.ErrCacheMiss
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		log.Printf("[CACHE] Get %s failed: %v", key, err)
	}
	return data, err
}

// setInCache stores value as JSON. Failures are logged, never returned.
func (s *ScanService) setInCache(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[CACHE] Encode %s failed: %v", key, err)
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		log.Printf("[CACHE] Set %s failed: %v", key, err)
	}
}

// merge concatenates layer matches in the given order, keeps the first match per name
// and takes the most severe layer verdict
func (s *ScanService) merge(layers ...*layerOutcome) *domain.ScanResult {
	result := &domain.ScanResult{
		ScanID:         uuid.NewString(),
		Classification: domain.ClassificationSafe,
		Matches:        make([]domain.MatchResult, 0),
		Layers:         make([]string, 0, len(layers)),
		AnalyzedAt:     s.now().UTC(),
	}

	seen := make(map[string]bool)
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		result.Layers = append(result.Layers, layer.name)
		result.Classification = domain.MostSevere(result.Classification, layer.classification)

		for _, m := range layer.matches {
			key := strings.ToLower(strings.TrimSpace(m.Name))
			if seen[key] {
				continue
			}
			seen[key] = true
			result.Matches = append(result.Matches, m)
		}
	}

	return result
}

func (s *ScanService) record(kind string, result *domain.ScanResult) {
	if s.recorder != nil {
		s.recorder.RecordScan(kind, result)
	}
}

// runProfile is the whole-word profile matcher layer
func runProfile(text string, profile []domain.AllergenProfileEntry) *layerOutcome {
	analysis := Analyze(text, profile)
	return &layerOutcome{
		name:           domain.LayerProfile,
		matches:        analysis.Matches,
		classification: analysis.Classification,
	}
}

// runKeywords is the substring fallback layer. With a profile, hits are kept only when
// they resolve to a profile entry. Precautionary phrasing alone also yields CAUTION.
func runKeywords(text string, profile []domain.AllergenProfileEntry) *layerOutcome {
	hits := ScanKeywords(text)

	matches := make([]domain.MatchResult, 0, len(hits))
	for _, hit := range hits {
		if len(profile) > 0 {
			name, ok := domain.ResolveLabel(hit.Name, profile)
			if !ok {
				continue
			}
			hit.Name = name
		}
		matches = append(matches, hit)
	}

	classification := domain.ClassificationSafe
	if len(matches) > 0 || HasPrecautionaryContext(text) {
		classification = domain.ClassificationCaution
	}

	return &layerOutcome{
		name:           domain.LayerKeywords,
		matches:        matches,
		classification: classification,
	}
}

// verdictFor rates matches reported by an upstream source.
// Against a user's profile they are UNSAFE; anonymous scans only get CAUTION.
func verdictFor(matches []domain.MatchResult, profile []domain.AllergenProfileEntry) domain.Classification {
	if len(matches) == 0 {
		return domain.ClassificationSafe
	}
	if len(profile) > 0 {
		return domain.ClassificationUnsafe
	}
	return domain.ClassificationCaution
}

func countMatches(layer *layerOutcome) int {
	if layer == nil {
		return 0
	}
	return len(layer.matches)
}

// SanitizeProfile trims names and synonyms, dropping blank synonyms and nameless entries
func SanitizeProfile(profile []domain.AllergenProfileEntry) []domain.AllergenProfileEntry {
	sanitized := make([]domain.AllergenProfileEntry, 0, len(profile))
	for _, entry := range profile {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}

		var synonyms []string
		for _, synonym := range entry.Synonyms {
			if synonym = strings.TrimSpace(synonym); synonym != "" {
				synonyms = append(synonyms, synonym)
			}
		}

		sanitized = append(sanitized, domain.AllergenProfileEntry{Name: name, Synonyms: synonyms})
	}
	return sanitized
}

// detectionCacheKey keys detection responses by a digest of the cleaned text.
// Format: "detection:{sha256 hex}"
func detectionCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "detection:" + hex.EncodeToString(sum[:])
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
