package openfoodfacts

import (
	"strings"

	"github.com/safeeats/backend/internal/domain"
)

// barcodeMatchConfidence is the score for allergens declared in the product database
const barcodeMatchConfidence = 0.95

// MapToProduct converts an OpenFoodFacts product to our domain Product
func MapToProduct(barcode string, p offProduct) *domain.Product {
	return &domain.Product{
		Barcode:         barcode,
		Name:            strings.TrimSpace(p.ProductName),
		Brand:           firstBrand(p.Brands),
		IngredientsText: strings.TrimSpace(p.IngredientsText),
		AllergensText:   strings.TrimSpace(p.Allergens),
		AllergenTags:    p.AllergensTags,
	}
}

// MapToMatches turns the product's allergen tags into barcode matches,
// keeping only tags that resolve against the profile when one is given
func MapToMatches(product *domain.Product, profile []domain.AllergenProfileEntry) []domain.MatchResult {
	matches := make([]domain.MatchResult, 0)
	if product == nil {
		return matches
	}

	seen := make(map[string]bool)
	for _, tag := range product.AllergenTags {
		label := StripLanguage(tag)
		name, ok := domain.ResolveLabel(label, profile)
		if !ok || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		matches = append(matches, domain.MatchResult{
			Name:       name,
			Source:     domain.SourceBarcode,
			Snippet:    label,
			Confidence: barcodeMatchConfidence,
		})
	}
	return matches
}

// StripLanguage removes the taxonomy language prefix: "en:milk" -> "milk"
func StripLanguage(tag string) string {
	if idx := strings.Index(tag, ":"); idx >= 0 {
		return strings.TrimSpace(tag[idx+1:])
	}
	return strings.TrimSpace(tag)
}

// firstBrand returns the first entry of the comma-separated brands field
func firstBrand(brands string) string {
	if idx := strings.Index(brands, ","); idx >= 0 {
		brands = brands[:idx]
	}
	return strings.TrimSpace(brands)
}
