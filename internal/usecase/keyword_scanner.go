package usecase

import (
	"strings"

	"github.com/safeeats/backend/internal/domain"
)

// keywordMatchConfidence is the score given to fallback keyword hits
const keywordMatchConfidence = 0.5

// commonAllergenTerms is the fallback scan list, checked in order.
// Variants are folded into a canonical name by keywordNormalization.
var commonAllergenTerms = []string{
	// Peanuts & tree nuts
	"peanut", "peanuts", "groundnut", "tree nut", "tree nuts",
	"almond", "almonds", "walnut", "walnuts", "cashew", "cashews",
	"hazelnut", "hazelnuts", "pecan", "pecans", "pistachio", "pistachios", "macadamia",
	// Dairy
	"milk", "lactose", "casein", "whey", "butter", "cheese", "cream", "yogurt",
	// Eggs
	"egg", "eggs", "albumin",
	// Gluten cereals
	"wheat", "gluten", "barley", "rye",
	// Soy
	"soy", "soya", "soybean", "soybeans",
	// Fish & shellfish
	"fish", "shellfish", "shrimp", "shrimps", "prawn", "prawns", "crab", "lobster",
	// Seeds & others
	"sesame", "mustard", "celery", "lupin", "sulfite", "sulfites", "sulphite", "sulphites",
}

// keywordNormalization maps plural and spelling variants to a canonical term
var keywordNormalization = map[string]string{
	"peanuts":    "peanut",
	"groundnut":  "peanut",
	"tree nuts":  "tree nut",
	"almonds":    "almond",
	"walnuts":    "walnut",
	"cashews":    "cashew",
	"hazelnuts":  "hazelnut",
	"pecans":     "pecan",
	"pistachios": "pistachio",
	"eggs":       "egg",
	"albumin":    "egg",
	"soya":       "soy",
	"soybean":    "soy",
	"soybeans":   "soy",
	"shrimps":    "shrimp",
	"prawn":      "shrimp",
	"prawns":     "shrimp",
	"sulfites":   "sulfite",
	"sulphite":   "sulfite",
	"sulphites":  "sulfite",
}

// NormalizeKeyword folds a term into its canonical fallback name
func NormalizeKeyword(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if canonical, ok := keywordNormalization[term]; ok {
		return canonical
	}
	return term
}

// CommonAllergens returns the canonical names covered by the fallback scan, in scan order
func CommonAllergens() []string {
	seen := make(map[string]bool)
	var names []string
	for _, term := range commonAllergenTerms {
		canonical := NormalizeKeyword(term)
		if !seen[canonical] {
			seen[canonical] = true
			names = append(names, canonical)
		}
	}
	return names
}

// ScanKeywords runs the best-effort fallback scan: case-insensitive substring containment
// of the common allergen terms, deduplicated by canonical name. Word boundaries are not
// enforced. Hits are tagged may_contain so any hit classifies as CAUTION.
func ScanKeywords(text string) []domain.MatchResult {
	normalized := strings.ToLower(text)
	matches := make([]domain.MatchResult, 0)
	seen := make(map[string]bool)

	for _, term := range commonAllergenTerms {
		canonical := NormalizeKeyword(term)
		if seen[canonical] {
			continue
		}

		idx := strings.Index(normalized, term)
		if idx < 0 {
			continue
		}
		seen[canonical] = true

		matches = append(matches, domain.MatchResult{
			Name:       canonical,
			Source:     domain.SourceMayContain,
			Snippet:    extractSnippet(normalized, idx, idx+len(term)),
			Confidence: keywordMatchConfidence,
		})
	}

	return matches
}
