package domain

// AllergenProfileEntry is one user-declared allergen to watch for
type AllergenProfileEntry struct {
	Name     string   `json:"name" yaml:"name" binding:"required"`
	Synonyms []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
}

// Terms returns the candidate terms in declaration order, canonical name first
func (e AllergenProfileEntry) Terms() []string {
	terms := make([]string, 0, len(e.Synonyms)+1)
	terms = append(terms, e.Name)
	return append(terms, e.Synonyms...)
}

// Source tags where a match came from
type Source string

const (
	SourceIngredients Source = "ingredients" // Direct, declared-ingredient match
	SourceMayContain  Source = "may_contain" // Matched within precautionary labeling
	SourceOCR         Source = "ocr"         // Reported by the ML detection service
	SourceBarcode     Source = "barcode"     // Reported by the product database
)

// Classification is the overall safety verdict for an analysis
type Classification string

const (
	ClassificationSafe    Classification = "SAFE"
	ClassificationCaution Classification = "CAUTION"
	ClassificationUnsafe  Classification = "UNSAFE"
)

// Severity orders classifications: SAFE < CAUTION < UNSAFE.
// Unknown values rank with SAFE.
func (c Classification) Severity() int {
	switch c {
	case ClassificationUnsafe:
		return 2
	case ClassificationCaution:
		return 1
	default:
		return 0
	}
}

// MostSevere returns the most severe of the given classifications, SAFE if none
func MostSevere(classifications ...Classification) Classification {
	result := ClassificationSafe
	for _, c := range classifications {
		if c.Severity() > result.Severity() {
			result = c
		}
	}
	return result
}

// MatchResult is one detected allergen occurrence
type MatchResult struct {
	Name       string  `json:"name"`
	Source     Source  `json:"source"`
	Snippet    string  `json:"snippet,omitempty"`
	Confidence float64 `json:"confidence"` // 0-1
}

// AnalysisResult is the output of the allergen matcher
type AnalysisResult struct {
	Matches        []MatchResult  `json:"matches"`
	Classification Classification `json:"classification"`
}
