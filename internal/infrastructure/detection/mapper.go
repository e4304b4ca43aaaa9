package detection

import (
	"sort"

	"github.com/safeeats/backend/internal/domain"
)

// MapToMatches converts a detection response into ocr matches.
// Labels are visited in sorted order so results are stable. Each label yields one match
// carrying its highest-confidence entity; labels outside a non-empty profile are dropped.
func MapToMatches(resp *domain.DetectionResponse, profile []domain.AllergenProfileEntry) []domain.MatchResult {
	matches := make([]domain.MatchResult, 0)
	if resp == nil {
		return matches
	}

	labels := make([]string, 0, len(resp.DetectedAllergens))
	for label := range resp.DetectedAllergens {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	seen := make(map[string]bool)
	for _, label := range labels {
		name, ok := domain.ResolveLabel(label, profile)
		if !ok || seen[name] {
			continue
		}

		best, found := strongestEntity(resp.DetectedAllergens[label])
		if !found {
			continue
		}
		seen[name] = true

		matches = append(matches, domain.MatchResult{
			Name:       name,
			Source:     domain.SourceOCR,
			Snippet:    best.Text,
			Confidence: clampConfidence(best.Confidence),
		})
	}

	return matches
}

// strongestEntity returns the entity with the highest confidence
func strongestEntity(entities []domain.DetectedEntity) (domain.DetectedEntity, bool) {
	if len(entities) == 0 {
		return domain.DetectedEntity{}, false
	}
	best := entities[0]
	for _, e := range entities[1:] {
		if e.Confidence > best.Confidence {
			best = e
		}
	}
	return best, true
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
