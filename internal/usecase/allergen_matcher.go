package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/safeeats/backend/internal/domain"
)

// Match confidence scores
const (
	directMatchConfidence        = 0.9 // Term found with no precautionary phrasing in the text
	precautionaryMatchConfidence = 0.6 // Term found in a text carrying "may contain" phrasing
)

// snippetContext is the number of characters kept on each side of a match
const snippetContext = 30

// pluralSuffixes may follow a term before the closing word boundary ("egg" matches "eggs")
var pluralSuffixes = []string{"es", "s"}

// precautionaryPatterns match advisory labeling language against lower-cased text.
// A hit anywhere flags the whole text; clauses are not scoped.
var precautionaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bmay\s+contain\b`),
	regexp.MustCompile(`\bmay\s+contain\s+traces?\s+of\b`),
	regexp.MustCompile(`\bproduced\s+in\s+a\s+facility\s+that\s+(also\s+)?process(es)?\b`),
	regexp.MustCompile(`\b(manufactured|made|packed|processed)\s+in\s+a\s+facility\b`),
	regexp.MustCompile(`\btraces?\s+of\b`),
	regexp.MustCompile(`\bcross[\s-]?(contaminat|contact)`),
	regexp.MustCompile(`\bshared\s+equipment\b`),
}

// Analyze compares text against an allergen profile and classifies the result.
//
// Matching is case-insensitive and whole-word: the characters immediately before and
// after a term must be non-alphanumeric or a text boundary, with an optional plural suffix
// allowed before the closing boundary. For each profile entry the canonical name is tried
// first, then synonyms in declaration order; the first term that matches wins and the entry
// yields a single MatchResult. If the text contains precautionary phrasing anywhere, every
// match is tagged may_contain with lower confidence.
//
// Analyze never fails and does not modify its inputs.
func Analyze(text string, profile []domain.AllergenProfileEntry) domain.AnalysisResult {
	normalized := strings.ToLower(text)
	mayContain := hasPrecautionaryContext(normalized)

	source := domain.SourceIngredients
	confidence := directMatchConfidence
	if mayContain {
		source = domain.SourceMayContain
		confidence = precautionaryMatchConfidence
	}

	matches := make([]domain.MatchResult, 0)
	matched := make(map[string]bool, len(profile))

	for _, entry := range profile {
		name := strings.TrimSpace(entry.Name)
		key := strings.ToLower(name)
		if key == "" || matched[key] {
			continue
		}

		start, end, ok := firstMatchingTerm(normalized, entry)
		if !ok {
			continue
		}
		matched[key] = true

		matches = append(matches, domain.MatchResult{
			Name:       name,
			Source:     source,
			Snippet:    extractSnippet(normalized, start, end),
			Confidence: confidence,
		})
	}

	return domain.AnalysisResult{
		Matches:        matches,
		Classification: Classify(matches, mayContain),
	}
}

// Classify derives the verdict from a match list and the precautionary flag.
// A single ingredients match forces UNSAFE regardless of other matches.
func Classify(matches []domain.MatchResult, mayContain bool) domain.Classification {
	for _, m := range matches {
		if m.Source == domain.SourceIngredients {
			return domain.ClassificationUnsafe
		}
	}
	if len(matches) > 0 || mayContain {
		return domain.ClassificationCaution
	}
	return domain.ClassificationSafe
}

// HasPrecautionaryContext reports whether text contains "may contain" style phrasing
func HasPrecautionaryContext(text string) bool {
	return hasPrecautionaryContext(strings.ToLower(text))
}

func hasPrecautionaryContext(normalized string) bool {
	for _, pattern := range precautionaryPatterns {
		if pattern.MatchString(normalized) {
			return true
		}
	}
	return false
}

// firstMatchingTerm returns the byte span of the first candidate term of entry found
// as a whole word in normalized text. Blank terms are skipped.
func firstMatchingTerm(normalized string, entry domain.AllergenProfileEntry) (int, int, bool) {
	for _, term := range entry.Terms() {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if start, end := indexWholeWord(normalized, term); start >= 0 {
			return start, end, true
		}
	}
	return 0, 0, false
}

// indexWholeWord returns the span of the first occurrence of term in text that is bounded
// by non-alphanumeric characters or the text edges, or -1, -1.
func indexWholeWord(text, term string) (int, int) {
	offset := 0
	for offset <= len(text)-len(term) {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return -1, -1
		}
		start := offset + i
		if boundaryBefore(text, start) {
			if end, ok := closingBoundary(text, start+len(term)); ok {
				return start, end
			}
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return -1, -1
}

// closingBoundary checks for a word boundary at end, or after a plural suffix at end.
// It returns the end of the matched word.
func closingBoundary(text string, end int) (int, bool) {
	if boundaryAfter(text, end) {
		return end, true
	}
	for _, suffix := range pluralSuffixes {
		if strings.HasPrefix(text[end:], suffix) && boundaryAfter(text, end+len(suffix)) {
			return end + len(suffix), true
		}
	}
	return 0, false
}

func boundaryBefore(text string, start int) bool {
	if start == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:start])
	return !isAlphanumeric(r)
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !isAlphanumeric(r)
}

func isAlphanumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// extractSnippet returns the match plus snippetContext characters on each side,
// clamped to the text and to rune boundaries.
func extractSnippet(text string, start, end int) string {
	from := max(start-snippetContext, 0)
	to := min(end+snippetContext, len(text))

	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}

	return text[from:to]
}
