package usecase

import (
	"log"
	"regexp"
	"strings"

	"github.com/k3a/html2text"
	"golang.org/x/text/unicode/norm"
)

// Compiled regex patterns for text cleaning
var (
	// Matches anything that looks like an HTML/XML tag or comment
	htmlTagPattern = regexp.MustCompile(`<\s*[a-zA-Z!/][^>]*>`)

	// Matches runs of underscores left behind by OCR table borders
	underscorePattern = regexp.MustCompile(`_+`)

	// Multiple whitespace cleanup, including line breaks and tabs
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// TextCleaner normalizes pasted or OCR text before detection
type TextCleaner struct {
	enableDebugLogging bool
}

// NewTextCleaner creates a new text cleaner
func NewTextCleaner(enableDebugLogging bool) *TextCleaner {
	return &TextCleaner{
		enableDebugLogging: enableDebugLogging,
	}
}

// Clean prepares label text for allergen detection.
// Strips HTML markup, applies NFKC normalization (ligatures, full-width forms),
// drops underscores and collapses whitespace. Casing is preserved.
func (c *TextCleaner) Clean(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	original := text
	cleaned := text

	// Step 1: Pasted web content arrives as markup
	if looksLikeHTML(cleaned) {
		cleaned = html2text.HTML2Text(cleaned)
	}

	// Step 2: Fold compatibility characters, e.g. "ﬂour" -> "flour"
	cleaned = norm.NFKC.String(cleaned)

	// Step 3: Remove OCR underscores
	cleaned = underscorePattern.ReplaceAllString(cleaned, "")

	// Step 4: Normalize whitespace
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if c.enableDebugLogging {
		log.Printf("[CLEAN] Input: %d chars → Output: %q", len(original), truncateForLog(cleaned, 80))
	}

	return cleaned
}

// looksLikeHTML reports whether text contains at least one markup tag
func looksLikeHTML(text string) bool {
	return strings.Contains(text, "<") && htmlTagPattern.MatchString(text)
}

// truncateForLog shortens s to at most n runes for log lines
func truncateForLog(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
