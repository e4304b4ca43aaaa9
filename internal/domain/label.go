package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeLabel folds an allergen label for comparison.
// "TREE_NUTS", "tree-nuts" and "Tree Nut" all normalize to "tree nut".
func NormalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.NewReplacer("_", " ", "-", " ").Replace(label)
	label = strings.Join(strings.Fields(label), " ")
	return strings.TrimSuffix(label, "s")
}

// DisplayLabel renders a service label for anonymous scans, e.g. "TREE_NUT" -> "Tree Nut"
func DisplayLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.NewReplacer("_", " ", "-", " ").Replace(label)
	// cases.Caser is stateful and must not be shared between goroutines
	return cases.Title(language.English).String(strings.Join(strings.Fields(label), " "))
}

// ResolveLabel maps an upstream allergen label onto the profile.
// With an empty profile every label is kept under its display name; otherwise only labels
// equal to an entry name or synonym survive, reported under the entry name.
func ResolveLabel(label string, profile []AllergenProfileEntry) (string, bool) {
	normalized := NormalizeLabel(label)
	if normalized == "" {
		return "", false
	}
	if len(profile) == 0 {
		return DisplayLabel(label), true
	}

	for _, entry := range profile {
		for _, term := range entry.Terms() {
			if NormalizeLabel(term) == normalized {
				return entry.Name, true
			}
		}
	}
	return "", false
}
