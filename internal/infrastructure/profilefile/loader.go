// Package profilefile reads allergen profiles from YAML or JSON files.
//
// Accepted shapes:
//
//	- name: Milk
//	  synonyms: [casein, whey]
//	- Peanut
//
// or the same list under an "allergens" key.
package profilefile

import (
	"fmt"
	"os"
	"strings"

	"github.com/safeeats/backend/internal/domain"
	"gopkg.in/yaml.v3"
)

type profileDocument struct {
	Allergens yaml.Node `yaml:"allergens"`
}

// Load reads and parses a profile file
func Load(path string) ([]domain.AllergenProfileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes a profile document. Bare strings become entries without synonyms.
func Parse(data []byte) ([]domain.AllergenProfileEntry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidProfile, err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return []domain.AllergenProfileEntry{}, nil
	}

	list := root.Content[0]
	if list.Kind == yaml.MappingNode {
		var doc profileDocument
		if err := list.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidProfile, err)
		}
		if doc.Allergens.Kind == 0 {
			return nil, fmt.Errorf("%w: missing allergens list", domain.ErrInvalidProfile)
		}
		list = &doc.Allergens
	}

	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: expected a list of allergens", domain.ErrInvalidProfile)
	}

	profile := make([]domain.AllergenProfileEntry, 0, len(list.Content))
	for i, item := range list.Content {
		entry, err := decodeEntry(item)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", domain.ErrInvalidProfile, i+1, err)
		}
		profile = append(profile, entry)
	}
	return profile, nil
}

func decodeEntry(node *yaml.Node) (domain.AllergenProfileEntry, error) {
	var entry domain.AllergenProfileEntry

	switch node.Kind {
	case yaml.ScalarNode:
		entry.Name = node.Value
	case yaml.MappingNode:
		if err := node.Decode(&entry); err != nil {
			return entry, err
		}
	default:
		return entry, fmt.Errorf("unsupported value at line %d", node.Line)
	}

	entry.Name = strings.TrimSpace(entry.Name)
	if entry.Name == "" {
		return entry, fmt.Errorf("name is required (line %d)", node.Line)
	}
	return entry, nil
}
