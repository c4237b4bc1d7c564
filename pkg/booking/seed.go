package booking

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// seedFile is the provider seed document:
//
//	providers:
//	  - id: t-1
//	    full_name: Dr. Ada Park
//	    specialization: Anxiety
type seedFile struct {
	Providers []Provider `yaml:"providers"`
}

// LoadProviders parses a YAML provider seed. Every provider needs an id and a
// name; ids must be unique.
func LoadProviders(data []byte) ([]Provider, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("booking: parse provider seed: %w", err)
	}
	seen := make(map[string]bool, len(f.Providers))
	for i, p := range f.Providers {
		if p.ID == "" || p.FullName == "" {
			return nil, fmt.Errorf("booking: provider %d: id and full_name are required", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("booking: duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return f.Providers, nil
}
