package incidents

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

var seed = mustParseSeed(seedYAML)

func mustParseSeed(raw []byte) []Incident {
	items, err := parseSeed(raw)
	if err != nil {
		panic(err)
	}
	return items
}

func parseSeed(raw []byte) ([]Incident, error) {
	var items []Incident
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	ids := map[int64]struct{}{}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
		if _, dup := ids[item.ID]; dup {
			return nil, fmt.Errorf("seed: duplicate id %d", item.ID)
		}
		ids[item.ID] = struct{}{}
	}
	return items, nil
}

// Seed returns a copy of the built-in incidents.
func Seed() []Incident {
	out := make([]Incident, len(seed))
	copy(out, seed)
	return out
}
