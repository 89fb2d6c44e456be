package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/catalogfeed/types"
)

// Fixture is the YAML document shape accepted by LoadFixture.
type Fixture struct {
	Items []types.Item `yaml:"items"`
}

// LoadFixture reads a YAML fixture file into a MemoryStore.
func LoadFixture(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture parses YAML fixture bytes into a MemoryStore.
// Duplicate ids and non-positive ids are rejected.
func ParseFixture(data []byte) (*MemoryStore, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	seen := make(map[types.ItemID]bool, len(fx.Items))
	for i, it := range fx.Items {
		if it.ID <= 0 {
			return nil, fmt.Errorf("items[%d]: id must be > 0", i)
		}
		if seen[it.ID] {
			return nil, fmt.Errorf("items[%d]: duplicate id %d", i, it.ID)
		}
		seen[it.ID] = true
	}
	return NewMemoryStore(fx.Items...), nil
}
