package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one evaluation test scenario. A scenario names a
// graph document, the venue it runs against, and the context window,
// plus assertions on the merged output layer.
type Scenario struct {
	// Name uniquely identifies this scenario; it is also the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is the path to the graph JSON document, relative to the
	// scenario file location.
	Graph string `yaml:"graph"`

	// Venue lists the fixtures seeded into the throwaway project store
	// before the run.
	Venue []VenueFixture `yaml:"venue,omitempty"`

	// Context is the run window and overrides.
	Context WindowSpec `yaml:"context"`

	// Assertions validate the merged output layer.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// VenueFixture describes one fixture to seed. Positions are meters,
// head offsets millimeters, matching the store's units.
type VenueFixture struct {
	ID       string      `yaml:"id"`
	Name     string      `yaml:"name,omitempty"`
	Mode     string      `yaml:"mode,omitempty"`
	Position []float64   `yaml:"position,omitempty"`
	Heads    [][]float64 `yaml:"heads,omitempty"`
	Tags     []string    `yaml:"tags,omitempty"`
}

// WindowSpec is the run context: window, track, and overrides.
type WindowSpec struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Track int64   `yaml:"track,omitempty"`

	// Seed pins per-node randomness for deterministic scenarios.
	Seed *uint64 `yaml:"seed,omitempty"`

	// Args overrides graph arguments; values are raw JSON strings.
	Args map[string]string `yaml:"args,omitempty"`
}

// Assertion validates the merged output layer.
type Assertion struct {
	// Type specifies the assertion type:
	// - "primitive_count": Check how many primitives are animated
	// - "has_capability": Check a primitive carries a capability series
	// - "sample_value": Check one sample of a capability series
	Type string `yaml:"type"`

	// Count is the expected primitive count (primitive_count).
	Count int `yaml:"count,omitempty"`

	// Primitive is the primitive id (has_capability, sample_value).
	Primitive string `yaml:"primitive,omitempty"`

	// Capability names the series: color, dimmer, position, strobe, speed.
	Capability string `yaml:"capability,omitempty"`

	// Sample indexes into the series samples (sample_value).
	Sample int `yaml:"sample,omitempty"`

	// Channel indexes into the sample values (sample_value).
	Channel int `yaml:"channel,omitempty"`

	// Value is the expected sample value (sample_value).
	Value float64 `yaml:"value,omitempty"`

	// Tolerance is the allowed absolute difference; 0 means exact.
	Tolerance float64 `yaml:"tolerance,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. The graph path is
// resolved relative to the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) {
		scenario.Graph = filepath.Join(filepath.Dir(path), scenario.Graph)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph path is required")
	}
	if s.Context.End <= s.Context.Start {
		return fmt.Errorf("context end %g must be after start %g", s.Context.End, s.Context.Start)
	}
	for i, f := range s.Venue {
		if f.ID == "" {
			return fmt.Errorf("venue fixture %d has no id", i)
		}
		if len(f.Position) != 0 && len(f.Position) != 3 {
			return fmt.Errorf("venue fixture %q position must have 3 components", f.ID)
		}
		for h, head := range f.Heads {
			if len(head) != 3 {
				return fmt.Errorf("venue fixture %q head %d must have 3 components", f.ID, h)
			}
		}
	}
	for i, a := range s.Assertions {
		switch a.Type {
		case "primitive_count", "has_capability", "sample_value":
		default:
			return fmt.Errorf("assertion %d has unknown type %q", i, a.Type)
		}
	}
	return nil
}
