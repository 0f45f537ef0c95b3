package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/lumen/internal/graph"
)

// Snapshot is the golden file payload for one scenario: the merged
// output layer under the scenario's name.
type Snapshot struct {
	ScenarioName string                `json:"scenario_name"`
	Layers       graph.LayerTimeSeries `json:"layers"`
}

// RunWithGolden executes a scenario and compares the merged layer
// against a golden file. The golden file is stored in
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the layer doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares a result's merged layer against a golden file.
// This is useful when you've already run a scenario and want to compare
// without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Layers:       result.Layers,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
}
