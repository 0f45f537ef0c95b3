package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lumen/internal/graph"
)

func goldenAssert(t *testing.T, name string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// TestRunGoldenMergedLayers pins the host-facing shape of the merged
// layer: per-primitive capability series with window-spanning samples
// for constant inputs.
func TestRunGoldenMergedLayers(t *testing.T) {
	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("sel", "select", map[string]any{"selected_ids": `["bar-1"]`}),
			node("dim", "scalar", map[string]any{"value": 0.5}),
			node("str", "scalar", map[string]any{"value": 2}),
			node("apply_dim", "apply_dimmer", nil),
			node("apply_str", "apply_strobe", nil),
		},
		Edges: []graph.Edge{
			edge("sel", "out", "apply_dim", "selection"),
			edge("dim", "out", "apply_dim", "signal"),
			edge("sel", "out", "apply_str", "selection"),
			edge("str", "out", "apply_str", "signal"),
		},
	}

	ev := venueEvaluator(t)
	ev.RunIDs = NewFixedGenerator("golden-merged")

	_, merged, err := ev.Run(context.Background(), g, window())
	require.NoError(t, err)

	goldenAssert(t, "merged_layers", merged)
}

// TestRunGoldenRunResult pins the result envelope: view taps, color
// previews for graph args, and the arg summary.
func TestRunGoldenRunResult(t *testing.T) {
	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("args", "pattern_args", nil),
			node("view", "view_signal", nil),
		},
		Edges: []graph.Edge{
			edge("args", "speed", "view", "in"),
		},
		Args: []graph.PatternArgDef{
			{ID: "speed", Name: "Speed", ArgType: graph.PatternArgScalar, DefaultValue: json.RawMessage(`0.5`)},
			{ID: "tint", Name: "Tint", ArgType: graph.PatternArgColor, DefaultValue: json.RawMessage(`{"r":0,"g":128,"b":255,"a":1}`)},
		},
	}

	ev := &Evaluator{
		Logger: discardLogger(),
		RunIDs: NewFixedGenerator("golden-result"),
		Config: Config{ComputeVisualizations: true},
	}

	result, _, err := ev.Run(context.Background(), g, window())
	require.NoError(t, err)

	// Timings carry wall-clock values; null them so the snapshot stays
	// stable across machines.
	result.Timings = nil

	goldenAssert(t, "run_result", result)
}
