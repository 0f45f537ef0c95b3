package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lumen/internal/fixture"
	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// node builds a NodeInstance with its params marshaled from Go values.
func node(id, typeID string, params map[string]any) graph.NodeInstance {
	p := make(map[string]json.RawMessage, len(params))
	for k, v := range params {
		raw, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		p[k] = raw
	}
	return graph.NodeInstance{ID: id, TypeID: typeID, Params: p}
}

func edge(fromNode, fromPort, toNode, toPort string) graph.Edge {
	return graph.Edge{
		ID:       fromNode + "." + fromPort + ">" + toNode + "." + toPort,
		FromNode: fromNode,
		FromPort: fromPort,
		ToNode:   toNode,
		ToPort:   toPort,
	}
}

// testRun builds a bare per-run view for exercising node runners
// directly, with inputs pre-seeded into state via wire + Set*.
func testRun(gctx graph.GraphContext) *run {
	return &run{
		eval:     &Evaluator{Logger: discardLogger()},
		gctx:     gctx,
		nodes:    map[string]*graph.NodeInstance{},
		incoming: map[string][]graph.Edge{},
		state:    NewExecutionState(),
		log:      discardLogger(),
	}
}

func wire(r *run, fromNode, fromPort, toNode, toPort string) {
	r.incoming[toNode] = append(r.incoming[toNode], edge(fromNode, fromPort, toNode, toPort))
}

// window is the default 4-second context used by most tests; it is
// short enough that generators bottom out at the preview resolution.
func window() graph.GraphContext {
	return graph.GraphContext{TrackID: 0, StartTime: 0, EndTime: 4}
}

// seedVenue creates a project store with one bar (4 heads) and one
// single-head spot, same shape the fixture resolver tests use.
func seedVenue(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "project.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.PutFixture(ctx, store.Fixture{
		ID: "bar-1", Name: "Bar", FixturePath: "f/bar.json", ModeName: "4head",
		PosX: 2, PosY: 0, PosZ: 3,
	}))
	require.NoError(t, s.PutFixtureHeads(ctx, "bar-1", "4head", []store.HeadOffset{
		{HeadIndex: 0, X: -300},
		{HeadIndex: 1, X: -100},
		{HeadIndex: 2, X: 100},
		{HeadIndex: 3, X: 300},
	}))
	require.NoError(t, s.PutFixture(ctx, store.Fixture{
		ID: "spot-1", Name: "Spot", FixturePath: "f/spot.json", ModeName: "std",
		PosX: -1, PosY: 5, PosZ: 0,
	}))
	return s
}

func venueEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	s := seedVenue(t)
	return &Evaluator{
		Store:    s,
		Resolver: &fixture.Resolver{Store: s},
		Logger:   discardLogger(),
	}
}

func TestRunExecutesInDependencyOrder(t *testing.T) {
	// Declared sink-first; the evaluator must still feed sum before
	// reading it.
	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("sum", "math", map[string]any{"operation": "add"}),
			node("a", "scalar", map[string]any{"value": 2}),
			node("b", "scalar", map[string]any{"value": 3}),
			node("view", "view_signal", nil),
		},
		Edges: []graph.Edge{
			edge("a", "out", "sum", "a"),
			edge("b", "out", "sum", "b"),
			edge("sum", "out", "view", "in"),
		},
	}

	e := &Evaluator{Logger: discardLogger(), Config: Config{ComputeVisualizations: true}}
	result, _, err := e.Run(context.Background(), g, window())
	require.NoError(t, err)

	sig, ok := result.Views["view"]
	require.True(t, ok)
	assert.Equal(t, []float32{5}, sig.Data)

	// Timings reflect execution order, not declaration order.
	var order []string
	for _, tm := range result.Timings {
		order = append(order, tm.ID)
	}
	sumAt, viewAt := -1, -1
	for i, id := range order {
		if id == "sum" {
			sumAt = i
		}
		if id == "view" {
			viewAt = i
		}
	}
	require.Len(t, order, 4)
	assert.Less(t, sumAt, viewAt)
	assert.Contains(t, order[:2], "a")
	assert.Contains(t, order[:2], "b")
}

func TestRunBreaksTiesInDeclarationOrder(t *testing.T) {
	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("z", "scalar", map[string]any{"value": 1}),
			node("a", "scalar", map[string]any{"value": 2}),
			node("m", "scalar", map[string]any{"value": 3}),
		},
	}

	e := &Evaluator{Logger: discardLogger()}
	result, _, err := e.Run(context.Background(), g, window())
	require.NoError(t, err)

	var order []string
	for _, tm := range result.Timings {
		order = append(order, tm.ID)
	}
	assert.Equal(t, []string{"z", "a", "m"}, order)
}

func TestRunCycleIsFatal(t *testing.T) {
	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("x", "math", nil),
			node("y", "math", nil),
		},
		Edges: []graph.Edge{
			edge("x", "out", "y", "a"),
			edge("y", "out", "x", "a"),
		},
	}

	e := &Evaluator{Logger: discardLogger()}
	_, _, err := e.Run(context.Background(), g, window())
	require.Error(t, err)
	assert.True(t, IsCycleError(err))

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Details["nodes"], "x")
	assert.Contains(t, re.Details["nodes"], "y")
}

func TestRunRejectsDanglingEdge(t *testing.T) {
	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("a", "scalar", map[string]any{"value": 1}),
		},
		Edges: []graph.Edge{
			edge("a", "out", "ghost", "in"),
		},
	}

	e := &Evaluator{Logger: discardLogger()}
	_, _, err := e.Run(context.Background(), g, window())
	require.Error(t, err)
	assert.True(t, IsMissingNodeError(err))
}

func TestRunSkipsUnknownNodeTypes(t *testing.T) {
	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("weird", "laser_array", nil),
			node("a", "scalar", map[string]any{"value": 7}),
			node("view", "view_signal", nil),
		},
		Edges: []graph.Edge{
			edge("a", "out", "view", "in"),
		},
	}

	e := &Evaluator{Logger: discardLogger(), Config: Config{ComputeVisualizations: true}}
	result, _, err := e.Run(context.Background(), g, window())
	require.NoError(t, err)

	sig, ok := result.Views["view"]
	require.True(t, ok)
	assert.Equal(t, []float32{7}, sig.Data)

	// Skipped nodes still cost time and get a timing entry.
	assert.Len(t, result.Timings, 3)
}

func TestRunWrapsNodeFailures(t *testing.T) {
	// chroma_palette with no chroma edge is a node-level failure.
	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("pal", "chroma_palette", nil),
		},
	}

	e := &Evaluator{Logger: discardLogger()}
	_, _, err := e.Run(context.Background(), g, window())
	require.Error(t, err)

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeNodeFailed, re.Code)
	assert.Equal(t, "pal", re.NodeID)
	assert.Equal(t, "chroma_palette", re.TypeID)
}

func TestRunNodeRecordsTimingOnFailure(t *testing.T) {
	r := testRun(window())
	n := node("pal", "chroma_palette", nil)

	err := r.runNode(context.Background(), &n)
	require.Error(t, err)

	require.Len(t, r.state.timings, 1)
	assert.Equal(t, "pal", r.state.timings[0].ID)
	assert.Equal(t, "chroma_palette", r.state.timings[0].TypeID)
}

func TestRunIsDeterministic(t *testing.T) {
	e := venueEvaluator(t)
	e.Config = Config{ComputeVisualizations: true}

	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("sel", "select", map[string]any{"selected_ids": `["bar-1"]`}),
			node("trig", "scalar", map[string]any{"value": 1}),
			node("mask", "random_select_mask", map[string]any{"count": 2}),
			node("nz", "noise", map[string]any{"scale": 2, "octaves": 3}),
			node("gain", "math", map[string]any{"operation": "multiply"}),
			node("dim", "apply_dimmer", nil),
			node("view", "view_signal", nil),
		},
		Edges: []graph.Edge{
			edge("sel", "out", "mask", "selection"),
			edge("trig", "out", "mask", "trigger"),
			edge("mask", "out", "gain", "a"),
			edge("nz", "out", "gain", "b"),
			edge("sel", "out", "dim", "selection"),
			edge("gain", "out", "dim", "signal"),
			edge("gain", "out", "view", "in"),
		},
	}

	runOnce := func() ([]byte, []byte) {
		result, merged, err := e.Run(context.Background(), g, window())
		require.NoError(t, err)
		result.Timings = nil // wall clock, varies between runs
		rj, err := json.Marshal(result)
		require.NoError(t, err)
		mj, err := json.Marshal(merged)
		require.NoError(t, err)
		return rj, mj
	}

	r1, m1 := runOnce()
	r2, m2 := runOnce()
	assert.Equal(t, r1, r2)
	assert.Equal(t, m1, m2)
}

func TestRunInstanceSeedChangesRandomness(t *testing.T) {
	e := venueEvaluator(t)

	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("sel", "select", map[string]any{"selected_ids": `["bar-1"]`}),
			node("trig", "scalar", map[string]any{"value": 1}),
			node("mask", "random_select_mask", map[string]any{"count": 1}),
			node("dim", "apply_dimmer", nil),
		},
		Edges: []graph.Edge{
			edge("sel", "out", "mask", "selection"),
			edge("trig", "out", "mask", "trigger"),
			edge("sel", "out", "dim", "selection"),
			edge("mask", "out", "dim", "signal"),
		},
	}

	gctx := window()
	_, base, err := e.Run(context.Background(), g, gctx)
	require.NoError(t, err)

	// With only one picked head out of four, at least one of a handful
	// of seeds must move the pick.
	moved := false
	for seed := uint64(1); seed <= 8 && !moved; seed++ {
		s := seed
		gctx.InstanceSeed = &s
		_, merged, err := e.Run(context.Background(), g, gctx)
		require.NoError(t, err)

		bj, _ := json.Marshal(base)
		mj, _ := json.Marshal(merged)
		moved = string(bj) != string(mj)
	}
	assert.True(t, moved)
}

func TestRunFixedGeneratorTagsLogs(t *testing.T) {
	e := &Evaluator{Logger: discardLogger(), RunIDs: NewFixedGenerator("run-1", "run-2")}
	g := &graph.Graph{Nodes: []graph.NodeInstance{node("a", "scalar", nil)}}

	_, _, err := e.Run(context.Background(), g, window())
	require.NoError(t, err)
	_, _, err = e.Run(context.Background(), g, window())
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _, _ = e.Run(context.Background(), g, window())
	})
}

func TestTopoOrderLinearChain(t *testing.T) {
	nodes := []graph.NodeInstance{
		{ID: "c"}, {ID: "b"}, {ID: "a"},
	}
	edges := []graph.Edge{
		edge("a", "out", "b", "in"),
		edge("b", "out", "c", "in"),
	}

	order, err := topoOrder(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestMergeLayersLastWriteWinsPerCapability(t *testing.T) {
	dim := func(v float32) *graph.Series {
		return &graph.Series{Dim: 1, Samples: []graph.SeriesSample{{Time: 0, Values: []float32{v}}}}
	}
	strobe := dim(0.25)

	merged := mergeLayers([]graph.LayerTimeSeries{
		{Primitives: []graph.PrimitiveTimeSeries{
			{PrimitiveID: "p1", Dimmer: dim(0.1)},
			{PrimitiveID: "p2", Dimmer: dim(0.2)},
		}},
		{Primitives: []graph.PrimitiveTimeSeries{
			{PrimitiveID: "p1", Dimmer: dim(0.9)},
			{PrimitiveID: "p1", Strobe: strobe},
		}},
	})

	require.Len(t, merged.Primitives, 2)
	assert.Equal(t, "p1", merged.Primitives[0].PrimitiveID)
	assert.Equal(t, "p2", merged.Primitives[1].PrimitiveID)

	// p1's dimmer overridden by the second layer, strobe added, and the
	// untouched p2 dimmer kept.
	assert.Equal(t, float32(0.9), merged.Primitives[0].Dimmer.Samples[0].Values[0])
	assert.Equal(t, strobe, merged.Primitives[0].Strobe)
	assert.Equal(t, float32(0.2), merged.Primitives[1].Dimmer.Samples[0].Values[0])
}

func TestContextNotLoadedWithoutConsumers(t *testing.T) {
	// TrackID points nowhere; with no context-consuming node the run
	// must not touch the store at all.
	e := &Evaluator{Logger: discardLogger()}
	g := &graph.Graph{Nodes: []graph.NodeInstance{node("a", "scalar", map[string]any{"value": 1})}}

	gctx := window()
	gctx.TrackID = 42
	_, _, err := e.Run(context.Background(), g, gctx)
	require.NoError(t, err)
}

func TestArgSummaries(t *testing.T) {
	g := &graph.Graph{
		Nodes: []graph.NodeInstance{node("a", "scalar", nil)},
		Args: []graph.PatternArgDef{
			{ID: "base", Name: "Base Color", ArgType: graph.PatternArgColor},
			{ID: "speed", Name: "Speed", ArgType: graph.PatternArgScalar},
		},
	}

	e := &Evaluator{Logger: discardLogger()}
	result, _, err := e.Run(context.Background(), g, window())
	require.NoError(t, err)

	require.Len(t, result.Args, 2)
	assert.Equal(t, graph.ArgSummary{ID: "base", Name: "Base Color", ArgType: graph.PatternArgColor}, result.Args[0])
}

func TestTimeStepsFloorsAtPreviewLength(t *testing.T) {
	r := testRun(graph.GraphContext{StartTime: 0, EndTime: 1})
	assert.Equal(t, PreviewLength, r.timeSteps())

	r = testRun(graph.GraphContext{StartTime: 0, EndTime: 10})
	assert.Equal(t, 600, r.timeSteps())

	// Degenerate windows still produce a full preview buffer.
	r = testRun(graph.GraphContext{StartTime: 5, EndTime: 5})
	assert.Equal(t, PreviewLength, r.timeSteps())
	assert.Equal(t, float32(0.001), r.duration())
}
