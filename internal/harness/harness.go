package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/lumen/internal/engine"
	"github.com/roach88/lumen/internal/fixture"
	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/schema"
	"github.com/roach88/lumen/internal/store"
)

// Result holds everything one scenario run produced.
type Result struct {
	RunResult *graph.RunResult
	Layers    graph.LayerTimeSeries
}

// Run executes a scenario: seeds an in-memory project store with the
// scenario's venue, loads and validates the graph document, and
// evaluates it over the scenario's window. The run id is fixed to the
// scenario name so output is deterministic.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open scenario store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := seedVenue(ctx, st, scenario.Venue); err != nil {
		return nil, err
	}

	g, err := loadGraph(scenario.Graph)
	if err != nil {
		return nil, err
	}

	ev := &engine.Evaluator{
		Store:    st,
		Resolver: &fixture.Resolver{Store: st},
		RunIDs:   engine.NewFixedGenerator(scenario.Name),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	result, layers, err := ev.Run(ctx, g, buildContext(scenario.Context))
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
	}
	return &Result{RunResult: result, Layers: layers}, nil
}

func seedVenue(ctx context.Context, st *store.Store, venue []VenueFixture) error {
	for _, f := range venue {
		mode := f.Mode
		if mode == "" {
			mode = "default"
		}
		name := f.Name
		if name == "" {
			name = f.ID
		}

		fx := store.Fixture{
			ID: f.ID, Name: name,
			FixturePath: "fixtures/" + f.ID + ".json",
			ModeName:    mode,
		}
		if len(f.Position) == 3 {
			fx.PosX = f.Position[0]
			fx.PosY = f.Position[1]
			fx.PosZ = f.Position[2]
		}
		if err := st.PutFixture(ctx, fx); err != nil {
			return fmt.Errorf("seed fixture %q: %w", f.ID, err)
		}

		if len(f.Heads) > 0 {
			heads := make([]store.HeadOffset, len(f.Heads))
			for i, h := range f.Heads {
				heads[i] = store.HeadOffset{HeadIndex: i, X: h[0], Y: h[1], Z: h[2]}
			}
			if err := st.PutFixtureHeads(ctx, f.ID, mode, heads); err != nil {
				return fmt.Errorf("seed heads for %q: %w", f.ID, err)
			}
		}

		for _, tag := range f.Tags {
			if err := st.TagFixture(ctx, f.ID, tag); err != nil {
				return fmt.Errorf("tag fixture %q: %w", f.ID, err)
			}
		}
	}
	return nil
}

func loadGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	if err := schema.ValidateGraph(data); err != nil {
		return nil, err
	}
	g, err := graph.Parse(data)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func buildContext(w WindowSpec) graph.GraphContext {
	gctx := graph.GraphContext{
		TrackID:   w.Track,
		StartTime: float32(w.Start),
		EndTime:   float32(w.End),
	}
	if w.Seed != nil {
		seed := *w.Seed
		gctx.InstanceSeed = &seed
	}
	for id, value := range w.Args {
		if gctx.ArgValues == nil {
			gctx.ArgValues = make(map[string]json.RawMessage)
		}
		gctx.ArgValues[id] = json.RawMessage(value)
	}
	return gctx
}
