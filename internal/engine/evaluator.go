package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/lumen/internal/analysis"
	"github.com/roach88/lumen/internal/audio"
	"github.com/roach88/lumen/internal/fixture"
	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/signal"
	"github.com/roach88/lumen/internal/store"
)

const (
	// ChromaDim is the channel count of pitch-class signals.
	ChromaDim = 12

	// PreviewLength is the minimum time resolution of generated signals.
	PreviewLength = 256

	// SimulationRate is the generator sampling rate in steps per second.
	SimulationRate = 60.0
)

// Config carries per-host evaluation switches.
type Config struct {
	// ComputeVisualizations enables view taps and spectrogram rendering.
	// Hosts that only need the merged layer leave it off.
	ComputeVisualizations bool

	// LogSummary emits a per-run summary line with the slowest nodes.
	LogSummary bool
}

// Evaluator executes node graphs. One Evaluator is shared across runs;
// it owns the long-lived collaborators (stores, caches, workers) while
// all per-run state lives in ExecutionState.
type Evaluator struct {
	Store    *store.Store
	Resolver *fixture.Resolver
	FFT      *audio.FFTService
	Stems    *audio.StemCache
	Roots    *analysis.RootCache
	Decoder  audio.Decoder
	Beats    *analysis.BeatWorker
	Chords   *analysis.RootWorker

	// ResourceRoot anchors relative track and stem paths.
	ResourceRoot string

	RunIDs RunIDGenerator
	Logger *slog.Logger
	Config Config
}

// run is the per-evaluation view: indices over one graph document plus
// the shared context inputs loaded for it.
type run struct {
	eval     *Evaluator
	graph    *graph.Graph
	gctx     graph.GraphContext
	nodes    map[string]*graph.NodeInstance
	incoming map[string][]graph.Edge
	audio    *audio.Buffer
	grid     *graph.BeatGrid
	state    *ExecutionState
	log      *slog.Logger
}

// Run evaluates a graph against a context and returns the host-facing
// result plus the merged output layer. The graph is executed once, in
// dependency order; identical inputs produce byte-identical results.
func (e *Evaluator) Run(ctx context.Context, g *graph.Graph, gctx graph.GraphContext) (*graph.RunResult, graph.LayerTimeSeries, error) {
	return e.evaluate(ctx, g, gctx, nil)
}

// RunWithContextAudio evaluates like Run but takes the context audio
// window from the caller instead of decoding the track, so nested
// patterns reuse audio their parent already decoded. The beat grid is
// still resolved the usual way.
func (e *Evaluator) RunWithContextAudio(ctx context.Context, g *graph.Graph, gctx graph.GraphContext, buf *audio.Buffer) (*graph.RunResult, graph.LayerTimeSeries, error) {
	return e.evaluate(ctx, g, gctx, buf)
}

func (e *Evaluator) evaluate(ctx context.Context, g *graph.Graph, gctx graph.GraphContext, contextAudio *audio.Buffer) (*graph.RunResult, graph.LayerTimeSeries, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := ""
	if e.RunIDs != nil {
		runID = e.RunIDs.Generate()
		logger = logger.With("run", runID)
	}

	r := &run{
		eval:     e,
		graph:    g,
		gctx:     gctx,
		nodes:    make(map[string]*graph.NodeInstance, len(g.Nodes)),
		incoming: make(map[string][]graph.Edge),
		audio:    contextAudio,
		state:    NewExecutionState(),
		log:      logger,
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		r.nodes[n.ID] = n
	}
	for _, edge := range g.Edges {
		if _, ok := r.nodes[edge.FromNode]; !ok {
			return nil, graph.LayerTimeSeries{}, NewMissingNodeError(edge.ID, edge.FromNode)
		}
		if _, ok := r.nodes[edge.ToNode]; !ok {
			return nil, graph.LayerTimeSeries{}, NewMissingNodeError(edge.ID, edge.ToNode)
		}
		r.incoming[edge.ToNode] = append(r.incoming[edge.ToNode], edge)
	}

	order, err := topoOrder(g.Nodes, g.Edges)
	if err != nil {
		return nil, graph.LayerTimeSeries{}, err
	}

	if err := r.loadContext(ctx); err != nil {
		return nil, graph.LayerTimeSeries{}, err
	}

	started := time.Now()
	for _, id := range order {
		node := r.nodes[id]
		if err := r.runNode(ctx, node); err != nil {
			return nil, graph.LayerTimeSeries{}, err
		}
	}

	result := &graph.RunResult{
		Views:      r.state.viewResults,
		MelSpecs:   r.state.melSpecs,
		ColorViews: r.state.colorViews,
		Entries:    r.state.entries,
		Timings:    r.state.timings,
		Args:       argSummaries(g.Args),
	}
	merged := mergeLayers(r.state.Layers())

	if e.Config.LogSummary {
		r.logSummary(time.Since(started))
	}
	return result, merged, nil
}

// runNode dispatches one node to its family runner, timing it. Timings
// are recorded even when the node fails, so hosts can see how far a
// broken run got and what it cost.
func (r *run) runNode(ctx context.Context, node *graph.NodeInstance) (err error) {
	started := time.Now()
	defer func() {
		r.state.AddTiming(graph.NodeTiming{
			ID:     node.ID,
			TypeID: node.TypeID,
			Millis: float64(time.Since(started)) / float64(time.Millisecond),
		})
	}()

	fam := familyOf(node.TypeID)
	switch fam {
	case FamilySelection:
		err = r.runSelectionNode(ctx, node)
	case FamilyAudio:
		err = r.runAudioNode(ctx, node)
	case FamilySignal:
		err = r.runSignalNode(ctx, node)
	case FamilyColor:
		err = r.runColorNode(ctx, node)
	case FamilyApply:
		err = r.runApplyNode(ctx, node)
	case FamilyAnalysis:
		err = r.runAnalysisNode(ctx, node)
	case FamilyUnknown:
		r.log.Warn("unknown node type; skipping", "node", node.ID, "type", node.TypeID)
		return nil
	}
	if err != nil {
		var re *RunError
		if errors.As(err, &re) {
			return err
		}
		return NewNodeError(node.ID, node.TypeID, err)
	}
	return nil
}

// loadContext decodes the context audio window and fetches the beat
// grid, but only when the graph contains a node that consumes them.
// Audio handed in by the caller wins over decoding. Grid lookups fall
// through: explicit override, then the project store, then the beat
// worker (persisting what it computes).
func (r *run) loadContext(ctx context.Context) error {
	needed := false
	for i := range r.graph.Nodes {
		if needsContext(r.graph.Nodes[i].TypeID) {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}

	if r.gctx.BeatGrid != nil {
		r.grid = r.gctx.BeatGrid
	}

	e := r.eval
	if e.Store == nil || r.gctx.TrackID == 0 {
		return nil
	}
	info, err := e.Store.TrackPathAndHash(ctx, r.gctx.TrackID)
	if err != nil {
		return fmt.Errorf("load context track: %w", err)
	}
	path := r.resolvePath(info.FilePath)

	if r.audio == nil && e.Decoder != nil {
		samples, rate, err := e.Decoder.Decode(path, audio.TargetSampleRate)
		if err != nil {
			return fmt.Errorf("decode context audio: %w", err)
		}
		crop := graph.AudioCrop{StartSeconds: r.gctx.StartTime, EndSeconds: r.gctx.EndTime}
		targetLen := int(crop.Duration() * float32(rate))
		segment, err := audio.CropToRange(samples, rate, crop, targetLen)
		if err != nil {
			return fmt.Errorf("crop context audio: %w", err)
		}
		r.audio = &audio.Buffer{
			Samples:    segment,
			SampleRate: rate,
			Crop:       &crop,
			TrackID:    r.gctx.TrackID,
			TrackHash:  info.Hash,
		}
	}

	if r.grid == nil {
		grid, err := e.Store.TrackBeats(ctx, r.gctx.TrackID)
		if err != nil {
			return fmt.Errorf("load beat grid: %w", err)
		}
		if grid == nil && e.Beats != nil {
			computed, err := e.Beats.ComputeBeats(ctx, path)
			if err != nil {
				return NewWorkerError("", err)
			}
			if err := e.Store.PutTrackBeats(ctx, r.gctx.TrackID, computed); err != nil {
				return fmt.Errorf("persist beat grid: %w", err)
			}
			grid = &computed
		}
		r.grid = grid
	}
	return nil
}

func (r *run) resolvePath(p string) string {
	if r.eval.ResourceRoot == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.eval.ResourceRoot, p)
}

// duration is the context window length in seconds, floored so that
// zero-length windows still produce output.
func (r *run) duration() float32 {
	d := r.gctx.EndTime - r.gctx.StartTime
	if d < 0.001 {
		return 0.001
	}
	return d
}

// timeSteps is the generator resolution for the context window.
func (r *run) timeSteps() int {
	ts := int(math.Ceil(float64(r.duration()) * SimulationRate))
	if ts < PreviewLength {
		ts = PreviewLength
	}
	return ts
}

// seedFor is the randomness seed for one node, honoring the host's
// instance seed override.
func (r *run) seedFor(nodeID string) uint64 {
	seed := nodeSeed(nodeID)
	if r.gctx.InstanceSeed != nil {
		seed = hashCombine(seed, *r.gctx.InstanceSeed)
	}
	return seed
}

// inEdge finds the edge feeding one input port, if connected.
func (r *run) inEdge(nodeID, port string) (graph.Edge, bool) {
	for _, e := range r.incoming[nodeID] {
		if e.ToPort == port {
			return e, true
		}
	}
	return graph.Edge{}, false
}

func (r *run) inputSignal(nodeID, port string) (signal.Signal, bool) {
	e, ok := r.inEdge(nodeID, port)
	if !ok {
		return signal.Signal{}, false
	}
	return r.state.Signal(e.FromNode, e.FromPort)
}

func (r *run) inputAudio(nodeID, port string) (*audio.Buffer, bool) {
	e, ok := r.inEdge(nodeID, port)
	if !ok {
		return nil, false
	}
	return r.state.Audio(e.FromNode, e.FromPort)
}

func (r *run) inputGrid(nodeID, port string) (*graph.BeatGrid, bool) {
	e, ok := r.inEdge(nodeID, port)
	if !ok {
		return nil, false
	}
	return r.state.Grid(e.FromNode, e.FromPort)
}

func (r *run) inputSelection(nodeID, port string) (graph.Selection, bool) {
	e, ok := r.inEdge(nodeID, port)
	if !ok {
		return graph.Selection{}, false
	}
	return r.state.Selection(e.FromNode, e.FromPort)
}

func (r *run) logSummary(elapsed time.Duration) {
	slowest := make([]graph.NodeTiming, len(r.state.timings))
	copy(slowest, r.state.timings)
	sort.SliceStable(slowest, func(i, j int) bool {
		return slowest[i].Millis > slowest[j].Millis
	})
	if len(slowest) > 3 {
		slowest = slowest[:3]
	}
	attrs := []any{
		"nodes", len(r.state.timings),
		"layers", len(r.state.applyOutputs),
		"elapsed_ms", float64(elapsed) / float64(time.Millisecond),
	}
	for i, t := range slowest {
		attrs = append(attrs, fmt.Sprintf("slow%d", i+1), fmt.Sprintf("%s=%.2fms", t.ID, t.Millis))
	}
	r.log.Info("graph run complete", attrs...)
}

// topoOrder computes a Kahn topological order over the node set. Ready
// nodes are taken in declaration order, so independent subgraphs always
// execute the same way. A non-empty remainder means a cycle.
func topoOrder(nodes []graph.NodeInstance, edges []graph.Edge) ([]string, error) {
	indeg := make(map[string]int, len(nodes))
	adj := make(map[string][]string)
	for i := range nodes {
		indeg[nodes[i].ID] = 0
	}
	for _, e := range edges {
		adj[e.FromNode] = append(adj[e.FromNode], e.ToNode)
		indeg[e.ToNode]++
	}

	order := make([]string, 0, len(nodes))
	done := make(map[string]bool, len(nodes))
	for len(order) < len(nodes) {
		picked := false
		for i := range nodes {
			id := nodes[i].ID
			if done[id] || indeg[id] != 0 {
				continue
			}
			done[id] = true
			order = append(order, id)
			for _, next := range adj[id] {
				indeg[next]--
			}
			picked = true
			break
		}
		if !picked {
			var remaining []string
			for i := range nodes {
				if !done[nodes[i].ID] {
					remaining = append(remaining, nodes[i].ID)
				}
			}
			return nil, NewCycleError(remaining)
		}
	}
	return order, nil
}

// mergeLayers flattens apply layers into one. Primitives keep first-seen
// order; within a primitive each capability is last-write-wins, so later
// apply nodes override earlier ones per capability, not wholesale.
func mergeLayers(layers []graph.LayerTimeSeries) graph.LayerTimeSeries {
	var order []string
	byID := make(map[string]*graph.PrimitiveTimeSeries)

	for _, layer := range layers {
		for i := range layer.Primitives {
			p := &layer.Primitives[i]
			dst, ok := byID[p.PrimitiveID]
			if !ok {
				dst = &graph.PrimitiveTimeSeries{PrimitiveID: p.PrimitiveID}
				byID[p.PrimitiveID] = dst
				order = append(order, p.PrimitiveID)
			}
			if p.Color != nil {
				dst.Color = p.Color
			}
			if p.Dimmer != nil {
				dst.Dimmer = p.Dimmer
			}
			if p.Position != nil {
				dst.Position = p.Position
			}
			if p.Strobe != nil {
				dst.Strobe = p.Strobe
			}
			if p.Speed != nil {
				dst.Speed = p.Speed
			}
		}
	}

	merged := graph.LayerTimeSeries{}
	for _, id := range order {
		merged.Primitives = append(merged.Primitives, *byID[id])
	}
	return merged
}

func argSummaries(args []graph.PatternArgDef) []graph.ArgSummary {
	if len(args) == 0 {
		return nil
	}
	out := make([]graph.ArgSummary, len(args))
	for i, a := range args {
		out[i] = graph.ArgSummary{ID: a.ID, Name: a.Name, ArgType: a.ArgType}
	}
	return out
}
