package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lumen/internal/analysis"
	"github.com/roach88/lumen/internal/audio"
	"github.com/roach88/lumen/internal/engine"
	"github.com/roach88/lumen/internal/fixture"
	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/schema"
	"github.com/roach88/lumen/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath   string
	Database     string
	ResourceRoot string
	TrackID      int64
	Start        float64
	End          float64
	Seed         uint64
	SeedSet      bool
	Args         []string
	Visualize    bool

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator

	// Decoder allows overriding the audio decoder (for testing).
	Decoder audio.Decoder
}

// RunOutput is the payload the run command emits: the host-facing
// result plus the merged output layer.
type RunOutput struct {
	Result *graph.RunResult      `json:"result"`
	Layers graph.LayerTimeSeries `json:"layers"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <graph.json>",
		Short: "Evaluate a graph over a time window",
		Long: `Evaluate a node graph document against a project database and
print the run result and merged output layer.

The graph is validated against the document schema before the run
starts. Track audio, fixtures, and cached analysis come from the
project database; external analysis workers run only when the database
has no cached result.

Example:
  lumen run --db ./project.db --start 0 --end 8 ./graphs/pulse.json
  lumen run --config lumen.yaml --track 3 --arg tint='{"r":0,"g":128,"b":255,"a":1}' ./graphs/chase.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SeedSet = cmd.Flags().Changed("seed")
			return runGraph(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite project database (overrides config)")
	cmd.Flags().StringVar(&opts.ResourceRoot, "resources", "", "directory that anchors relative audio paths (overrides config)")
	cmd.Flags().Int64Var(&opts.TrackID, "track", 0, "track id to run against (0 = no track)")
	cmd.Flags().Float64Var(&opts.Start, "start", 0, "window start in seconds")
	cmd.Flags().Float64Var(&opts.End, "end", 4, "window end in seconds")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "instance seed for randomized nodes")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "graph argument override as id=JSON (repeatable)")
	cmd.Flags().BoolVar(&opts.Visualize, "visualize", false, "compute view taps and spectrograms")

	return cmd
}

func runGraph(opts *RunOptions, graphPath string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := resolveConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	g, err := loadGraph(graphPath)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid graph document", err)
	}

	gctx, err := buildContext(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid run context", err)
	}

	logger.Info("opening project database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ev := newEvaluator(opts, cfg, st, logger)

	logger.Info("evaluating graph",
		"graph", graphPath, "track", gctx.TrackID,
		"start", gctx.StartTime, "end", gctx.EndTime)

	// Use the command's context if available (for testing), otherwise
	// fall back to a background context.
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, layers, err := ev.Run(ctx, g, gctx)
	if err != nil {
		return WrapExitError(ExitFailure, "run failed", err)
	}

	return outputRun(opts, cmd, result, layers)
}

// resolveConfig merges the config file with command-line overrides.
// Flags win over the file; --db alone is a complete configuration.
func resolveConfig(opts *RunOptions) (*Config, error) {
	cfg := &Config{}
	if opts.ConfigPath != "" {
		loaded, err := LoadConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.ResourceRoot != "" {
		cfg.ResourceRoot = opts.ResourceRoot
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("no database: pass --db or a config file with a database entry")
	}
	return cfg, nil
}

// loadGraph reads, schema-checks, and parses a graph document.
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

func buildContext(opts *RunOptions) (graph.GraphContext, error) {
	gctx := graph.GraphContext{
		TrackID:   opts.TrackID,
		StartTime: float32(opts.Start),
		EndTime:   float32(opts.End),
	}
	if opts.End <= opts.Start {
		return gctx, fmt.Errorf("window end %g must be after start %g", opts.End, opts.Start)
	}
	if opts.SeedSet {
		seed := opts.Seed
		gctx.InstanceSeed = &seed
	}

	for _, arg := range opts.Args {
		id, value, ok := strings.Cut(arg, "=")
		if !ok || id == "" {
			return gctx, fmt.Errorf("bad --arg %q: expected id=JSON", arg)
		}
		if !json.Valid([]byte(value)) {
			return gctx, fmt.Errorf("bad --arg %q: value is not valid JSON", arg)
		}
		if gctx.ArgValues == nil {
			gctx.ArgValues = make(map[string]json.RawMessage)
		}
		gctx.ArgValues[id] = json.RawMessage(value)
	}
	return gctx, nil
}

// newEvaluator wires the long-lived collaborators for one command
// invocation. Caches are fresh per invocation; persistence across runs
// comes from the store.
func newEvaluator(opts *RunOptions, cfg *Config, st *store.Store, logger *slog.Logger) *engine.Evaluator {
	ev := &engine.Evaluator{
		Store:        st,
		Resolver:     &fixture.Resolver{Store: st},
		FFT:          audio.NewFFTService(),
		Stems:        audio.NewStemCache(),
		Roots:        analysis.NewRootCache(),
		Decoder:      audio.WAVDecoder{},
		ResourceRoot: cfg.ResourceRoot,
		RunIDs:       engine.UUIDv7Generator{},
		Logger:       logger,
		Config: engine.Config{
			ComputeVisualizations: opts.Visualize,
			LogSummary:            opts.Verbose,
		},
	}
	if opts.RunIDs != nil {
		ev.RunIDs = opts.RunIDs
	}
	if opts.Decoder != nil {
		ev.Decoder = opts.Decoder
	}
	if len(cfg.BeatWorker) > 0 {
		ev.Beats = &analysis.BeatWorker{Command: cfg.BeatWorker}
	}
	if len(cfg.ChordWorker) > 0 {
		ev.Chords = &analysis.RootWorker{Command: cfg.ChordWorker}
	}
	return ev
}

func outputRun(opts *RunOptions, cmd *cobra.Command, result *graph.RunResult, layers graph.LayerTimeSeries) error {
	out := RunOutput{Result: result, Layers: layers}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return formatter.Success(out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run complete: %d node(s) executed, %d primitive(s) animated\n",
		len(result.Timings), len(layers.Primitives))
	for _, prim := range layers.Primitives {
		fmt.Fprintf(w, "  %s:%s\n", prim.PrimitiveID, capabilitySummary(prim))
	}
	if len(result.Views) > 0 {
		fmt.Fprintf(w, "Views: %d signal tap(s)\n", len(result.Views))
	}
	return nil
}

func capabilitySummary(prim graph.PrimitiveTimeSeries) string {
	var caps []string
	if prim.Color != nil {
		caps = append(caps, fmt.Sprintf(" color(%d)", len(prim.Color.Samples)))
	}
	if prim.Dimmer != nil {
		caps = append(caps, fmt.Sprintf(" dimmer(%d)", len(prim.Dimmer.Samples)))
	}
	if prim.Position != nil {
		caps = append(caps, fmt.Sprintf(" position(%d)", len(prim.Position.Samples)))
	}
	if prim.Strobe != nil {
		caps = append(caps, fmt.Sprintf(" strobe(%d)", len(prim.Strobe.Samples)))
	}
	if prim.Speed != nil {
		caps = append(caps, fmt.Sprintf(" speed(%d)", len(prim.Speed.Samples)))
	}
	return strings.Join(caps, "")
}
