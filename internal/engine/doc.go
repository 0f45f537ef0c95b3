// Package engine evaluates pattern graphs into lighting time series.
//
// A pattern graph is a DAG of typed nodes wired by edges. The evaluator
// topologically sorts the graph, loads the audio/beat context only when a
// node needs it, then runs each node in order. Node outputs are Signals
// (dense (n, t, c) float32 tensors), audio buffers, beat grids, or fixture
// selections, all held in a single per-run ExecutionState keyed by
// (node, port).
//
// ARCHITECTURE:
//
// Single-Pass Deterministic Evaluation:
// The evaluator runs all nodes in one goroutine, in a topological order
// with declaration-order tie-breaking. This ensures:
// - Reproducible outputs for identical graph + context inputs
// - Predictable layer merge order (first apply node wins placement)
// - Simple reasoning about upstream/downstream data flow
//
// Evaluation Flow:
// 1. Index nodes and incoming edges, validating edge endpoints
// 2. Topologically sort (cycles are fatal)
// 3. Load audio and beat grid if any node requires context
// 4. Run each node via its family dispatcher, recording timings
// 5. Merge apply-node layers into one LayerTimeSeries
//
// A node failure aborts the run with an error carrying the node's id
// and type. Only unrecognized node types are tolerated: they are
// logged and skipped, and downstream nodes see their inputs missing.
//
// CRITICAL PATTERNS:
//
// Broadcasting:
// Binary signal ops wrap indices modulo each operand's dimension, so a
// (1,1,1) scalar combines with any shape. See the signal package.
//
// Determinism:
// Stochastic nodes seed from a stable hash of the node id (optionally
// mixed with the run's instance seed). No wall-clock time, no global
// RNG state.
package engine
