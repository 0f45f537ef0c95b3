package engine

import (
	"github.com/roach88/lumen/internal/audio"
	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/signal"
)

// PortKey addresses one output port of one node.
type PortKey struct {
	Node string
	Port string
}

// Value is the sealed union of everything a port can carry. All port
// outputs live in a single map keyed by PortKey; the typed getters on
// ExecutionState recover the concrete kind.
type Value interface {
	isValue()
}

// SignalValue carries an (n, t, c) signal tensor.
type SignalValue struct{ Signal signal.Signal }

// AudioValue carries a decoded audio buffer. Buffers are shared, never
// mutated in place; filters emit new buffers.
type AudioValue struct{ Buffer *audio.Buffer }

// GridValue carries a beat grid.
type GridValue struct{ Grid *graph.BeatGrid }

// SelectionValue carries an ordered set of fixture heads.
type SelectionValue struct{ Selection graph.Selection }

// ColorValue carries a JSON color preview string for host UIs.
type ColorValue struct{ JSON string }

func (SignalValue) isValue()    {}
func (AudioValue) isValue()     {}
func (GridValue) isValue()      {}
func (SelectionValue) isValue() {}
func (ColorValue) isValue()     {}

// ExecutionState accumulates everything a run produces. One instance is
// created per run and discarded afterwards; nothing here is shared
// between runs.
type ExecutionState struct {
	values map[PortKey]Value

	applyOutputs []graph.LayerTimeSeries
	viewResults  map[string]signal.Signal
	melSpecs     map[string]graph.MelSpec
	colorViews   map[string]string
	entries      map[string]graph.PatternEntrySummary
	timings      []graph.NodeTiming
}

// NewExecutionState creates an empty per-run state.
func NewExecutionState() *ExecutionState {
	return &ExecutionState{
		values:      make(map[PortKey]Value),
		viewResults: make(map[string]signal.Signal),
		melSpecs:    make(map[string]graph.MelSpec),
		colorViews:  make(map[string]string),
	}
}

// SetSignal stores a signal output. Later writes to the same port win.
func (s *ExecutionState) SetSignal(node, port string, sig signal.Signal) {
	s.values[PortKey{node, port}] = SignalValue{Signal: sig}
}

// SetAudio stores an audio buffer output.
func (s *ExecutionState) SetAudio(node, port string, buf *audio.Buffer) {
	s.values[PortKey{node, port}] = AudioValue{Buffer: buf}
}

// SetGrid stores a beat grid output.
func (s *ExecutionState) SetGrid(node, port string, grid *graph.BeatGrid) {
	s.values[PortKey{node, port}] = GridValue{Grid: grid}
}

// SetSelection stores a selection output.
func (s *ExecutionState) SetSelection(node, port string, sel graph.Selection) {
	s.values[PortKey{node, port}] = SelectionValue{Selection: sel}
}

// SetColor stores a color preview string output.
func (s *ExecutionState) SetColor(node, port, colorJSON string) {
	s.values[PortKey{node, port}] = ColorValue{JSON: colorJSON}
}

// Signal returns the signal at a port, if one was produced there.
func (s *ExecutionState) Signal(node, port string) (signal.Signal, bool) {
	if v, ok := s.values[PortKey{node, port}].(SignalValue); ok {
		return v.Signal, true
	}
	return signal.Signal{}, false
}

// Audio returns the audio buffer at a port, if one was produced there.
func (s *ExecutionState) Audio(node, port string) (*audio.Buffer, bool) {
	if v, ok := s.values[PortKey{node, port}].(AudioValue); ok {
		return v.Buffer, true
	}
	return nil, false
}

// Grid returns the beat grid at a port, if one was produced there.
func (s *ExecutionState) Grid(node, port string) (*graph.BeatGrid, bool) {
	if v, ok := s.values[PortKey{node, port}].(GridValue); ok {
		return v.Grid, true
	}
	return nil, false
}

// Selection returns the selection at a port, if one was produced there.
func (s *ExecutionState) Selection(node, port string) (graph.Selection, bool) {
	if v, ok := s.values[PortKey{node, port}].(SelectionValue); ok {
		return v.Selection, true
	}
	return graph.Selection{}, false
}

// Color returns the color preview string at a port.
func (s *ExecutionState) Color(node, port string) (string, bool) {
	if v, ok := s.values[PortKey{node, port}].(ColorValue); ok {
		return v.JSON, true
	}
	return "", false
}

// AddLayer appends one apply node's output layer.
func (s *ExecutionState) AddLayer(layer graph.LayerTimeSeries) {
	s.applyOutputs = append(s.applyOutputs, layer)
}

// Layers returns the apply layers in execution order.
func (s *ExecutionState) Layers() []graph.LayerTimeSeries {
	return s.applyOutputs
}

// SetView records a tapped signal for a view node.
func (s *ExecutionState) SetView(nodeID string, sig signal.Signal) {
	s.viewResults[nodeID] = sig
}

// SetMelSpec records a rendered spectrogram for a viewer node.
func (s *ExecutionState) SetMelSpec(nodeID string, spec graph.MelSpec) {
	s.melSpecs[nodeID] = spec
}

// SetEntry records a pattern entry summary keyed by node id. The map is
// allocated on first use so entry-free runs serialize without it.
func (s *ExecutionState) SetEntry(nodeID string, e graph.PatternEntrySummary) {
	if s.entries == nil {
		s.entries = make(map[string]graph.PatternEntrySummary)
	}
	s.entries[nodeID] = e
}

// SetColorView records a color preview keyed by "<node>:<port>".
func (s *ExecutionState) SetColorView(key, colorJSON string) {
	s.colorViews[key] = colorJSON
}

// AddTiming appends a node timing record.
func (s *ExecutionState) AddTiming(t graph.NodeTiming) {
	s.timings = append(s.timings, t)
}
