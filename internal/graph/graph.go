// Package graph defines the persisted node-graph document and the run
// context supplied by the host. These types mirror the JSON the editor
// saves, so field names stay camelCase.
package graph

import (
	"encoding/json"
	"fmt"
)

// PortType classifies the value a port carries.
type PortType string

const (
	PortAudio     PortType = "Audio"
	PortBeatGrid  PortType = "BeatGrid"
	PortSeries    PortType = "Series"
	PortColor     PortType = "Color"
	PortSelection PortType = "Selection"
	PortSignal    PortType = "Signal"
	PortGradient  PortType = "Gradient"
	PortIntensity PortType = "Intensity"
)

// ParamType classifies a node parameter.
type ParamType string

const (
	ParamNumber ParamType = "Number"
	ParamText   ParamType = "Text"
)

// PatternArgType classifies a graph-level argument.
type PatternArgType string

const (
	PatternArgColor  PatternArgType = "Color"
	PatternArgScalar PatternArgType = "Scalar"
)

// PatternArgDef declares a graph-level argument the host can override
// per run (for example a base color shared by several nodes).
type PatternArgDef struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ArgType      PatternArgType  `json:"argType"`
	DefaultValue json.RawMessage `json:"defaultValue"`
}

// PortDef declares one input or output port of a node type.
type PortDef struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	PortType PortType `json:"portType"`
}

// ParamDef declares one parameter of a node type with its default.
type ParamDef struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ParamType     ParamType `json:"paramType"`
	DefaultNumber *float32  `json:"defaultNumber,omitempty"`
	DefaultText   *string   `json:"defaultText,omitempty"`
}

// NodeTypeDef is catalog metadata for one node type.
type NodeTypeDef struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Inputs      []PortDef  `json:"inputs"`
	Outputs     []PortDef  `json:"outputs"`
	Params      []ParamDef `json:"params"`
}

// NodeInstance is one placed node. Params hold raw JSON values since
// each node type interprets its own parameters; editor position is
// carried through untouched.
type NodeInstance struct {
	ID        string                     `json:"id"`
	TypeID    string                     `json:"typeId"`
	Params    map[string]json.RawMessage `json:"params"`
	PositionX *float64                   `json:"positionX,omitempty"`
	PositionY *float64                   `json:"positionY,omitempty"`
}

// Edge connects an output port to an input port.
type Edge struct {
	ID       string `json:"id"`
	FromNode string `json:"fromNode"`
	FromPort string `json:"fromPort"`
	ToNode   string `json:"toNode"`
	ToPort   string `json:"toPort"`
}

// Graph is the persisted document: nodes, edges, and optional
// graph-level arguments.
type Graph struct {
	Nodes []NodeInstance  `json:"nodes"`
	Edges []Edge          `json:"edges"`
	Args  []PatternArgDef `json:"args,omitempty"`
}

// Parse decodes a graph document. A missing args field decodes to an
// empty slice, so older documents stay loadable.
func Parse(data []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return Graph{}, fmt.Errorf("parse graph: %w", err)
	}
	return g, nil
}

// NumberParam reads a numeric parameter, falling back to def when the
// parameter is absent or not a number.
func (n *NodeInstance) NumberParam(key string, def float64) float64 {
	raw, ok := n.Params[key]
	if !ok {
		return def
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}

// TextParam reads a string parameter with a default.
func (n *NodeInstance) TextParam(key, def string) string {
	raw, ok := n.Params[key]
	if !ok {
		return def
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}

// RawParam returns the raw JSON for a parameter, or nil when absent.
func (n *NodeInstance) RawParam(key string) json.RawMessage {
	return n.Params[key]
}

// GraphContext is what the host supplies for one run: which track, the
// time window, and optional overrides for beat grid and arg values.
type GraphContext struct {
	TrackID   int64                      `json:"trackId"`
	StartTime float32                    `json:"startTime"`
	EndTime   float32                    `json:"endTime"`
	BeatGrid  *BeatGrid                  `json:"beatGrid,omitempty"`
	ArgValues map[string]json.RawMessage `json:"argValues,omitempty"`

	// InstanceSeed, when set, overrides per-node seeds so hosts can pin
	// randomized selections across pattern instances.
	InstanceSeed *uint64 `json:"instanceSeed,omitempty"`
}

// BeatGrid is the musical timing analysis for a track.
type BeatGrid struct {
	Beats          []float32 `json:"beats"`
	Downbeats      []float32 `json:"downbeats"`
	BPM            float32   `json:"bpm"`
	DownbeatOffset float32   `json:"downbeatOffset"`
	BeatsPerBar    int32     `json:"beatsPerBar"`
}

// RelativeToCrop shifts the grid into crop-local time, dropping beats
// outside the window. A nil crop returns a copy of the grid.
func (g *BeatGrid) RelativeToCrop(crop *AudioCrop) BeatGrid {
	if crop == nil {
		return *g
	}
	start := crop.StartSeconds
	end := crop.EndSeconds
	if end < start {
		end = start
	}
	out := BeatGrid{
		BPM:            g.BPM,
		DownbeatOffset: g.DownbeatOffset - start,
		BeatsPerBar:    g.BeatsPerBar,
	}
	for _, t := range g.Beats {
		if t >= start && t <= end {
			out.Beats = append(out.Beats, t-start)
		}
	}
	for _, t := range g.Downbeats {
		if t >= start && t <= end {
			out.Downbeats = append(out.Downbeats, t-start)
		}
	}
	return out
}

// AudioCrop is a time window within a track, in seconds.
type AudioCrop struct {
	StartSeconds float32 `json:"startSeconds"`
	EndSeconds   float32 `json:"endSeconds"`
}

// Duration returns the crop length in seconds, never negative.
func (c AudioCrop) Duration() float32 {
	d := c.EndSeconds - c.StartSeconds
	if d < 0 {
		return 0
	}
	return d
}
