package graph

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/roach88/lumen/internal/signal"
)

// SelectableItem is one addressable light primitive: a fixture head with
// its resolved global position.
type SelectableItem struct {
	ID        string     `json:"id"` // "<fixtureID>:<headIndex>"
	FixtureID string     `json:"fixtureId"`
	HeadIndex int        `json:"headIndex"`
	Pos       [3]float32 `json:"pos"`
}

// Selection is an ordered set of primitives. Order is load-bearing: the
// n axis of downstream signals indexes into it.
type Selection struct {
	Items []SelectableItem `json:"items"`
}

// SeriesSample is one timestamped vector sample.
type SeriesSample struct {
	Time   float32   `json:"time"`
	Values []float32 `json:"values"`
	Label  *string   `json:"label,omitempty"`
}

// jsonFloat marshals like a float32 but emits null for non-finite
// values, which encoding/json would otherwise reject. Position layers
// carry NaN for an unplugged axis.
type jsonFloat float32

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	fmtByte := byte('f')
	if abs := math.Abs(v); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		fmtByte = 'e'
	}
	b := strconv.AppendFloat(nil, v, fmtByte, -1, 32)
	if fmtByte == 'e' {
		if n := len(b); n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return b, nil
}

// MarshalJSON writes non-finite values as null so a layer with an
// unplugged axis still serializes.
func (s SeriesSample) MarshalJSON() ([]byte, error) {
	type sample struct {
		Time   jsonFloat   `json:"time"`
		Values []jsonFloat `json:"values"`
		Label  *string     `json:"label,omitempty"`
	}
	out := sample{Time: jsonFloat(s.Time), Label: s.Label}
	if s.Values != nil {
		out.Values = make([]jsonFloat, len(s.Values))
		for i, v := range s.Values {
			out.Values[i] = jsonFloat(v)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts null values back as NaN, inverting MarshalJSON.
func (s *SeriesSample) UnmarshalJSON(data []byte) error {
	type sample struct {
		Time   float32    `json:"time"`
		Values []*float32 `json:"values"`
		Label  *string    `json:"label,omitempty"`
	}
	var in sample
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Time = in.Time
	s.Label = in.Label
	s.Values = nil
	if in.Values != nil {
		s.Values = make([]float32, len(in.Values))
		for i, v := range in.Values {
			if v == nil {
				s.Values[i] = float32(math.NaN())
				continue
			}
			s.Values[i] = *v
		}
	}
	return nil
}

// Series is a sampled multi-dimensional time series for one capability.
type Series struct {
	Dim     int            `json:"dim"`
	Labels  []string       `json:"labels,omitempty"`
	Samples []SeriesSample `json:"samples"`
}

// PrimitiveTimeSeries holds per-capability series for one primitive.
// Dims: color 4, dimmer 1, position 2 (pan/tilt), strobe 1, speed 1.
type PrimitiveTimeSeries struct {
	PrimitiveID string  `json:"primitiveId"`
	Color       *Series `json:"color,omitempty"`
	Dimmer      *Series `json:"dimmer,omitempty"`
	Position    *Series `json:"position,omitempty"`
	Strobe      *Series `json:"strobe,omitempty"`
	Speed       *Series `json:"speed,omitempty"`
}

// LayerTimeSeries is the output of one apply node, or the merged run
// output: all animated primitives.
type LayerTimeSeries struct {
	Primitives []PrimitiveTimeSeries `json:"primitives"`
}

// MelSpec is a rasterized mel spectrogram for visualization.
type MelSpec struct {
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Data     []float32 `json:"data"`
	BeatGrid *BeatGrid `json:"beatGrid,omitempty"`
}

// NodeTiming records the wall-clock cost of one node execution.
type NodeTiming struct {
	ID     string  `json:"id"`
	TypeID string  `json:"typeId"`
	Millis float64 `json:"ms"`
}

// ArgSummary describes one graph argument for host UIs, pairing the
// declaration with the value used in the run.
type ArgSummary struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	ArgType PatternArgType `json:"argType"`
}

// PatternEntrySummary describes the audio window a pattern_entry node
// anchors: length, rate, and the grid and crop it forwards. Hosts use
// it to render the sub-pattern timeline without touching the audio.
type PatternEntrySummary struct {
	DurationSeconds float32    `json:"durationSeconds"`
	SampleRate      int        `json:"sampleRate"`
	SampleCount     int        `json:"sampleCount"`
	BeatGrid        *BeatGrid  `json:"beatGrid,omitempty"`
	Crop            *AudioCrop `json:"crop,omitempty"`
}

// RunResult is everything a run produces for the host: tapped signal
// views, spectrogram views, color previews, pattern entry summaries,
// per-node timings, and the argument summary. The merged layer travels
// alongside, not inside, so hosts that only preview don't pay for it.
type RunResult struct {
	Views      map[string]signal.Signal       `json:"views"`
	MelSpecs   map[string]MelSpec             `json:"melSpecs"`
	ColorViews map[string]string              `json:"colorViews"`
	Entries    map[string]PatternEntrySummary `json:"entries,omitempty"`
	Timings    []NodeTiming                   `json:"timings"`
	Args       []ArgSummary                   `json:"args,omitempty"`
}
