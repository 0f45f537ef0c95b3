package graph

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultsMissingArgs(t *testing.T) {
	doc := `{
		"nodes": [{"id": "n1", "typeId": "scalar", "params": {"value": 0.5}}],
		"edges": []
	}`
	g, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Args)
	assert.Equal(t, "scalar", g.Nodes[0].TypeID)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse([]byte(`{"nodes": [}`))
	require.Error(t, err)
}

func TestNumberParamDefaults(t *testing.T) {
	n := NodeInstance{Params: map[string]json.RawMessage{
		"value": json.RawMessage(`0.25`),
		"text":  json.RawMessage(`"hello"`),
	}}
	assert.Equal(t, 0.25, n.NumberParam("value", 1))
	assert.Equal(t, 1.0, n.NumberParam("missing", 1))
	// wrong type falls back
	assert.Equal(t, 2.0, n.NumberParam("text", 2))
	assert.Equal(t, "hello", n.TextParam("text", ""))
	assert.Equal(t, "dft", n.TextParam("missing", "dft"))
}

func TestBeatGridRelativeToCrop(t *testing.T) {
	g := BeatGrid{
		Beats:          []float32{0.5, 1.0, 1.5, 2.0, 2.5},
		Downbeats:      []float32{1.0, 2.0},
		BPM:            120,
		DownbeatOffset: 1.0,
		BeatsPerBar:    4,
	}
	out := g.RelativeToCrop(&AudioCrop{StartSeconds: 1.0, EndSeconds: 2.0})

	assert.Equal(t, []float32{0, 0.5, 1.0}, out.Beats)
	assert.Equal(t, []float32{0, 1.0}, out.Downbeats)
	assert.Equal(t, float32(0), out.DownbeatOffset)
	assert.Equal(t, float32(120), out.BPM)
}

func TestBeatGridRelativeToCropNil(t *testing.T) {
	g := BeatGrid{Beats: []float32{1, 2}, BPM: 100}
	out := g.RelativeToCrop(nil)
	assert.Equal(t, g.Beats, out.Beats)
}

func TestAudioCropDuration(t *testing.T) {
	assert.Equal(t, float32(2), AudioCrop{StartSeconds: 1, EndSeconds: 3}.Duration())
	assert.Equal(t, float32(0), AudioCrop{StartSeconds: 3, EndSeconds: 1}.Duration())
}

func TestGraphContextRoundTrip(t *testing.T) {
	ctx := GraphContext{
		TrackID:   7,
		StartTime: 1.5,
		EndTime:   9.5,
		BeatGrid:  &BeatGrid{BPM: 128, BeatsPerBar: 4},
	}
	data, err := json.Marshal(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"trackId":7`)

	var back GraphContext
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ctx.TrackID, back.TrackID)
	require.NotNil(t, back.BeatGrid)
	assert.Equal(t, float32(128), back.BeatGrid.BPM)
}

func TestSeriesSampleMarshalsNonFiniteAsNull(t *testing.T) {
	s := SeriesSample{
		Time:   2,
		Values: []float32{90, float32(math.NaN()), float32(math.Inf(1))},
	}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"time":2,"values":[90,null,null]}`, string(data))
}

func TestSeriesSampleFiniteValuesUnchanged(t *testing.T) {
	label := "beat"
	s := SeriesSample{Time: 0.5, Values: []float32{0, 1, 0.25}, Label: &label}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"time":0.5,"values":[0,1,0.25],"label":"beat"}`, string(data))
}

func TestSeriesSampleNullRoundTripsToNaN(t *testing.T) {
	var s SeriesSample
	require.NoError(t, json.Unmarshal([]byte(`{"time":4,"values":[180,null]}`), &s))
	assert.Equal(t, float32(4), s.Time)
	require.Len(t, s.Values, 2)
	assert.Equal(t, float32(180), s.Values[0])
	assert.True(t, math.IsNaN(float64(s.Values[1])))
}
