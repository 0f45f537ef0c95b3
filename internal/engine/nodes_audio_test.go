package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lumen/internal/audio"
	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/signal"
	"github.com/roach88/lumen/internal/store"
)

// rampDecoder fabricates deterministic audio and counts decodes, so
// cache tests can prove a path was never hit twice.
type rampDecoder struct {
	calls int
}

func (d *rampDecoder) Decode(path string, targetRate int) ([]float32, int, error) {
	d.calls++
	rate := targetRate
	if rate <= 0 {
		rate = audio.TargetSampleRate
	}
	samples := make([]float32, rate*4)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}
	return samples, rate, nil
}

type failingDecoder struct{}

func (failingDecoder) Decode(string, int) ([]float32, int, error) {
	return nil, 0, fmt.Errorf("decoder should not have been called")
}

func contextBuffer() *audio.Buffer {
	crop := graph.AudioCrop{StartSeconds: 0, EndSeconds: 4}
	return &audio.Buffer{
		Samples:    make([]float32, 4*44100),
		SampleRate: 44100,
		Crop:       &crop,
		TrackID:    1,
		TrackHash:  "hash-1",
	}
}

func TestAudioInputRequiresContext(t *testing.T) {
	r := testRun(window())
	n := node("in", "audio_input", nil)

	require.Error(t, r.runAudioInput(&n))
}

func TestAudioInputExposesAudioAndGrid(t *testing.T) {
	r := testRun(window())
	r.audio = contextBuffer()
	r.grid = &graph.BeatGrid{BPM: 120, Beats: []float32{0, 0.5}}
	n := node("in", "audio_input", nil)

	require.NoError(t, r.runAudioInput(&n))

	buf, ok := r.state.Audio("in", "out")
	require.True(t, ok)
	assert.Same(t, r.audio, buf)

	grid, ok := r.state.Grid("in", "grid_out")
	require.True(t, ok)
	assert.Equal(t, float32(120), grid.BPM)
}

func TestBeatClock(t *testing.T) {
	r := testRun(window())
	r.grid = &graph.BeatGrid{BPM: 174}
	n := node("clock", "beat_clock", nil)

	require.NoError(t, r.runBeatClock(&n))
	grid, ok := r.state.Grid("clock", "grid_out")
	require.True(t, ok)
	assert.Equal(t, float32(174), grid.BPM)
}

func TestFilterPreservesBufferMetadata(t *testing.T) {
	for _, typeID := range []string{"lowpass_filter", "highpass_filter"} {
		t.Run(typeID, func(t *testing.T) {
			r := testRun(window())
			in := contextBuffer()
			r.state.SetAudio("src", "out", in)
			wire(r, "src", "out", "f", "audio_in")
			n := node("f", typeID, map[string]any{"cutoff_hz": 500})

			require.NoError(t, r.runFilter(&n))
			out, ok := r.state.Audio("f", "audio_out")
			require.True(t, ok)
			assert.Len(t, out.Samples, len(in.Samples))
			assert.Equal(t, in.SampleRate, out.SampleRate)
			assert.Equal(t, in.TrackID, out.TrackID)
			assert.Equal(t, in.Crop, out.Crop)
		})
	}
}

func TestFrequencyAmplitudeBadRangesParam(t *testing.T) {
	r := testRun(window())
	r.state.SetAudio("src", "out", contextBuffer())
	wire(r, "src", "out", "fa", "audio_in")
	n := node("fa", "frequency_amplitude", map[string]any{"selected_frequency_ranges": "oops"})

	err := r.runFrequencyAmplitude(&n)
	require.Error(t, err)
	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeBadParam, re.Code)
}

func TestFrequencyAmplitudeEmitsFrameSignal(t *testing.T) {
	r := testRun(window())
	r.eval.FFT = audio.NewFFTService()
	r.state.SetAudio("src", "out", contextBuffer())
	wire(r, "src", "out", "fa", "audio_in")
	n := node("fa", "frequency_amplitude", map[string]any{
		"selected_frequency_ranges": `[[20,200],[200,2000]]`,
	})

	require.NoError(t, r.runFrequencyAmplitude(&n))
	sig, ok := r.state.Signal("fa", "amplitude_out")
	require.True(t, ok)
	assert.Equal(t, 1, sig.N)
	assert.Equal(t, 1, sig.C)
	assert.Greater(t, sig.T, 1)
}

func beatEnvelopeRun(t *testing.T, grid *graph.BeatGrid, params map[string]any) signal.Signal {
	t.Helper()
	r := testRun(window())
	r.state.SetGrid("clock", "grid_out", grid)
	wire(r, "clock", "grid_out", "env", "grid")
	n := node("env", "beat_envelope", params)

	require.NoError(t, r.runBeatEnvelope(&n))
	return outSignal(t, r, "env")
}

func TestBeatEnvelopePulsesOnBeats(t *testing.T) {
	grid := &graph.BeatGrid{BPM: 60, Beats: []float32{1, 2, 3}}
	env := beatEnvelopeRun(t, grid, nil)
	require.Equal(t, PreviewLength, env.T)

	// Sample index i maps to t = i/256*4; t=1 is i=64.
	assert.Equal(t, float32(0), env.Data[0])
	assert.InDelta(t, 1, env.Data[64], 0.05)

	// Default ADSR holds 0.7 through the sustain segment (t in 1.2..1.5).
	assert.InDelta(t, 0.7, env.Data[84], 0.05)

	// Fully released after the last pulse's envelope ends (t > 3.7).
	assert.Equal(t, float32(0), env.Data[250])
}

func TestBeatEnvelopeOnlyDownbeats(t *testing.T) {
	grid := &graph.BeatGrid{BPM: 60, Beats: []float32{1, 2, 3}, Downbeats: []float32{2}}
	env := beatEnvelopeRun(t, grid, map[string]any{"only_downbeats": 1})

	assert.InDelta(t, 0, env.Data[64], 0.01)  // t=1, a plain beat
	assert.InDelta(t, 1, env.Data[128], 0.05) // t=2, the downbeat
}

func TestBeatEnvelopeSubdivisionAddsPulses(t *testing.T) {
	grid := &graph.BeatGrid{BPM: 60, Beats: []float32{1, 2, 3}}
	env := beatEnvelopeRun(t, grid, map[string]any{"subdivision": 2})

	// Halfway between beats gets its own pulse.
	assert.InDelta(t, 1, env.Data[96], 0.05) // t=1.5
}

func TestBeatEnvelopeAmplitudeScales(t *testing.T) {
	grid := &graph.BeatGrid{BPM: 60, Beats: []float32{1, 2, 3}}
	env := beatEnvelopeRun(t, grid, map[string]any{"amplitude": 0.25})

	assert.InDelta(t, 0.25, env.Data[64], 0.02)
}

func TestBeatEnvelopeWithoutGridIsNoOp(t *testing.T) {
	r := testRun(window())
	n := node("env", "beat_envelope", nil)

	require.NoError(t, r.runBeatEnvelope(&n))
	_, ok := r.state.Signal("env", "out")
	assert.False(t, ok)
}

func TestControlValuePrefersConnectedSignal(t *testing.T) {
	r := testRun(window())
	n := node("env", "beat_envelope", map[string]any{"subdivision": 4})

	// No connection: the param wins.
	assert.Equal(t, float32(4), r.controlValue(&n, "subdivision", 1))

	// Connected: the signal's midpoint sample wins.
	feed(r, "env", "subdivision", signal.MustNew(1, 4, 1, []float32{1, 2, 8, 16}))
	assert.Equal(t, float32(8), r.controlValue(&n, "subdivision", 1))
}

func TestStemSplitterRejectsEmptyAudio(t *testing.T) {
	r := testRun(window())
	crop := graph.AudioCrop{EndSeconds: 4}
	r.state.SetAudio("src", "out", &audio.Buffer{SampleRate: 44100, Crop: &crop, TrackID: 1})
	wire(r, "src", "out", "st", "audio_in")
	n := node("st", "stem_splitter", nil)

	err := r.runStemSplitter(context.Background(), &n)
	require.Error(t, err)
	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeEmptySignal, re.Code)
}

func TestStemSplitterDecodesAndCaches(t *testing.T) {
	s, err := store.Open(t.TempDir() + "/project.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	trackID, err := s.InsertTrack(ctx, "audio/track.wav", "hash-1", "Track")
	require.NoError(t, err)
	for _, stem := range []string{"drums", "bass", "vocals", "other"} {
		require.NoError(t, s.PutTrackStem(ctx, trackID, stem, "stems/"+stem+".wav"))
	}

	dec := &rampDecoder{}
	r := testRun(window())
	r.eval.Store = s
	r.eval.Decoder = dec
	r.eval.Stems = audio.NewStemCache()

	crop := graph.AudioCrop{StartSeconds: 0, EndSeconds: 4}
	buf := &audio.Buffer{
		Samples:    make([]float32, 4*44100),
		SampleRate: 44100,
		Crop:       &crop,
		TrackID:    trackID,
	}
	r.state.SetAudio("src", "out", buf)
	wire(r, "src", "out", "st", "audio_in")
	n := node("st", "stem_splitter", nil)

	require.NoError(t, r.runStemSplitter(ctx, &n))
	assert.Equal(t, 4, dec.calls)

	for _, port := range []string{"drums_out", "bass_out", "vocals_out", "other_out"} {
		out, ok := r.state.Audio("st", port)
		require.True(t, ok, port)
		assert.Len(t, out.Samples, len(buf.Samples))
		assert.Equal(t, trackID, out.TrackID)
	}

	// A second run is served entirely from the stem cache; a decoder
	// call now would fail the run.
	r2 := testRun(window())
	r2.eval.Store = s
	r2.eval.Decoder = failingDecoder{}
	r2.eval.Stems = r.eval.Stems
	r2.state.SetAudio("src", "out", buf)
	wire(r2, "src", "out", "st", "audio_in")

	require.NoError(t, r2.runStemSplitter(ctx, &n))
	assert.Equal(t, 4, dec.calls)
	_, ok := r2.state.Audio("st", "drums_out")
	assert.True(t, ok)
}

func TestPatternEntryForwardsAudioAndGrid(t *testing.T) {
	r := testRun(window())
	buf := contextBuffer()
	grid := &graph.BeatGrid{BPM: 120, Beats: []float32{0, 0.5, 1}}
	r.state.SetAudio("in", "out", buf)
	r.state.SetGrid("clock", "grid_out", grid)
	wire(r, "in", "out", "entry", "audio_in")
	wire(r, "clock", "grid_out", "entry", "grid_in")
	n := node("entry", "pattern_entry", nil)

	require.NoError(t, r.runPatternEntry(&n))

	out, ok := r.state.Audio("entry", "audio_out")
	require.True(t, ok)
	assert.Same(t, buf, out)
	gridOut, ok := r.state.Grid("entry", "grid_out")
	require.True(t, ok)
	assert.Same(t, grid, gridOut)

	summary, ok := r.state.entries["entry"]
	require.True(t, ok)
	assert.Equal(t, float32(4), summary.DurationSeconds)
	assert.Equal(t, 44100, summary.SampleRate)
	assert.Equal(t, 4*44100, summary.SampleCount)
	assert.Same(t, grid, summary.BeatGrid)
	assert.Equal(t, buf.Crop, summary.Crop)
}

func TestPatternEntryGridIsOptional(t *testing.T) {
	r := testRun(window())
	r.state.SetAudio("in", "out", contextBuffer())
	wire(r, "in", "out", "entry", "audio_in")
	n := node("entry", "pattern_entry", nil)

	require.NoError(t, r.runPatternEntry(&n))

	_, ok := r.state.Grid("entry", "grid_out")
	assert.False(t, ok)
	summary, ok := r.state.entries["entry"]
	require.True(t, ok)
	assert.Nil(t, summary.BeatGrid)
}

func TestPatternEntryRequiresAudioEdge(t *testing.T) {
	r := testRun(window())
	n := node("entry", "pattern_entry", nil)

	err := r.runPatternEntry(&n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing audio input")
}

func TestPatternEntryRequiresUpstreamBuffer(t *testing.T) {
	r := testRun(window())
	wire(r, "in", "out", "entry", "audio_in")
	n := node("entry", "pattern_entry", nil)

	require.Error(t, r.runPatternEntry(&n))
}

func TestPatternEntryZeroRateBufferHasZeroDuration(t *testing.T) {
	r := testRun(window())
	r.state.SetAudio("in", "out", &audio.Buffer{Samples: make([]float32, 100)})
	wire(r, "in", "out", "entry", "audio_in")
	n := node("entry", "pattern_entry", nil)

	require.NoError(t, r.runPatternEntry(&n))
	assert.Equal(t, float32(0), r.state.entries["entry"].DurationSeconds)
}

func TestRunWithContextAudioSkipsDecoder(t *testing.T) {
	s, err := store.Open(t.TempDir() + "/project.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	trackID, err := s.InsertTrack(ctx, "audio/track.wav", "hash-1", "Track")
	require.NoError(t, err)

	g := &graph.Graph{
		Nodes: []graph.NodeInstance{
			node("in", "audio_input", nil),
			node("entry", "pattern_entry", nil),
		},
		Edges: []graph.Edge{
			edge("in", "out", "entry", "audio_in"),
			edge("in", "grid_out", "entry", "grid_in"),
		},
	}
	gctx := graph.GraphContext{
		TrackID:   trackID,
		StartTime: 0,
		EndTime:   4,
		BeatGrid:  &graph.BeatGrid{BPM: 120, Beats: []float32{0, 0.5, 1}},
	}
	e := &Evaluator{Store: s, Decoder: failingDecoder{}, Logger: discardLogger()}

	buf := contextBuffer()
	buf.TrackID = trackID
	result, _, err := e.RunWithContextAudio(ctx, g, gctx, buf)
	require.NoError(t, err)

	summary, ok := result.Entries["entry"]
	require.True(t, ok)
	assert.Equal(t, float32(4), summary.DurationSeconds)
	assert.Equal(t, 44100, summary.SampleRate)
	require.NotNil(t, summary.BeatGrid)
	assert.Equal(t, float32(120), summary.BeatGrid.BPM)
}

func TestRunWithoutContextAudioStillDecodes(t *testing.T) {
	s, err := store.Open(t.TempDir() + "/project.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	trackID, err := s.InsertTrack(ctx, "audio/track.wav", "hash-1", "Track")
	require.NoError(t, err)

	g := &graph.Graph{Nodes: []graph.NodeInstance{node("in", "audio_input", nil)}}
	gctx := graph.GraphContext{
		TrackID:  trackID,
		EndTime:  4,
		BeatGrid: &graph.BeatGrid{BPM: 120},
	}

	dec := &rampDecoder{}
	e := &Evaluator{Store: s, Decoder: dec, Logger: discardLogger()}
	_, _, err = e.Run(ctx, g, gctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dec.calls)
}
