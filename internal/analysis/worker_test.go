package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lumen/internal/store"
)

func TestParseRootLabel(t *testing.T) {
	pc := func(v uint8) *uint8 { return &v }

	cases := []struct {
		label string
		want  *uint8
	}{
		{"C:maj", pc(0)},
		{"C#:min", pc(1)},
		{"Db:maj", pc(1)},
		{"D:7", pc(2)},
		{"Eb:maj", pc(3)},
		{"E", pc(4)},
		{"F:min7", pc(5)},
		{"Gb:maj", pc(6)},
		{"G:maj", pc(7)},
		{"Ab:min", pc(8)},
		{"A:maj", pc(9)},
		{"A#:min", pc(10)},
		{"Bb:maj", pc(10)},
		{"B:dim", pc(11)},
		{" C :maj", pc(0)},
		{"N", nil},
		{"", nil},
		{"X:maj", nil},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			got := ParseRootLabel(tc.label)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}
}

func TestBeatWorkerParsesResponse(t *testing.T) {
	w := &BeatWorker{Command: []string{"echo", `{"beats":[0.5,1.0,1.5,2.0],"downbeats":[0.5],"bpm":120}`}}

	grid, err := w.ComputeBeats(context.Background(), "/tmp/fake.wav")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1.0, 1.5, 2.0}, grid.Beats)
	assert.Equal(t, []float32{0.5}, grid.Downbeats)
	assert.Equal(t, float32(120), grid.BPM)
	assert.Equal(t, float32(0.5), grid.DownbeatOffset)
}

func TestBeatWorkerEstimatesBPM(t *testing.T) {
	w := &BeatWorker{Command: []string{"echo", `{"beats":[0.0,0.5,1.0,1.5],"downbeats":[]}`}}

	grid, err := w.ComputeBeats(context.Background(), "x")
	require.NoError(t, err)
	assert.InDelta(t, 120, grid.BPM, 1e-3)
}

func TestBeatWorkerFailureCarriesStderr(t *testing.T) {
	w := &BeatWorker{Command: []string{"sh", "-c", `echo "model load failed" >&2; exit 3`}}

	_, err := w.ComputeBeats(context.Background(), "x")
	require.Error(t, err)

	var werr *WorkerError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "beat", werr.Worker)
	assert.Contains(t, werr.StderrTail, "model load failed")
}

func TestBeatWorkerBadJSON(t *testing.T) {
	w := &BeatWorker{Command: []string{"echo", `not json`}}
	_, err := w.ComputeBeats(context.Background(), "x")
	var werr *WorkerError
	require.ErrorAs(t, err, &werr)
	assert.Contains(t, werr.Error(), "parse response")
}

func TestBeatWorkerNoCommand(t *testing.T) {
	w := &BeatWorker{}
	_, err := w.ComputeBeats(context.Background(), "x")
	require.Error(t, err)
}

func TestRootWorkerParsesSections(t *testing.T) {
	w := &RootWorker{Command: []string{"echo", `{
		"frame_hop_seconds": 0.046,
		"logits_path": "/tmp/logits.bin",
		"sections": [
			{"start": 0, "end": 4, "label": "C:maj"},
			{"start": 4, "end": 8, "label": "N"},
			{"start": 8, "end": 12, "label": "A#:min"}
		]
	}`}}

	analysis, err := w.ComputeRoots(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/logits.bin", analysis.LogitsPath)
	assert.InDelta(t, 0.046, analysis.FrameHopSeconds, 1e-6)
	require.Len(t, analysis.Sections, 3)
	require.NotNil(t, analysis.Sections[0].Root)
	assert.Equal(t, uint8(0), *analysis.Sections[0].Root)
	assert.Nil(t, analysis.Sections[1].Root)
	require.NotNil(t, analysis.Sections[2].Root)
	assert.Equal(t, uint8(10), *analysis.Sections[2].Root)
}

func TestRootCache(t *testing.T) {
	c := NewRootCache()

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Put(1, store.RootAnalysis{LogitsPath: "/a"})
	c.Put(2, store.RootAnalysis{LogitsPath: "/b"})

	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "/a", got.LogitsPath)

	c.Remove(1)
	_, ok = c.Get(1)
	assert.False(t, ok)
	_, ok = c.Get(2)
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}
