package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lumen/internal/graph"
)

func sineWave(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate)))
	}
	return out
}

func TestBandEnergyPicksOutTone(t *testing.T) {
	svc := NewFFTService()
	samples := sineWave(440, TargetSampleRate, TargetSampleRate) // 1s of A4

	inBand := svc.BandEnergy(samples, TargetSampleRate, [][2]float64{{400, 500}})
	outBand := svc.BandEnergy(samples, TargetSampleRate, [][2]float64{{5000, 6000}})

	require.NotEmpty(t, inBand)
	require.Equal(t, len(inBand), len(outBand))

	var inSum, outSum float64
	for i := range inBand {
		inSum += float64(inBand[i])
		outSum += float64(outBand[i])
	}
	assert.Greater(t, inSum, outSum*10, "tone energy should concentrate in its band")
}

func TestBandEnergyEmptyInputs(t *testing.T) {
	svc := NewFFTService()
	assert.Nil(t, svc.BandEnergy(nil, TargetSampleRate, [][2]float64{{0, 100}}))
	assert.Nil(t, svc.BandEnergy([]float32{1}, 0, [][2]float64{{0, 100}}))
	assert.Nil(t, svc.BandEnergy([]float32{1}, TargetSampleRate, nil))
}

func TestMelSpectrogramShapeAndRange(t *testing.T) {
	svc := NewFFTService()
	samples := sineWave(440, TargetSampleRate, TargetSampleRate/2)

	spec := svc.MelSpectrogram(samples, TargetSampleRate, 64, 32)
	require.Len(t, spec, 64*32)
	for _, v := range spec {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestMelSpectrogramEmptyIsZero(t *testing.T) {
	svc := NewFFTService()
	spec := svc.MelSpectrogram(nil, TargetSampleRate, 8, 4)
	require.Len(t, spec, 32)
	for _, v := range spec {
		assert.Zero(t, v)
	}
}

func TestMelFiltersCached(t *testing.T) {
	svc := NewFFTService()
	a := svc.MelFilters(32, TargetSampleRate)
	b := svc.MelFilters(32, TargetSampleRate)
	require.Len(t, a, 32)
	// same backing array on cache hit
	assert.Same(t, &a[0][0], &b[0][0])
}

func TestLowpassAttenuatesHighs(t *testing.T) {
	high := sineWave(8000, TargetSampleRate, 4096)
	filtered := Lowpass(high, 200, TargetSampleRate)

	var before, after float64
	for i := range high {
		before += float64(high[i]) * float64(high[i])
		after += float64(filtered[i]) * float64(filtered[i])
	}
	assert.Less(t, after, before/10)
}

func TestHighpassKeepsHighs(t *testing.T) {
	high := sineWave(8000, TargetSampleRate, 4096)
	filtered := Highpass(high, 200, TargetSampleRate)

	var before, after float64
	for i := range high {
		before += float64(high[i]) * float64(high[i])
		after += float64(filtered[i]) * float64(filtered[i])
	}
	// well above the cutoff, energy passes mostly intact
	assert.Greater(t, after, before/2)
}

func TestFilterInvalidSampleRatePassesThrough(t *testing.T) {
	in := []float32{1, 2, 3}
	assert.Equal(t, in, Lowpass(in, 100, 0))
	assert.Equal(t, in, Highpass(in, 100, -1))
}

func TestCropToRange(t *testing.T) {
	samples := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	// 1-second slices at 2 Hz
	out, err := CropToRange(samples, 2, graph.AudioCrop{StartSeconds: 1, EndSeconds: 3}, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4, 5}, out)

	// pad when the window is short
	out, err = CropToRange(samples, 2, graph.AudioCrop{StartSeconds: 4, EndSeconds: 5}, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{8, 9, 0, 0}, out)

	// truncate when the window is long
	out, err = CropToRange(samples, 2, graph.AudioCrop{StartSeconds: 0, EndSeconds: 5}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, out)
}

func TestCropToRangeErrors(t *testing.T) {
	_, err := CropToRange(nil, 2, graph.AudioCrop{EndSeconds: 1}, 4)
	require.Error(t, err)
	_, err = CropToRange([]float32{1}, 0, graph.AudioCrop{EndSeconds: 1}, 4)
	require.Error(t, err)
	_, err = CropToRange([]float32{1, 2}, 2, graph.AudioCrop{StartSeconds: 5, EndSeconds: 5}, 4)
	require.Error(t, err)
}

func TestStemCache(t *testing.T) {
	c := NewStemCache()

	_, _, ok := c.Get(1, "drums")
	assert.False(t, ok)

	c.Put(1, "drums", []float32{1, 2}, TargetSampleRate)
	c.Put(1, "bass", []float32{3}, TargetSampleRate)
	c.Put(2, "drums", []float32{4}, TargetSampleRate)

	samples, rate, ok := c.Get(1, "drums")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, samples)
	assert.Equal(t, TargetSampleRate, rate)

	c.RemoveTrack(1)
	_, _, ok = c.Get(1, "drums")
	assert.False(t, ok)
	_, _, ok = c.Get(1, "bass")
	assert.False(t, ok)
	_, _, ok = c.Get(2, "drums")
	assert.True(t, ok, "other tracks survive invalidation")
	assert.Equal(t, 1, c.Len())
}

func TestResample(t *testing.T) {
	in := []float32{0, 1, 0, -1}
	out := Resample(in, 4, 8)
	assert.Len(t, out, 8)
	// interpolated midpoint between 0 and 1
	assert.InDelta(t, 0.5, out[1], 1e-6)

	same := Resample(in, 4, 4)
	assert.Equal(t, in, same)
}
