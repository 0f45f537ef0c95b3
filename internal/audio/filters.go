package audio

import "math"

// Second-order Butterworth filters shared across audio features. They
// trade steep slopes for speed and low allocations.

type biquad struct {
	b0, b1, b2, a1, a2 float64
}

func (f biquad) process(samples []float32) []float32 {
	out := make([]float32, len(samples))
	var x1, x2, y1, y2 float64
	for i, s := range samples {
		x := float64(s)
		y := f.b0*x + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
		out[i] = float32(y)
		x2, x1 = x1, x
		y2, y1 = y1, y
	}
	return out
}

// normalizeCutoff clamps the cutoff into (0, nyquist). Returns ok=false
// when the sample rate can't support filtering at all.
func normalizeCutoff(cutoffHz, sampleRate float64) (float64, bool) {
	if math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) || sampleRate <= 0 {
		return 0, false
	}
	maxCutoff := sampleRate*0.5 - 1
	if maxCutoff < 1 {
		maxCutoff = 1
	}
	cutoff := cutoffHz
	if cutoff < 1 {
		cutoff = 1
	}
	if cutoff > maxCutoff {
		cutoff = maxCutoff
	}
	return cutoff, true
}

// Lowpass applies a 2nd order Butterworth lowpass. Invalid sample rates
// return the input unchanged.
func Lowpass(samples []float32, cutoffHz float64, sampleRate int) []float32 {
	cutoff, ok := normalizeCutoff(cutoffHz, float64(sampleRate))
	if !ok {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	omega := 2 * math.Pi * cutoff / float64(sampleRate)
	cosOmega := math.Cos(omega)
	alpha := math.Sin(omega) / (2 * 0.707) // Q = 0.707 for butterworth

	a0 := 1 + alpha
	f := biquad{
		b0: (1 - cosOmega) / 2 / a0,
		b1: (1 - cosOmega) / a0,
		b2: (1 - cosOmega) / 2 / a0,
		a1: -2 * cosOmega / a0,
		a2: (1 - alpha) / a0,
	}
	return f.process(samples)
}

// Highpass applies a 2nd order Butterworth highpass.
func Highpass(samples []float32, cutoffHz float64, sampleRate int) []float32 {
	cutoff, ok := normalizeCutoff(cutoffHz, float64(sampleRate))
	if !ok {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	omega := 2 * math.Pi * cutoff / float64(sampleRate)
	cosOmega := math.Cos(omega)
	alpha := math.Sin(omega) / (2 * 0.707)

	a0 := 1 + alpha
	f := biquad{
		b0: (1 + cosOmega) / 2 / a0,
		b1: -(1 + cosOmega) / a0,
		b2: (1 + cosOmega) / 2 / a0,
		a1: -2 * cosOmega / a0,
		a2: (1 - alpha) / a0,
	}
	return f.process(samples)
}
