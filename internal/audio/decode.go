package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// Decoder turns an audio file into mono samples at the requested rate.
// The production implementation reads WAV; tests substitute fakes.
type Decoder interface {
	Decode(path string, targetRate int) (samples []float32, sampleRate int, err error)
}

// WAVDecoder decodes RIFF/WAV files, downmixing to mono and linearly
// resampling to the target rate.
type WAVDecoder struct{}

// Decode implements Decoder.
func (WAVDecoder) Decode(path string, targetRate int) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("audio: %s has no audio data", path)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	scale := float32(int64(1) << (dec.BitDepth - 1))
	if scale <= 0 {
		scale = 1 << 15
	}

	frames := len(buf.Data) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		mono[i] = sum / float32(channels)
	}

	rate := buf.Format.SampleRate
	if targetRate > 0 && rate != targetRate {
		mono = Resample(mono, rate, targetRate)
		rate = targetRate
	}
	return mono, rate, nil
}

// Resample converts samples between rates with linear interpolation.
// Good enough for control-rate lighting features; not for mastering.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
