// Package audio holds the in-memory audio model and the DSP helpers
// node implementations lean on: FFT band energy, mel spectrograms,
// Butterworth filters, crop arithmetic, and the stem cache.
package audio

import (
	"fmt"

	"github.com/roach88/lumen/internal/graph"
)

// TargetSampleRate is the rate all decoded audio is resampled to.
const TargetSampleRate = 44100

// Buffer is mono audio flowing between nodes. Crop records which part of
// the source track the samples cover, in track time; TrackID/TrackHash
// identify the source for cache keys.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Crop       *graph.AudioCrop
	TrackID    int64
	TrackHash  string
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float32 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float32(len(b.Samples)) / float32(b.SampleRate)
}

// CropToRange cuts samples down to the crop window and pads or truncates
// to targetLen so stem buffers line up sample-exact with context audio.
func CropToRange(samples []float32, sampleRate int, crop graph.AudioCrop, targetLen int) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: cannot crop with sample rate %d", sampleRate)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("audio: cannot crop empty sample buffer")
	}
	if targetLen == 0 {
		return nil, nil
	}

	start := int(crop.StartSeconds * float32(sampleRate))
	if start < 0 {
		start = 0
	}
	if start > len(samples)-1 {
		start = len(samples) - 1
	}
	end := int(crop.EndSeconds*float32(sampleRate) + 0.5)
	if end > len(samples) {
		end = len(samples)
	}
	if end <= start {
		return nil, fmt.Errorf("audio: crop window [%f, %f] is empty", crop.StartSeconds, crop.EndSeconds)
	}

	// copy truncates to targetLen; any tail beyond the source stays
	// zero-padded
	segment := make([]float32, targetLen)
	copy(segment, samples[start:end])
	return segment, nil
}
