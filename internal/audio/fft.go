package audio

import (
	"math"
	"math/cmplx"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"
)

// STFT geometry shared by every frequency-domain feature.
const (
	FFTSize = 2048
	HopSize = 512
)

// Mel spectrogram raster dimensions.
const (
	MelSpecWidth  = 512
	MelSpecHeight = 128
)

// FFTService owns the Hann window and a cache of mel filter banks so
// repeated runs don't rebuild them. Safe for concurrent use.
type FFTService struct {
	window []float64

	mu         sync.Mutex
	melFilters map[melKey][][]float64
}

type melKey struct {
	bins       int
	sampleRate int
}

// NewFFTService builds the service with a precomputed Hann window.
func NewFFTService() *FFTService {
	return &FFTService{
		window:     hannWindow(FFTSize),
		melFilters: make(map[melKey][][]float64),
	}
}

// MelFilters returns the triangular mel filter bank for the given bin
// count and sample rate, building and caching it on first use.
func (s *FFTService) MelFilters(bins, sampleRate int) [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := melKey{bins: bins, sampleRate: sampleRate}
	if filters, ok := s.melFilters[key]; ok {
		return filters
	}
	filters := buildMelFilters(bins, FFTSize, sampleRate)
	s.melFilters[key] = filters
	return filters
}

// frameCount returns the number of STFT frames covering the samples.
func frameCount(n int) int {
	if n <= FFTSize {
		return 1
	}
	return (n-FFTSize)/HopSize + 1
}

// BandEnergy computes the per-frame average spectral magnitude across
// the given frequency ranges ([min Hz, max Hz] pairs). One value per
// STFT frame; frames are processed in parallel.
func (s *FFTService) BandEnergy(samples []float32, sampleRate int, ranges [][2]float64) []float32 {
	if len(samples) == 0 || sampleRate <= 0 || len(ranges) == 0 {
		return nil
	}

	frames := frameCount(len(samples))
	out := make([]float32, frames)

	freqResolution := float64(sampleRate) / FFTSize
	spectrumLen := FFTSize/2 + 1
	binRanges := make([][2]int, len(ranges))
	for i, r := range ranges {
		lo := int(math.Floor(r[0] / freqResolution))
		hi := int(math.Ceil(r[1] / freqResolution))
		if lo > spectrumLen-1 {
			lo = spectrumLen - 1
		}
		if hi > spectrumLen-1 {
			hi = spectrumLen - 1
		}
		if hi < lo {
			hi = lo
		}
		binRanges[i] = [2]int{lo, hi}
	}

	s.eachFrame(samples, frames, func(frame int, spectrum []complex128) {
		var sum float64
		var count int
		for _, br := range binRanges {
			for bin := br[0]; bin <= br[1]; bin++ {
				sum += cmplx.Abs(spectrum[bin])
				count++
			}
		}
		if count == 0 {
			return
		}
		avg := sum / float64(count)
		out[frame] = float32(avg / FFTSize * 4.0)
	})

	return out
}

// MelSpectrogram renders a width x height column-major raster of
// log-scaled mel energies, normalized to 0..1 over the whole image.
func (s *FFTService) MelSpectrogram(samples []float32, sampleRate, width, height int) []float32 {
	if len(samples) == 0 || sampleRate <= 0 {
		return make([]float32, width*height)
	}

	filters := s.MelFilters(height, sampleRate)
	frames := frameCount(len(samples))
	melFrames := make([][]float64, frames)
	for i := range melFrames {
		melFrames[i] = make([]float64, height)
	}

	s.eachFrame(samples, frames, func(frame int, spectrum []complex128) {
		row := melFrames[frame]
		for melIdx, filter := range filters {
			var energy float64
			for bin, weight := range filter {
				if weight == 0 {
					continue
				}
				energy += weight * cmplx.Abs(spectrum[bin])
			}
			row[melIdx] = energy
		}
	})

	return aggregateMelFrames(melFrames, width, height)
}

// eachFrame runs fn over every STFT frame. Frames are sharded across
// workers; each worker owns its own FFT plan since gonum plans carry
// scratch state.
func (s *FFTService) eachFrame(samples []float32, frames int, fn func(frame int, spectrum []complex128)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > frames {
		workers = frames
	}
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			fft := fourier.NewFFT(FFTSize)
			input := make([]float64, FFTSize)
			spectrum := make([]complex128, FFTSize/2+1)
			for frame := w; frame < frames; frame += workers {
				start := frame * HopSize
				for i := 0; i < FFTSize; i++ {
					var sample float64
					if start+i < len(samples) {
						sample = float64(samples[start+i])
					}
					input[i] = sample * s.window[i]
				}
				fn(frame, fft.Coefficients(spectrum, input))
			}
			return nil
		})
	}
	// workers never return errors; Wait just joins them
	_ = g.Wait()
}

// aggregateMelFrames pools STFT frames into a fixed-width raster and
// normalizes. Output is column-major: data[col*height + bin].
func aggregateMelFrames(frames [][]float64, width, height int) []float32 {
	out := make([]float32, width*height)
	if len(frames) == 0 {
		return out
	}

	frameCount := len(frames)
	raw := make([]float64, width*height)
	for col := 0; col < width; col++ {
		start := col * frameCount / width
		end := (col + 1) * frameCount / width
		if end <= start {
			end = start + 1
		}
		if start >= frameCount {
			start = frameCount - 1
			end = frameCount
		} else if end > frameCount {
			end = frameCount
		}
		count := end - start

		for bin := 0; bin < height; bin++ {
			var sum float64
			for _, frame := range frames[start:end] {
				sum += frame[bin]
			}
			raw[col*height+bin] = sum / float64(count)
		}
	}

	normalizeSpectrogram(raw, out)
	return out
}

// normalizeSpectrogram maps log magnitudes onto 0..1 across the image.
func normalizeSpectrogram(raw []float64, out []float32) {
	const eps = 1e-8
	minLog, maxLog := math.Inf(1), math.Inf(-1)
	logs := make([]float64, len(raw))
	for i, v := range raw {
		l := math.Log10(v + eps)
		logs[i] = l
		if l < minLog {
			minLog = l
		}
		if l > maxLog {
			maxLog = l
		}
	}
	span := maxLog - minLog
	if span < 1e-3 {
		span = 1e-3
	}
	for i, l := range logs {
		v := (l - minLog) / span
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		out[i] = float32(v)
	}
}

func buildMelFilters(melBins, fftSize, sampleRate int) [][]float64 {
	freqBins := fftSize/2 + 1
	melMin := hzToMel(0)
	melMax := hzToMel(float64(sampleRate) / 2)

	binPoints := make([]int, melBins+2)
	for i := range binPoints {
		mel := melMin + (melMax-melMin)*float64(i)/float64(melBins+1)
		hz := melToHz(mel)
		bin := int(hz / float64(sampleRate) * float64(fftSize))
		if bin > freqBins-1 {
			bin = freqBins - 1
		}
		binPoints[i] = bin
	}

	filters := make([][]float64, melBins)
	for m := 1; m <= melBins; m++ {
		filter := make([]float64, freqBins)
		left, center, right := binPoints[m-1], binPoints[m], binPoints[m+1]
		for k := left; k < center; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k < right; k++ {
			filter[k] = float64(right-k) / float64(right-center)
		}
		filters[m-1] = filter
	}
	return filters
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		angle := 2 * math.Pi * float64(i) / float64(size-1)
		w[i] = 0.5 * (1 - math.Cos(angle))
	}
	return w
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}
