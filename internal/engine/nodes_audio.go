package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/lumen/internal/audio"
	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/signal"
)

// stemOutputs maps preprocessed stem names to their output ports.
var stemOutputs = [4]struct{ stem, port string }{
	{"drums", "drums_out"},
	{"bass", "bass_out"},
	{"vocals", "vocals_out"},
	{"other", "other_out"},
}

func (r *run) runAudioNode(ctx context.Context, node *graph.NodeInstance) error {
	switch node.TypeID {
	case "audio_input":
		return r.runAudioInput(node)
	case "beat_clock":
		return r.runBeatClock(node)
	case "stem_splitter":
		return r.runStemSplitter(ctx, node)
	case "lowpass_filter", "highpass_filter":
		return r.runFilter(node)
	case "frequency_amplitude":
		return r.runFrequencyAmplitude(node)
	case "beat_envelope":
		return r.runBeatEnvelope(node)
	case "pattern_entry":
		return r.runPatternEntry(node)
	}
	return nil
}

func (r *run) runAudioInput(node *graph.NodeInstance) error {
	if r.audio == nil {
		return fmt.Errorf("audio input requires context audio")
	}
	r.state.SetAudio(node.ID, "out", r.audio)
	if r.grid != nil {
		r.state.SetGrid(node.ID, "grid_out", r.grid)
	}
	return nil
}

// runPatternEntry anchors a sub-pattern: it forwards the incoming audio
// and grid unchanged and records a summary of the window so hosts can
// lay out the entry on a timeline.
func (r *run) runPatternEntry(node *graph.NodeInstance) error {
	if _, connected := r.inEdge(node.ID, "audio_in"); !connected {
		return fmt.Errorf("missing audio input")
	}
	buf, ok := r.inputAudio(node.ID, "audio_in")
	if !ok || buf == nil {
		return fmt.Errorf("audio input produced no buffer")
	}
	r.state.SetAudio(node.ID, "audio_out", buf)

	var grid *graph.BeatGrid
	if _, connected := r.inEdge(node.ID, "grid_in"); connected {
		g, ok := r.inputGrid(node.ID, "grid_in")
		if !ok || g == nil {
			return fmt.Errorf("grid input produced no beat grid")
		}
		grid = g
		r.state.SetGrid(node.ID, "grid_out", grid)
	}

	summary := graph.PatternEntrySummary{
		SampleRate:  buf.SampleRate,
		SampleCount: len(buf.Samples),
		BeatGrid:    grid,
		Crop:        buf.Crop,
	}
	if buf.SampleRate > 0 {
		summary.DurationSeconds = float32(len(buf.Samples)) / float32(buf.SampleRate)
	}
	r.state.SetEntry(node.ID, summary)
	return nil
}

func (r *run) runBeatClock(node *graph.NodeInstance) error {
	if r.grid != nil {
		r.state.SetGrid(node.ID, "grid_out", r.grid)
	}
	return nil
}

// runStemSplitter emits the four preprocessed stems of the input track,
// cropped to the same window as the input buffer. Decoded stems are
// cached across runs keyed by (track, stem).
func (r *run) runStemSplitter(ctx context.Context, node *graph.NodeInstance) error {
	buf, ok := r.inputAudio(node.ID, "audio_in")
	if !ok {
		return fmt.Errorf("missing audio input")
	}
	if len(buf.Samples) == 0 {
		return NewEmptySignalError(node.ID, node.TypeID, "audio_in")
	}
	if buf.Crop == nil {
		return fmt.Errorf("audio input carries no crop metadata")
	}
	if buf.TrackID == 0 {
		return fmt.Errorf("audio input is not sourced from a track")
	}
	if buf.SampleRate == 0 {
		return fmt.Errorf("audio input has zero sample rate")
	}

	targetLen := len(buf.Samples)

	allCached := r.eval.Stems != nil
	if allCached {
		for _, out := range stemOutputs {
			if _, _, ok := r.eval.Stems.Get(buf.TrackID, out.stem); !ok {
				allCached = false
				break
			}
		}
	}

	var stemPaths map[string]string
	if !allCached {
		if r.eval.Store == nil {
			return fmt.Errorf("no project store to load stems from")
		}
		paths, err := r.eval.Store.TrackStems(ctx, buf.TrackID)
		if err != nil {
			return fmt.Errorf("load stems for track %d: %w", buf.TrackID, err)
		}
		if len(paths) == 0 {
			return fmt.Errorf("track %d has no preprocessed stems", buf.TrackID)
		}
		stemPaths = paths
	}

	for _, out := range stemOutputs {
		var stemSamples []float32
		var stemRate int
		if r.eval.Stems != nil {
			if cached, rate, ok := r.eval.Stems.Get(buf.TrackID, out.stem); ok {
				stemSamples, stemRate = cached, rate
			}
		}
		if stemSamples == nil {
			path, ok := stemPaths[out.stem]
			if !ok {
				return fmt.Errorf("track %d is missing %q stem", buf.TrackID, out.stem)
			}
			if r.eval.Decoder == nil {
				return fmt.Errorf("no decoder configured for stem audio")
			}
			decoded, rate, err := r.eval.Decoder.Decode(r.resolvePath(path), buf.SampleRate)
			if err != nil {
				return fmt.Errorf("decode %q stem: %w", out.stem, err)
			}
			if len(decoded) == 0 {
				return NewEmptySignalError(node.ID, node.TypeID, out.port)
			}
			if r.eval.Stems != nil {
				r.eval.Stems.Put(buf.TrackID, out.stem, decoded, rate)
			}
			stemSamples, stemRate = decoded, rate
		}

		segment, err := audio.CropToRange(stemSamples, stemRate, *buf.Crop, targetLen)
		if err != nil {
			return fmt.Errorf("crop %q stem: %w", out.stem, err)
		}
		r.state.SetAudio(node.ID, out.port, &audio.Buffer{
			Samples:    segment,
			SampleRate: stemRate,
			Crop:       buf.Crop,
			TrackID:    buf.TrackID,
			TrackHash:  buf.TrackHash,
		})
	}
	return nil
}

func (r *run) runFilter(node *graph.NodeInstance) error {
	buf, ok := r.inputAudio(node.ID, "audio_in")
	if !ok {
		return fmt.Errorf("missing audio input")
	}
	if buf.SampleRate == 0 {
		return fmt.Errorf("audio input has zero sample rate")
	}

	cutoff := node.NumberParam("cutoff_hz", 200)

	var filtered []float32
	if node.TypeID == "lowpass_filter" {
		filtered = audio.Lowpass(buf.Samples, cutoff, buf.SampleRate)
	} else {
		filtered = audio.Highpass(buf.Samples, cutoff, buf.SampleRate)
	}

	r.state.SetAudio(node.ID, "audio_out", &audio.Buffer{
		Samples:    filtered,
		SampleRate: buf.SampleRate,
		Crop:       buf.Crop,
		TrackID:    buf.TrackID,
		TrackHash:  buf.TrackHash,
	})
	return nil
}

// runFrequencyAmplitude emits per-frame average magnitude over the
// selected frequency bands as a (1, frames, 1) signal.
func (r *run) runFrequencyAmplitude(node *graph.NodeInstance) error {
	buf, ok := r.inputAudio(node.ID, "audio_in")
	if !ok {
		return fmt.Errorf("missing audio input")
	}

	rangesJSON := node.TextParam("selected_frequency_ranges", "[]")
	var ranges [][2]float64
	if err := json.Unmarshal([]byte(rangesJSON), &ranges); err != nil {
		return NewBadParamError(node.ID, node.TypeID, "selected_frequency_ranges", err)
	}

	if r.eval.FFT == nil {
		return fmt.Errorf("no FFT service configured")
	}
	raw := r.eval.FFT.BandEnergy(buf.Samples, buf.SampleRate, ranges)
	if len(raw) == 0 {
		r.log.Warn("frequency_amplitude produced no frames; skipping", "node", node.ID)
		return nil
	}
	r.state.SetSignal(node.ID, "amplitude_out", signal.MustNew(1, len(raw), 1, raw))
	return nil
}

// runBeatEnvelope rasterizes an ADSR pulse on every beat (or downbeat)
// of the grid, subdivided or stretched by the subdivision factor.
func (r *run) runBeatEnvelope(node *graph.NodeInstance) error {
	grid, ok := r.inputGrid(node.ID, "grid")
	if !ok {
		grid = r.grid
	}
	if grid == nil {
		return nil
	}

	subdivision := r.controlValue(node, "subdivision", 1)
	onlyDownbeats := node.NumberParam("only_downbeats", 0) > 0.5
	offset := float32(node.NumberParam("offset", 0))
	attack := float32(node.NumberParam("attack", 0.3))
	decay := float32(node.NumberParam("decay", 0.2))
	sustain := float32(node.NumberParam("sustain", 0.3))
	release := float32(node.NumberParam("release", 0.2))
	sustainLevel := float32(node.NumberParam("sustain_level", 0.7))
	aCurve := float32(node.NumberParam("attack_curve", 0))
	dCurve := float32(node.NumberParam("decay_curve", 0))
	amp := float32(node.NumberParam("amplitude", 1))

	sourceBeats := grid.Beats
	if onlyDownbeats {
		sourceBeats = grid.Downbeats
	}

	beatLen := float32(0.5)
	if grid.BPM > 0 {
		beatLen = 60 / grid.BPM
	}
	beatStep := float32(1)
	if abs32(subdivision) >= 1e-3 {
		beatStep = abs32(1 / subdivision)
	}

	var pulseTimes []float32
	if len(sourceBeats) > 0 {
		lastIndex := float32(len(sourceBeats) - 1)
		step := beatStep
		if step < 1e-4 {
			step = 1e-4
		}
		for beatPos := float32(0); beatPos <= lastIndex+1e-4; beatPos += step {
			baseIdx := int(beatPos)
			frac := beatPos - float32(baseIdx)

			var t float32
			if baseIdx+1 < len(sourceBeats) {
				t0 := sourceBeats[baseIdx]
				t1 := sourceBeats[baseIdx+1]
				t = t0 + (t1-t0)*frac
			} else {
				t = sourceBeats[baseIdx]
			}
			pulseTimes = append(pulseTimes, t+offset*beatLen)
		}
	}

	duration := r.duration()
	tSteps := r.timeSteps()

	// Each pulse's envelope is sized to the tightest observed spacing so
	// neighbouring envelopes never overlap.
	pulseSpan := beatStep * beatLen
	minSpacing := float32(0)
	for i := 1; i < len(pulseTimes); i++ {
		d := abs32(pulseTimes[i] - pulseTimes[i-1])
		if d > 1e-4 && (minSpacing == 0 || d < minSpacing) {
			minSpacing = d
		}
	}
	if minSpacing > 0 {
		pulseSpan = minSpacing
	}

	attS, decS, susS, relS := adsrDurations(pulseSpan, attack, decay, sustain, release)

	sampleDT := duration / float32(tSteps)
	snapEps := sampleDT * 1.1
	if snapEps < 1e-6 {
		snapEps = 1e-6
	}

	if len(pulseTimes) > 0 {
		sort.Slice(pulseTimes, func(a, b int) bool { return pulseTimes[a] < pulseTimes[b] })

		// A pure-attack envelope peaking exactly at the window start has
		// nothing to ramp into; drop that pulse when a later one exists.
		postPeak := decS + susS + relS
		if attS > 1e-6 && postPeak <= 1e-6 {
			hasLater := false
			for _, p := range pulseTimes {
				if p > r.gctx.StartTime+snapEps {
					hasLater = true
					break
				}
			}
			if hasLater {
				kept := pulseTimes[:0]
				for _, p := range pulseTimes {
					if abs32(p-r.gctx.StartTime) > snapEps {
						kept = append(kept, p)
					}
				}
				pulseTimes = kept
			}
		}
	}

	data := make([]float32, tSteps)
	for i := 0; i < tSteps; i++ {
		t := r.gctx.StartTime + (float32(i)/float32(tSteps))*duration
		var val float32
		for _, peak := range pulseTimes {
			if t < peak-attS || t > peak+decS+susS+relS {
				continue
			}
			val += calcEnvelope(t, peak, attS, decS, susS, relS, sustainLevel, aCurve, dCurve)
		}
		data[i] = val * amp
	}

	r.state.SetSignal(node.ID, "out", signal.MustNew(1, tSteps, 1, data))
	return nil
}

// controlValue reads a scalar control either from a connected signal
// (sampled at the window midpoint) or from the node parameter.
func (r *run) controlValue(node *graph.NodeInstance, port string, def float64) float32 {
	if sig, ok := r.inputSignal(node.ID, port); ok && len(sig.Data) > 0 {
		midT := (r.gctx.StartTime+r.gctx.EndTime)/2 - r.gctx.StartTime
		idx := int((midT / r.duration()) * float32(len(sig.Data)))
		if idx >= len(sig.Data) {
			idx = len(sig.Data) - 1
		}
		if idx < 0 {
			idx = 0
		}
		return sig.Data[idx]
	}
	return float32(node.NumberParam(port, def))
}
