package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/roach88/lumen/internal/audio"
	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/signal"
	"github.com/roach88/lumen/internal/store"
)

// Dense chord logits are written by the chord worker as little-endian
// float32 frames: 12 pitch classes plus a no-chord bin.
const logitsFrameFloats = ChromaDim + 1

func (r *run) runAnalysisNode(ctx context.Context, node *graph.NodeInstance) error {
	switch node.TypeID {
	case "harmony_analysis":
		return r.runHarmonyAnalysis(ctx, node)
	case "harmonic_tension":
		return r.runHarmonicTension(node)
	case "view_signal":
		return r.runViewSignal(node)
	case "mel_spec_viewer":
		return r.runMelSpecViewer(node)
	}
	return nil
}

// runHarmonyAnalysis emits a (1, t, 12) chroma probability signal for
// the input audio's window. Sections come from the shared root cache,
// falling back to the store and finally the chord worker; dense logits
// give per-frame softmax probabilities, sparse sections a one-hot root.
func (r *run) runHarmonyAnalysis(ctx context.Context, node *graph.NodeInstance) error {
	buf, ok := r.inputAudio(node.ID, "audio_in")
	if !ok {
		return fmt.Errorf("missing audio input")
	}
	if buf.TrackID == 0 {
		return nil
	}

	roots, err := r.loadRoots(ctx, buf)
	if err != nil {
		return err
	}
	if roots == nil {
		r.log.Warn("no chord analysis for track; harmony will be empty", "node", node.ID, "track", buf.TrackID)
		return nil
	}

	tSteps := r.timeSteps()
	data := make([]float32, tSteps*ChromaDim)

	if !r.fillFromLogits(roots, data, tSteps) {
		r.fillFromSections(roots.Sections, data, tSteps)
	}

	r.state.SetSignal(node.ID, "signal", signal.MustNew(1, tSteps, ChromaDim, data))
	return nil
}

// loadRoots resolves chord sections for a track: cache, then store,
// then the chord worker (persisting and caching what it computes).
func (r *run) loadRoots(ctx context.Context, buf *audio.Buffer) (*store.RootAnalysis, error) {
	e := r.eval
	if e.Roots != nil {
		if cached, ok := e.Roots.Get(buf.TrackID); ok {
			r.log.Debug("root cache hit", "track", buf.TrackID)
			return &cached, nil
		}
	}

	if e.Store == nil {
		return nil, nil
	}
	roots, err := e.Store.TrackRoots(ctx, buf.TrackID)
	if err != nil {
		return nil, fmt.Errorf("load chord sections: %w", err)
	}

	if roots == nil && e.Chords != nil {
		info, err := e.Store.TrackPathAndHash(ctx, buf.TrackID)
		if err != nil {
			return nil, fmt.Errorf("load track for chord worker: %w", err)
		}
		computed, err := e.Chords.ComputeRoots(ctx, r.resolvePath(info.FilePath))
		if err != nil {
			return nil, NewWorkerError("", err)
		}
		if err := e.Store.PutTrackRoots(ctx, buf.TrackID, computed); err != nil {
			return nil, fmt.Errorf("persist chord sections: %w", err)
		}
		roots = &computed
	}

	if roots != nil && e.Roots != nil {
		e.Roots.Put(buf.TrackID, *roots)
	}
	return roots, nil
}

// fillFromLogits rasterizes dense per-frame logits into the chroma
// signal. Returns false when no usable logits file exists.
func (r *run) fillFromLogits(roots *store.RootAnalysis, data []float32, tSteps int) bool {
	if roots.LogitsPath == "" {
		return false
	}
	raw, err := os.ReadFile(r.resolvePath(roots.LogitsPath))
	if err != nil {
		return false
	}

	bytesPerFrame := logitsFrameFloats * 4
	if len(raw) == 0 || len(raw)%bytesPerFrame != 0 {
		return false
	}
	numFrames := len(raw) / bytesPerFrame

	hopSec := roots.FrameHopSeconds
	if hopSec <= 0 {
		// Standard madmom/librosa hop at 22.05 kHz.
		hopSec = 512.0 / 22050.0
	}

	duration := r.duration()
	for i := 0; i < tSteps; i++ {
		t := r.gctx.StartTime + (float32(i)/float32(maxI(tSteps-1, 1)))*duration
		frameIdx := int(t / hopSec)
		if frameIdx < 0 || frameIdx >= numFrames {
			continue
		}
		offset := frameIdx * bytesPerFrame

		var logits [ChromaDim]float64
		maxL := math.Inf(-1)
		for c := 0; c < ChromaDim; c++ {
			bits := binary.LittleEndian.Uint32(raw[offset+c*4:])
			logits[c] = float64(math.Float32frombits(bits))
			if logits[c] > maxL {
				maxL = logits[c]
			}
		}

		var sumExp float64
		var probs [ChromaDim]float64
		for c := 0; c < ChromaDim; c++ {
			probs[c] = math.Exp(logits[c] - maxL)
			sumExp += probs[c]
		}
		for c := 0; c < ChromaDim; c++ {
			data[i*ChromaDim+c] = float32(probs[c] / sumExp)
		}
	}
	return true
}

// fillFromSections rasterizes sparse chord sections as one-hot roots.
func (r *run) fillFromSections(sections []store.ChordSection, data []float32, tSteps int) {
	duration := r.duration()
	for _, section := range sections {
		startIdx := int(math.Floor(float64((section.Start - r.gctx.StartTime) / duration * float32(tSteps))))
		endIdx := int(math.Ceil(float64((section.End - r.gctx.StartTime) / duration * float32(tSteps))))

		if startIdx < 0 {
			startIdx = 0
		}
		if endIdx > tSteps {
			endIdx = tSteps
		}
		if startIdx >= endIdx || section.Root == nil {
			continue
		}

		root := int(*section.Root)
		if root > ChromaDim-1 {
			root = ChromaDim - 1
		}
		for t := startIdx; t < endIdx; t++ {
			data[t*ChromaDim+root] = 1
		}
	}
}

// runHarmonicTension maps chroma spread to a 0..1 tension value using
// normalized Shannon entropy: one confident pitch class is calm, an
// even spread is maximally tense.
func (r *run) runHarmonicTension(node *graph.NodeInstance) error {
	chroma, ok := r.inputSignal(node.ID, "chroma")
	if !ok {
		return fmt.Errorf("missing chroma input")
	}
	if chroma.C != ChromaDim {
		return nil
	}

	maxEntropy := math.Log(ChromaDim)
	data := make([]float32, chroma.T)
	for t := 0; t < chroma.T; t++ {
		var entropy float64
		for c := 0; c < ChromaDim; c++ {
			p := float64(chroma.Data[t*ChromaDim+c])
			if p > 0.0001 {
				entropy -= p * math.Log(p)
			}
		}
		data[t] = clamp01(float32(entropy / maxEntropy))
	}

	r.state.SetSignal(node.ID, "tension", signal.MustNew(1, chroma.T, 1, data))
	return nil
}

func (r *run) runViewSignal(node *graph.NodeInstance) error {
	if !r.eval.Config.ComputeVisualizations {
		return nil
	}

	sig, ok := r.inputSignal(node.ID, "in")
	if !ok {
		return fmt.Errorf("input signal not found")
	}
	r.state.SetView(node.ID, sig.Clone())
	return nil
}

func (r *run) runMelSpecViewer(node *graph.NodeInstance) error {
	if !r.eval.Config.ComputeVisualizations {
		return nil
	}

	buf, ok := r.inputAudio(node.ID, "in")
	if !ok {
		r.log.Warn("mel_spec_viewer missing audio input; skipping", "node", node.ID)
		return nil
	}
	if r.eval.FFT == nil {
		return fmt.Errorf("no FFT service configured")
	}

	var grid *graph.BeatGrid
	if g, ok := r.inputGrid(node.ID, "grid"); ok && g != nil {
		local := g.RelativeToCrop(buf.Crop)
		grid = &local
	}

	data := r.eval.FFT.MelSpectrogram(buf.Samples, buf.SampleRate, audio.MelSpecWidth, audio.MelSpecHeight)
	r.state.SetMelSpec(node.ID, graph.MelSpec{
		Width:    audio.MelSpecWidth,
		Height:   audio.MelSpecHeight,
		Data:     data,
		BeatGrid: grid,
	})
	return nil
}
