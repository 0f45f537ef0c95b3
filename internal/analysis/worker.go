// Package analysis wraps the external analysis workers (beat tracking,
// chord/root estimation) and the cross-run caches for their results.
// Workers are separate executables invoked per track; they print a JSON
// document on stdout and diagnostics on stderr.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/store"
)

// stderrTailLimit bounds how much worker stderr is carried into errors.
const stderrTailLimit = 2048

// WorkerError wraps a failed worker invocation with the tail of its
// stderr so run errors stay actionable.
type WorkerError struct {
	Worker     string
	StderrTail string
	Err        error
}

func (e *WorkerError) Error() string {
	if e.StderrTail != "" {
		return fmt.Sprintf("%s worker failed: %v: %s", e.Worker, e.Err, e.StderrTail)
	}
	return fmt.Sprintf("%s worker failed: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// runWorker executes a worker command with the audio path appended and
// returns trimmed stdout.
func runWorker(ctx context.Context, name string, command []string, audioPath string) ([]byte, error) {
	if len(command) == 0 {
		return nil, &WorkerError{Worker: name, Err: fmt.Errorf("no command configured")}
	}

	args := append(append([]string{}, command[1:]...), audioPath)
	cmd := exec.CommandContext(ctx, command[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &WorkerError{Worker: name, StderrTail: stderrTail(stderr.Bytes()), Err: err}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if !utf8.Valid(out) {
		return nil, &WorkerError{Worker: name, Err: fmt.Errorf("output was not valid UTF-8")}
	}
	return out, nil
}

func stderrTail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrTailLimit {
		s = s[len(s)-stderrTailLimit:]
	}
	return s
}

// BeatWorker runs the external beat tracker.
type BeatWorker struct {
	// Command is the worker invocation; the audio path is appended.
	Command []string
}

type beatResponse struct {
	Beats     []float64 `json:"beats"`
	Downbeats []float64 `json:"downbeats"`
	BPM       *float64  `json:"bpm"`
}

// ComputeBeats analyzes a track and returns its beat grid. BPM falls
// back to the median inter-beat interval when the worker omits it.
func (w *BeatWorker) ComputeBeats(ctx context.Context, audioPath string) (graph.BeatGrid, error) {
	out, err := runWorker(ctx, "beat", w.Command, audioPath)
	if err != nil {
		return graph.BeatGrid{}, err
	}

	var resp beatResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return graph.BeatGrid{}, &WorkerError{Worker: "beat", Err: fmt.Errorf("parse response: %w", err)}
	}

	grid := graph.BeatGrid{
		Beats:       toFloat32(resp.Beats),
		Downbeats:   toFloat32(resp.Downbeats),
		BeatsPerBar: 4,
	}
	if resp.BPM != nil {
		grid.BPM = float32(*resp.BPM)
	} else {
		grid.BPM = estimateBPM(grid.Beats)
	}
	if len(grid.Downbeats) > 0 {
		grid.DownbeatOffset = grid.Downbeats[0]
	}
	return grid, nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func estimateBPM(beats []float32) float32 {
	if len(beats) < 2 {
		return 0
	}
	span := beats[len(beats)-1] - beats[0]
	if span <= 0 {
		return 0
	}
	return 60 * float32(len(beats)-1) / span
}

// RootWorker runs the external chord/root estimator.
type RootWorker struct {
	Command []string
}

type rootResponse struct {
	FrameHopSeconds *float64 `json:"frame_hop_seconds"`
	LogitsPath      string   `json:"logits_path"`
	Sections        []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Label string  `json:"label"`
	} `json:"sections"`
}

// ComputeRoots analyzes a track and returns labeled chord sections with
// parsed pitch-class roots.
func (w *RootWorker) ComputeRoots(ctx context.Context, audioPath string) (store.RootAnalysis, error) {
	out, err := runWorker(ctx, "root", w.Command, audioPath)
	if err != nil {
		return store.RootAnalysis{}, err
	}

	var resp rootResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return store.RootAnalysis{}, &WorkerError{Worker: "root", Err: fmt.Errorf("parse response: %w", err)}
	}

	analysis := store.RootAnalysis{LogitsPath: resp.LogitsPath}
	if resp.FrameHopSeconds != nil {
		analysis.FrameHopSeconds = float32(*resp.FrameHopSeconds)
	}
	for _, sec := range resp.Sections {
		analysis.Sections = append(analysis.Sections, store.ChordSection{
			Start: float32(sec.Start),
			End:   float32(sec.End),
			Root:  ParseRootLabel(sec.Label),
			Label: sec.Label,
		})
	}
	return analysis, nil
}

// ParseRootLabel maps a chord label like "C:maj" or "A#:min" to its
// pitch class (C=0 .. B=11). "N" and empty labels mean no chord and
// return nil. Labels are NFC-normalized first so composed and decomposed
// accidentals compare equal.
func ParseRootLabel(label string) *uint8 {
	root, _, _ := strings.Cut(norm.NFC.String(label), ":")
	root = strings.TrimSpace(root)

	var pc uint8
	switch root {
	case "C":
		pc = 0
	case "C#", "Db":
		pc = 1
	case "D":
		pc = 2
	case "D#", "Eb":
		pc = 3
	case "E":
		pc = 4
	case "F":
		pc = 5
	case "F#", "Gb":
		pc = 6
	case "G":
		pc = 7
	case "G#", "Ab":
		pc = 8
	case "A":
		pc = 9
	case "A#", "Bb":
		pc = 10
	case "B":
		pc = 11
	default:
		// includes "N" (no chord) and anything unrecognized
		return nil
	}
	return &pc
}
