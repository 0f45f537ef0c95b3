package engine

import (
	"context"
	"encoding/json"
	"math"

	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/signal"
)

func (r *run) runSignalNode(ctx context.Context, node *graph.NodeInstance) error {
	switch node.TypeID {
	case "pattern_args":
		return r.runPatternArgs(node)
	case "math":
		return r.runMath(node)
	case "scalar":
		r.state.SetSignal(node.ID, "out", signal.Scalar(float32(node.NumberParam("value", 1))))
		return nil
	case "round":
		return r.runRound(node)
	case "threshold":
		return r.runThreshold(node)
	case "normalize":
		return r.runNormalize(node)
	case "invert":
		return r.runInvert(node)
	case "remap":
		return r.runRemap(node)
	case "modulo":
		return r.runModulo(node)
	case "falloff":
		return r.runFalloff(node)
	case "ramp":
		return r.runRamp(node)
	case "ramp_between":
		return r.runRampBetween(node)
	case "sine_wave":
		return r.runSineWave(node)
	case "noise":
		return r.runNoise(node)
	case "time_delay":
		return r.runTimeDelay(node)
	}
	return nil
}

// runPatternArgs materializes the graph-level arguments as outputs, one
// port per declared arg, using host overrides when present.
func (r *run) runPatternArgs(node *graph.NodeInstance) error {
	for _, arg := range r.graph.Args {
		value := arg.DefaultValue
		if override, ok := r.gctx.ArgValues[arg.ID]; ok {
			value = override
		}

		switch arg.ArgType {
		case graph.PatternArgColor:
			c := parseColorObject(value)
			r.state.SetSignal(node.ID, arg.ID, signal.MustNew(1, 1, 4, []float32{c.r, c.g, c.b, c.a}))
			preview := colorPreviewJSON(c)
			r.state.SetColor(node.ID, arg.ID, preview)
			r.state.SetColorView(node.ID+":"+arg.ID, preview)
		case graph.PatternArgScalar:
			var v float64
			if len(value) > 0 {
				_ = json.Unmarshal(value, &v)
			}
			r.state.SetSignal(node.ID, arg.ID, signal.Scalar(float32(v)))
		default:
			r.log.Warn("unknown pattern arg type; skipping", "node", node.ID, "arg", arg.ID, "type", arg.ArgType)
		}
	}
	return nil
}

// runMath combines two signals with modulo broadcasting. Disconnected
// inputs default to a zero scalar.
func (r *run) runMath(node *graph.NodeInstance) error {
	a, okA := r.inputSignal(node.ID, "a")
	if !okA {
		a = signal.Zero()
	}
	b, okB := r.inputSignal(node.ID, "b")
	if !okB {
		b = signal.Zero()
	}

	op := signal.Op(node.TextParam("operation", "add"))
	r.state.SetSignal(node.ID, "out", signal.Combine(a, b, op))
	return nil
}

func (r *run) runRound(node *graph.NodeInstance) error {
	sig, ok := r.inputSignal(node.ID, "in")
	if !ok {
		r.log.Warn("round missing signal input; skipping", "node", node.ID)
		return nil
	}

	op := node.TextParam("operation", "round")
	r.state.SetSignal(node.ID, "out", sig.Map(func(v float32) float32 {
		switch op {
		case "floor":
			return float32(math.Floor(float64(v)))
		case "ceil":
			return float32(math.Ceil(float64(v)))
		default:
			return float32(math.Round(float64(v)))
		}
	}))
	return nil
}

func (r *run) runThreshold(node *graph.NodeInstance) error {
	sig, ok := r.inputSignal(node.ID, "in")
	if !ok {
		r.log.Warn("threshold missing signal input; skipping", "node", node.ID)
		return nil
	}

	cutoff := float32(node.NumberParam("threshold", 0.5))
	r.state.SetSignal(node.ID, "out", sig.Map(func(v float32) float32 {
		if v >= cutoff {
			return 1
		}
		return 0
	}))
	return nil
}

// runNormalize rescales into 0..1 using the min/max over the whole
// tensor. Constant or non-finite input normalizes to zero.
func (r *run) runNormalize(node *graph.NodeInstance) error {
	sig, ok := r.inputSignal(node.ID, "in")
	if !ok {
		r.log.Warn("normalize missing signal input; skipping", "node", node.ID)
		return nil
	}

	minV := float32(math.Inf(1))
	maxV := float32(math.Inf(-1))
	for _, v := range sig.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil
		}
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	rangeV := maxV - minV
	out := sig.Clone()
	if len(sig.Data) == 0 || abs32(rangeV) <= 1e-7 {
		for i := range out.Data {
			out.Data[i] = 0
		}
	} else {
		for i, v := range sig.Data {
			out.Data[i] = clamp01((v - minV) / rangeV)
		}
	}
	r.state.SetSignal(node.ID, "out", out)
	return nil
}

// runInvert reflects values around the midpoint of the observed range.
func (r *run) runInvert(node *graph.NodeInstance) error {
	sig, ok := r.inputSignal(node.ID, "in")
	if !ok {
		r.log.Warn("invert missing signal input; skipping", "node", node.ID)
		return nil
	}

	minV := float32(math.Inf(1))
	maxV := float32(math.Inf(-1))
	for _, v := range sig.Data {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	if math.IsInf(float64(minV), 0) || math.IsInf(float64(maxV), 0) {
		return nil
	}

	mid := (maxV + minV) * 0.5
	r.state.SetSignal(node.ID, "out", sig.Map(func(v float32) float32 {
		reflected := 2*mid - v
		if reflected < minV {
			return minV
		}
		if reflected > maxV {
			return maxV
		}
		return reflected
	}))
	return nil
}

// runRemap maps an input range linearly onto an output range, clamping
// the input first unless disabled. Output collapses to a single channel.
func (r *run) runRemap(node *graph.NodeInstance) error {
	sig, ok := r.inputSignal(node.ID, "in")
	if !ok {
		return nil
	}

	inMin := float32(node.NumberParam("in_min", -1))
	inMax := float32(node.NumberParam("in_max", 1))
	outMin := float32(node.NumberParam("out_min", 0))
	outMax := float32(node.NumberParam("out_max", 180))
	clampIn := node.NumberParam("clamp", 1) > 0.5

	denom := inMax - inMin
	if abs32(denom) < 1e-6 {
		denom = 1
	}
	lo, hi := inMin, inMax
	if lo > hi {
		lo, hi = hi, lo
	}

	// Channel 0 only; the remapped output is always a scalar channel.
	data := make([]float32, 0, sig.N*sig.T)
	for n := 0; n < sig.N; n++ {
		for t := 0; t < sig.T; t++ {
			v := sig.At(n, t, 0)
			if clampIn {
				if v < lo {
					v = lo
				}
				if v > hi {
					v = hi
				}
			}
			u := (v - inMin) / denom
			data = append(data, outMin+u*(outMax-outMin))
		}
	}
	r.state.SetSignal(node.ID, "out", signal.MustNew(sig.N, sig.T, 1, data))
	return nil
}

// runModulo wraps values into [0, divisor), always positive. A zero
// divisor maps everything to zero.
func (r *run) runModulo(node *graph.NodeInstance) error {
	sig, ok := r.inputSignal(node.ID, "in")
	if !ok {
		return nil
	}

	divisor := float32(node.NumberParam("divisor", 1))
	r.state.SetSignal(node.ID, "out", sig.Map(func(v float32) float32 {
		if divisor == 0 {
			return 0
		}
		m := float32(math.Mod(float64(v), float64(divisor)))
		return float32(math.Mod(float64(m+divisor), float64(divisor)))
	}))
	return nil
}

// runFalloff tightens a 0..1 signal by a width factor and reshapes it
// with the shared curve function.
func (r *run) runFalloff(node *graph.NodeInstance) error {
	sig, ok := r.inputSignal(node.ID, "in")
	if !ok {
		r.log.Warn("falloff missing signal input; skipping", "node", node.ID)
		return nil
	}

	width := float32(node.NumberParam("width", 1))
	if width < 1e-6 {
		width = 1e-6
	}
	curve := float32(node.NumberParam("curve", 0))

	r.state.SetSignal(node.ID, "out", sig.Map(func(v float32) float32 {
		return shapeCurve(clamp01(clamp01(v)*width), curve)
	}))
	return nil
}

// runRamp generates a linear beat counter over the pattern window.
func (r *run) runRamp(node *graph.NodeInstance) error {
	grid, ok := r.inputGrid(node.ID, "grid")
	if !ok || grid == nil {
		return nil
	}

	tSteps := r.timeSteps()
	duration := r.duration()
	data := make([]float32, tSteps)
	for i := 0; i < tSteps; i++ {
		timeInPattern := (float32(i) / float32(maxI(tSteps-1, 1))) * duration
		data[i] = timeInPattern * (grid.BPM / 60)
	}
	r.state.SetSignal(node.ID, "out", signal.MustNew(1, tSteps, 1, data))
	return nil
}

// runRampBetween interpolates between two signals over the pattern
// window, in beat-progress space.
func (r *run) runRampBetween(node *graph.NodeInstance) error {
	grid, okG := r.inputGrid(node.ID, "grid")
	start, okS := r.inputSignal(node.ID, "start")
	end, okE := r.inputSignal(node.ID, "end")
	if !okG || grid == nil || !okS || !okE {
		return nil
	}

	tSteps := r.timeSteps()
	duration := r.duration()
	totalBeats := duration * (grid.BPM / 60)
	if totalBeats < 0.0001 {
		totalBeats = 0.0001
	}

	data := make([]float32, tSteps)
	for i := 0; i < tSteps; i++ {
		timeInPattern := (float32(i) / float32(maxI(tSteps-1, 1))) * duration
		progress := clamp01(timeInPattern * (grid.BPM / 60) / totalBeats)

		startVal := sampleFlat(start.Data, i)
		endVal := sampleFlat(end.Data, i)
		data[i] = startVal + (endVal-startVal)*progress
	}
	r.state.SetSignal(node.ID, "out", signal.MustNew(1, tSteps, 1, data))
	return nil
}

// runSineWave oscillates at subdivision cycles per beat.
func (r *run) runSineWave(node *graph.NodeInstance) error {
	grid, ok := r.inputGrid(node.ID, "grid")
	if !ok || grid == nil {
		return nil
	}

	subdivision := r.controlValue(node, "subdivision", 1)
	phase := float32(node.NumberParam("phase_deg", 0)) * math.Pi / 180
	amplitude := float32(node.NumberParam("amplitude", 1))
	offset := float32(node.NumberParam("offset", 0))

	tSteps := r.timeSteps()
	duration := r.duration()
	freqHz := subdivision * (grid.BPM / 60)
	omega := 2 * math.Pi * float64(freqHz)

	data := make([]float32, tSteps)
	for i := 0; i < tSteps; i++ {
		timeInPattern := (float32(i) / float32(maxI(tSteps-1, 1))) * duration
		data[i] = offset + amplitude*float32(math.Sin(omega*float64(timeInPattern)+float64(phase)))
	}
	r.state.SetSignal(node.ID, "out", signal.MustNew(1, tSteps, 1, data))
	return nil
}

// runNoise emits fractal value noise addressed by optional time/x/y
// coordinate signals. Without spatial inputs each row samples its own
// lattice line.
func (r *run) runNoise(node *graph.NodeInstance) error {
	timeSig, hasTime := r.inputSignal(node.ID, "time")
	xSig, hasX := r.inputSignal(node.ID, "x")
	ySig, hasY := r.inputSignal(node.ID, "y")

	scale := float32(node.NumberParam("scale", 1))
	octaves := int(node.NumberParam("octaves", 1))
	if octaves < 1 {
		octaves = 1
	}
	if octaves > 8 {
		octaves = 8
	}
	amplitude := float32(node.NumberParam("amplitude", 1))
	offset := float32(node.NumberParam("offset", 0))

	n := 1
	if hasX {
		n = xSig.N
	} else if hasY {
		n = ySig.N
	}
	tSteps := PreviewLength
	switch {
	case hasTime:
		tSteps = timeSig.T
	case hasX:
		tSteps = xSig.T
	case hasY:
		tSteps = ySig.T
	}
	if n <= 0 || tSteps <= 0 {
		return nil
	}

	seed := r.seedFor(node.ID)
	data := make([]float32, 0, n*tSteps)

	for nIdx := 0; nIdx < n; nIdx++ {
		for tIdx := 0; tIdx < tSteps; tIdx++ {
			var timeVal float32
			if hasTime {
				timeVal = sampleAt(timeSig, 0, tIdx) * scale
			}

			xVal := float32(nIdx) * scale
			if hasX {
				xVal = sampleAt(xSig, nIdx, tIdx) * scale
			}

			var yVal float32
			if hasY {
				yVal = sampleAt(ySig, nIdx, tIdx) * scale
			}

			data = append(data, offset+amplitude*fractalNoise3D(xVal, yVal, timeVal, seed, octaves))
		}
	}

	r.state.SetSignal(node.ID, "out", signal.MustNew(n, tSteps, 1, data))
	return nil
}

// runTimeDelay shifts a signal in time per row, driven by a per-fixture
// delay signal. Positive delays lag, negative delays advance; sampling
// interpolates linearly and clamps at the window edges.
func (r *run) runTimeDelay(node *graph.NodeInstance) error {
	in, ok := r.inputSignal(node.ID, "in")
	if !ok {
		return nil
	}

	delay, hasDelay := r.inputSignal(node.ID, "delay")
	if !hasDelay {
		delay = signal.Zero()
	}

	duration := r.duration()
	outN := maxI(in.N, delay.N)
	outT := in.T
	outC := in.C

	data := make([]float32, 0, outN*outT*outC)
	for i := 0; i < outN; i++ {
		delayIdx := wrapIdx(i, delay.N) * (delay.T * delay.C)
		delaySeconds := sampleFlat(delay.Data, delayIdx)
		inN := wrapIdx(i, in.N)

		for t := 0; t < outT; t++ {
			var tFrac float32
			if outT > 1 {
				tFrac = float32(t) / float32(outT-1)
			}
			sampleFrac := clamp01((tFrac*duration - delaySeconds) / duration)

			var inTf float32
			if in.T > 1 {
				inTf = sampleFrac * float32(in.T-1)
			}
			tLo := int(inTf)
			if tLo > in.T-1 {
				tLo = in.T - 1
			}
			tHi := tLo + 1
			if tHi > in.T-1 {
				tHi = in.T - 1
			}
			blend := inTf - float32(tLo)

			for c := 0; c < outC; c++ {
				cIdx := wrapIdx(c, in.C)
				lo := in.Data[inN*(in.T*in.C)+tLo*in.C+cIdx]
				hi := in.Data[inN*(in.T*in.C)+tHi*in.C+cIdx]
				data = append(data, lo+blend*(hi-lo))
			}
		}
	}

	r.state.SetSignal(node.ID, "out", signal.MustNew(outN, outT, outC, data))
	return nil
}

// sampleAt reads (n, t % T, channel 0) from a signal, for coordinate
// inputs whose time axis may be shorter than the output's.
func sampleAt(s signal.Signal, n, t int) float32 {
	idx := wrapIdx(n, s.N)*(s.T*s.C) + (t%s.T)*s.C
	return sampleFlat(s.Data, idx)
}

// sampleFlat reads a flat index, clamping past-the-end reads to the
// last sample.
func sampleFlat(data []float32, idx int) float32 {
	if len(data) == 0 || idx < 0 {
		return 0
	}
	if idx >= len(data) {
		return data[len(data)-1]
	}
	return data[idx]
}

func wrapIdx(i, dim int) int {
	if dim <= 1 {
		return 0
	}
	return i % dim
}

func maxI(a, b int) int {
	if a > b {
		return a
	}
	return b
}
