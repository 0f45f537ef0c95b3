package engine

import (
	"context"
	"math"

	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/signal"
)

func (r *run) runApplyNode(ctx context.Context, node *graph.NodeInstance) error {
	switch node.TypeID {
	case "apply_dimmer":
		return r.runApplyScalar(node, capDimmer)
	case "apply_strobe":
		// Strobe rates are normalized; clamp into 0..1.
		return r.runApplyScalar(node, capStrobe)
	case "apply_speed":
		return r.runApplySpeed(node)
	case "apply_color":
		return r.runApplyColor(node)
	case "apply_position":
		return r.runApplyPosition(node)
	}
	return nil
}

type scalarCapability int

const (
	capDimmer scalarCapability = iota
	capStrobe
)

// runApplyScalar maps a broadcast signal's channel 0 onto every head of
// the selection as a one-dimensional series. A constant (t=1) signal
// becomes two samples spanning the window.
func (r *run) runApplyScalar(node *graph.NodeInstance, capability scalarCapability) error {
	sel, okSel := r.inputSelection(node.ID, "selection")
	sig, okSig := r.inputSignal(node.ID, "signal")
	if !okSel || !okSig {
		return nil
	}

	layer := graph.LayerTimeSeries{}
	for globalIdx, item := range sel.Items {
		sigIdx := wrapIdx(globalIdx, sig.N)
		samples := r.scalarSamples(sig, sigIdx, capability == capStrobe)

		series := &graph.Series{Dim: 1, Samples: samples}
		prim := graph.PrimitiveTimeSeries{PrimitiveID: item.ID}
		if capability == capDimmer {
			prim.Dimmer = series
		} else {
			prim.Strobe = series
		}
		layer.Primitives = append(layer.Primitives, prim)
	}

	r.state.AddLayer(layer)
	return nil
}

// scalarSamples rasterizes one row of a signal into timestamped samples
// over the context window. If clampRange is set values stay in 0..1.
func (r *run) scalarSamples(sig signal.Signal, sigIdx int, clampRange bool) []graph.SeriesSample {
	start, end := r.gctx.StartTime, r.gctx.EndTime
	read := func(t int) float32 {
		v := sampleFlat(sig.Data, sigIdx*(sig.T*sig.C)+t*sig.C)
		if clampRange {
			v = clamp01(v)
		}
		return v
	}

	if sig.T == 1 {
		v := read(0)
		return []graph.SeriesSample{
			{Time: start, Values: []float32{v}},
			{Time: end, Values: []float32{v}},
		}
	}

	duration := r.duration()
	samples := make([]graph.SeriesSample, 0, sig.T)
	for t := 0; t < sig.T; t++ {
		time := start + (float32(t)/float32(maxI(sig.T-1, 1)))*duration
		samples = append(samples, graph.SeriesSample{Time: time, Values: []float32{read(t)}})
	}
	return samples
}

// runApplySpeed writes a binary speed series: values above 0.5 run
// fixtures at full effect speed, at or below freeze them.
func (r *run) runApplySpeed(node *graph.NodeInstance) error {
	sel, okSel := r.inputSelection(node.ID, "selection")
	sig, okSig := r.inputSignal(node.ID, "speed")
	if !okSel || !okSig {
		return nil
	}

	start, end := r.gctx.StartTime, r.gctx.EndTime
	duration := r.duration()

	layer := graph.LayerTimeSeries{}
	for globalIdx, item := range sel.Items {
		sigIdx := wrapIdx(globalIdx, sig.N)

		var samples []graph.SeriesSample
		if sig.T == 1 {
			v := binarySpeed(sampleFlat(sig.Data, sigIdx*(sig.T*sig.C)))
			samples = []graph.SeriesSample{
				{Time: start, Values: []float32{v}},
				{Time: end, Values: []float32{v}},
			}
		} else {
			for t := 0; t < sig.T; t++ {
				time := start + (float32(t)/float32(sig.T-1))*duration
				v := binarySpeed(sampleFlat(sig.Data, sigIdx*(sig.T*sig.C)+t*sig.C))
				samples = append(samples, graph.SeriesSample{Time: time, Values: []float32{v}})
			}
		}

		layer.Primitives = append(layer.Primitives, graph.PrimitiveTimeSeries{
			PrimitiveID: item.ID,
			Speed:       &graph.Series{Dim: 1, Samples: samples},
		})
	}

	r.state.AddLayer(layer)
	return nil
}

func binarySpeed(v float32) float32 {
	if v > 0.5 {
		return 1
	}
	return 0
}

// runApplyColor writes a normalized RGBA series plus a derived dimmer
// series. Brightness moves to the dimmer channel (HSV value), keeping
// the color channels fully saturated for fixtures with separate dimmers.
func (r *run) runApplyColor(node *graph.NodeInstance) error {
	sel, okSel := r.inputSelection(node.ID, "selection")
	sig, okSig := r.inputSignal(node.ID, "signal")
	if !okSel || !okSig {
		return nil
	}

	start, end := r.gctx.StartTime, r.gctx.EndTime
	duration := r.duration()

	layer := graph.LayerTimeSeries{}
	for globalIdx, item := range sel.Items {
		sigIdx := wrapIdx(globalIdx, sig.N)

		readRGBA := func(t int) (rgba, float32) {
			base := sigIdx*(sig.T*sig.C) + t*sig.C
			ch := func(i int) int {
				if i > sig.C-1 {
					i = sig.C - 1
				}
				return base + i
			}
			c := rgba{
				r: clamp01(sampleFlat(sig.Data, ch(0))),
				g: clamp01(sampleFlat(sig.Data, ch(1))),
				b: clamp01(sampleFlat(sig.Data, ch(2))),
				a: 1,
			}
			if sig.C >= 4 {
				c.a = clamp01(sampleFlat(sig.Data, ch(3)))
			}

			v := max3(c.r, c.g, c.b)
			if v <= 1e-5 {
				return rgba{a: c.a}, 0
			}
			return rgba{r: c.r / v, g: c.g / v, b: c.b / v, a: c.a}, v
		}

		var colorSamples, dimmerSamples []graph.SeriesSample
		if sig.T == 1 {
			c, dim := readRGBA(0)
			for _, time := range [2]float32{start, end} {
				colorSamples = append(colorSamples, graph.SeriesSample{Time: time, Values: []float32{c.r, c.g, c.b, c.a}})
				dimmerSamples = append(dimmerSamples, graph.SeriesSample{Time: time, Values: []float32{dim}})
			}
		} else {
			for t := 0; t < sig.T; t++ {
				time := start + (float32(t)/float32(maxI(sig.T-1, 1)))*duration
				c, dim := readRGBA(t)
				colorSamples = append(colorSamples, graph.SeriesSample{Time: time, Values: []float32{c.r, c.g, c.b, c.a}})
				dimmerSamples = append(dimmerSamples, graph.SeriesSample{Time: time, Values: []float32{dim}})
			}
		}

		layer.Primitives = append(layer.Primitives, graph.PrimitiveTimeSeries{
			PrimitiveID: item.ID,
			Color:       &graph.Series{Dim: 4, Samples: colorSamples},
			Dimmer:      &graph.Series{Dim: 1, Samples: dimmerSamples},
		})
	}

	r.state.AddLayer(layer)
	return nil
}

// runApplyPosition writes a pan/tilt series. Either axis may be
// disconnected; a missing axis emits NaN, which downstream renderers
// treat as "hold current".
func (r *run) runApplyPosition(node *graph.NodeInstance) error {
	sel, okSel := r.inputSelection(node.ID, "selection")
	if !okSel {
		return nil
	}

	pan, hasPan := r.inputSignal(node.ID, "pan")
	tilt, hasTilt := r.inputSignal(node.ID, "tilt")
	if !hasPan && !hasTilt {
		return nil
	}

	tSteps := 1
	if hasPan && pan.T > tSteps {
		tSteps = pan.T
	}
	if hasTilt && tilt.T > tSteps {
		tSteps = tilt.T
	}

	start := r.gctx.StartTime
	duration := r.duration()
	nan := float32(math.NaN())

	axisValue := func(sig signal.Signal, has bool, globalIdx, t int) float32 {
		if !has {
			return nan
		}
		sigT := 0
		if sig.T > 1 {
			sigT = int(math.Round(float64(float32(t) / float32(maxI(tSteps-1, 1)) * float32(sig.T-1))))
		}
		idx := wrapIdx(globalIdx, sig.N)*(sig.T*sig.C) + sigT*sig.C
		return sampleFlat(sig.Data, idx)
	}

	layer := graph.LayerTimeSeries{}
	for globalIdx, item := range sel.Items {
		samples := make([]graph.SeriesSample, 0, tSteps)
		for t := 0; t < tSteps; t++ {
			time := start
			if tSteps > 1 {
				time = start + (float32(t)/float32(tSteps-1))*duration
			}
			samples = append(samples, graph.SeriesSample{
				Time: time,
				Values: []float32{
					axisValue(pan, hasPan, globalIdx, t),
					axisValue(tilt, hasTilt, globalIdx, t),
				},
			})
		}

		layer.Primitives = append(layer.Primitives, graph.PrimitiveTimeSeries{
			PrimitiveID: item.ID,
			Position:    &graph.Series{Dim: 2, Samples: samples},
		})
	}

	r.state.AddLayer(layer)
	return nil
}
