package engine

import (
	"context"
	"fmt"

	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/signal"
)

// rainbowPalette maps the 12 pitch classes onto hues, C=red through
// B=magenta around the wheel.
var rainbowPalette = [ChromaDim][3]float32{
	{1, 0, 0},
	{1, 0.5, 0},
	{1, 0.8, 0},
	{1, 1, 0},
	{0.5, 1, 0},
	{0, 1, 0},
	{0, 1, 0.5},
	{0, 1, 1},
	{0, 0.5, 1},
	{0, 0, 1},
	{0.5, 0, 1},
	{1, 0, 0.5},
}

func (r *run) runColorNode(ctx context.Context, node *graph.NodeInstance) error {
	switch node.TypeID {
	case "color":
		return r.runColor(node)
	case "gradient":
		return r.runGradient(node)
	case "chroma_palette":
		return r.runChromaPalette(node)
	case "spectral_shift":
		return r.runSpectralShift(node)
	}
	return nil
}

// runColor emits a constant (1, 1, 4) RGBA signal from the color param.
func (r *run) runColor(node *graph.NodeInstance) error {
	raw := node.TextParam("color", `{"r":255,"g":0,"b":0,"a":1}`)
	c := parseColorObject([]byte(raw))

	r.state.SetSignal(node.ID, "out", signal.MustNew(1, 1, 4, []float32{c.r, c.g, c.b, c.a}))
	r.state.SetColor(node.ID, "out", raw)
	return nil
}

// runGradient interpolates between two colors using channel 0 of the
// input signal as the mix factor. Endpoint colors come from connected
// color signals, falling back to hex params.
func (r *run) runGradient(node *graph.NodeInstance) error {
	sig, ok := r.inputSignal(node.ID, "in")
	if !ok {
		return nil
	}

	start := r.endpointColor(node, "start_color", rgba{a: 1})
	end := r.endpointColor(node, "end_color", rgba{r: 1, g: 1, b: 1, a: 1})

	data := make([]float32, 0, sig.N*sig.T*4)
	for i := 0; i < len(sig.Data); i += sig.C {
		mix := clamp01(sig.Data[i])
		data = append(data,
			start.r+(end.r-start.r)*mix,
			start.g+(end.g-start.g)*mix,
			start.b+(end.b-start.b)*mix,
			start.a+(end.a-start.a)*mix,
		)
	}
	r.state.SetSignal(node.ID, "out", signal.MustNew(sig.N, sig.T, 4, data))
	return nil
}

// endpointColor resolves a gradient endpoint: a connected RGBA signal
// wins over the hex parameter.
func (r *run) endpointColor(node *graph.NodeInstance, port string, def rgba) rgba {
	if sig, ok := r.inputSignal(node.ID, port); ok {
		c := def
		if len(sig.Data) > 0 {
			c.r = sig.Data[0]
		}
		if len(sig.Data) > 1 {
			c.g = sig.Data[1]
		}
		if len(sig.Data) > 2 {
			c.b = sig.Data[2]
		}
		if len(sig.Data) > 3 {
			c.a = sig.Data[3]
		}
		return c
	}
	defHex := "#000000"
	if def.r == 1 && def.g == 1 && def.b == 1 {
		defHex = "#ffffff"
	}
	return parseHexColor(node.TextParam(port, defHex))
}

// runChromaPalette blends palette colors weighted by the 12-channel
// chroma probabilities, auto-gained back to full saturation.
func (r *run) runChromaPalette(node *graph.NodeInstance) error {
	chroma, ok := r.inputSignal(node.ID, "chroma")
	if !ok {
		return fmt.Errorf("missing chroma input")
	}
	if chroma.C != ChromaDim {
		r.log.Warn("chroma_palette input is not 12-channel chroma; skipping", "node", node.ID, "channels", chroma.C)
		return nil
	}

	data := make([]float32, chroma.T*3)
	for t := 0; t < chroma.T; t++ {
		var rSum, gSum, bSum float32
		for c := 0; c < ChromaDim; c++ {
			p := chroma.Data[t*ChromaDim+c]
			rSum += p * rainbowPalette[c][0]
			gSum += p * rainbowPalette[c][1]
			bSum += p * rainbowPalette[c][2]
		}

		// Averaging desaturates; rescale so the strongest channel hits 1.
		maxVal := rSum
		if gSum > maxVal {
			maxVal = gSum
		}
		if bSum > maxVal {
			maxVal = bSum
		}
		if maxVal < 0.001 {
			maxVal = 0.001
		}
		scale := 1 / maxVal

		data[t*3+0] = clamp01(rSum * scale)
		data[t*3+1] = clamp01(gSum * scale)
		data[t*3+2] = clamp01(bSum * scale)
	}

	r.state.SetSignal(node.ID, "out", signal.MustNew(1, chroma.T, 3, data))
	return nil
}

// runSpectralShift rotates the input color's hue by the dominant pitch
// class at each step: C leaves the hue alone, F# rotates it half way
// around the wheel.
func (r *run) runSpectralShift(node *graph.NodeInstance) error {
	in, okIn := r.inputSignal(node.ID, "in")
	if !okIn {
		return fmt.Errorf("missing 'in' input")
	}
	chroma, okChroma := r.inputSignal(node.ID, "chroma")
	if !okChroma {
		return fmt.Errorf("missing chroma input")
	}
	if chroma.C != ChromaDim {
		return nil
	}

	length := in.T
	if chroma.T < length {
		length = chroma.T
	}

	data := make([]float32, length*3)
	for t := 0; t < length; t++ {
		cr := sampleFlat(in.Data, t*in.C+0)
		cg := sampleFlat(in.Data, t*in.C+1)
		cb := sampleFlat(in.Data, t*in.C+2)

		dominant := 0
		maxP := float32(-1)
		for c := 0; c < ChromaDim; c++ {
			if p := chroma.Data[t*ChromaDim+c]; p > maxP {
				maxP = p
				dominant = c
			}
		}
		hueShift := float32(dominant) / ChromaDim

		h, s, l := rgbToHSL(cr, cg, cb)
		h += hueShift
		h -= float32(int(h))
		if h < 0 {
			h++
		}
		rr, gg, bb := hslToRGB(h, s, l)

		data[t*3+0] = rr
		data[t*3+1] = gg
		data[t*3+2] = bb
	}

	r.state.SetSignal(node.ID, "out", signal.MustNew(1, length, 3, data))
	return nil
}

func rgbToHSL(r, g, b float32) (h, s, l float32) {
	maxC := max3(r, g, b)
	minC := min3(r, g, b)
	delta := maxC - minC

	l = (maxC + minC) / 2
	if delta <= 0.00001 {
		return 0, 0, l
	}

	if l > 0.5 {
		s = delta / (2 - maxC - minC)
	} else {
		s = delta / (maxC + minC)
	}

	switch maxC {
	case r:
		h = (g - b) / delta
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/delta + 2
	default:
		h = (r-g)/delta + 4
	}
	h /= 6
	return h, s, l
}

func hslToRGB(h, s, l float32) (r, g, b float32) {
	var q float32
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return hueToRGB(p, q, h+1.0/3.0), hueToRGB(p, q, h), hueToRGB(p, q, h-1.0/3.0)
}

func hueToRGB(p, q, t float32) float32 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}

func max3(a, b, c float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
