package engine

import "math"

// adsrDurations splits one pulse span into attack/decay/sustain/release
// segments. The four inputs are relative weights clamped to 0..1; the
// span is divided proportionally, so envelopes never exceed the spacing
// between pulses.
func adsrDurations(spanSec, attack, decay, sustain, release float32) (a, d, s, r float32) {
	aw := clamp01(attack)
	dw := clamp01(decay)
	sw := clamp01(sustain)
	rw := clamp01(release)
	sum := aw + dw + sw + rw

	if sum < 1e-6 {
		return 0, 0, 0, 0
	}

	scale := spanSec / sum
	return aw * scale, dw * scale, sw * scale, rw * scale
}

// calcEnvelope evaluates one ADSR pulse at time t. The peak sits at the
// end of the attack segment; decay eases 1 down to sustainLevel, sustain
// holds, and release eases sustainLevel down to zero.
func calcEnvelope(t, peak, attack, decay, sustain, release, sustainLevel, aCurve, dCurve float32) float32 {
	if t < peak-attack {
		return 0
	}

	if t <= peak {
		if attack <= 0 {
			return 1
		}
		x := (t - (peak - attack)) / attack
		return shapeCurve(x, aCurve)
	}

	decayEnd := peak + decay
	if t <= decayEnd {
		if decay <= 0 {
			return sustainLevel
		}
		x := (t - peak) / decay
		shaped := shapeCurve(1-x, dCurve)
		return sustainLevel + (1-sustainLevel)*shaped
	}

	sustainEnd := decayEnd + sustain
	if t <= sustainEnd {
		return sustainLevel
	}

	releaseEnd := sustainEnd + release
	if t <= releaseEnd {
		if release <= 0 {
			return 0
		}
		x := (t - sustainEnd) / release
		return sustainLevel * shapeCurve(1-x, dCurve)
	}

	return 0
}

// shapeCurve bends a 0..1 ramp. Positive curve values snap (power > 1),
// negative values swell (inverse power); magnitudes map to powers 1..6.
func shapeCurve(x, curve float32) float32 {
	x = clamp01(x)
	switch {
	case abs32(curve) < 0.001:
		return x
	case curve > 0:
		p := 1 + curve*5
		return pow32(x, p)
	default:
		p := 1 + (-curve)*5
		return 1 - pow32(1-x, p)
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func pow32(x, p float32) float32 {
	return float32(math.Pow(float64(x), float64(p)))
}
