// Package signal implements the dense tensor carried between graph nodes.
//
// A Signal is a three-axis f32 tensor: n (spatial, one slot per selected
// primitive), t (temporal samples), c (channels). Data is flat row-major
// with n outermost:
//
//	index = n*(T*C) + t*C + c
//
// Binary operations broadcast with modulo indexing: the output shape is
// the per-axis max of the operands, and each operand reads index i%dim on
// every axis. Axes of size 1 therefore repeat, and mismatched larger axes
// wrap instead of erroring. Wrap is intentional: patterns cycle across
// heads and time rather than failing a run.
package signal

import (
	"fmt"
	"math"
)

// Signal is a dense (N, T, C) tensor of float32 samples.
type Signal struct {
	N    int       `json:"n"`
	T    int       `json:"t"`
	C    int       `json:"c"`
	Data []float32 `json:"data"`
}

// New builds a Signal and validates its shape. Every axis must be at
// least 1 and data length must equal n*t*c.
func New(n, t, c int, data []float32) (Signal, error) {
	if n < 1 || t < 1 || c < 1 {
		return Signal{}, fmt.Errorf("signal: invalid shape (%d,%d,%d): all axes must be >= 1", n, t, c)
	}
	if len(data) != n*t*c {
		return Signal{}, fmt.Errorf("signal: data length %d does not match shape (%d,%d,%d)=%d", len(data), n, t, c, n*t*c)
	}
	return Signal{N: n, T: t, C: c, Data: data}, nil
}

// MustNew is New for shapes known statically. It panics on invalid input
// and exists for literals in node implementations and tests.
func MustNew(n, t, c int, data []float32) Signal {
	s, err := New(n, t, c, data)
	if err != nil {
		panic(err)
	}
	return s
}

// Scalar wraps a single value as a (1,1,1) signal.
func Scalar(v float32) Signal {
	return Signal{N: 1, T: 1, C: 1, Data: []float32{v}}
}

// Zero is the default substituted for missing optional signal inputs.
func Zero() Signal { return Scalar(0) }

// Valid reports whether the signal satisfies the shape invariant.
func (s Signal) Valid() bool {
	return s.N >= 1 && s.T >= 1 && s.C >= 1 && len(s.Data) == s.N*s.T*s.C
}

// Len returns the number of samples, n*t*c.
func (s Signal) Len() int { return s.N * s.T * s.C }

// At reads the sample at (n, t, c). Indices wrap modulo each axis, which
// is the same rule Combine uses for mismatched shapes.
func (s Signal) At(n, t, c int) float32 {
	return s.Data[s.flat(wrap(n, s.N), wrap(t, s.T), wrap(c, s.C))]
}

func (s Signal) flat(n, t, c int) int {
	return n*(s.T*s.C) + t*s.C + c
}

func wrap(i, dim int) int {
	if dim <= 1 {
		return 0
	}
	return i % dim
}

// Clone returns a deep copy.
func (s Signal) Clone() Signal {
	out := s
	out.Data = make([]float32, len(s.Data))
	copy(out.Data, s.Data)
	return out
}

// Map applies f to every sample, returning a new signal of the same shape.
func (s Signal) Map(f func(float32) float32) Signal {
	out := make([]float32, len(s.Data))
	for i, v := range s.Data {
		out[i] = f(v)
	}
	return Signal{N: s.N, T: s.T, C: s.C, Data: out}
}

// Op is a binary sample operator used by Combine.
type Op string

const (
	OpAdd      Op = "add"
	OpSubtract Op = "subtract"
	OpMultiply Op = "multiply"
	OpDivide   Op = "divide"
	OpMax      Op = "max"
	OpMin      Op = "min"
	OpAbsDiff  Op = "abs_diff"
	OpModulo   Op = "modulo"
	OpCircular Op = "circular_distance"
)

// apply evaluates one sample pair. Divide and modulo by zero yield 0
// rather than Inf/NaN so downstream fixtures never see non-finite values.
func (op Op) apply(a, b float32) float32 {
	switch op {
	case OpAdd:
		return a + b
	case OpSubtract:
		return a - b
	case OpMultiply:
		return a * b
	case OpDivide:
		if b != 0 {
			return a / b
		}
		return 0
	case OpMax:
		if a > b {
			return a
		}
		return b
	case OpMin:
		if a < b {
			return a
		}
		return b
	case OpAbsDiff:
		return float32(math.Abs(float64(a - b)))
	case OpModulo:
		if b != 0 {
			return float32(math.Mod(float64(a), float64(b)))
		}
		return 0
	case OpCircular:
		// Shortest distance between two points on the unit circle,
		// in 0..0.5.
		diff := float32(math.Mod(math.Abs(float64(a-b)), 1.0))
		if diff > 1-diff {
			return 1 - diff
		}
		return diff
	default:
		return a + b
	}
}

// Combine merges two signals with modulo broadcasting. The result shape
// is (max(nA,nB), max(tA,tB), max(cA,cB)); each operand contributes the
// sample at i%dim per axis. Commutes for symmetric operators; never
// errors for valid inputs.
func Combine(a, b Signal, op Op) Signal {
	outN := maxInt(a.N, b.N)
	outT := maxInt(a.T, b.T)
	outC := maxInt(a.C, b.C)

	data := make([]float32, 0, outN*outT*outC)
	for i := 0; i < outN; i++ {
		an, bn := wrap(i, a.N), wrap(i, b.N)
		for j := 0; j < outT; j++ {
			at, bt := wrap(j, a.T), wrap(j, b.T)
			for k := 0; k < outC; k++ {
				ac, bc := wrap(k, a.C), wrap(k, b.C)
				va := a.Data[a.flat(an, at, ac)]
				vb := b.Data[b.flat(bn, bt, bc)]
				data = append(data, op.apply(va, vb))
			}
		}
	}
	return Signal{N: outN, T: outT, C: outC, Data: data}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
