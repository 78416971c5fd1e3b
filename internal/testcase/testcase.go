// Package testcase generates random convolution test cases: logical tensors
// drawn from a standard normal distribution, ground truth from the reference
// convolution, and the packed raw files the driver consumes.
package testcase

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/convbench/internal/layout"
	"github.com/samcharles93/convbench/internal/reference"
	"github.com/samcharles93/convbench/pkg/convparams"
)

// Shape pins parts of a generated case. Zero fields are drawn at random.
type Shape struct {
	Din, Hin, Win, Cin int
	Cout               int
	Dk, Hk, Wk         int
	Sx, Sy, Sz         int
	Padding            reference.PaddingMode
}

type Options struct {
	Seed  uint64
	Shape Shape
	// Strides lets unpinned strides be drawn from 1..4. Otherwise they are 1.
	Strides bool
}

// Case is one generated test case. Tensors are logical (DHWC, DHWCiCo) with
// channel counts already padded to a multiple of four; Params records the
// padded counts.
type Case struct {
	Params  convparams.ConvParams
	Padding reference.PaddingMode
	// Cin and Cout are the channel counts before padding.
	Cin, Cout int

	Input  []float32
	Filter []float32
	Bias   []float32
	Output []float32
}

// Packed holds the raw little-endian float32 contents of each file.
type Packed struct {
	Input, Filter, Bias, Truth []byte
}

const maxAttempts = 64

var ErrInfeasible = errors.New("testcase: shape has no valid output")

// Generate draws a case. Unpinned extents follow the ranges Din 1..32,
// Hin and Win 1..228, Cin 3..64, Cout 8..64 and an odd cubic kernel of 3..9.
// Draws that leave no valid output under VALID padding are repeated.
func Generate(opts Options) (*Case, error) {
	r := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	var lastErr error
	for range maxAttempts {
		s := draw(r, opts)
		c, err := build(r, s)
		if err == nil {
			return c, nil
		}
		lastErr = err
		if pinned(opts.Shape) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrInfeasible, lastErr)
}

func pinned(s Shape) bool {
	return s.Din > 0 && s.Hin > 0 && s.Win > 0 && s.Dk > 0 && s.Hk > 0 && s.Wk > 0 &&
		s.Sx > 0 && s.Sy > 0 && s.Sz > 0 && s.Padding != ""
}

func between(r *rand.Rand, lo, hi int) int {
	return lo + r.IntN(hi-lo+1)
}

func pick(v int, r *rand.Rand, lo, hi int) int {
	if v > 0 {
		return v
	}
	return between(r, lo, hi)
}

func draw(r *rand.Rand, opts Options) Shape {
	s := opts.Shape
	s.Din = pick(s.Din, r, 1, 32)
	s.Hin = pick(s.Hin, r, 1, 228)
	s.Win = pick(s.Win, r, 1, 228)
	s.Cin = pick(s.Cin, r, 3, 64)
	s.Cout = pick(s.Cout, r, 8, 64)

	k := between(r, 3, 9) | 1
	s.Dk = pick(s.Dk, r, k, k)
	s.Hk = pick(s.Hk, r, k, k)
	s.Wk = pick(s.Wk, r, k, k)

	if s.Padding == "" {
		s.Padding = reference.Valid
		if r.IntN(2) == 1 {
			s.Padding = reference.Same
		}
	}

	hiStride := 1
	if opts.Strides && r.IntN(2) == 1 {
		hiStride = 4
	}
	s.Sx = pick(s.Sx, r, 1, hiStride)
	s.Sy = pick(s.Sy, r, 1, hiStride)
	s.Sz = pick(s.Sz, r, 1, hiStride)
	return s
}

func normal(r *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func build(r *rand.Rand, s Shape) (*Case, error) {
	pz, dout, err := reference.Pad(s.Din, s.Dk, s.Sz, 1, s.Padding)
	if err != nil {
		return nil, err
	}
	py, hout, err := reference.Pad(s.Hin, s.Hk, s.Sy, 1, s.Padding)
	if err != nil {
		return nil, err
	}
	px, wout, err := reference.Pad(s.Win, s.Wk, s.Sx, 1, s.Padding)
	if err != nil {
		return nil, err
	}

	input, inShape, err := layout.AlignArray(normal(r, s.Din*s.Hin*s.Win*s.Cin),
		[]int{s.Din, s.Hin, s.Win, s.Cin}, []int{1, 1, 1, convparams.LaneWidth})
	if err != nil {
		return nil, err
	}
	filter, fShape, err := layout.AlignArray(normal(r, s.Dk*s.Hk*s.Wk*s.Cin*s.Cout),
		[]int{s.Dk, s.Hk, s.Wk, s.Cin, s.Cout}, []int{1, 1, 1, convparams.LaneWidth, convparams.LaneWidth})
	if err != nil {
		return nil, err
	}
	bias, _, err := layout.AlignArray(normal(r, s.Cout), []int{s.Cout}, []int{convparams.LaneWidth})
	if err != nil {
		return nil, err
	}

	p := convparams.ConvParams{
		Din: s.Din, Hin: s.Hin, Win: s.Win, Cin: inShape[3],
		Dout: dout, Hout: hout, Wout: wout, Cout: fShape[4],
		Dk: s.Dk, Hk: s.Hk, Wk: s.Wk,
		Sx: s.Sx, Sy: s.Sy, Sz: s.Sz,
		Px: px, Py: py, Pz: pz,
		Lx: 1, Ly: 1, Lz: 1,
	}
	conv := reference.Conv3D{Params: p, Input: input, Filter: filter, Bias: bias}
	out, err := conv.Run()
	if err != nil {
		return nil, err
	}
	return &Case{
		Params:  p,
		Padding: s.Padding,
		Cin:     s.Cin,
		Cout:    s.Cout,
		Input:   input,
		Filter:  filter,
		Bias:    bias,
		Output:  out,
	}, nil
}

// Packed converts the logical tensors into their image layouts.
func (c *Case) Packed() (Packed, error) {
	p := c.Params
	in, err := layout.DHWCToPacked(c.Input, p.Din, p.Hin, p.Win, p.Cin)
	if err != nil {
		return Packed{}, err
	}
	filter, err := layout.FilterToPacked(c.Filter, p.Dk, p.Hk, p.Wk, p.Cin, p.Cout)
	if err != nil {
		return Packed{}, err
	}
	out, err := layout.DHWCToPacked(c.Output, p.Dout, p.Hout, p.Wout, p.Cout)
	if err != nil {
		return Packed{}, err
	}
	return Packed{
		Input:  layout.Float32Bytes(in),
		Filter: layout.Float32Bytes(filter),
		Bias:   layout.Float32Bytes(c.Bias),
		Truth:  layout.Float32Bytes(out),
	}, nil
}

// Summary describes the value distribution of a tensor.
type Summary struct {
	Count        int
	Mean, StdDev float64
	Min, Max     float64
}

func Summarize(values []float32) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	x := make([]float64, len(values))
	for i, v := range values {
		x[i] = float64(v)
	}
	mean, std := stat.MeanStdDev(x, nil)
	return Summary{
		Count:  len(x),
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(x),
		Max:    floats.Max(x),
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d mean=%.4f std=%.4f min=%.4f max=%.4f", s.Count, s.Mean, s.StdDev, s.Min, s.Max)
}
