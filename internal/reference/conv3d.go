// Package reference computes 3D convolutions on logical, unpacked tensors. It
// is the trusted side of every comparison: test-case ground truth is produced
// here and the host backend executes it in place of a compiled kernel.
package reference

import (
	"fmt"

	"github.com/samcharles93/convbench/pkg/convparams"
)

// Conv3D holds one convolution over logical tensors:
//
//	Input  Din x Hin x Win x Cin
//	Filter Dk x Hk x Wk x Cin x Cout
//	Bias   Cout
//	output Dout x Hout x Wout x Cout
type Conv3D struct {
	Params convparams.ConvParams
	Input  []float32
	Filter []float32
	Bias   []float32
}

func (c *Conv3D) Validate() error {
	p := c.Params
	for _, v := range []int{p.Din, p.Hin, p.Win, p.Cin, p.Dout, p.Hout, p.Wout, p.Cout, p.Dk, p.Hk, p.Wk, p.Sx, p.Sy, p.Sz, p.Lx, p.Ly, p.Lz} {
		if v <= 0 {
			return fmt.Errorf("reference: extents, strides and dilations must be positive: %s", p)
		}
	}
	if want := p.Din * p.Hin * p.Win * p.Cin; len(c.Input) != want {
		return fmt.Errorf("reference: input has %d values, want %d", len(c.Input), want)
	}
	if want := p.Dk * p.Hk * p.Wk * p.Cin * p.Cout; len(c.Filter) != want {
		return fmt.Errorf("reference: filter has %d values, want %d", len(c.Filter), want)
	}
	if len(c.Bias) != p.Cout {
		return fmt.Errorf("reference: bias has %d values, want %d", len(c.Bias), p.Cout)
	}
	return nil
}

// OutputLen is the number of values in the output tensor.
func (c *Conv3D) OutputLen() int {
	p := c.Params
	return p.Dout * p.Hout * p.Wout * p.Cout
}

// Run computes the whole output.
func (c *Conv3D) Run() ([]float32, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	out := make([]float32, c.OutputLen())
	for z := range c.Params.Dout {
		c.Plane(z, out)
	}
	return out, nil
}

// Plane computes output depth plane z into out, which holds the full output.
// Distinct planes touch disjoint parts of out.
func (c *Conv3D) Plane(z int, out []float32) {
	p := c.Params
	acc := make([]float64, p.Cout)
	for y := range p.Hout {
		for x := range p.Wout {
			c.point(z, y, x, acc)
			base := ((z*p.Hout+y)*p.Wout + x) * p.Cout
			for co, v := range acc {
				out[base+co] = float32(v)
			}
		}
	}
}

func (c *Conv3D) point(z, y, x int, acc []float64) {
	p := c.Params
	for co := range acc {
		acc[co] = float64(c.Bias[co])
	}
	z0 := z*p.Sz - p.Pz
	y0 := y*p.Sy - p.Py
	x0 := x*p.Sx - p.Px
	for kd := range p.Dk {
		iz := z0 + kd*p.Lz
		if iz < 0 || iz >= p.Din {
			continue
		}
		for kh := range p.Hk {
			iy := y0 + kh*p.Ly
			if iy < 0 || iy >= p.Hin {
				continue
			}
			for kw := range p.Wk {
				ix := x0 + kw*p.Lx
				if ix < 0 || ix >= p.Win {
					continue
				}
				in := c.Input[((iz*p.Hin+iy)*p.Win+ix)*p.Cin:]
				tap := c.Filter[((kd*p.Hk+kh)*p.Wk+kw)*p.Cin*p.Cout:]
				for ci := range p.Cin {
					v := float64(in[ci])
					if v == 0 {
						continue
					}
					row := tap[ci*p.Cout : (ci+1)*p.Cout]
					for co, w := range row {
						acc[co] += v * float64(w)
					}
				}
			}
		}
	}
}
