package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/convbench/pkg/convparams"
)

func unitParams() convparams.ConvParams {
	return convparams.ConvParams{
		Dk: 1, Hk: 1, Wk: 1,
		Sx: 1, Sy: 1, Sz: 1,
		Lx: 1, Ly: 1, Lz: 1,
	}
}

func TestPad(t *testing.T) {
	tests := []struct {
		name             string
		in, k, s, d      int
		mode             PaddingMode
		wantPad, wantOut int
	}{
		{"valid 3x3", 8, 3, 1, 1, Valid, 0, 6},
		{"valid strided", 9, 3, 2, 1, Valid, 0, 4},
		{"same 3x3", 8, 3, 1, 1, Same, 1, 8},
		{"same odd total", 8, 4, 1, 1, Same, 1, 8},
		{"same strided", 7, 3, 2, 1, Same, 1, 4},
		{"same stride wider than kernel", 8, 1, 4, 1, Same, 0, 2},
		{"same dilated", 8, 3, 1, 2, Same, 2, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pad, out, err := Pad(tt.in, tt.k, tt.s, tt.d, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPad, pad)
			assert.Equal(t, tt.wantOut, out)
			if tt.mode == Valid {
				assert.Equal(t, out, OutputExtent(tt.in, tt.k, pad, tt.s, tt.d))
			}
		})
	}
}

func TestPadErrors(t *testing.T) {
	_, _, err := Pad(2, 3, 1, 1, Valid)
	assert.Error(t, err)
	_, _, err = Pad(0, 3, 1, 1, Same)
	assert.Error(t, err)
	_, _, err = Pad(4, 3, 1, 1, PaddingMode("FULL"))
	assert.Error(t, err)
}

func TestParsePaddingMode(t *testing.T) {
	m, err := ParsePaddingMode(" same ")
	require.NoError(t, err)
	assert.Equal(t, Same, m)
	_, err = ParsePaddingMode("full")
	assert.Error(t, err)
}

func TestConv3DPointwise(t *testing.T) {
	p := unitParams()
	p.Din, p.Hin, p.Win, p.Cin = 1, 1, 2, 2
	p.Dout, p.Hout, p.Wout, p.Cout = 1, 1, 2, 1
	c := Conv3D{
		Params: p,
		Input:  []float32{1, 2, 3, 4},
		Filter: []float32{10, 100},
		Bias:   []float32{0.5},
	}
	out, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, []float32{210.5, 430.5}, out)
}

func TestConv3DSamePaddingSumsNeighbourhood(t *testing.T) {
	p := unitParams()
	p.Din, p.Hin, p.Win, p.Cin = 3, 3, 3, 1
	p.Dk, p.Hk, p.Wk = 3, 3, 3
	p.Dout, p.Hout, p.Wout, p.Cout = 3, 3, 3, 1
	p.Px, p.Py, p.Pz = 1, 1, 1

	ones := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = 1
		}
		return v
	}
	c := Conv3D{Params: p, Input: ones(27), Filter: ones(27), Bias: []float32{0}}
	out, err := c.Run()
	require.NoError(t, err)

	// Corner sees 2x2x2 inputs, centre sees all 27.
	assert.Equal(t, float32(8), out[0])
	assert.Equal(t, float32(27), out[13])
	assert.Equal(t, float32(12), out[1])
}

func TestConv3DStrideAndDilation(t *testing.T) {
	p := unitParams()
	p.Din, p.Hin, p.Win, p.Cin = 1, 1, 5, 1
	p.Wk = 2
	p.Lx = 2
	p.Sx = 2
	p.Dout, p.Hout, p.Wout, p.Cout = 1, 1, 2, 1
	c := Conv3D{
		Params: p,
		Input:  []float32{1, 2, 3, 4, 5},
		Filter: []float32{1, 10},
		Bias:   []float32{0},
	}
	out, err := c.Run()
	require.NoError(t, err)
	// x=0 reads inputs 0 and 2, x=1 reads inputs 2 and 4.
	assert.Equal(t, []float32{31, 53}, out)
}

func TestConv3DValidateLengths(t *testing.T) {
	p := unitParams()
	p.Din, p.Hin, p.Win, p.Cin = 1, 1, 1, 1
	p.Dout, p.Hout, p.Wout, p.Cout = 1, 1, 1, 1
	c := Conv3D{Params: p, Input: []float32{1, 2}, Filter: []float32{1}, Bias: []float32{0}}
	_, err := c.Run()
	assert.ErrorContains(t, err, "input has 2 values")

	c.Input = []float32{1}
	c.Bias = nil
	_, err = c.Run()
	assert.ErrorContains(t, err, "bias")

	c.Bias = []float32{0}
	c.Params.Sx = 0
	_, err = c.Run()
	assert.Error(t, err)
}
