package testcase

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/convbench/internal/layout"
	"github.com/samcharles93/convbench/internal/reference"
	"github.com/samcharles93/convbench/pkg/convparams"
)

func smallShape() Shape {
	return Shape{
		Din: 3, Hin: 5, Win: 5, Cin: 3,
		Cout: 6,
		Dk:   3, Hk: 3, Wk: 3,
		Sx: 1, Sy: 1, Sz: 1,
		Padding: reference.Valid,
	}
}

func TestGeneratePadsChannels(t *testing.T) {
	c, err := Generate(Options{Seed: 64, Shape: smallShape()})
	require.NoError(t, err)

	p := c.Params
	assert.Equal(t, 4, p.Cin)
	assert.Equal(t, 8, p.Cout)
	assert.Equal(t, 3, c.Cin)
	assert.Equal(t, 6, c.Cout)
	assert.Equal(t, []int{1, 3, 3}, []int{p.Dout, p.Hout, p.Wout})
	assert.Equal(t, []int{0, 0, 0}, []int{p.Px, p.Py, p.Pz})
	require.NoError(t, p.Validate())

	// Padded input channels and output channels are zero.
	for i := 3; i < len(c.Input); i += 4 {
		require.Zero(t, c.Input[i])
	}
	for i, v := range c.Output {
		if i%8 >= 6 {
			require.Zero(t, v, "output %d", i)
		}
	}
	assert.Len(t, c.Output, p.Dout*p.Hout*p.Wout*p.Cout)
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := Generate(Options{Seed: 7, Shape: smallShape()})
	require.NoError(t, err)
	b, err := Generate(Options{Seed: 7, Shape: smallShape()})
	require.NoError(t, err)
	c, err := Generate(Options{Seed: 8, Shape: smallShape()})
	require.NoError(t, err)

	assert.Equal(t, a.Output, b.Output)
	assert.NotEqual(t, a.Input, c.Input)
}

func TestGenerateSamePadding(t *testing.T) {
	s := smallShape()
	s.Padding = reference.Same
	s.Sx, s.Sy = 2, 2
	c, err := Generate(Options{Seed: 1, Shape: s})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 3}, []int{c.Params.Dout, c.Params.Hout, c.Params.Wout})
	assert.Equal(t, []int{1, 1, 1}, []int{c.Params.Px, c.Params.Py, c.Params.Pz})
}

func TestGenerateInfeasiblePinnedShape(t *testing.T) {
	s := smallShape()
	s.Din = 2
	_, err := Generate(Options{Seed: 1, Shape: s})
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestDrawRanges(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for range 500 {
		s := draw(r, Options{Strides: true})
		assert.True(t, s.Din >= 1 && s.Din <= 32, "Din %d", s.Din)
		assert.True(t, s.Hin >= 1 && s.Hin <= 228, "Hin %d", s.Hin)
		assert.True(t, s.Win >= 1 && s.Win <= 228, "Win %d", s.Win)
		assert.True(t, s.Cin >= 3 && s.Cin <= 64, "Cin %d", s.Cin)
		assert.True(t, s.Cout >= 8 && s.Cout <= 64, "Cout %d", s.Cout)
		assert.Equal(t, 1, s.Dk%2)
		assert.True(t, s.Dk >= 3 && s.Dk <= 9, "K %d", s.Dk)
		assert.Equal(t, s.Dk, s.Hk)
		assert.Equal(t, s.Dk, s.Wk)
		assert.Contains(t, []reference.PaddingMode{reference.Valid, reference.Same}, s.Padding)
		for _, st := range []int{s.Sx, s.Sy, s.Sz} {
			assert.True(t, st >= 1 && st <= 4, "stride %d", st)
		}
	}

	s := draw(r, Options{Shape: Shape{Cin: 16}})
	assert.Equal(t, 16, s.Cin)
	assert.Equal(t, []int{1, 1, 1}, []int{s.Sx, s.Sy, s.Sz})
}

func TestWriteFiles(t *testing.T) {
	c, err := Generate(Options{Seed: 2, Shape: smallShape()})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "data")
	files := DefaultFiles().In(dir)
	require.NoError(t, c.Write(files))

	blob, err := os.ReadFile(files.Params)
	require.NoError(t, err)
	p, err := convparams.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, c.Params, p)

	layouts, err := layout.PackAll(p)
	require.NoError(t, err)
	for i, name := range []string{files.Input, files.Filter, files.Bias} {
		info, err := os.Stat(name)
		require.NoError(t, err)
		assert.EqualValues(t, layouts[i].ByteSize(), info.Size(), name)
	}

	truth, err := os.ReadFile(files.Truth)
	require.NoError(t, err)
	assert.Len(t, truth, layouts[layout.RoleOutput].ByteSize())
	unpacked, err := layout.PackedToDHWC(layout.BytesFloat32(truth), p.Dout, p.Hout, p.Wout, p.Cout)
	require.NoError(t, err)
	assert.Equal(t, c.Output, unpacked)
}

func TestFilesIn(t *testing.T) {
	f := Files{Input: "in.raw", Truth: "/abs/truth.raw"}.In("data")
	assert.Equal(t, filepath.Join("data", "in.raw"), f.Input)
	assert.Equal(t, "/abs/truth.raw", f.Truth)
	assert.Empty(t, f.Bias)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float32{1, 2, 3, 4})
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Zero(t, Summarize(nil).Count)

	r := rand.New(rand.NewPCG(5, 6))
	n := Summarize(normal(r, 20000))
	assert.InDelta(t, 0, n.Mean, 0.05)
	assert.InDelta(t, 1, n.StdDev, 0.05)
}
