package validate

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32(values ...float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func f64(values ...float64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func collect(r *Report) []Element {
	var out []Element
	for e := range r.Details() {
		out = append(out, e)
	}
	return out
}

func TestValidateScenario(t *testing.T) {
	truth := f32(1.0, 2.0, 3.0, 4.0)
	result := f32(1.0005, 2.006, 3.0, 3.999)

	r, err := Validate(result, truth, Float32, 0.005)
	require.NoError(t, err)

	var verdicts []bool
	for _, e := range collect(r) {
		verdicts = append(verdicts, e.Pass)
	}
	assert.Equal(t, []bool{true, false, true, true}, verdicts)
	assert.False(t, r.Pass())
	assert.Equal(t, 3, r.Passed)
	assert.Equal(t, 1, r.Failed())
	assert.InDelta(t, 0.006, r.MaxDiff, 1e-6)

	var failures []int
	for e := range r.Failures() {
		failures = append(failures, e.Index)
	}
	assert.Equal(t, []int{1}, failures)
}

func TestValidateReflexive(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for _, tol := range []float64{1e-9, 1e-3, 5e-3, 1} {
		vals := make([]float32, 257)
		for i := range vals {
			vals[i] = float32(rng.NormFloat64() * 100)
		}
		buf := f32(vals...)
		r, err := Validate(buf, buf, Float32, tol)
		require.NoError(t, err)
		assert.True(t, r.Pass(), "tolerance %g", tol)
		assert.Equal(t, len(vals), r.Count)
		assert.Zero(t, r.MaxDiff)
	}
}

func TestValidateSizeMismatch(t *testing.T) {
	cases := [][2][]byte{
		{f32(1, 2, 3), f32(1, 2)},
		{f32(), f32(1)},
		{make([]byte, 9), make([]byte, 8)},
	}
	for _, c := range cases {
		_, err := Validate(c[0], c[1], Float32, 0.005)
		require.ErrorIs(t, err, ErrSizeMismatch)
	}
}

func TestValidateDetailsRestartable(t *testing.T) {
	truth := f32(1, 2, 3)
	result := f32(1, 2.5, 3)
	r, err := Validate(result, truth, Float32, 1e-3)
	require.NoError(t, err)

	first := collect(r)
	second := collect(r)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
	assert.Equal(t, 2, r.Passed, "iterating details does not change the outcome")

	for e := range r.Details() {
		if e.Index == 0 {
			break
		}
	}
	assert.Equal(t, "[ wrong, 2.5, 2, 0.5 ]", first[1].String())
	assert.Equal(t, "[ correct, 1, 1, 0 ]", first[0].String())
}

func TestValidateNonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	r, err := Validate(f32(nan, 1.25, inf, 4), f32(1, 1, 3, 4), Float32, 0.005)
	require.NoError(t, err)
	assert.False(t, r.Pass())
	assert.Equal(t, 3, r.Failed())
	assert.Equal(t, 2, r.NonFinite)
	assert.Equal(t, 0.25, r.MaxDiff)
	assert.Contains(t, r.String(), "2 non-finite")
}

func TestValidateFloat32Threshold(t *testing.T) {
	// A difference equal to the tolerance rounded to float is outside it.
	edge := float32(0.005)
	r, err := Validate(f32(edge), f32(0), Float32, 0.005)
	require.NoError(t, err)
	assert.False(t, r.Pass())

	r, err = Validate(f32(math.Nextafter32(edge, 0)), f32(0), Float32, 0.005)
	require.NoError(t, err)
	assert.True(t, r.Pass())

	r, err = Validate(f64(float64(edge)), f64(0), Float64, 0.005)
	require.NoError(t, err)
	assert.True(t, r.Pass(), "doubles compare at full precision")
}

func TestValidateFloat64(t *testing.T) {
	r, err := Validate(f64(1, 2.0000001), f64(1, 2), Float64, 1e-3)
	require.NoError(t, err)
	assert.True(t, r.Pass())
	assert.Equal(t, 2, r.Count)
}

func TestValidateRejectsBadArguments(t *testing.T) {
	_, err := Validate(f32(1), f32(1), ElementType("half"), 0.005)
	require.Error(t, err)

	_, err = Validate(f32(1), f32(1), Float32, 0)
	require.Error(t, err)

	_, err = Validate(f32(1), f32(1), Float32, math.NaN())
	require.Error(t, err)

	_, err = Validate(make([]byte, 6), make([]byte, 6), Float32, 0.005)
	require.Error(t, err)
}

func TestParseTolerance(t *testing.T) {
	tol, err := ParseTolerance("strict")
	require.NoError(t, err)
	assert.Equal(t, 1e-3, tol)

	tol, err = ParseTolerance("5e-3")
	require.NoError(t, err)
	assert.Equal(t, 5e-3, tol)

	_, err = ParseTolerance("-1")
	require.Error(t, err)
	_, err = ParseTolerance("loose")
	require.Error(t, err)
}

func TestParseElementType(t *testing.T) {
	et, err := ParseElementType("float32")
	require.NoError(t, err)
	assert.Equal(t, Float32, et)

	et, err = ParseElementType("double")
	require.NoError(t, err)
	assert.Equal(t, 8, et.Size())

	_, err = ParseElementType("int8")
	require.Error(t, err)
}

func TestReportString(t *testing.T) {
	r, err := Validate(f32(1), f32(1), Float32, 0.005)
	require.NoError(t, err)
	assert.Contains(t, r.String(), "Yes !")
}
