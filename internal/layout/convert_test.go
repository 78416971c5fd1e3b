package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iota32(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestDHWCToPackedOrder(t *testing.T) {
	const d, h, w, c = 2, 5, 3, 8
	src := iota32(d * h * w * c)

	dst, err := DHWCToPacked(src, d, h, w, c)
	require.NoError(t, err)

	// group 1, z=1, y=2, x=1 holds channels 4..7 of src[1][2][1].
	di := (((1*d+1)*h+2)*w + 1) * 4
	si := ((1*h+2)*w+1)*c + 4
	assert.Equal(t, src[si:si+4], dst[di:di+4])

	back, err := PackedToDHWC(dst, d, h, w, c)
	require.NoError(t, err)
	assert.Equal(t, src, back)
}

func TestDHWCToPackedErrors(t *testing.T) {
	_, err := DHWCToPacked(make([]float32, 6), 1, 1, 1, 6)
	require.ErrorIs(t, err, ErrInvalidChannelGrouping)

	_, err = DHWCToPacked(make([]float32, 7), 1, 1, 1, 8)
	require.Error(t, err)

	_, err = PackedToDHWC(make([]float32, 8), 1, 1, 2, 3)
	require.ErrorIs(t, err, ErrInvalidChannelGrouping)
}

func TestFilterToPacked(t *testing.T) {
	const dk, hk, wk, cin, cout = 2, 2, 2, 4, 1
	src := iota32(dk * hk * wk * cin * cout)

	dst, err := FilterToPacked(src, dk, hk, wk, cin, cout)
	require.NoError(t, err)
	// With a single output channel each texel is one kernel tap's four inputs.
	assert.Equal(t, src, dst)

	const cin2, cout2 = 8, 3
	src = iota32(dk * hk * wk * cin2 * cout2)
	dst, err = FilterToPacked(src, dk, hk, wk, cin2, cout2)
	require.NoError(t, err)

	// group 1, tap 5, output channel 2, lane 3 -> src[tap 5][cin 7][cout 2].
	k := dk * hk * wk
	assert.Equal(t, src[(5*cin2+7)*cout2+2], dst[((1*k+5)*cout2+2)*4+3])

	back, err := PackedToFilter(dst, dk, hk, wk, cin2, cout2)
	require.NoError(t, err)
	assert.Equal(t, src, back)
}

func TestAlignAndExtract(t *testing.T) {
	src := iota32(7 * 6)
	aligned, shape, err := AlignArray(src, []int{7, 6}, []int{2, 4})
	require.NoError(t, err)
	assert.Equal(t, []int{8, 8}, shape)
	assert.Len(t, aligned, 64)
	assert.Equal(t, float32(6), aligned[8], "row 1 starts at the aligned stride")
	assert.Equal(t, float32(0), aligned[6], "padding is zero")

	back, err := ExtractArray(aligned, shape, []int{7, 6})
	require.NoError(t, err)
	assert.Equal(t, src, back)

	_, _, err = AlignArray(src, []int{7, 6}, []int{0, 4})
	require.Error(t, err)
	_, err = ExtractArray(aligned, shape, []int{9, 6})
	require.Error(t, err)
}

func TestFloat32Bytes(t *testing.T) {
	vals := []float32{1, -2.5, 3.25}
	data := Float32Bytes(vals)
	require.Len(t, data, 12)
	assert.Equal(t, vals, BytesFloat32(data))
	assert.Equal(t, vals[:2], BytesFloat32(data[:10]))
}
