package layout

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/samcharles93/convbench/pkg/convparams"
)

const lane = convparams.LaneWidth

// AlignArray zero-pads every axis of a row-major array up to a multiple of the
// matching base and returns the padded data with its new shape.
func AlignArray(data []float32, shape, base []int) ([]float32, []int, error) {
	if len(shape) != len(base) {
		return nil, nil, fmt.Errorf("layout: shape %v and base %v differ in rank", shape, base)
	}
	if volume(shape) != len(data) {
		return nil, nil, fmt.Errorf("layout: shape %v does not match %d values", shape, len(data))
	}
	aligned := make([]int, len(shape))
	for i := range shape {
		if base[i] <= 0 {
			return nil, nil, fmt.Errorf("layout: align base must be positive, got %v", base)
		}
		aligned[i] = (shape[i] + base[i] - 1) / base[i] * base[i]
	}
	out := make([]float32, volume(aligned))
	copyRegion(out, aligned, data, shape, shape)
	return out, aligned, nil
}

// ExtractArray copies the leading target region out of an aligned array.
func ExtractArray(data []float32, shape, target []int) ([]float32, error) {
	if len(shape) != len(target) {
		return nil, fmt.Errorf("layout: shape %v and target %v differ in rank", shape, target)
	}
	if volume(shape) != len(data) {
		return nil, fmt.Errorf("layout: shape %v does not match %d values", shape, len(data))
	}
	for i := range shape {
		if target[i] <= 0 || target[i] > shape[i] {
			return nil, fmt.Errorf("layout: target %v outside of shape %v", target, shape)
		}
	}
	out := make([]float32, volume(target))
	copyRegion(out, target, data, shape, target)
	return out, nil
}

// copyRegion copies region from src to dst, both row-major.
func copyRegion(dst []float32, dstShape []int, src []float32, srcShape []int, region []int) {
	if len(region) == 0 {
		return
	}
	if len(region) == 1 {
		copy(dst[:region[0]], src[:region[0]])
		return
	}
	dstStride := volume(dstShape[1:])
	srcStride := volume(srcShape[1:])
	for i := range region[0] {
		copyRegion(dst[i*dstStride:], dstShape[1:], src[i*srcStride:], srcShape[1:], region[1:])
	}
}

func volume(shape []int) int {
	n := 1
	for _, v := range shape {
		n *= v
	}
	return n
}

// DHWCToPacked converts a D x H x W x C tensor into the Cg x D x H x W*4
// order of a packed image2d array.
func DHWCToPacked(src []float32, d, h, w, c int) ([]float32, error) {
	if c%lane != 0 {
		return nil, fmt.Errorf("%w: C=%d", ErrInvalidChannelGrouping, c)
	}
	if len(src) != d*h*w*c {
		return nil, fmt.Errorf("layout: DHWC %dx%dx%dx%d does not match %d values", d, h, w, c, len(src))
	}
	dst := make([]float32, len(src))
	for cg := range c / lane {
		for z := range d {
			for y := range h {
				for x := range w {
					di := (((cg*d+z)*h+y)*w + x) * lane
					si := ((z*h+y)*w+x)*c + cg*lane
					copy(dst[di:di+lane], src[si:si+lane])
				}
			}
		}
	}
	return dst, nil
}

// PackedToDHWC is the inverse of DHWCToPacked.
func PackedToDHWC(src []float32, d, h, w, c int) ([]float32, error) {
	if c%lane != 0 {
		return nil, fmt.Errorf("%w: C=%d", ErrInvalidChannelGrouping, c)
	}
	if len(src) != d*h*w*c {
		return nil, fmt.Errorf("layout: packed %dx%dx%dx%d does not match %d values", d, h, w, c, len(src))
	}
	dst := make([]float32, len(src))
	for cg := range c / lane {
		for z := range d {
			for y := range h {
				for x := range w {
					si := (((cg*d+z)*h+y)*w + x) * lane
					di := ((z*h+y)*w+x)*c + cg*lane
					copy(dst[di:di+lane], src[si:si+lane])
				}
			}
		}
	}
	return dst, nil
}

// FilterToPacked converts a Dk x Hk x Wk x Cin x Cout filter into the
// Cgin x Dk x Hk x Wk x Cout*4 order of a packed image2d. Each texel holds four
// consecutive input channels of one output channel.
func FilterToPacked(src []float32, dk, hk, wk, cin, cout int) ([]float32, error) {
	if cin%lane != 0 {
		return nil, fmt.Errorf("%w: Cin=%d", ErrInvalidChannelGrouping, cin)
	}
	k := dk * hk * wk
	if len(src) != k*cin*cout {
		return nil, fmt.Errorf("layout: filter %dx%dx%dx%dx%d does not match %d values", dk, hk, wk, cin, cout, len(src))
	}
	dst := make([]float32, len(src))
	for cg := range cin / lane {
		for kk := range k {
			for co := range cout {
				di := ((cg*k+kk)*cout + co) * lane
				for l := range lane {
					dst[di+l] = src[(kk*cin+cg*lane+l)*cout+co]
				}
			}
		}
	}
	return dst, nil
}

// PackedToFilter is the inverse of FilterToPacked.
func PackedToFilter(src []float32, dk, hk, wk, cin, cout int) ([]float32, error) {
	if cin%lane != 0 {
		return nil, fmt.Errorf("%w: Cin=%d", ErrInvalidChannelGrouping, cin)
	}
	k := dk * hk * wk
	if len(src) != k*cin*cout {
		return nil, fmt.Errorf("layout: packed filter %dx%dx%dx%dx%d does not match %d values", dk, hk, wk, cin, cout, len(src))
	}
	dst := make([]float32, len(src))
	for cg := range cin / lane {
		for kk := range k {
			for co := range cout {
				si := ((cg*k+kk)*cout + co) * lane
				for l := range lane {
					dst[(kk*cin+cg*lane+l)*cout+co] = src[si+l]
				}
			}
		}
	}
	return dst, nil
}

// Float32Bytes encodes values as little-endian float32.
func Float32Bytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// BytesFloat32 decodes little-endian float32 values. Trailing bytes that do
// not form a full value are ignored.
func BytesFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
