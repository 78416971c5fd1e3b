package reference

import (
	"fmt"
	"strings"
)

type PaddingMode string

const (
	Valid PaddingMode = "VALID"
	Same  PaddingMode = "SAME"
)

func ParsePaddingMode(s string) (PaddingMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VALID":
		return Valid, nil
	case "SAME":
		return Same, nil
	default:
		return "", fmt.Errorf("unsupported padding mode %q (expected VALID or SAME)", s)
	}
}

// DilatedExtent is the span covered by a kernel of size k with dilation d.
func DilatedExtent(k, d int) int {
	return d*(k-1) + 1
}

// Pad returns the leading padding and the output extent of one axis. SAME
// keeps ceil(in/stride) outputs and puts the odd pad element on the trailing
// side.
func Pad(in, k, stride, dilation int, mode PaddingMode) (pad, out int, err error) {
	if in <= 0 || k <= 0 || stride <= 0 || dilation <= 0 {
		return 0, 0, fmt.Errorf("reference: extents must be positive (in=%d k=%d stride=%d dilation=%d)", in, k, stride, dilation)
	}
	span := DilatedExtent(k, dilation)
	switch mode {
	case Valid:
		if in < span {
			return 0, 0, fmt.Errorf("reference: VALID padding needs in >= %d, got %d", span, in)
		}
		return 0, (in-span)/stride + 1, nil
	case Same:
		out = (in + stride - 1) / stride
		total := max((out-1)*stride+span-in, 0)
		return total / 2, out, nil
	default:
		return 0, 0, fmt.Errorf("reference: unsupported padding mode %q", mode)
	}
}

// OutputExtent applies the convolution size formula with symmetric padding.
func OutputExtent(in, k, pad, stride, dilation int) int {
	return (in+2*pad-DilatedExtent(k, dilation))/stride + 1
}
