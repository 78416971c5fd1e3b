// Package validate compares a kernel's raw output against a ground-truth
// buffer under an absolute tolerance.
package validate

import (
	"encoding/binary"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
)

type ElementType string

const (
	Float32 ElementType = "float"
	Float64 ElementType = "double"
)

func ParseElementType(s string) (ElementType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float", "float32", "f32":
		return Float32, nil
	case "double", "float64", "f64":
		return Float64, nil
	default:
		return "", fmt.Errorf("unsupported element type %q", s)
	}
}

func (t ElementType) Size() int {
	switch t {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// Tolerances are the named absolute thresholds used by the conv3d kernels.
var Tolerances = map[string]float64{
	"default": 5e-3,
	"strict":  1e-3,
}

// ParseTolerance accepts a tolerance name or a positive number.
func ParseTolerance(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if tol, ok := Tolerances[strings.ToLower(s)]; ok {
		return tol, nil
	}
	tol, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid tolerance %q", s)
	}
	if !(tol > 0) {
		return 0, fmt.Errorf("tolerance must be positive, got %v", tol)
	}
	return tol, nil
}

// Element is the comparison of one value pair.
type Element struct {
	Index    int
	Pass     bool
	Observed float64
	Expected float64
	Diff     float64
}

func (e Element) String() string {
	verdict := "wrong"
	if e.Pass {
		verdict = "correct"
	}
	return fmt.Sprintf("[ %s, %g, %g, %g ]", verdict, e.Observed, e.Expected, e.Diff)
}

// Report is the outcome of one validation.
type Report struct {
	Type      ElementType
	Tolerance float64
	Count     int
	Passed    int
	// MaxDiff is the largest finite difference. Elements whose difference
	// is NaN or infinite are counted in NonFinite instead.
	MaxDiff   float64
	NonFinite int

	result []byte
	truth  []byte
}

// Pass reports whether every element is within tolerance.
func (r *Report) Pass() bool {
	return r.Passed == r.Count
}

func (r *Report) Failed() int {
	return r.Count - r.Passed
}

// Validate compares result with truth element by element. The buffers are
// retained by the report for Details and must not be modified afterwards.
func Validate(result, truth []byte, t ElementType, tolerance float64) (*Report, error) {
	if len(result) != len(truth) {
		return nil, fmt.Errorf("%w: result has %d bytes, ground truth %d", ErrSizeMismatch, len(result), len(truth))
	}
	size := t.Size()
	if size == 0 {
		return nil, fmt.Errorf("validate: unsupported element type %q", t)
	}
	if len(result)%size != 0 {
		return nil, fmt.Errorf("validate: %d bytes is not a whole number of %s values", len(result), t)
	}
	if !(tolerance > 0) {
		return nil, fmt.Errorf("validate: tolerance must be positive, got %v", tolerance)
	}

	r := &Report{
		Type:      t,
		Tolerance: tolerance,
		Count:     len(result) / size,
		result:    result,
		truth:     truth,
	}
	for e := range r.Details() {
		if e.Pass {
			r.Passed++
		}
		switch {
		case math.IsNaN(e.Diff) || math.IsInf(e.Diff, 0):
			r.NonFinite++
		case e.Diff > r.MaxDiff:
			r.MaxDiff = e.Diff
		}
	}
	return r, nil
}

// Details yields every element in order. The sequence is computed on demand
// and may be iterated any number of times.
func (r *Report) Details() iter.Seq[Element] {
	return func(yield func(Element) bool) {
		for i := range r.Count {
			if !yield(r.element(i)) {
				return
			}
		}
	}
}

// Failures yields only the elements outside tolerance.
func (r *Report) Failures() iter.Seq[Element] {
	return func(yield func(Element) bool) {
		for e := range r.Details() {
			if !e.Pass && !yield(e) {
				return
			}
		}
	}
}

// element compares in the precision of the stored values: float pairs are
// subtracted and checked against the tolerance rounded to float32.
func (r *Report) element(i int) Element {
	observed := r.value(r.result, i)
	expected := r.value(r.truth, i)
	var diff float64
	var pass bool
	if r.Type == Float32 {
		d := float32(math.Abs(float64(float32(observed) - float32(expected))))
		diff, pass = float64(d), d < float32(r.Tolerance)
	} else {
		diff = math.Abs(observed - expected)
		pass = diff < r.Tolerance
	}
	return Element{
		Index:    i,
		Pass:     pass,
		Observed: observed,
		Expected: expected,
		Diff:     diff,
	}
}

func (r *Report) value(buf []byte, i int) float64 {
	switch r.Type {
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	default:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
	}
}

func (r *Report) String() string {
	verdict := "No !"
	if r.Pass() {
		verdict = "Yes !"
	}
	msg := fmt.Sprintf("result == ground truth: %s (%d/%d within %g, max diff %g", verdict, r.Passed, r.Count, r.Tolerance, r.MaxDiff)
	if r.NonFinite > 0 {
		msg += fmt.Sprintf(", %d non-finite", r.NonFinite)
	}
	return msg + ")"
}
