// Package kernelargs binds conv3d kernel arguments in the order the kernel
// declares them. The kernel is compiled separately, so order and width cannot
// be checked here: a mismatch shows up as wrong output, not as an error.
//
// Kernel signature:
//
//	0 input   image2d_array_t (read-only)
//	1 filter  image2d_t       (read-only)
//	2 bias    image1d_t       (read-only)
//	3 output  image2d_array_t (write-only)
//	4..21     int Din, Cgin, Wout, Hout, Dout, Cgout, Wk, Hk, Dk,
//	              Sx, Sy, Sz, Px, Py, Pz, Lx, Ly, Lz
package kernelargs

import (
	"fmt"

	"github.com/samcharles93/convbench/internal/backend"
	"github.com/samcharles93/convbench/pkg/convparams"
)

// FirstScalarIndex is the argument index of Din.
const FirstScalarIndex = 4

// Handles are the four image arguments.
type Handles struct {
	Input  backend.Image
	Filter backend.Image
	Bias   backend.Image
	Output backend.Image
}

// Scalars are the int arguments. Each is an int32 to match the kernel's
// 32-bit signed int parameters.
type Scalars struct {
	Din, Cgin               int32
	Wout, Hout, Dout, Cgout int32
	Wk, Hk, Dk              int32
	Sx, Sy, Sz              int32
	Px, Py, Pz              int32
	Lx, Ly, Lz              int32
}

// Arg is one bound argument.
type Arg struct {
	Index int
	Name  string
	Value any
}

// FromParams derives the scalar arguments from decoded parameters.
func FromParams(p convparams.ConvParams) (Scalars, error) {
	if err := p.Validate(); err != nil {
		return Scalars{}, err
	}
	return Scalars{
		Din: int32(p.Din), Cgin: int32(p.Cgin()),
		Wout: int32(p.Wout), Hout: int32(p.Hout), Dout: int32(p.Dout), Cgout: int32(p.Cgout()),
		Wk: int32(p.Wk), Hk: int32(p.Hk), Dk: int32(p.Dk),
		Sx: int32(p.Sx), Sy: int32(p.Sy), Sz: int32(p.Sz),
		Px: int32(p.Px), Py: int32(p.Py), Pz: int32(p.Pz),
		Lx: int32(p.Lx), Ly: int32(p.Ly), Lz: int32(p.Lz),
	}, nil
}

// Args returns every argument with its index, handles first.
func Args(h Handles, s Scalars) []Arg {
	named := []struct {
		name  string
		value any
	}{
		{"input", h.Input},
		{"filter", h.Filter},
		{"bias", h.Bias},
		{"output", h.Output},
		{"Din", s.Din},
		{"Cgin", s.Cgin},
		{"Wout", s.Wout},
		{"Hout", s.Hout},
		{"Dout", s.Dout},
		{"Cgout", s.Cgout},
		{"Wk", s.Wk},
		{"Hk", s.Hk},
		{"Dk", s.Dk},
		{"Sx", s.Sx},
		{"Sy", s.Sy},
		{"Sz", s.Sz},
		{"Px", s.Px},
		{"Py", s.Py},
		{"Pz", s.Pz},
		{"Lx", s.Lx},
		{"Ly", s.Ly},
		{"Lz", s.Lz},
	}
	out := make([]Arg, len(named))
	for i, a := range named {
		out[i] = Arg{Index: i, Name: a.name, Value: a.value}
	}
	return out
}

// Values returns the scalar arguments in binding order.
func (s Scalars) Values() []int32 {
	args := Args(Handles{}, s)[FirstScalarIndex:]
	out := make([]int32, len(args))
	for i, a := range args {
		out[i] = a.Value.(int32)
	}
	return out
}

func (s Scalars) String() string {
	return fmt.Sprint(s.Values())
}

// Bind sets every argument on k. It stops at the first index the backend
// rejects.
func Bind(k backend.Kernel, h Handles, s Scalars) error {
	for _, a := range Args(h, s) {
		if err := k.SetArg(a.Index, a.Value); err != nil {
			return &BindError{Index: a.Index, Name: a.Name, Err: err}
		}
	}
	return nil
}
