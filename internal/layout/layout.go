// Package layout maps logical convolution tensors onto packed image layouts.
//
// Every tensor groups its channel axis into lanes of four. A lane becomes one
// RGBA float32 texel and the lane count is folded into one physical axis:
//
//	input   Cgin  x Din x Hin x Win*4  -> [Win, Hin, Cgin*Din]      2D array
//	filter  Cgin  x Dk x Hk x Wk x Cout*4 -> [Cout, Cgin*Dk*Hk*Wk]  2D
//	bias    Cgout x 4                  -> [Cgout]                   1D
//	output  Cgout x Dout x Hout x Wout*4 -> [Wout, Hout, Cgout*Dout] 2D array
package layout

import (
	"fmt"

	"github.com/samcharles93/convbench/internal/backend"
	"github.com/samcharles93/convbench/pkg/convparams"
)

// ErrInvalidChannelGrouping is returned when a channel count is not a multiple
// of the lane width.
var ErrInvalidChannelGrouping = convparams.ErrInvalidChannelGrouping

type Role int

const (
	RoleInput Role = iota
	RoleFilter
	RoleBias
	RoleOutput
)

// Roles lists every tensor role in kernel argument order.
var Roles = [...]Role{RoleInput, RoleFilter, RoleBias, RoleOutput}

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleFilter:
		return "filter"
	case RoleBias:
		return "bias"
	case RoleOutput:
		return "output"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ImageLayout is the physical description of one packed tensor.
type ImageLayout struct {
	Role Role
	// Dims is 1 (image1d), 2 (image2d) or 3 (image2d array).
	Dims int
	// Shape is [width, height, array size]; unused extents are 1.
	Shape [3]int
	// Pitch is [row pitch, slice pitch] in bytes for a tightly packed host
	// buffer; zero where the dimension does not exist.
	Pitch  [2]int
	Access backend.AccessMode
	Format backend.PixelFormat
	// Fold is the physical axis that carries the channel groups and
	// FoldExtent the non-channel extent multiplied into it.
	Fold       int
	FoldExtent int
	// Logical is the unpacked tensor shape, see LogicalAxes.
	Logical []int
	// Provenance documents how logical axes map onto physical axes.
	Provenance string
}

// rule is the role-specific part of packing: the physical shape before the
// channel groups are folded in, the channel count being grouped and the axis
// receiving the groups.
type rule struct {
	dims     int
	base     [3]int
	channels int
	fold     int
	access   backend.AccessMode
	logical  []int
	mapping  string
	// extents are the non-channel sizes the shape is built from.
	extents []extent
}

type extent struct {
	name string
	n    int
}

func ruleFor(role Role, p convparams.ConvParams) (rule, error) {
	switch role {
	case RoleInput:
		return rule{
			dims: 3, base: [3]int{p.Win, p.Hin, p.Din}, channels: p.Cin, fold: 2,
			access:  backend.ReadOnly,
			logical: []int{p.Din, p.Hin, p.Win, p.Cin},
			mapping: "Cgin x Din x Hin x Win*4cin -> [width=Win, height=Hin, array=Cgin*Din]",
			extents: []extent{{"Din", p.Din}, {"Hin", p.Hin}, {"Win", p.Win}},
		}, nil
	case RoleFilter:
		return rule{
			dims: 2, base: [3]int{p.Cout, p.Dk * p.Hk * p.Wk, 1}, channels: p.Cin, fold: 1,
			access:  backend.ReadOnly,
			logical: []int{p.Dk * p.Hk * p.Wk, p.Cin, p.Cout},
			mapping: "Cgin x Dk x Hk x Wk x Cout*4cin -> [width=Cout, height=Cgin*Dk*Hk*Wk]",
			extents: []extent{{"Dk", p.Dk}, {"Hk", p.Hk}, {"Wk", p.Wk}, {"Cout", p.Cout}},
		}, nil
	case RoleBias:
		return rule{
			dims: 1, base: [3]int{1, 1, 1}, channels: p.Cout, fold: 0,
			access:  backend.ReadOnly,
			logical: []int{p.Cout},
			mapping: "Cgout x 4cout -> [width=Cgout]",
		}, nil
	case RoleOutput:
		return rule{
			dims: 3, base: [3]int{p.Wout, p.Hout, p.Dout}, channels: p.Cout, fold: 2,
			access:  backend.WriteOnly,
			logical: []int{p.Dout, p.Hout, p.Wout, p.Cout},
			mapping: "Cgout x Dout x Hout x Wout*4cout -> [width=Wout, height=Hout, array=Cgout*Dout]",
			extents: []extent{{"Dout", p.Dout}, {"Hout", p.Hout}, {"Wout", p.Wout}},
		}, nil
	default:
		return rule{}, fmt.Errorf("layout: unknown role %v", role)
	}
}

// groups splits a channel count into lanes. Divisibility has already been
// checked by ConvParams.Validate.
func groups(role Role, channels int) (int, error) {
	if channels <= 0 {
		return 0, fmt.Errorf("%w: %s has %d channels", ErrInvalidChannelGrouping, role, channels)
	}
	return channels / convparams.LaneWidth, nil
}

// Pack derives the physical layout of role from p.
func Pack(role Role, p convparams.ConvParams) (ImageLayout, error) {
	if err := p.Validate(); err != nil {
		return ImageLayout{}, err
	}
	r, err := ruleFor(role, p)
	if err != nil {
		return ImageLayout{}, err
	}
	g, err := groups(role, r.channels)
	if err != nil {
		return ImageLayout{}, err
	}
	for _, e := range r.extents {
		if e.n <= 0 {
			return ImageLayout{}, fmt.Errorf("%w: %s image needs %s > 0, got %d", convparams.ErrMalformedInput, role, e.name, e.n)
		}
	}

	shape := r.base
	shape[r.fold] *= g

	format := backend.RGBAFloat32
	var pitch [2]int
	if r.dims >= 2 {
		pitch[0] = shape[0] * format.PixelSize()
	}
	if r.dims == 3 {
		pitch[1] = pitch[0] * shape[1]
	}

	l := ImageLayout{
		Role:       role,
		Dims:       r.dims,
		Shape:      shape,
		Pitch:      pitch,
		Access:     r.access,
		Format:     format,
		Fold:       r.fold,
		FoldExtent: r.base[r.fold],
		Logical:    r.logical,
	}
	l.Provenance = fmt.Sprintf("%s image: %s = %v", role, r.mapping, l.PhysicalShape())
	return l, nil
}

// PackAll packs every role in kernel argument order.
func PackAll(p convparams.ConvParams) ([4]ImageLayout, error) {
	var out [4]ImageLayout
	for i, role := range Roles {
		l, err := Pack(role, p)
		if err != nil {
			return out, err
		}
		out[i] = l
	}
	return out, nil
}

// PhysicalShape returns the shape trimmed to Dims entries.
func (l ImageLayout) PhysicalShape() []int {
	return append([]int(nil), l.Shape[:l.Dims]...)
}

// Elements is the number of texels in the image.
func (l ImageLayout) Elements() int {
	return l.Shape[0] * l.Shape[1] * l.Shape[2]
}

func (l ImageLayout) ByteSize() int {
	return l.Elements() * l.Format.PixelSize()
}

// LogicalAxes names the entries of Logical.
func (l ImageLayout) LogicalAxes() []string {
	switch l.Role {
	case RoleInput, RoleOutput:
		return []string{"D", "H", "W", "C"}
	case RoleFilter:
		return []string{"K", "Cin", "Cout"}
	default:
		return []string{"C"}
	}
}

// Unpack reverses the packing rule from the physical shape alone, recovering
// the logical shape.
func (l ImageLayout) Unpack() ([]int, error) {
	if l.FoldExtent <= 0 || l.Shape[l.Fold]%l.FoldExtent != 0 {
		return nil, fmt.Errorf("layout: %s axis %d extent %d not divisible by %d", l.Role, l.Fold, l.Shape[l.Fold], l.FoldExtent)
	}
	channels := l.Shape[l.Fold] / l.FoldExtent * convparams.LaneWidth
	switch l.Role {
	case RoleInput, RoleOutput:
		return []int{l.FoldExtent, l.Shape[1], l.Shape[0], channels}, nil
	case RoleFilter:
		return []int{l.FoldExtent, channels, l.Shape[0]}, nil
	case RoleBias:
		return []int{channels}, nil
	default:
		return nil, fmt.Errorf("layout: unknown role %v", l.Role)
	}
}

// Desc converts the layout to a backend image description. Pitches are only
// set when the image is initialised from host memory.
func (l ImageLayout) Desc(withHostData bool) backend.ImageDesc {
	d := backend.ImageDesc{
		Dims:      l.Dims,
		Width:     l.Shape[0],
		Height:    l.Shape[1],
		ArraySize: l.Shape[2],
		Access:    l.Access,
		Format:    l.Format,
	}
	if withHostData {
		d.RowPitch = l.Pitch[0]
		d.SlicePitch = l.Pitch[1]
	}
	return d
}
