// Package dispatch plans the global/local work partition of a tiled conv3d
// dispatch and the compiler defines that carry the tiling constants.
package dispatch

import (
	"fmt"
	"strings"
)

// NDRange is an [X, Y, Z] work size.
type NDRange [3]int

func (r NDRange) String() string {
	return fmt.Sprintf("[ %d, %d, %d ]", r[0], r[1], r[2])
}

// DefaultLocal is the work-group shape the conv3d kernels are tuned for.
var DefaultLocal = NDRange{32, 4, 4}

// Strategy selects how the output volume is spread over the global range.
// There is no default: the zero value is rejected by Plan.
type Strategy int

const (
	// ChannelMajor flattens Dout x Cgout onto X in tiles of N and tiles Hout
	// and Wout by M on Y and Z.
	ChannelMajor Strategy = iota + 1
	// SpatialMajor aligns Wout, Hout and Dout directly onto X, Y and Z.
	SpatialMajor
)

func (s Strategy) String() string {
	switch s {
	case ChannelMajor:
		return "channel-major"
	case SpatialMajor:
		return "spatial-major"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "channel-major", "channel", "a":
		return ChannelMajor, nil
	case "spatial-major", "spatial", "b":
		return SpatialMajor, nil
	case "":
		return 0, fmt.Errorf("dispatch strategy is required (channel-major or spatial-major)")
	default:
		return 0, fmt.Errorf("unknown dispatch strategy %q (expected channel-major or spatial-major)", name)
	}
}

// Request is the input to Plan. Cgout is the output channel group count.
type Request struct {
	Wout, Hout, Dout, Cgout int
	TileM, TileN            int
	Local                   NDRange
	Strategy                Strategy
	// FastMath adds -cl-fast-relaxed-math to the build options.
	FastMath bool
}

// Plan is a dispatch partition ready to hand to the backend.
type Plan struct {
	Strategy     Strategy
	TileM, TileN int
	Local        NDRange
	Global       NDRange
	// AlignedDout is Dout rounded up to a multiple of TileN.
	AlignedDout  int
	BuildOptions string
}

// Align rounds value up to the next multiple of base.
func Align(value, base int) int {
	return (value + base - 1) / base * base
}

// New computes the dispatch plan for req.
func New(req Request) (Plan, error) {
	if err := req.validate(); err != nil {
		return Plan{}, err
	}

	var global NDRange
	switch req.Strategy {
	case ChannelMajor:
		global = channelMajor(req)
	case SpatialMajor:
		global = spatialMajor(req)
	}

	p := Plan{
		Strategy:    req.Strategy,
		TileM:       req.TileM,
		TileN:       req.TileN,
		Local:       req.Local,
		Global:      global,
		AlignedDout: Align(req.Dout, req.TileN),
	}
	if err := p.Check(); err != nil {
		return Plan{}, err
	}
	p.BuildOptions = buildOptions(p, req.FastMath)
	return p, nil
}

func (r Request) validate() error {
	if r.Strategy != ChannelMajor && r.Strategy != SpatialMajor {
		return fmt.Errorf("dispatch: unsupported strategy %v", r.Strategy)
	}
	if r.TileM <= 0 || r.TileN <= 0 {
		return fmt.Errorf("dispatch: tile factors must be positive, got M=%d N=%d", r.TileM, r.TileN)
	}
	for i, l := range r.Local {
		if l <= 0 {
			return fmt.Errorf("dispatch: local size axis %d must be positive, got %d", i, l)
		}
	}
	if r.Wout < 0 || r.Hout < 0 || r.Dout < 0 || r.Cgout < 0 {
		return fmt.Errorf("dispatch: output extents must not be negative")
	}
	return nil
}

// channelMajor bounds X by the smaller of two covers of the Dout x Cgout
// extent so that small depths or channel counts do not over-allocate.
func channelMajor(r Request) NDRange {
	lx, ly, lz := r.Local[0], r.Local[1], r.Local[2]
	flat := Align(Align(r.Dout*r.Cgout, r.TileN)/r.TileN, lx)
	perDepth := Align(r.Dout, r.TileN) / r.TileN * Align(r.Cgout, lx)
	return NDRange{
		min(flat, perDepth),
		Align(Align(r.Hout, r.TileM)/r.TileM, ly),
		Align(Align(r.Wout, r.TileM)/r.TileM, lz),
	}
}

func spatialMajor(r Request) NDRange {
	return NDRange{
		Align(r.Wout, r.Local[0]),
		Align(r.Hout, r.Local[1]),
		Align(r.Dout, r.Local[2]),
	}
}

// Check enforces the dispatch contract: every global axis is a non-negative
// multiple of the local axis.
func (p Plan) Check() error {
	for i := range p.Global {
		if p.Local[i] <= 0 || p.Global[i] < 0 || p.Global[i]%p.Local[i] != 0 {
			return fmt.Errorf("dispatch: global size %v is not a multiple of local size %v on axis %d", p.Global, p.Local, i)
		}
	}
	return nil
}

// WorkItems is the total number of invocations.
func (p Plan) WorkItems() int {
	return p.Global[0] * p.Global[1] * p.Global[2]
}

// buildOptions encodes the tile constants for the kernel compiler. The
// work-group defines name the kernel's own axes, which run opposite to the
// NDRange: WGX is the Z local size and WGZ the X local size. STRATEGY carries
// the numeric Strategy so the kernel and backend know the work-item mapping.
func buildOptions(p Plan, fastMath bool) string {
	opts := make([]string, 0, 10)
	if fastMath {
		opts = append(opts, "-cl-fast-relaxed-math")
	}
	opts = append(opts,
		fmt.Sprintf("-DMW=%d", p.TileM),
		fmt.Sprintf("-DMH=%d", p.TileM),
		fmt.Sprintf("-DMD=%d", p.TileN),
		fmt.Sprintf("-DMDC=%d", p.TileN),
		fmt.Sprintf("-DDOUT=%d", p.AlignedDout),
		fmt.Sprintf("-DWGX=%d", p.Local[2]),
		fmt.Sprintf("-DWGY=%d", p.Local[1]),
		fmt.Sprintf("-DWGZ=%d", p.Local[0]),
		fmt.Sprintf("-DSTRATEGY=%d", int(p.Strategy)),
	)
	return strings.Join(opts, " ")
}

func (p Plan) String() string {
	return fmt.Sprintf("%s global=%s local=%s M=%d N=%d", p.Strategy, p.Global, p.Local, p.TileM, p.TileN)
}
