package host

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/convbench/internal/backend"
	"github.com/samcharles93/convbench/internal/layout"
	"github.com/samcharles93/convbench/internal/reference"
	"github.com/samcharles93/convbench/pkg/convparams"
)

const (
	imageArgs  = 4
	scalarArgs = 18
	argCount   = imageArgs + scalarArgs
)

// imageDims is the image dimensionality each image argument is declared with.
var imageDims = [imageArgs]int{3, 2, 1, 3}

type kernel struct {
	name    string
	program *program
	session *Session

	mu    sync.Mutex
	args  [argCount]any
	bound [argCount]bool
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) Release() error { return nil }

// SetArg checks value against the declared type at index: images for 0..3 and
// 32-bit ints after that.
func (k *kernel) SetArg(index int, value any) error {
	if index < 0 || index >= argCount {
		return fmt.Errorf("argument index %d out of range [0,%d)", index, argCount)
	}
	if index < imageArgs {
		img, ok := value.(backend.Image)
		if !ok || img == nil {
			return fmt.Errorf("argument %d is an image, got %T", index, value)
		}
		im, err := k.session.own(img)
		if err != nil {
			return fmt.Errorf("argument %d: %w", index, err)
		}
		if im.desc.Dims != imageDims[index] {
			return fmt.Errorf("argument %d is a %dD image, got %dD", index, imageDims[index], im.desc.Dims)
		}
		if index == imageArgs-1 && im.desc.Access == backend.ReadOnly {
			return fmt.Errorf("argument %d is written by the kernel, got a %s image", index, im.desc.Access)
		}
		value = im
	} else if _, ok := value.(int32); !ok {
		return fmt.Errorf("argument %d is an int, got %T", index, value)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.args[index] = value
	k.bound[index] = true
	return nil
}

// call is a snapshot of the bound arguments for one execution.
type call struct {
	input, filter, bias, output *image
	scalars                     [scalarArgs]int
	dout                        int
	hin, win                    int
}

func (k *kernel) call() (*call, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, ok := range k.bound {
		if !ok {
			return nil, fmt.Errorf("kernel %s: argument %d is not set", k.name, i)
		}
	}
	c := &call{
		input:  k.args[0].(*image),
		filter: k.args[1].(*image),
		bias:   k.args[2].(*image),
		output: k.args[3].(*image),
	}
	for i := range scalarArgs {
		c.scalars[i] = int(k.args[imageArgs+i].(int32))
	}
	for _, im := range []*image{c.input, c.filter, c.bias, c.output} {
		if im.data == nil {
			return nil, fmt.Errorf("kernel %s: bound image has been released", k.name)
		}
	}
	c.hin, c.win = c.input.desc.Height, c.input.desc.Width
	c.dout = c.scalars[4]
	aligned, ok, err := k.program.options.Int("DOUT")
	if err != nil {
		return nil, err
	}
	if ok && aligned < c.dout {
		return nil, fmt.Errorf("program built with DOUT=%d below output depth %d", aligned, c.dout)
	}
	return c, nil
}

// params rebuilds the logical convolution from the scalar arguments and the
// input image extents. The scalars arrive as Din, Cgin, Wout, Hout, Dout,
// Cgout, Wk, Hk, Dk, Sx, Sy, Sz, Px, Py, Pz, Lx, Ly, Lz.
func (c *call) params() convparams.ConvParams {
	s := c.scalars
	return convparams.ConvParams{
		Din: s[0], Hin: c.hin, Win: c.win, Cin: s[1] * convparams.LaneWidth,
		Wout: s[2], Hout: s[3], Dout: s[4], Cout: s[5] * convparams.LaneWidth,
		Wk: s[6], Hk: s[7], Dk: s[8],
		Sx: s[9], Sy: s[10], Sz: s[11],
		Px: s[12], Py: s[13], Pz: s[14],
		Lx: s[15], Ly: s[16], Lz: s[17],
	}
}

// checkShapes compares every image against the layout the scalars imply.
func (c *call) checkShapes(p convparams.ConvParams) error {
	layouts, err := layout.PackAll(p)
	if err != nil {
		return err
	}
	images := [...]*image{c.input, c.filter, c.bias, c.output}
	for i, want := range layouts {
		got := images[i].desc
		if shape := [3]int{got.Width, got.Height, got.ArraySize}; shape != want.Shape {
			return fmt.Errorf("%s image is %v, arguments describe %v", want.Role, shape, want.Shape)
		}
	}
	return nil
}

func (c *call) run(ctx context.Context, workers int) error {
	p := c.params()
	if err := p.Validate(); err != nil {
		return err
	}
	if err := c.checkShapes(p); err != nil {
		return err
	}

	input, err := layout.PackedToDHWC(layout.BytesFloat32(c.input.data), p.Din, p.Hin, p.Win, p.Cin)
	if err != nil {
		return err
	}
	filter, err := layout.PackedToFilter(layout.BytesFloat32(c.filter.data), p.Dk, p.Hk, p.Wk, p.Cin, p.Cout)
	if err != nil {
		return err
	}
	conv := reference.Conv3D{
		Params: p,
		Input:  input,
		Filter: filter,
		Bias:   layout.BytesFloat32(c.bias.data),
	}
	if err := conv.Validate(); err != nil {
		return err
	}

	out := make([]float32, conv.OutputLen())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for z := range p.Dout {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			conv.Plane(z, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	packed, err := layout.DHWCToPacked(out, p.Dout, p.Hout, p.Wout, p.Cout)
	if err != nil {
		return err
	}
	copy(c.output.data, layout.Float32Bytes(packed))
	return nil
}
