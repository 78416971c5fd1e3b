// Package host is an accelerator backend that runs entirely in host memory.
// Images are byte slices of RGBA float32 texels and every program entry point
// executes the reference 3D convolution, so a run against this backend checks
// layouts, argument order and dispatch geometry without a device runtime.
// Geometry checks cover divisibility, the baked-in work-group size and, when
// the program defines STRATEGY, that the global range reaches every output.
package host

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/samcharles93/convbench/internal/backend"
)

const (
	PlatformName = "Host Reference Platform"
	Vendor       = "convbench"
)

func init() {
	backend.Register(backend.Host, func() (backend.Backend, error) { return New(), nil })
}

// Backend exposes a single platform with one CPU device.
type Backend struct {
	workers int
}

// New returns a host backend that runs up to GOMAXPROCS work-groups at once.
func New() *Backend {
	return &Backend{workers: runtime.GOMAXPROCS(0)}
}

func (b *Backend) Name() string { return backend.Host }

func (b *Backend) Platforms() ([]backend.Platform, error) {
	return []backend.Platform{{Index: 0, Name: PlatformName, Vendor: Vendor, Version: "1.0"}}, nil
}

func (b *Backend) Devices(p backend.Platform, t backend.DeviceType) ([]backend.Device, error) {
	if p.Name != PlatformName {
		return nil, fmt.Errorf("unknown platform %q", p.Name)
	}
	switch t {
	case backend.DeviceCPU, backend.DeviceAny:
		return []backend.Device{{Index: 0, Name: fmt.Sprintf("host cpu (%d workers)", b.workers), Type: backend.DeviceCPU}}, nil
	default:
		return nil, nil
	}
}

func (b *Backend) Open(p backend.Platform, d backend.Device) (backend.Session, error) {
	devices, err := b.Devices(p, backend.DeviceAny)
	if err != nil {
		return nil, err
	}
	if d.Index < 0 || d.Index >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range", d.Index)
	}
	return &Session{device: devices[d.Index], workers: b.workers}, nil
}

// Session is a host context and an in-order, profiling queue.
type Session struct {
	device  backend.Device
	workers int

	mu     sync.Mutex
	closed bool
	images []*image
}

var errClosed = errors.New("session is closed")

func (s *Session) Device() backend.Device { return s.device }

func (s *Session) CreateImage(desc backend.ImageDesc, host []byte) (backend.Image, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.Format != backend.RGBAFloat32 {
		return nil, fmt.Errorf("unsupported pixel format %s", desc.Format)
	}
	if host != nil {
		if err := checkPitch(desc); err != nil {
			return nil, err
		}
		if len(host) != desc.ByteSize() {
			return nil, fmt.Errorf("host buffer holds %d bytes, image needs %d", len(host), desc.ByteSize())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	img := &image{desc: desc, data: make([]byte, desc.ByteSize()), owner: s}
	copy(img.data, host)
	s.images = append(s.images, img)
	return img, nil
}

func checkPitch(desc backend.ImageDesc) error {
	row := desc.Width * desc.Format.PixelSize()
	if desc.RowPitch != 0 && desc.RowPitch != row {
		return fmt.Errorf("row pitch %d: host images must be tightly packed (%d)", desc.RowPitch, row)
	}
	if slice := row * desc.Height; desc.SlicePitch != 0 && desc.SlicePitch != slice {
		return fmt.Errorf("slice pitch %d: host images must be tightly packed (%d)", desc.SlicePitch, slice)
	}
	return nil
}

func (s *Session) Map(ctx context.Context, img backend.Image) (backend.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	im, err := s.own(img)
	if err != nil {
		return nil, err
	}
	return &mapping{img: im}, nil
}

func (s *Session) Enqueue(ctx context.Context, k backend.Kernel, global, local [3]int) (backend.Event, error) {
	hk, ok := k.(*kernel)
	if !ok || hk.session != s {
		return backend.Event{}, fmt.Errorf("kernel %T was not created by this session", k)
	}
	if err := checkRange(global, local); err != nil {
		return backend.Event{}, err
	}
	if err := hk.program.checkLocal(local); err != nil {
		return backend.Event{}, err
	}
	call, err := hk.call()
	if err != nil {
		return backend.Event{}, err
	}
	if err := hk.program.checkCoverage(global, call.params()); err != nil {
		return backend.Event{}, err
	}

	start := uint64(time.Now().UnixNano())
	if err := call.run(ctx, s.workers); err != nil {
		return backend.Event{}, err
	}
	end := uint64(time.Now().UnixNano())
	return backend.Event{Start: start, End: end}, nil
}

func checkRange(global, local [3]int) error {
	for i := range 3 {
		if global[i] <= 0 || local[i] <= 0 {
			return fmt.Errorf("work sizes must be positive, got global %v local %v", global, local)
		}
		if global[i]%local[i] != 0 {
			return fmt.Errorf("global size %d on axis %d is not a multiple of local size %d", global[i], i, local[i])
		}
	}
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, img := range s.images {
		img.data = nil
	}
	s.images = nil
	return nil
}

// own checks that img is a live image of this session.
func (s *Session) own(img backend.Image) (*image, error) {
	im, ok := img.(*image)
	if !ok || im == nil || im.owner != s {
		return nil, fmt.Errorf("image %T was not created by this session", img)
	}
	if im.data == nil {
		return nil, errors.New("image has been released")
	}
	return im, nil
}

type image struct {
	desc  backend.ImageDesc
	data  []byte
	owner *Session
}

func (i *image) Desc() backend.ImageDesc { return i.desc }

func (i *image) Release() error {
	i.data = nil
	return nil
}

type mapping struct {
	img      *image
	unmapped bool
}

func (m *mapping) Bytes() []byte {
	if m.unmapped {
		return nil
	}
	return m.img.data
}

func (m *mapping) Unmap() error {
	if m.unmapped {
		return errors.New("mapping already unmapped")
	}
	m.unmapped = true
	return nil
}
