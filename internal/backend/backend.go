// Package backend defines the accelerator runtime contract the driver consumes:
// platform and device discovery, a device session with a profiling queue,
// program compilation, image allocation, kernel argument binding, dispatch and
// readback.
package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const (
	Host   = "host"
	OpenCL = "opencl"
	Auto   = "auto"
)

// Backend enumerates devices and opens sessions on them.
type Backend interface {
	Name() string
	Platforms() ([]Platform, error)
	Devices(p Platform, t DeviceType) ([]Device, error)
	// Open creates an execution context bound to d and a command queue with
	// profiling enabled.
	Open(p Platform, d Device) (Session, error)
}

// Session is a context plus command queue bound to a single device.
type Session interface {
	Device() Device
	// BuildProgram compiles source with the given build options. On failure
	// the returned error carries the compiler log.
	BuildProgram(ctx context.Context, source, options string) (Program, error)
	// CreateImage allocates an image. A non-nil host slice is copied into the
	// image at creation time and is not retained.
	CreateImage(desc ImageDesc, host []byte) (Image, error)
	// Enqueue submits k over the global/local partition and blocks until it
	// has completed.
	Enqueue(ctx context.Context, k Kernel, global, local [3]int) (Event, error)
	// Map exposes the contents of img as host bytes until Unmap is called.
	Map(ctx context.Context, img Image) (Mapping, error)
	Close() error
}

type Program interface {
	Kernel(name string) (Kernel, error)
	Release() error
}

// Kernel is an executable kernel object. Arguments are bound by index; value
// is either an Image or a fixed-width scalar.
type Kernel interface {
	Name() string
	SetArg(index int, value any) error
	Release() error
}

type Image interface {
	Desc() ImageDesc
	Release() error
}

type Mapping interface {
	Bytes() []byte
	Unmap() error
}

// Event carries device profiling timestamps in nanoseconds.
type Event struct {
	Start uint64
	End   uint64
}

// ElapsedMicros rounds the device execution time to microseconds.
func (e Event) ElapsedMicros() uint64 {
	if e.End < e.Start {
		return 0
	}
	return (e.End - e.Start + 500) / 1000
}

type Factory func() (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend implementation available to New.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case Host, OpenCL, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, host, or opencl)", backend)
	}
}

// New constructs the named backend. Auto prefers OpenCL and falls back to the
// host emulator.
func New(name string) (Backend, error) {
	name, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	if name == Auto {
		if Has(OpenCL) {
			name = OpenCL
		} else {
			name = Host
		}
	}
	if !Has(name) {
		return nil, &Error{Op: "open backend", Err: fmt.Errorf("%s backend is not available in this build", name)}
	}

	registryMu.RLock()
	f := registry[name]
	registryMu.RUnlock()
	b, err := f()
	if err != nil {
		return nil, &Error{Op: "open backend " + name, Err: err}
	}
	return b, nil
}
