package backend

import (
	"fmt"
	"strings"
)

type DeviceType string

const (
	DeviceGPU DeviceType = "GPU"
	DeviceCPU DeviceType = "CPU"
	// DeviceAny selects a GPU when one exists and falls back to a CPU device.
	DeviceAny DeviceType = "auto"
)

// ParseDeviceType accepts gpu, cpu or auto in any case.
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GPU":
		return DeviceGPU, nil
	case "CPU":
		return DeviceCPU, nil
	case "", "AUTO":
		return DeviceAny, nil
	default:
		return "", fmt.Errorf("invalid device type %q: must be GPU, CPU or auto", s)
	}
}

type Platform struct {
	Index   int
	Name    string
	Vendor  string
	Version string
}

type Device struct {
	Index int
	Name  string
	Type  DeviceType
}

type AccessMode int

const (
	ReadOnly AccessMode = iota + 1
	WriteOnly
	ReadWrite
)

func (a AccessMode) String() string {
	switch a {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(a))
	}
}

// PixelFormat describes one texel: a channel count and the byte width of each
// channel.
type PixelFormat struct {
	Channels        int
	BytesPerChannel int
}

// RGBAFloat32 is four float32 channels per texel.
var RGBAFloat32 = PixelFormat{Channels: 4, BytesPerChannel: 4}

func (f PixelFormat) PixelSize() int { return f.Channels * f.BytesPerChannel }

func (f PixelFormat) String() string {
	if f == RGBAFloat32 {
		return "RGBA/FLOAT"
	}
	return fmt.Sprintf("%dx%dB", f.Channels, f.BytesPerChannel)
}

// ImageDesc is the physical description of an image memory object. Dims is 1
// for a 1D image, 2 for a 2D image and 3 for a 2D image array; unused extents
// are 1.
type ImageDesc struct {
	Dims       int
	Width      int
	Height     int
	ArraySize  int
	RowPitch   int
	SlicePitch int
	Access     AccessMode
	Format     PixelFormat
}

func (d ImageDesc) Texels() int {
	return d.Width * max(d.Height, 1) * max(d.ArraySize, 1)
}

func (d ImageDesc) ByteSize() int {
	return d.Texels() * d.Format.PixelSize()
}

func (d ImageDesc) Validate() error {
	if d.Dims < 1 || d.Dims > 3 {
		return fmt.Errorf("image dims must be 1..3, got %d", d.Dims)
	}
	if d.Width <= 0 || d.Height <= 0 || d.ArraySize <= 0 {
		return fmt.Errorf("image extents must be positive, got %dx%dx%d", d.Width, d.Height, d.ArraySize)
	}
	if d.Format.PixelSize() <= 0 {
		return fmt.Errorf("invalid pixel format %s", d.Format)
	}
	if d.RowPitch != 0 && d.RowPitch < d.Width*d.Format.PixelSize() {
		return fmt.Errorf("row pitch %d smaller than row size %d", d.RowPitch, d.Width*d.Format.PixelSize())
	}
	return nil
}
