package backend

import (
	"errors"
	"fmt"
	"strings"
)

// SelectPlatform returns the first platform whose name contains vendor. An
// empty vendor selects the first platform.
func SelectPlatform(b Backend, vendor string) (Platform, error) {
	platforms, err := b.Platforms()
	if err != nil {
		return Platform{}, Failure("enumerate platforms", err)
	}
	if len(platforms) == 0 {
		return Platform{}, Failure("enumerate platforms", errors.New("no platforms available"))
	}
	for _, p := range platforms {
		if vendor == "" || strings.Contains(p.Name, vendor) || strings.Contains(p.Vendor, vendor) {
			return p, nil
		}
	}
	return Platform{}, Failure("select platform", fmt.Errorf("no %s platform available", vendor))
}

// SelectDevice returns the first device of type t on p. DeviceAny tries GPU
// devices before CPU devices.
func SelectDevice(b Backend, p Platform, t DeviceType) (Device, error) {
	order := []DeviceType{t}
	if t == DeviceAny {
		order = []DeviceType{DeviceGPU, DeviceCPU}
	}
	for _, want := range order {
		devices, err := b.Devices(p, want)
		if err != nil {
			return Device{}, Failure("enumerate devices", err)
		}
		if len(devices) > 0 {
			return devices[0], nil
		}
	}
	return Device{}, Failure("select device", fmt.Errorf("no %s devices under platform %q", t, p.Name))
}
