//go:build !cgo || noaudio

// ABOUTME: miniaudio stub for builds without cgo or with the noaudio tag
// ABOUTME: Enumerates nothing so the manager falls back to other device types
package malgo

import (
	"github.com/Sendspin/audioio/pkg/device"
	"github.com/rs/zerolog"
)

// Driver is a placeholder that never finds hardware.
type Driver struct {
	mode Mode
}

// NewDriver returns the stub driver
func NewDriver(mode Mode, _ zerolog.Logger) *Driver {
	return &Driver{mode: mode}
}

func (d *Driver) Name() string                      { return d.mode.TypeName() }
func (d *Driver) HasSeparateInputsAndOutputs() bool { return true }
func (d *Driver) Close() error                      { return nil }

func (d *Driver) Enumerate() ([]device.Descriptor, []device.Descriptor, error) {
	return nil, nil, &device.BackendAbsentError{Direction: "input and output", Err: device.ErrBackendUnavailable}
}

func (d *Driver) OpenStream(device.StreamRequest, device.StreamProc) (device.Stream, error) {
	return nil, device.ErrBackendUnavailable
}
