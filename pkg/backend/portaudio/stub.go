//go:build !portaudio

// ABOUTME: PortAudio stub when the library is not linked
// ABOUTME: Initialize fails and no device types are produced
package portaudio

import (
	"fmt"

	"github.com/Sendspin/audioio/pkg/device"
	"github.com/rs/zerolog"
)

// Driver is never instantiated without the portaudio tag
type Driver struct{}

// Initialize reports that PortAudio support was not compiled in
func Initialize() error {
	return fmt.Errorf("PortAudio support not enabled (build with -tags portaudio): %w", device.ErrBackendUnavailable)
}

// Terminate does nothing
func Terminate() {}

// NewDrivers returns no drivers
func NewDrivers(zerolog.Logger) []*Driver { return nil }

func (d *Driver) Name() string                      { return "PortAudio" }
func (d *Driver) HasSeparateInputsAndOutputs() bool { return true }

func (d *Driver) Enumerate() ([]device.Descriptor, []device.Descriptor, error) {
	return nil, nil, device.ErrBackendUnavailable
}

func (d *Driver) OpenStream(device.StreamRequest, device.StreamProc) (device.Stream, error) {
	return nil, device.ErrBackendUnavailable
}
