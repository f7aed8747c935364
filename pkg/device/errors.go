// ABOUTME: Error taxonomy for device configuration and lifecycle failures
// ABOUTME: Typed errors matched with errors.As plus sentinel values for errors.Is
package device

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDevice is returned by CreateDevice for a name the type does not list
	ErrUnknownDevice = errors.New("unknown device")

	// ErrNotOpen is returned by operations that need an open device
	ErrNotOpen = errors.New("device not open")

	// ErrDeviceBusy reports that the endpoint is already held, by this process or
	// by another application in exclusive mode
	ErrDeviceBusy = errors.New("device busy")

	// ErrBackendUnavailable is returned by drivers compiled without their native library
	ErrBackendUnavailable = errors.New("audio backend unavailable")
)

// ConfigurationError reports a requested value the device does not support.
// The manager recovers from it by negotiating the nearest supported value.
type ConfigurationError struct {
	Device    string
	Param     string
	Requested any
	Supported any
}

func (e *ConfigurationError) Error() string {
	if e.Supported != nil {
		return fmt.Sprintf("%s: unsupported %s %v (supported: %v)", e.Device, e.Param, e.Requested, e.Supported)
	}
	return fmt.Sprintf("%s: unsupported %s %v", e.Device, e.Param, e.Requested)
}

// DeviceUnavailableError reports that a device could not be opened. No partial
// open state is retained when it is returned.
type DeviceUnavailableError struct {
	Device string
	Err    error
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("%s: device unavailable: %v", e.Device, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error { return e.Err }

// DeviceLostError reports a device that disappeared or failed mid-session.
type DeviceLostError struct {
	Device string
	Err    error
}

func (e *DeviceLostError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: device lost", e.Device)
	}
	return fmt.Sprintf("%s: device lost: %v", e.Device, e.Err)
}

func (e *DeviceLostError) Unwrap() error { return e.Err }

// BackendAbsentError reports that no device type can serve a direction on the
// running platform. It disables that direction for the session.
type BackendAbsentError struct {
	Direction string
	Err       error
}

func (e *BackendAbsentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no audio backend available for %s", e.Direction)
	}
	return fmt.Sprintf("no audio backend available for %s: %v", e.Direction, e.Err)
}

func (e *BackendAbsentError) Unwrap() error { return e.Err }
