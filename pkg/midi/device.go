// ABOUTME: MIDI device abstraction used by the device manager
// ABOUTME: Drivers list ports and open inputs with a raw-message handler
package midi

import "time"

// DeviceInfo names a MIDI port. Identifier is stable across rescans while the
// port stays connected.
type DeviceInfo struct {
	Name       string
	Identifier string
}

// RawHandler receives message bytes with the host time of arrival. data is
// only valid for the duration of the call.
type RawHandler func(data []byte, at time.Time)

// Input is an opened MIDI input port.
type Input interface {
	Info() DeviceInfo
	Start() error
	Stop() error
	Close() error
}

// Output is an opened MIDI output port.
type Output interface {
	Info() DeviceInfo
	Send(data []byte) error
	Close() error
}

// Driver lists and opens MIDI ports.
type Driver interface {
	Inputs() ([]DeviceInfo, error)
	Outputs() ([]DeviceInfo, error)
	OpenInput(id string, handler RawHandler) (Input, error)
	OpenOutput(id string) (Output, error)
}

// InputCallback receives events from enabled inputs
type InputCallback interface {
	HandleIncomingMidiMessage(src DeviceInfo, ev Event)
}

// InputCallbackFunc adapts a function to InputCallback
type InputCallbackFunc func(src DeviceInfo, ev Event)

func (f InputCallbackFunc) HandleIncomingMidiMessage(src DeviceInfo, ev Event) { f(src, ev) }
