// ABOUTME: Device setup value and initialisation options
// ABOUTME: A Setup names the devices and stream parameters the manager should open
package manager

import (
	"github.com/Sendspin/audioio/pkg/audio"
)

// Setup describes the device configuration the manager should run. Zero sample
// rate or buffer size selects the device default.
type Setup struct {
	DeviceType       string
	OutputDeviceName string
	InputDeviceName  string
	SampleRate       float64
	BufferSize       int
	InputChannels    audio.ChannelSet
	OutputChannels   audio.ChannelSet

	// UseDefault*Channels ignores the channel sets and opens the first N
	// channels, where N is the count requested at Initialise.
	UseDefaultInputChannels  bool
	UseDefaultOutputChannels bool
}

// DefaultSetup returns a setup that opens default channels at device defaults
func DefaultSetup() Setup {
	return Setup{UseDefaultInputChannels: true, UseDefaultOutputChannels: true}
}

// Clone returns a copy with independent channel sets
func (s Setup) Clone() Setup {
	s.InputChannels = s.InputChannels.Clone()
	s.OutputChannels = s.OutputChannels.Clone()
	return s
}

// Equal reports whether applying o instead of s would not need a reopen.
func (s Setup) Equal(o Setup) bool {
	if s.DeviceType != o.DeviceType ||
		s.OutputDeviceName != o.OutputDeviceName ||
		s.InputDeviceName != o.InputDeviceName ||
		s.SampleRate != o.SampleRate ||
		s.BufferSize != o.BufferSize ||
		s.UseDefaultInputChannels != o.UseDefaultInputChannels ||
		s.UseDefaultOutputChannels != o.UseDefaultOutputChannels {
		return false
	}
	if !s.UseDefaultInputChannels && !s.InputChannels.Equal(o.InputChannels) {
		return false
	}
	if !s.UseDefaultOutputChannels && !s.OutputChannels.Equal(o.OutputChannels) {
		return false
	}
	return true
}

func (s Setup) hasDevice() bool {
	return s.OutputDeviceName != "" || s.InputDeviceName != ""
}

// InitOptions controls Initialise.
type InitOptions struct {
	NumInputChannels  int
	NumOutputChannels int

	// SavedState is a document produced by StateDocument. When it cannot be
	// applied and SelectDefaultOnFailure is set, the default devices are used.
	SavedState             []byte
	SelectDefaultOnFailure bool

	// PreferredDeviceName picks the default device by name. It may contain
	// shell-style wildcards and is matched case-insensitively.
	PreferredDeviceName string

	// PreferredSetup is applied when there is no saved state.
	PreferredSetup *Setup
}
