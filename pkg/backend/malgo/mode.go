// ABOUTME: Share mode selection and capability helpers for the miniaudio backend
// ABOUTME: Kept free of cgo so they build and test everywhere
package malgo

import (
	"slices"

	"github.com/Sendspin/audioio/pkg/device"
)

// Mode selects shared or exclusive device access
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

// TypeName returns the device type name for the mode
func (m Mode) TypeName() string {
	if m == Exclusive {
		return "miniaudio (exclusive)"
	}
	return "miniaudio"
}

// nativeFormat is one format entry reported by miniaudio for an endpoint
type nativeFormat struct {
	sampleRate uint32
	channels   uint32
}

// describe builds a descriptor from the native formats of an endpoint.
// Shared mode resamples internally so it accepts every standard rate; exclusive
// mode is limited to what the hardware reports.
func describe(name string, isDefault, input bool, formats []nativeFormat, mode Mode) device.Descriptor {
	var rates []float64
	channels := 0
	for _, f := range formats {
		if f.sampleRate > 0 {
			rates = append(rates, float64(f.sampleRate))
		}
		channels = max(channels, int(f.channels))
	}
	if mode == Shared || len(rates) == 0 {
		rates = append(rates, device.StandardSampleRates...)
	}
	if channels == 0 {
		channels = 2
	}

	desc := device.Descriptor{
		Name:              name,
		IsDefault:         isDefault,
		SampleRates:       rates,
		BufferSizes:       slices.Clone(device.StandardBufferSizes),
		DefaultBufferSize: 512,
	}
	if input {
		desc.InputChannelNames = device.ChannelNames("Input", channels)
	} else {
		desc.OutputChannelNames = device.ChannelNames("Output", channels)
	}
	return desc.Normalize()
}
