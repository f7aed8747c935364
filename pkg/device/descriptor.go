// ABOUTME: Device capability snapshot and open parameters
// ABOUTME: Descriptors are taken at enumeration time and never mutated afterwards
package device

import (
	"slices"
	"strconv"

	"github.com/Sendspin/audioio/pkg/audio"
)

// StandardSampleRates are probed by backends that cannot list rates directly
var StandardSampleRates = []float64{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}

// StandardBufferSizes are offered by backends whose period size is free-form
var StandardBufferSizes = []int{32, 64, 128, 256, 512, 1024, 2048, 4096}

// Descriptor is the capability snapshot of one endpoint. It goes stale when the
// hardware changes; callers re-enumerate instead of editing it.
type Descriptor struct {
	Name               string
	TypeName           string
	IsDefault          bool
	SampleRates        []float64
	BufferSizes        []int
	DefaultBufferSize  int
	InputChannelNames  []string
	OutputChannelNames []string
}

// Clone returns a deep copy
func (d Descriptor) Clone() Descriptor {
	d.SampleRates = slices.Clone(d.SampleRates)
	d.BufferSizes = slices.Clone(d.BufferSizes)
	d.InputChannelNames = slices.Clone(d.InputChannelNames)
	d.OutputChannelNames = slices.Clone(d.OutputChannelNames)
	return d
}

// Normalize sorts and deduplicates the capability lists
func (d Descriptor) Normalize() Descriptor {
	d = d.Clone()
	slices.Sort(d.SampleRates)
	d.SampleRates = slices.Compact(d.SampleRates)
	slices.Sort(d.BufferSizes)
	d.BufferSizes = slices.Compact(d.BufferSizes)
	if d.DefaultBufferSize == 0 && len(d.BufferSizes) > 0 {
		d.DefaultBufferSize = d.BufferSizes[len(d.BufferSizes)/2]
	}
	return d
}

// ChannelNames returns generic names "Output 1".."Output n"
func ChannelNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = prefix + " " + strconv.Itoa(i+1)
	}
	return names
}

// UniqueName appends a counter to names already in seen. Backends use it
// because host APIs can report identical names for distinct endpoints.
func UniqueName(name string, seen map[string]int) string {
	seen[name]++
	if n := seen[name]; n > 1 {
		return name + " (" + strconv.Itoa(n) + ")"
	}
	return name
}

// OpenConfig holds the values passed to Device.Open
type OpenConfig struct {
	SampleRate     float64
	BufferSize     int
	InputChannels  audio.ChannelSet
	OutputChannels audio.ChannelSet
}
