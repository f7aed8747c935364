// ABOUTME: Tests for miniaudio capability helpers
// ABOUTME: Checks descriptor construction per share mode and duplicate name handling
package malgo

import (
	"testing"

	"github.com/Sendspin/audioio/pkg/device"
	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	formats := []nativeFormat{{sampleRate: 48000, channels: 2}, {sampleRate: 44100, channels: 6}}

	tests := []struct {
		name      string
		mode      Mode
		input     bool
		wantRates []float64
	}{
		{"exclusive keeps native rates", Exclusive, false, []float64{44100, 48000}},
		{"shared accepts standard rates", Shared, true, device.StandardSampleRates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := describe("Card", true, tt.input, formats, tt.mode)
			assert.Equal(t, tt.wantRates, d.SampleRates)
			assert.True(t, d.IsDefault)
			if tt.input {
				assert.Len(t, d.InputChannelNames, 6)
				assert.Empty(t, d.OutputChannelNames)
			} else {
				assert.Len(t, d.OutputChannelNames, 6)
			}
			assert.Equal(t, device.StandardBufferSizes, d.BufferSizes)
		})
	}
}

func TestDescribeWithoutFormats(t *testing.T) {
	d := describe("Card", false, false, nil, Exclusive)
	assert.Equal(t, device.StandardSampleRates, d.SampleRates)
	assert.Len(t, d.OutputChannelNames, 2)
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "miniaudio", Shared.TypeName())
	assert.Equal(t, "miniaudio (exclusive)", Exclusive.TypeName())
}
