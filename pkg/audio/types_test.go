// ABOUTME: Tests for audio types
// ABOUTME: Tests sample conversion and channel layout functions
package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatToInt16Clips(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16383},
		{"over", 1.5, 32767},
		{"under", -2, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FloatToInt16(tt.input))
		})
	}
}

func TestFloatFromInt(t *testing.T) {
	assert.InDelta(t, 0.5, FloatFromInt(16384, 16), 1e-6)
	assert.InDelta(t, -1.0, FloatFromInt(-8388608, 24), 1e-6)
	assert.InDelta(t, 0.5, FloatFromInt(16384, 0), 1e-6)
}

func TestFloatToInt(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		bitDepth int
		expected int
	}{
		{"16 half", 0.5, 16, 16383},
		{"16 default depth", 1, 0, 32767},
		{"24 full scale", 1, 24, Max24Bit},
		{"24 clipped", -3, 24, Min24Bit},
		{"32 half", 0.5, 32, 1073741824},
		{"8 clipped", 2, 8, 127},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FloatToInt(tt.input, tt.bitDepth))
		})
	}
}

func TestDeinterleave(t *testing.T) {
	inter := []float32{1, -1, 2, -2, 3, -3}
	planar := [][]float32{make([]float32, 3), make([]float32, 3)}
	Deinterleave(inter, planar, 3)
	assert.Equal(t, [][]float32{{1, 2, 3}, {-1, -2, -3}}, planar)

	assert.NotPanics(t, func() { Deinterleave(inter, nil, 3) })
}

func TestFloat32LEBytes(t *testing.T) {
	planar := [][]float32{{0.5, -0.25}, {1, 0}}
	raw := make([]byte, 16)
	EncodeFloat32LE(planar, raw, 2)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x3f}, raw[:4])

	back := [][]float32{make([]float32, 2), make([]float32, 2)}
	DecodeFloat32LE(raw, back, 2)
	assert.Equal(t, planar, back)
}
