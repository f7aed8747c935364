// ABOUTME: Tests for the planar buffer and channel sets
// ABOUTME: Covers views, mixing, gain ramps and mask round trips
package audio

import (
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(b Buffer, v float32) {
	for ch := 0; ch < b.NumChannels(); ch++ {
		for i := range b.Channel(ch) {
			b.Channel(ch)[i] = v
		}
	}
}

func TestBufferSliceSharesData(t *testing.T) {
	b := NewBuffer(2, 8)
	view := b.Slice(4, 4)
	fill(view, 1)

	assert.Equal(t, float32(0), b.Channel(0)[3])
	assert.Equal(t, float32(1), b.Channel(0)[4])
	assert.Equal(t, float32(1), b.Channel(1)[7])
	assert.Equal(t, 4, view.NumFrames())
}

func TestBufferSliceClamps(t *testing.T) {
	b := NewBuffer(1, 4)
	assert.Equal(t, 2, b.Slice(2, 10).NumFrames())
	assert.Equal(t, 0, b.Slice(9, 1).NumFrames())
}

func TestBufferAddFrom(t *testing.T) {
	dst := NewBuffer(2, 4)
	src := NewBuffer(2, 4)
	fill(dst, 0.25)
	fill(src, 0.5)

	dst.AddFrom(src, 1)
	assert.InDelta(t, 0.75, dst.Channel(1)[2], 1e-6)

	dst.AddFrom(src, 0.5)
	assert.InDelta(t, 1.0, dst.Channel(0)[0], 1e-6)
}

func TestBufferCopyFromZeroesMissingChannels(t *testing.T) {
	dst := NewBuffer(2, 4)
	fill(dst, 1)
	src := NewBuffer(1, 2)
	fill(src, 0.5)

	dst.CopyFrom(src)
	assert.Equal(t, []float32{0.5, 0.5, 0, 0}, dst.Channel(0))
	assert.Equal(t, []float32{0, 0, 0, 0}, dst.Channel(1))
}

func TestBufferGainRamp(t *testing.T) {
	b := NewBuffer(1, 4)
	fill(b, 1)
	b.ApplyGainRamp(0, 1)
	assert.Equal(t, []float32{0, 0.25, 0.5, 0.75}, b.Channel(0))

	fill(b, 1)
	b.ApplyGain(0)
	assert.Equal(t, float32(0), b.Magnitude())
}

func TestBufferSetSizeReusesCapacity(t *testing.T) {
	b := NewBuffer(2, 16)
	first := &b.Channel(0)[0]
	b.SetSize(2, 8)
	assert.Equal(t, 8, b.NumFrames())
	assert.Same(t, first, &b.Channel(0)[0])

	b.SetSize(3, 32)
	assert.Equal(t, 3, b.NumChannels())
	assert.Len(t, b.Channel(2), 32)
}

func TestBufferRMS(t *testing.T) {
	b := NewBuffer(1, 4)
	fill(b, 0.5)
	assert.InDelta(t, 0.5, b.RMS(0), 1e-6)
	assert.Equal(t, float32(0), b.RMS(3))
}

func TestIntBufferRoundTrip(t *testing.T) {
	src := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 48000},
		Data:           []int{16384, -16384, 0, 32767},
		SourceBitDepth: 16,
	}
	b := FromIntBuffer(src)
	require.Equal(t, 2, b.NumChannels())
	require.Equal(t, 2, b.NumFrames())
	assert.InDelta(t, 0.5, b.Channel(0)[0], 1e-4)
	assert.InDelta(t, -0.5, b.Channel(1)[0], 1e-4)

	out := &goaudio.IntBuffer{Format: src.Format}
	b.ToIntBuffer(out, 16)
	assert.InDelta(t, 16384, out.Data[0], 2)
	assert.InDelta(t, -16384, out.Data[1], 2)

	b.Channel(0)[1] = 2
	b.ToIntBuffer(out, 24)
	assert.Equal(t, 24, out.SourceBitDepth)
	assert.Equal(t, Max24Bit, out.Data[2])
}

func TestChannelSet(t *testing.T) {
	tests := []struct {
		name    string
		set     ChannelSet
		count   int
		encoded string
	}{
		{"empty", NewChannelSet(), 0, "0"},
		{"range", ChannelRange(2), 2, "11"},
		{"sparse", NewChannelSet(0, 3), 2, "1001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.count, tt.set.Count())
			assert.Equal(t, tt.encoded, tt.set.String())

			parsed, err := ParseChannelSet(tt.encoded)
			require.NoError(t, err)
			assert.True(t, parsed.Equal(tt.set))
		})
	}
}

func TestChannelSetClipPreservesOrder(t *testing.T) {
	cs := NewChannelSet(1, 3, 5, 7)
	assert.Equal(t, []int{1, 3}, cs.Clip(4).Indices())
	assert.Equal(t, []int{1, 3, 5, 7}, cs.Indices())
}

func TestParseChannelSetRejectsGarbage(t *testing.T) {
	_, err := ParseChannelSet("10x1")
	assert.Error(t, err)
}

func TestZeroChannelSet(t *testing.T) {
	var cs ChannelSet
	assert.False(t, cs.Has(0))
	assert.Equal(t, 0, cs.Count())
	cs.Set(2)
	assert.True(t, cs.Has(2))
}
