// ABOUTME: Planar float32 sample buffer
// ABOUTME: Views, mixing and gain helpers that never allocate on the audio path
package audio

import (
	"math"

	goaudio "github.com/go-audio/audio"
)

// Buffer is a planar view over float32 channel data. Copying a Buffer copies
// the view, not the samples.
type Buffer struct {
	data   [][]float32
	offset int
	frames int
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(channels, frames int) Buffer {
	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, frames)
	}
	return Buffer{data: data, frames: frames}
}

// WrapBuffer wraps existing channel slices. Each channel must hold at least
// frames samples.
func WrapBuffer(channels [][]float32, frames int) Buffer {
	return Buffer{data: channels, frames: frames}
}

// NumChannels returns the channel count
func (b Buffer) NumChannels() int { return len(b.data) }

// NumFrames returns the frame count of the view
func (b Buffer) NumFrames() int { return b.frames }

// Channel returns the samples of channel ch within the view
func (b Buffer) Channel(ch int) []float32 {
	return b.data[ch][b.offset : b.offset+b.frames]
}

// Slice returns a sub-view starting at offset frames into this view.
func (b Buffer) Slice(offset, frames int) Buffer {
	if offset < 0 {
		offset = 0
	}
	if offset > b.frames {
		offset = b.frames
	}
	if frames < 0 || offset+frames > b.frames {
		frames = b.frames - offset
	}
	return Buffer{data: b.data, offset: b.offset + offset, frames: frames}
}

// Channels returns the raw channel slices, limited to the view.
// The outer slice is written into dst to avoid allocation; dst is grown only
// when it lacks capacity.
func (b Buffer) Channels(dst [][]float32) [][]float32 {
	dst = dst[:0]
	for ch := range b.data {
		dst = append(dst, b.Channel(ch))
	}
	return dst
}

// SetSize resizes the buffer in place. Existing capacity is reused; memory is
// only allocated when the requested size exceeds it.
func (b *Buffer) SetSize(channels, frames int) {
	if cap(b.data) < channels {
		grown := make([][]float32, channels)
		copy(grown, b.data)
		b.data = grown
	}
	b.data = b.data[:channels]
	for i := range b.data {
		if cap(b.data[i]) < frames {
			b.data[i] = make([]float32, frames)
		}
		b.data[i] = b.data[i][:cap(b.data[i])]
	}
	b.offset = 0
	b.frames = frames
}

// Clear zeroes every sample in the view
func (b Buffer) Clear() {
	for ch := range b.data {
		clear(b.Channel(ch))
	}
}

// ClearRange zeroes frames [start, start+n) in every channel
func (b Buffer) ClearRange(start, n int) {
	b.Slice(start, n).Clear()
}

// CopyFrom copies src into b channel by channel. Channels or frames missing
// from src are zeroed.
func (b Buffer) CopyFrom(src Buffer) {
	for ch := range b.data {
		dst := b.Channel(ch)
		if ch >= src.NumChannels() {
			clear(dst)
			continue
		}
		n := copy(dst, src.Channel(ch))
		clear(dst[n:])
	}
}

// AddFrom mixes src into b scaled by gain
func (b Buffer) AddFrom(src Buffer, gain float32) {
	chans := min(len(b.data), src.NumChannels())
	frames := min(b.frames, src.NumFrames())
	for ch := 0; ch < chans; ch++ {
		dst := b.Channel(ch)[:frames]
		s := src.Channel(ch)[:frames]
		if gain == 1 {
			for i := range dst {
				dst[i] += s[i]
			}
			continue
		}
		for i := range dst {
			dst[i] += s[i] * gain
		}
	}
}

// ApplyGain scales every sample by gain
func (b Buffer) ApplyGain(gain float32) {
	if gain == 1 {
		return
	}
	if gain == 0 {
		b.Clear()
		return
	}
	for ch := range b.data {
		samples := b.Channel(ch)
		for i := range samples {
			samples[i] *= gain
		}
	}
}

// ApplyGainRamp scales the view by a gain that moves linearly from start to end
func (b Buffer) ApplyGainRamp(start, end float32) {
	if start == end {
		b.ApplyGain(start)
		return
	}
	if b.frames == 0 {
		return
	}
	step := (end - start) / float32(b.frames)
	for ch := range b.data {
		g := start
		samples := b.Channel(ch)
		for i := range samples {
			samples[i] *= g
			g += step
		}
	}
}

// Magnitude returns the absolute peak across all channels
func (b Buffer) Magnitude() float32 {
	var peak float32
	for ch := range b.data {
		for _, s := range b.Channel(ch) {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
	}
	return peak
}

// RMS returns the root mean square level of one channel
func (b Buffer) RMS(ch int) float32 {
	if b.frames == 0 || ch >= len(b.data) {
		return 0
	}
	var sum float64
	for _, s := range b.Channel(ch) {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(b.frames)))
}

// FromIntBuffer converts a go-audio integer buffer into a planar buffer.
func FromIntBuffer(src *goaudio.IntBuffer) Buffer {
	if src == nil || src.Format == nil || src.Format.NumChannels == 0 {
		return Buffer{}
	}
	numCh := src.Format.NumChannels
	frames := len(src.Data) / numCh
	out := NewBuffer(numCh, frames)
	bitDepth := src.SourceBitDepth
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numCh; ch++ {
			out.data[ch][i] = FloatFromInt(src.Data[i*numCh+ch], bitDepth)
		}
	}
	return out
}

// ToIntBuffer writes the view into dst as interleaved integers of the given
// bit depth, reusing dst.Data when it has capacity.
func (b Buffer) ToIntBuffer(dst *goaudio.IntBuffer, bitDepth int) {
	numCh := len(b.data)
	need := numCh * b.frames
	if cap(dst.Data) < need {
		dst.Data = make([]int, need)
	}
	dst.Data = dst.Data[:need]
	for ch := 0; ch < numCh; ch++ {
		for i, s := range b.Channel(ch) {
			dst.Data[i*numCh+ch] = FloatToInt(s, bitDepth)
		}
	}
	dst.SourceBitDepth = bitDepth
}
