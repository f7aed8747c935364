// ABOUTME: Sample format constants and conversions
// ABOUTME: Converts between float32 and integer samples and between interleaved and planar layouts
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// FloatToInt16 converts a float sample in [-1, 1] to int16 with clipping
func FloatToInt16(sample float32) int16 {
	if sample >= 1 {
		return 32767
	}
	if sample <= -1 {
		return -32768
	}
	return int16(sample * 32767)
}

// FloatFromInt16 converts an int16 sample to float in [-1, 1)
func FloatFromInt16(sample int16) float32 {
	return float32(sample) / 32768
}

// FloatTo24Bit converts a float sample in [-1, 1] to the 24-bit int32 range
func FloatTo24Bit(sample float32) int32 {
	if sample >= 1 {
		return Max24Bit
	}
	if sample <= -1 {
		return Min24Bit
	}
	return int32(sample * Max24Bit)
}

// FloatToInt converts a float sample to an integer of the given bit depth,
// clipping to [-1, 1].
func FloatToInt(sample float32, bitDepth int) int {
	switch {
	case bitDepth <= 0 || bitDepth == 16:
		return int(FloatToInt16(sample))
	case bitDepth == 24:
		return int(FloatTo24Bit(sample))
	}
	scale := float32(int64(1)<<uint(bitDepth-1)) - 1
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	return int(sample * scale)
}

// FloatFromInt converts an integer sample of the given bit depth to float
func FloatFromInt(sample int, bitDepth int) float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return float32(sample) / float32(int64(1)<<uint(bitDepth-1))
}

// Deinterleave splits interleaved samples into planar channels.
// dst must hold at least frames samples per channel.
func Deinterleave(src []float32, dst [][]float32, frames int) {
	numCh := len(dst)
	if numCh == 0 {
		return
	}
	for ch := 0; ch < numCh; ch++ {
		d := dst[ch]
		for i := 0; i < frames; i++ {
			d[i] = src[i*numCh+ch]
		}
	}
}

// DecodeFloat32LE splits interleaved little-endian float32 bytes into planar
// channels. The channel stride is len(dst).
func DecodeFloat32LE(src []byte, dst [][]float32, frames int) {
	numCh := len(dst)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numCh; ch++ {
			off := (i*numCh + ch) * 4
			dst[ch][i] = math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
		}
	}
}

// EncodeFloat32LE packs planar channels into interleaved little-endian float32
// bytes. dst must hold frames*len(src)*4 bytes.
func EncodeFloat32LE(src [][]float32, dst []byte, frames int) {
	numCh := len(src)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numCh; ch++ {
			off := (i*numCh + ch) * 4
			binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(src[ch][i]))
		}
	}
}
