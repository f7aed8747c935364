// ABOUTME: Sine wave generator source
// ABOUTME: Renders at whatever rate the consumer prepares it for
package source

import (
	"math"
	"sync/atomic"

	"github.com/Sendspin/audioio/pkg/audio"
)

// ToneSource generates an endless sine wave on every channel.
type ToneSource struct {
	frequency float64
	amplitude float32
	channels  int

	rate atomic.Uint64
	pos  atomic.Int64
}

// NewToneSource returns a generator for the given frequency in Hz and peak
// amplitude in [0, 1].
func NewToneSource(frequency, amplitude float64, channels int) *ToneSource {
	return &ToneSource{
		frequency: frequency,
		amplitude: float32(amplitude),
		channels:  max(channels, 1),
	}
}

// NewTestTone is the 440 Hz, half-scale stereo tone used for speaker checks
func NewTestTone() *ToneSource {
	return NewToneSource(440, 0.5, 2)
}

func (s *ToneSource) Prepare(sampleRate float64, _ int) {
	s.rate.Store(math.Float64bits(sampleRate))
}

func (s *ToneSource) Release()     {}
func (s *ToneSource) Close() error { return nil }

// SampleRate returns the rate given to Prepare. The tone has no native rate.
func (s *ToneSource) SampleRate() float64 { return math.Float64frombits(s.rate.Load()) }
func (s *ToneSource) NumChannels() int    { return s.channels }

func (s *ToneSource) Read(dst audio.Buffer) (int, error) {
	n := dst.NumFrames()
	rate := s.SampleRate()
	if rate <= 0 {
		dst.Clear()
		return n, nil
	}
	start := s.pos.Load()
	step := 2 * math.Pi * s.frequency / rate
	for ch := 0; ch < dst.NumChannels(); ch++ {
		samples := dst.Channel(ch)
		if ch >= s.channels {
			clear(samples)
			continue
		}
		for i := range samples {
			samples[i] = s.amplitude * float32(math.Sin(step*float64(start+int64(i))))
		}
	}
	s.pos.CompareAndSwap(start, start+int64(n))
	return n, nil
}

func (s *ToneSource) SetPosition(frame int64) { s.pos.Store(max(frame, 0)) }
func (s *ToneSource) Position() int64         { return s.pos.Load() }

// Length is -1: the tone never ends.
func (s *ToneSource) Length() int64 { return -1 }

func (s *ToneSource) Looping() bool   { return true }
func (s *ToneSource) SetLooping(bool) {}
