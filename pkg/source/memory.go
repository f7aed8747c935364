// ABOUTME: Source backed by a fully decoded buffer
// ABOUTME: Reads are lock-free so it is safe to play directly from the audio callback
package source

import (
	"io"
	"sync/atomic"

	"github.com/Sendspin/audioio/pkg/audio"
)

// MemorySource plays a buffer that is held entirely in memory.
type MemorySource struct {
	data       audio.Buffer
	sampleRate float64
	pos        atomic.Int64
	looping    atomic.Bool
}

// NewMemorySource plays data, recorded at sampleRate. data must not be
// modified afterwards.
func NewMemorySource(data audio.Buffer, sampleRate float64) *MemorySource {
	return &MemorySource{data: data, sampleRate: sampleRate}
}

func (s *MemorySource) Prepare(float64, int) {}
func (s *MemorySource) Release()             {}
func (s *MemorySource) Close() error         { return nil }

func (s *MemorySource) SampleRate() float64 { return s.sampleRate }
func (s *MemorySource) NumChannels() int    { return s.data.NumChannels() }

// Read copies frames from the current position, wrapping when looping.
func (s *MemorySource) Read(dst audio.Buffer) (int, error) {
	total := int64(s.data.NumFrames())
	want := dst.NumFrames()
	start := s.pos.Load()
	pos := min(max(start, 0), total)

	n := 0
	for n < want {
		if pos >= total {
			if !s.looping.Load() || total == 0 {
				break
			}
			pos = 0
		}
		k := min(want-n, int(total-pos))
		dst.Slice(n, k).CopyFrom(s.data.Slice(int(pos), k))
		n += k
		pos += int64(k)
	}
	// a concurrent SetPosition wins
	s.pos.CompareAndSwap(start, pos)

	if n < want {
		dst.ClearRange(n, want-n)
		return n, io.EOF
	}
	return n, nil
}

func (s *MemorySource) SetPosition(frame int64) {
	s.pos.Store(min(max(frame, 0), int64(s.data.NumFrames())))
}

func (s *MemorySource) Position() int64 { return s.pos.Load() }
func (s *MemorySource) Length() int64   { return int64(s.data.NumFrames()) }
func (s *MemorySource) Looping() bool   { return s.looping.Load() }
func (s *MemorySource) SetLooping(on bool) {
	s.looping.Store(on)
}
