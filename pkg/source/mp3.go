// ABOUTME: Streaming MP3 source
// ABOUTME: Decodes with hajimehoshi/go-mp3, which always yields 16-bit stereo
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

const mp3BytesPerFrame = 4

// MP3Source decodes an MP3 stream on demand.
type MP3Source struct {
	closer  io.Closer
	looping atomic.Bool

	mu      sync.Mutex
	dec     *mp3.Decoder
	pos     int64
	raw     []byte
	scratch []float32
	planes  [][]float32
}

// OpenMP3 opens the file at path.
func OpenMP3(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	s, err := NewMP3Source(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewMP3Source decodes r. Positioning needs r to implement io.Seeker.
func NewMP3Source(r io.Reader) (*MP3Source, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return &MP3Source{dec: dec}, nil
}

func (s *MP3Source) Prepare(float64, int) {}
func (s *MP3Source) Release()             {}

// Close closes the underlying file when the source was opened by path
func (s *MP3Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *MP3Source) SampleRate() float64 { return float64(s.dec.SampleRate()) }
func (s *MP3Source) NumChannels() int    { return 2 }

func (s *MP3Source) Read(dst audio.Buffer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := dst.NumFrames()
	if need := want * mp3BytesPerFrame; cap(s.raw) < need {
		s.raw = make([]byte, need)
		s.scratch = make([]float32, want*2)
		s.planes = [][]float32{make([]float32, want), make([]float32, want)}
	}

	n := 0
	for n < want {
		chunk := s.raw[:(want-n)*mp3BytesPerFrame]
		got, err := io.ReadFull(s.dec, chunk)
		frames := got / mp3BytesPerFrame
		if frames > 0 {
			s.deinterleave(chunk[:frames*mp3BytesPerFrame], dst.Slice(n, frames))
			n += frames
			s.pos += int64(frames)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			dst.ClearRange(n, want-n)
			return n, fmt.Errorf("mp3 decode error: %w", err)
		}
		if !s.looping.Load() || s.pos == 0 {
			dst.ClearRange(n, want-n)
			return n, io.EOF
		}
		if err := s.seekLocked(0); err != nil {
			dst.ClearRange(n, want-n)
			return n, err
		}
	}
	return n, nil
}

func (s *MP3Source) deinterleave(raw []byte, dst audio.Buffer) {
	frames := dst.NumFrames()
	samples := s.scratch[:frames*2]
	for i := range samples {
		samples[i] = audio.FloatFromInt16(int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8))
	}
	for ch := range s.planes {
		s.planes[ch] = s.planes[ch][:frames]
	}
	audio.Deinterleave(samples, s.planes, frames)

	for ch := 0; ch < dst.NumChannels(); ch++ {
		if ch >= len(s.planes) {
			clear(dst.Channel(ch))
			continue
		}
		copy(dst.Channel(ch), s.planes[ch])
	}
}

func (s *MP3Source) seekLocked(frame int64) error {
	if _, err := s.dec.Seek(frame*mp3BytesPerFrame, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek MP3: %w", err)
	}
	s.pos = frame
	return nil
}

// SetPosition seeks to frame. It is ignored for unseekable input.
func (s *MP3Source) SetPosition(frame int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if length := s.dec.Length(); length >= 0 {
		frame = min(frame, length/mp3BytesPerFrame)
	}
	_ = s.seekLocked(max(frame, 0))
}

func (s *MP3Source) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Length returns the length in frames, or -1 for unseekable input
func (s *MP3Source) Length() int64 {
	if l := s.dec.Length(); l >= 0 {
		return l / mp3BytesPerFrame
	}
	return -1
}

func (s *MP3Source) Looping() bool      { return s.looping.Load() }
func (s *MP3Source) SetLooping(on bool) { s.looping.Store(on) }
