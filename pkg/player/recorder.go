// ABOUTME: Recorder, a device callback that writes the input to a WAV file
// ABOUTME: Blocks are handed to a writer goroutine through preallocated slots
package player

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Sendspin/audioio/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

const (
	recorderSlots   = 64
	wavFormatPCM    = 1
	defaultBitDepth = 16
)

// ErrRecorderClosed is returned by Close when called twice
var ErrRecorderClosed = errors.New("recorder closed")

type recordBlock struct {
	buf    audio.Buffer
	frames int
}

// Recorder captures the device input. The WAV header is written with the
// rate and channel count of the first block.
type Recorder struct {
	w        io.WriteSeeker
	closer   io.Closer
	bitDepth int
	log      zerolog.Logger

	free chan *recordBlock
	full chan *recordBlock

	closed   atomic.Bool
	seq      atomic.Uint64
	rate     atomic.Uint64
	recorded atomic.Int64
	dropped  atomic.Uint64

	startOnce sync.Once
	done      chan struct{}
	writeErr  error
	closeMu   sync.Mutex
}

// NewRecorder writes bitDepth-bit PCM to w. A bitDepth of 0 means 16.
func NewRecorder(w io.WriteSeeker, bitDepth int, log zerolog.Logger) *Recorder {
	if bitDepth <= 0 {
		bitDepth = defaultBitDepth
	}
	return &Recorder{
		w:        w,
		bitDepth: bitDepth,
		log:      log.With().Str("component", "recorder").Logger(),
		free:     make(chan *recordBlock, recorderSlots),
		full:     make(chan *recordBlock, recorderSlots),
		done:     make(chan struct{}),
	}
}

// CreateRecorder records into a new file at path.
func CreateRecorder(path string, bitDepth int, log zerolog.Logger) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	r := NewRecorder(f, bitDepth, log)
	r.closer = f
	return r, nil
}

func (r *Recorder) PrepareToPlay(sampleRate float64, bufferSize int) {
	r.startOnce.Do(func() { go r.write() })
	r.rate.Store(uint64(sampleRate))

	// drain and reallocate slots for the new block size
	for {
		select {
		case <-r.free:
			continue
		default:
		}
		break
	}
	for i := 0; i < recorderSlots; i++ {
		r.free <- &recordBlock{buf: audio.NewBuffer(0, bufferSize)}
	}
}

func (r *Recorder) IOCallback(in, _ [][]float32, numSamples int) {
	r.seq.Add(1)
	defer r.seq.Add(1)
	if r.closed.Load() {
		return
	}

	var b *recordBlock
	select {
	case b = <-r.free:
	default:
		r.dropped.Add(1)
		return
	}
	if b.buf.NumChannels() != len(in) || b.buf.NumFrames() < numSamples {
		// first block after a channel change; allocation is unavoidable here
		b.buf.SetSize(len(in), numSamples)
	}
	dst := b.buf.Slice(0, numSamples)
	dst.CopyFrom(audio.WrapBuffer(in, numSamples))
	b.frames = numSamples

	select {
	case r.full <- b:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) ReleaseResources() {}

// Recorded returns the number of frames written
func (r *Recorder) Recorded() int64 { return r.recorded.Load() }

// Dropped counts blocks lost because the writer fell behind
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

func (r *Recorder) write() {
	defer close(r.done)

	var enc *wav.Encoder
	var ib goaudio.IntBuffer
	for b := range r.full {
		if r.writeErr == nil {
			if enc == nil {
				channels := b.buf.NumChannels()
				enc = wav.NewEncoder(r.w, int(r.rate.Load()), r.bitDepth, channels, wavFormatPCM)
				ib.Format = &goaudio.Format{SampleRate: int(r.rate.Load()), NumChannels: channels}
			}
			b.buf.Slice(0, b.frames).ToIntBuffer(&ib, r.bitDepth)
			if err := enc.Write(&ib); err != nil {
				r.writeErr = fmt.Errorf("failed to write recording: %w", err)
				r.log.Error().Err(err).Msg("recording stopped")
			} else {
				r.recorded.Add(int64(b.frames))
			}
		}
		select {
		case r.free <- b:
		default:
		}
	}

	if enc != nil {
		if err := enc.Close(); err != nil && r.writeErr == nil {
			r.writeErr = err
		}
	}
}

// Close finishes the file. Remove the recorder from the device first; blocks
// arriving afterwards are ignored.
func (r *Recorder) Close() error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed.Swap(true) {
		return ErrRecorderClosed
	}
	s := r.seq.Load()
	if s%2 == 1 {
		for r.seq.Load() == s {
			runtime.Gosched()
		}
	}

	r.startOnce.Do(func() { go r.write() })
	close(r.full)
	<-r.done

	err := r.writeErr
	if r.closer != nil {
		if cerr := r.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	r.log.Info().Int64("frames", r.recorded.Load()).Uint64("dropped", r.dropped.Load()).Msg("recording closed")
	return err
}
