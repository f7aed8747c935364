// ABOUTME: Read-ahead wrapper that decodes on its own goroutine
// ABOUTME: The audio side never blocks: a busy or empty ring yields silence
package player

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/rs/zerolog"
)

const fillInterval = 5 * time.Millisecond

// BufferingSource reads ahead of the consumer into a ring so that a slow
// source, such as a file decoder, never runs on the audio goroutine.
type BufferingSource struct {
	src      PositionableSource
	channels int
	size     int
	log      zerolog.Logger

	seekTo    atomic.Int64 // -1 when no seek is pending
	position  atomic.Int64 // source frame of the next frame handed out
	underruns atomic.Uint64
	wake      chan struct{}

	mu       sync.Mutex
	ring     audio.Buffer
	readPos  int64
	writePos int64
	eof      bool

	runMu   sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	scratch audio.Buffer
}

// NewBufferingSource reads up to size frames of src ahead of the consumer.
func NewBufferingSource(src PositionableSource, size, channels int, log zerolog.Logger) *BufferingSource {
	b := &BufferingSource{
		src:      src,
		channels: max(channels, 1),
		size:     max(size, 1),
		log:      log.With().Str("component", "read-ahead").Logger(),
		wake:     make(chan struct{}, 1),
	}
	b.ring.SetSize(b.channels, b.size)
	b.seekTo.Store(-1)
	b.position.Store(src.Position())
	return b
}

// Prepare prepares the wrapped source and starts the read-ahead goroutine.
func (b *BufferingSource) Prepare(sampleRate float64, blockSize int) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.src.Prepare(sampleRate, blockSize)
	if b.stop != nil {
		return
	}
	b.scratch.SetSize(b.channels, min(max(blockSize, 256), b.size))
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.fill(b.stop, b.done)
}

// Release stops the read-ahead goroutine and releases the wrapped source.
func (b *BufferingSource) Release() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.stop != nil {
		close(b.stop)
		<-b.done
		b.stop, b.done = nil, nil
	}
	b.src.Release()
}

// Read hands out buffered frames. It outputs silence rather than wait when
// the filler holds the lock, a seek is pending or the ring ran dry.
func (b *BufferingSource) Read(dst audio.Buffer) (int, error) {
	want := dst.NumFrames()
	defer b.poke()

	if b.seekTo.Load() >= 0 || !b.mu.TryLock() {
		dst.Clear()
		return want, nil
	}
	avail := int(b.writePos - b.readPos)
	k := min(want, avail)
	b.copyOut(dst, k)
	b.readPos += int64(k)
	eof := b.eof
	b.mu.Unlock()

	b.advance(int64(k))
	if k == want {
		return k, nil
	}
	dst.ClearRange(k, want-k)
	if eof {
		return k, io.EOF
	}
	b.underruns.Add(1)
	return want, nil
}

func (b *BufferingSource) copyOut(dst audio.Buffer, frames int) {
	start := int(b.readPos % int64(b.size))
	first := min(frames, b.size-start)
	dst.Slice(0, first).CopyFrom(b.ring.Slice(start, first))
	if rest := frames - first; rest > 0 {
		dst.Slice(first, rest).CopyFrom(b.ring.Slice(0, rest))
	}
}

func (b *BufferingSource) advance(frames int64) {
	pos := b.position.Load() + frames
	if length := b.src.Length(); length > 0 && b.src.Looping() {
		pos %= length
	}
	b.position.Store(pos)
}

func (b *BufferingSource) poke() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// fill runs until stop is closed, topping up the ring.
func (b *BufferingSource) fill(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(fillInterval)
	defer ticker.Stop()

	for {
		for b.fillOnce() {
			select {
			case <-stop:
				return
			default:
			}
		}
		select {
		case <-stop:
			return
		case <-b.wake:
		case <-ticker.C:
		}
	}
}

// fillOnce decodes one chunk into the ring. It reports whether more room is
// left to fill.
func (b *BufferingSource) fillOnce() bool {
	b.mu.Lock()
	if seek := b.seekTo.Swap(-1); seek >= 0 {
		b.src.SetPosition(seek)
		b.readPos, b.writePos, b.eof = 0, 0, false
	}
	free := b.size - int(b.writePos-b.readPos)
	eof := b.eof
	b.mu.Unlock()

	if eof || free <= 0 {
		return false
	}

	chunk := b.scratch.Slice(0, min(free, b.scratch.NumFrames()))
	n, err := b.src.Read(chunk)
	if err != nil && !errors.Is(err, io.EOF) {
		b.log.Warn().Err(err).Msg("source read failed")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seekTo.Load() >= 0 {
		// repositioned while decoding; this chunk is stale
		return true
	}
	start := int(b.writePos % int64(b.size))
	first := min(n, b.size-start)
	b.ring.Slice(start, first).CopyFrom(chunk.Slice(0, first))
	if rest := n - first; rest > 0 {
		b.ring.Slice(0, rest).CopyFrom(chunk.Slice(first, rest))
	}
	b.writePos += int64(n)
	if err != nil {
		b.eof = true
		return false
	}
	return n > 0 && free-n > 0
}

// SetPosition repositions the source. It only flags the request; the
// read-ahead goroutine performs the seek.
func (b *BufferingSource) SetPosition(frame int64) {
	frame = max(frame, 0)
	b.seekTo.Store(frame)
	b.position.Store(frame)
	b.poke()
}

func (b *BufferingSource) Position() int64 { return b.position.Load() }
func (b *BufferingSource) Length() int64   { return b.src.Length() }
func (b *BufferingSource) Looping() bool   { return b.src.Looping() }
func (b *BufferingSource) SetLooping(on bool) {
	b.src.SetLooping(on)
}

// Buffered returns the number of frames ready for the consumer
func (b *BufferingSource) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.writePos - b.readPos)
}

// Underruns counts reads that found the ring empty before the end of stream
func (b *BufferingSource) Underruns() uint64 { return b.underruns.Load() }
