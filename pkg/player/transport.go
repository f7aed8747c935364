// ABOUTME: TransportSource adds start/stop, seeking, gain and end detection to a source
// ABOUTME: Control calls flip atomics that the next audio callback acts on
package player

import (
	"errors"
	"io"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/rs/zerolog"
)

// TransportEventKind classifies a TransportEvent
type TransportEventKind int

const (
	TransportStarted TransportEventKind = iota
	TransportStopped
	TransportFinished
)

func (k TransportEventKind) String() string {
	switch k {
	case TransportStarted:
		return "started"
	case TransportStopped:
		return "stopped"
	case TransportFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// TransportEvent reports a change of playback state together with the
// position, in seconds, at which it happened.
type TransportEvent struct {
	Kind     TransportEventKind
	Position float64
}

type transportChain struct {
	out      Source             // what Read pulls from
	pos      PositionableSource // what seeks address
	buffer   *BufferingSource
	resample *ResamplingSource
	rate     float64 // rate of pos frames
	channels int
}

// TransportSource plays a positionable source under transport control. It is
// itself a Source, normally played by a SourcePlayer.
type TransportSource struct {
	log zerolog.Logger

	chain    atomic.Pointer[transportChain]
	playing  atomic.Bool
	finished atomic.Bool
	seek     atomic.Int64 // frame, -1 when none pending
	gain     atomic.Uint32
	seq      atomic.Uint64
	events   chan TransportEvent

	// audio goroutine only
	wasPlaying bool
	lastGain   float32

	mu         sync.Mutex
	prepared   bool
	sampleRate float64
	blockSize  int
}

// TransportOption configures a TransportSource
type TransportOption func(*TransportSource)

// WithTransportLogger sets the logger used by the transport and its read-ahead
func WithTransportLogger(log zerolog.Logger) TransportOption {
	return func(t *TransportSource) { t.log = log }
}

// NewTransportSource returns a stopped transport with unity gain.
func NewTransportSource(opts ...TransportOption) *TransportSource {
	t := &TransportSource{
		log:    zerolog.Nop(),
		events: make(chan TransportEvent, 16),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.seek.Store(-1)
	t.gain.Store(math.Float32bits(1))
	return t
}

// SetSource replaces the source. readAhead > 0 decodes that many frames ahead
// on a goroutine. sourceSampleRate > 0 resamples from that rate to the device
// rate. maxChannels > 0 limits the channels read from src. The transport
// stops; call Start to play the new source.
func (t *TransportSource) SetSource(src PositionableSource, readAhead int, sourceSampleRate float64, maxChannels int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.playing.Store(false)
	t.finished.Store(false)
	t.seek.Store(-1)

	var next *transportChain
	if src != nil {
		channels := maxChannels
		if channels <= 0 {
			channels = 2
		}
		next = &transportChain{out: src, pos: src, rate: sourceSampleRate, channels: channels}
		if readAhead > 0 {
			next.buffer = NewBufferingSource(src, readAhead, channels, t.log)
			next.out, next.pos = next.buffer, next.buffer
		}
		if sourceSampleRate > 0 {
			next.resample = NewResamplingSource(next.out, sourceSampleRate, channels)
			next.out = next.resample
		}
		if t.prepared {
			next.out.Prepare(t.sampleRate, t.blockSize)
		}
	}

	old := t.chain.Swap(next)
	if old != nil {
		t.waitQuiescent()
		if t.prepared {
			old.out.Release()
		}
	}
}

// Start begins playback from the current position
func (t *TransportSource) Start() {
	if t.chain.Load() == nil {
		return
	}
	t.finished.Store(false)
	t.playing.Store(true)
}

// Stop fades out within the next block
func (t *TransportSource) Stop() { t.playing.Store(false) }

// IsPlaying reports whether playback is requested
func (t *TransportSource) IsPlaying() bool { return t.playing.Load() }

// HasStreamFinished reports whether a non-looping source played to its end
func (t *TransportSource) HasStreamFinished() bool { return t.finished.Load() }

// SetPosition seeks to seconds; it takes effect at the next block.
func (t *TransportSource) SetPosition(seconds float64) {
	c := t.chain.Load()
	if c == nil {
		return
	}
	t.seek.Store(int64(max(seconds, 0) * c.rateOr(t.currentRate())))
	t.finished.Store(false)
}

// CurrentPosition returns the playback position in seconds
func (t *TransportSource) CurrentPosition() float64 {
	c := t.chain.Load()
	if c == nil {
		return 0
	}
	rate := c.rateOr(t.currentRate())
	if rate <= 0 {
		return 0
	}
	frame := c.pos.Position()
	if s := t.seek.Load(); s >= 0 {
		frame = s
	}
	return float64(frame) / rate
}

// LengthInSeconds returns the source length, or -1 when unknown
func (t *TransportSource) LengthInSeconds() float64 {
	c := t.chain.Load()
	if c == nil {
		return 0
	}
	rate := c.rateOr(t.currentRate())
	length := c.pos.Length()
	if length < 0 || rate <= 0 {
		return -1
	}
	return float64(length) / rate
}

// SetLooping makes the source wrap at its end instead of finishing
func (t *TransportSource) SetLooping(on bool) {
	if c := t.chain.Load(); c != nil {
		c.pos.SetLooping(on)
	}
}

// SetGain sets the linear gain; changes are ramped over one block
func (t *TransportSource) SetGain(gain float32) {
	t.gain.Store(math.Float32bits(max(gain, 0)))
}

// Gain returns the gain set by SetGain
func (t *TransportSource) Gain() float32 { return math.Float32frombits(t.gain.Load()) }

// Events delivers state changes. Events are dropped when nobody drains the
// channel.
func (t *TransportSource) Events() <-chan TransportEvent { return t.events }

func (c *transportChain) rateOr(fallback float64) float64 {
	if c.rate > 0 {
		return c.rate
	}
	return fallback
}

func (t *TransportSource) currentRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampleRate
}

func (t *TransportSource) Prepare(sampleRate float64, blockSize int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sampleRate, t.blockSize = sampleRate, blockSize
	t.prepared = true
	if c := t.chain.Load(); c != nil {
		c.out.Prepare(sampleRate, blockSize)
	}
}

func (t *TransportSource) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.prepared {
		return
	}
	t.prepared = false
	if c := t.chain.Load(); c != nil {
		c.out.Release()
	}
}

// Read renders one block. Frames are always produced; a stopped transport
// writes silence.
func (t *TransportSource) Read(dst audio.Buffer) (int, error) {
	t.seq.Add(1)
	defer t.seq.Add(1)

	n := dst.NumFrames()
	c := t.chain.Load()
	if c == nil {
		dst.Clear()
		return n, nil
	}
	if s := t.seek.Swap(-1); s >= 0 {
		c.pos.SetPosition(s)
		if c.resample != nil {
			c.resample.Reset()
		}
	}

	playing := t.playing.Load()
	if !playing && !t.wasPlaying {
		dst.Clear()
		return n, nil
	}
	if playing && !t.wasPlaying {
		t.lastGain = 0
		t.emit(TransportStarted, c)
	}

	got, err := c.out.Read(dst)
	got = max(got, 0)
	if got < n {
		dst.ClearRange(got, n-got)
	}
	for ch := c.channels; ch < dst.NumChannels(); ch++ {
		clear(dst.Channel(ch))
	}

	target := t.Gain()
	if !playing {
		target = 0
	}
	dst.ApplyGainRamp(t.lastGain, target)
	t.lastGain = target
	t.wasPlaying = playing

	if !playing {
		t.emit(TransportStopped, c)
	} else if errors.Is(err, io.EOF) {
		t.playing.Store(false)
		t.finished.Store(true)
		t.wasPlaying = false
		t.emit(TransportFinished, c)
	}
	return n, nil
}

func (t *TransportSource) emit(kind TransportEventKind, c *transportChain) {
	ev := TransportEvent{Kind: kind}
	if rate := c.rateOr(t.sampleRate); rate > 0 {
		ev.Position = float64(c.pos.Position()) / rate
	}
	select {
	case t.events <- ev:
	default:
	}
}

func (t *TransportSource) waitQuiescent() {
	s := t.seq.Load()
	if s%2 == 0 {
		return
	}
	for t.seq.Load() == s {
		runtime.Gosched()
	}
}
