// ABOUTME: Simulated native stream
// ABOUTME: Owns preallocated channel buffers and records the last rendered output
package simulated

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Sendspin/audioio/pkg/device"
)

// Stream is a simulated native stream. It is safe to pump from one goroutine
// while another starts or stops it.
type Stream struct {
	drv       *Driver
	req       device.StreamRequest
	proc      device.StreamProc
	endpoints []string

	started atomic.Bool
	lost    atomic.Bool
	closed  atomic.Bool

	pumpMu   sync.Mutex
	in       [][]float32
	out      [][]float32
	position int64
	calls    int64
}

func newStream(d *Driver, req device.StreamRequest, proc device.StreamProc, endpoints []string) *Stream {
	s := &Stream{drv: d, req: req, proc: proc, endpoints: endpoints}
	s.in = alloc(req.NumInputChannels, req.BufferSize)
	s.out = alloc(req.NumOutputChannels, req.BufferSize)
	return s
}

func alloc(channels, frames int) [][]float32 {
	bufs := make([][]float32, max(channels, 0))
	for i := range bufs {
		bufs[i] = make([]float32, frames)
	}
	return bufs
}

func (s *Stream) uses(name string) bool { return slices.Contains(s.endpoints, name) }

func (s *Stream) Start() error {
	s.started.Store(true)
	return nil
}

func (s *Stream) Stop() error {
	s.started.Store(false)
	return nil
}

func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.started.Store(false)
	s.drv.forget(s)
	return nil
}

func (s *Stream) SampleRate() float64 { return s.req.SampleRate }
func (s *Stream) BufferSize() int     { return s.req.BufferSize }
func (s *Stream) BitDepth() int       { return 32 }
func (s *Stream) ReportsXRuns() bool  { return true }

// Latency reports one period in each direction
func (s *Stream) Latency() (input, output int) {
	if s.req.NumInputChannels > 0 {
		input = s.req.BufferSize
	}
	if s.req.NumOutputChannels > 0 {
		output = s.req.BufferSize
	}
	return input, output
}

// Started reports whether the stream is delivering callbacks
func (s *Stream) Started() bool { return s.started.Load() && !s.lost.Load() }

// Calls returns the number of periods delivered
func (s *Stream) Calls() int64 {
	s.pumpMu.Lock()
	defer s.pumpMu.Unlock()
	return s.calls
}

// Output returns a copy of the last rendered output period
func (s *Stream) Output() [][]float32 {
	s.pumpMu.Lock()
	defer s.pumpMu.Unlock()
	out := make([][]float32, len(s.out))
	for i := range s.out {
		out[i] = slices.Clone(s.out[i])
	}
	return out
}

// Request returns the parameters the stream was opened with
func (s *Stream) Request() device.StreamRequest { return s.req }

func (s *Stream) fail(err error) {
	if s.lost.Swap(true) {
		return
	}
	if s.req.OnError != nil {
		s.req.OnError(err)
	}
}

func (s *Stream) pump(frames int) {
	if !s.Started() {
		return
	}
	s.pumpMu.Lock()
	defer s.pumpMu.Unlock()

	if frames <= 0 || frames > s.req.BufferSize {
		frames = s.req.BufferSize
	}
	for ch, buf := range s.in {
		for i := 0; i < frames; i++ {
			if s.drv.signal != nil {
				buf[i] = s.drv.signal(ch, int(s.position)+i)
			} else {
				buf[i] = 0
			}
		}
	}
	s.proc(s.in, s.out, frames)
	s.position += int64(frames)
	s.calls++
}
