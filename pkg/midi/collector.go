// ABOUTME: Bounded multi-producer MIDI collector drained by the audio goroutine
// ABOUTME: Oldest events are dropped on overflow and late events are discarded
package midi

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrQueueOverflow is returned by AddMessageToQueue when an older event had to
// be dropped to make room. The new event is still queued.
var ErrQueueOverflow = errors.New("midi queue overflow")

// enqueueAttempts bounds how often a producer evicts before giving up
const enqueueAttempts = 4

// Collector buffers events from any goroutine and hands them to the audio
// goroutine in timestamp order, one callback window at a time.
type Collector struct {
	capacity int
	queue    *xsync.MPMCQueueOf[Event]

	// audio goroutine only
	pending []Event

	sampleRate atomic.Uint64
	dropped    atomic.Uint64
	late       atomic.Uint64
}

// NewCollector returns a collector holding at most capacity events in flight
// and capacity events pending.
func NewCollector(capacity int) *Collector {
	if capacity < 1 {
		capacity = 1
	}
	return &Collector{
		capacity: capacity,
		queue:    xsync.NewMPMCQueueOf[Event](capacity),
		pending:  make([]Event, 0, capacity),
	}
}

// Reset discards every buffered event. It must not run concurrently with
// RemoveNextBlockOfMessages.
func (c *Collector) Reset(sampleRate float64) {
	c.sampleRate.Store(math.Float64bits(sampleRate))
	for {
		if _, ok := c.queue.TryDequeue(); !ok {
			break
		}
	}
	c.pending = c.pending[:0]
}

// Capacity returns the bound given to NewCollector
func (c *Collector) Capacity() int { return c.capacity }

// SampleRate returns the rate passed to the last Reset
func (c *Collector) SampleRate() float64 {
	return math.Float64frombits(c.sampleRate.Load())
}

// AddMessageToQueue queues ev. It never blocks; when the queue is full the
// oldest queued event is dropped and counted.
func (c *Collector) AddMessageToQueue(ev Event) error {
	var err error
	for i := 0; i < enqueueAttempts; i++ {
		if c.queue.TryEnqueue(ev) {
			return err
		}
		if _, ok := c.queue.TryDequeue(); ok {
			c.dropped.Add(1)
			err = ErrQueueOverflow
		}
	}
	c.dropped.Add(1)
	return ErrQueueOverflow
}

// HandleIncomingMidiMessage lets the collector be registered as an input callback.
func (c *Collector) HandleIncomingMidiMessage(_ DeviceInfo, ev Event) {
	_ = c.AddMessageToQueue(ev)
}

// RemoveNextBlockOfMessages appends to dst every buffered event with a
// timestamp in [start, start+length), in timestamp order, and returns it.
// Events older than start are discarded and counted as late; later events stay
// buffered. Audio goroutine only; it does not allocate when dst has capacity.
func (c *Collector) RemoveNextBlockOfMessages(dst []Event, start, length float64) []Event {
	c.drain()

	end := start + length
	keep := 0
	for _, ev := range c.pending {
		switch {
		case ev.Timestamp < start:
			c.late.Add(1)
		case ev.Timestamp < end:
			dst = append(dst, ev)
		default:
			c.pending[keep] = ev
			keep++
		}
	}
	clear(c.pending[keep:])
	c.pending = c.pending[:keep]
	return dst
}

// drain moves queued events into pending, keeping pending sorted. Ties keep
// arrival order.
func (c *Collector) drain() {
	for {
		ev, ok := c.queue.TryDequeue()
		if !ok {
			return
		}
		if len(c.pending) == c.capacity {
			copy(c.pending, c.pending[1:])
			c.pending = c.pending[:len(c.pending)-1]
			c.dropped.Add(1)
		}
		i := len(c.pending)
		c.pending = append(c.pending, ev)
		for i > 0 && c.pending[i-1].Timestamp > ev.Timestamp {
			c.pending[i] = c.pending[i-1]
			i--
		}
		c.pending[i] = ev
	}
}

// Dropped returns the number of events lost to overflow
func (c *Collector) Dropped() uint64 { return c.dropped.Load() }

// Late returns the number of events discarded for arriving after their window
func (c *Collector) Late() uint64 { return c.late.Load() }
