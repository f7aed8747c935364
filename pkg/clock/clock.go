// ABOUTME: DeviceClock with offset and drift compensation
// ABOUTME: Single writer publishes estimates through a sequence lock
package clock

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	// smoothingRate is the weight given to each new residual
	smoothingRate = 0.1

	// maxResidualMicros rejects observations that disagree with the
	// prediction by more than this, e.g. after an xrun
	maxResidualMicros = 50000

	// maxRejections re-seeds the filter after this many consecutive outliers
	maxRejections = 8
)

// DeviceClock maps host time to device time in seconds. Observe must be called
// from a single goroutine; DeviceTime may be called from any goroutine.
type DeviceClock struct {
	// published estimate, guarded by seq
	seq        atomic.Uint64
	offset     atomic.Int64 // device - host, µs
	drift      atomic.Uint64
	lastHost   atomic.Int64 // host µs at the last update
	sampleRate atomic.Uint64
	valid      atomic.Bool

	epoch time.Time

	// writer-only filter state
	samples    int
	rejections int
	curOffset  int64
	curDrift   float64
	curHost    int64
}

// New returns a clock with no observations yet.
func New() *DeviceClock {
	c := &DeviceClock{epoch: time.Now()}
	c.Reset(0)
	return c
}

// Reset discards the estimate. Call it when the device (re)starts, before the
// first Observe.
func (c *DeviceClock) Reset(sampleRate float64) {
	c.samples = 0
	c.rejections = 0
	c.curOffset, c.curDrift, c.curHost = 0, 0, 0

	c.seq.Add(1)
	c.sampleRate.Store(math.Float64bits(sampleRate))
	c.offset.Store(0)
	c.drift.Store(0)
	c.lastHost.Store(0)
	c.valid.Store(false)
	c.seq.Add(1)
}

func (c *DeviceClock) hostMicros(t time.Time) int64 {
	return t.Sub(c.epoch).Microseconds()
}

// Observe records that the frame at framePos was reached at host time t.
// It does not allocate.
func (c *DeviceClock) Observe(t time.Time, framePos int64) {
	rate := math.Float64frombits(c.sampleRate.Load())
	if rate <= 0 {
		return
	}
	host := c.hostMicros(t)
	measured := int64(float64(framePos)/rate*1e6) - host

	switch c.samples {
	case 0:
		c.curOffset = measured
		c.curDrift = 0
	case 1:
		if dt := float64(host - c.curHost); dt > 0 {
			c.curDrift = float64(measured-c.curOffset) / dt
		}
		c.curOffset = measured
	default:
		dt := float64(host - c.curHost)
		if dt <= 0 {
			return
		}
		predicted := c.curOffset + int64(c.curDrift*dt)
		residual := measured - predicted
		if residual > maxResidualMicros || residual < -maxResidualMicros {
			c.rejections++
			if c.rejections >= maxRejections {
				c.samples = 0
				c.rejections = 0
				c.Observe(t, framePos)
			}
			return
		}
		c.rejections = 0
		c.curOffset = predicted + int64(smoothingRate*float64(residual))
		c.curDrift += smoothingRate * float64(residual) / dt
	}
	c.curHost = host
	c.samples++
	c.publish()
}

func (c *DeviceClock) publish() {
	c.seq.Add(1)
	c.offset.Store(c.curOffset)
	c.drift.Store(math.Float64bits(c.curDrift))
	c.lastHost.Store(c.curHost)
	c.valid.Store(true)
	c.seq.Add(1)
}

// DeviceTime converts a host time to device seconds. Before the first
// observation it returns 0.
func (c *DeviceClock) DeviceTime(t time.Time) float64 {
	for {
		s1 := c.seq.Load()
		if s1%2 == 1 {
			continue
		}
		valid := c.valid.Load()
		offset := c.offset.Load()
		drift := math.Float64frombits(c.drift.Load())
		last := c.lastHost.Load()
		if c.seq.Load() != s1 {
			continue
		}
		if !valid {
			return 0
		}
		host := c.hostMicros(t)
		device := float64(host) + float64(offset) + drift*float64(host-last)
		return device / 1e6
	}
}

// Now returns the current device time
func (c *DeviceClock) Now() float64 {
	return c.DeviceTime(time.Now())
}

// Synced reports whether at least one observation has been made
func (c *DeviceClock) Synced() bool {
	return c.valid.Load()
}
