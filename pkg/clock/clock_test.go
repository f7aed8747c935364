// ABOUTME: Tests for the host-to-device clock estimator
// ABOUTME: Covers offset tracking, drift estimation and outlier rejection
package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeviceTimeBeforeObservation(t *testing.T) {
	c := New()
	c.Reset(48000)
	assert.False(t, c.Synced())
	assert.Equal(t, 0.0, c.Now())
}

func TestTracksSteadyClock(t *testing.T) {
	c := New()
	c.Reset(48000)
	start := c.epoch

	// Device started 2s after the epoch and runs at exactly 48kHz.
	for i := int64(0); i < 50; i++ {
		host := start.Add(2*time.Second + time.Duration(i)*10*time.Millisecond)
		c.Observe(host, i*480)
	}
	assert.True(t, c.Synced())

	query := start.Add(2*time.Second + 505*time.Millisecond)
	assert.InDelta(t, 0.505, c.DeviceTime(query), 0.0005)
}

func TestEstimatesDrift(t *testing.T) {
	c := New()
	c.Reset(48000)
	start := c.epoch

	// Device clock runs 0.1% fast.
	for i := int64(0); i < 200; i++ {
		elapsed := time.Duration(i) * 10 * time.Millisecond
		frames := int64(elapsed.Seconds() * 48000 * 1.001)
		c.Observe(start.Add(elapsed), frames)
	}

	query := start.Add(2 * time.Second)
	assert.InDelta(t, 2.002, c.DeviceTime(query), 0.0005)
}

func TestRejectsOutliersThenReseeds(t *testing.T) {
	c := New()
	c.Reset(1000)
	start := c.epoch

	for i := int64(0); i < 10; i++ {
		c.Observe(start.Add(time.Duration(i)*time.Second), i*1000)
	}
	before := c.DeviceTime(start.Add(10 * time.Second))

	// A single jump of one second is ignored.
	c.Observe(start.Add(10*time.Second), 11000)
	assert.InDelta(t, before, c.DeviceTime(start.Add(10*time.Second)), 0.001)

	// A persistent jump re-seeds the filter.
	for i := int64(11); i < 11+maxRejections; i++ {
		c.Observe(start.Add(time.Duration(i)*time.Second), (i+1)*1000)
	}
	assert.InDelta(t, 19.0, c.DeviceTime(start.Add(18*time.Second)), 0.01)
}

func TestConcurrentReaders(t *testing.T) {
	c := New()
	c.Reset(48000)
	start := c.epoch

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_ = c.Now()
			}
		}()
	}
	for i := int64(0); i < 1000; i++ {
		c.Observe(start.Add(time.Duration(i)*time.Millisecond), i*48)
	}
	wg.Wait()
}
