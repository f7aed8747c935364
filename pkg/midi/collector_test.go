// ABOUTME: Tests for the MIDI collector
// ABOUTME: Checks window ordering, late-event dropping, overflow and concurrent producers
package midi

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noteOn(key byte, ts float64) Event {
	return Event{Data: []byte{0x90, key, 100}, Timestamp: ts}
}

func timestamps(events []Event) []float64 {
	out := make([]float64, len(events))
	for i, ev := range events {
		out[i] = ev.Timestamp
	}
	return out
}

func TestWindowsPreserveOrder(t *testing.T) {
	partitions := [][]float64{
		{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1},
		{0.25, 0.5, 0.25},
		{0.013, 0.4, 0.007, 0.58},
		{1.0},
	}

	for _, widths := range partitions {
		c := NewCollector(128)
		c.Reset(48000)

		var want []float64
		for i := 0; i < 40; i++ {
			ts := float64(i) * 0.025
			want = append(want, ts)
			require.NoError(t, c.AddMessageToQueue(noteOn(byte(i), ts)))
		}

		var got []Event
		start := 0.0
		for _, w := range widths {
			got = c.RemoveNextBlockOfMessages(got, start, w)
			start += w
		}
		assert.Equal(t, want, timestamps(got))
		assert.Zero(t, c.Late())
	}
}

func TestOutOfOrderArrivalIsSorted(t *testing.T) {
	c := NewCollector(16)
	for _, ts := range []float64{0.3, 0.1, 0.2, 0.1} {
		require.NoError(t, c.AddMessageToQueue(noteOn(byte(ts*10), ts)))
	}
	got := c.RemoveNextBlockOfMessages(nil, 0, 1)
	assert.Equal(t, []float64{0.1, 0.1, 0.2, 0.3}, timestamps(got))
}

func TestEventsAfterWindowStayPending(t *testing.T) {
	c := NewCollector(16)
	require.NoError(t, c.AddMessageToQueue(noteOn(1, 0.05)))
	require.NoError(t, c.AddMessageToQueue(noteOn(2, 0.15)))

	got := c.RemoveNextBlockOfMessages(nil, 0, 0.1)
	assert.Equal(t, []float64{0.05}, timestamps(got))

	got = c.RemoveNextBlockOfMessages(nil, 0.1, 0.1)
	assert.Equal(t, []float64{0.15}, timestamps(got))
}

func TestLateEventsAreDropped(t *testing.T) {
	c := NewCollector(16)
	require.NoError(t, c.AddMessageToQueue(noteOn(1, 0.5)))
	assert.Empty(t, c.RemoveNextBlockOfMessages(nil, 0, 0.1))

	// 0.05 arrives after the window that covered it was already drained.
	require.NoError(t, c.AddMessageToQueue(noteOn(2, 0.05)))
	got := c.RemoveNextBlockOfMessages(nil, 0.1, 0.5)

	assert.Equal(t, []float64{0.5}, timestamps(got))
	assert.Equal(t, uint64(1), c.Late())
	assert.Empty(t, c.RemoveNextBlockOfMessages(nil, 0, 10), "a dropped event is never deferred")
}

func TestOverflowDropsOldest(t *testing.T) {
	c := NewCollector(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, c.AddMessageToQueue(noteOn(byte(i), float64(i))))
	}
	assert.ErrorIs(t, c.AddMessageToQueue(noteOn(4, 4)), ErrQueueOverflow)
	assert.Equal(t, uint64(1), c.Dropped())

	got := c.RemoveNextBlockOfMessages(nil, 0, 10)
	assert.Equal(t, []float64{1, 2, 3, 4}, timestamps(got))
}

func TestPendingIsBounded(t *testing.T) {
	c := NewCollector(2)
	for i := 0; i < 6; i++ {
		_ = c.AddMessageToQueue(noteOn(byte(i), float64(10+i)))
		c.RemoveNextBlockOfMessages(nil, 0, 1)
	}
	assert.LessOrEqual(t, len(c.pending), 2)
	assert.Equal(t, uint64(4), c.Dropped())
}

func TestResetClearsEverything(t *testing.T) {
	c := NewCollector(8)
	require.NoError(t, c.AddMessageToQueue(noteOn(1, 0.5)))
	c.RemoveNextBlockOfMessages(nil, 0, 0.1)
	require.NoError(t, c.AddMessageToQueue(noteOn(2, 0.6)))

	c.Reset(44100)
	assert.Equal(t, 44100.0, c.SampleRate())
	assert.Empty(t, c.RemoveNextBlockOfMessages(nil, 0, 10))
}

func TestConcurrentProducers(t *testing.T) {
	const producers, perProducer = 4, 200
	c := NewCollector(producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(p)))
			for i := 0; i < perProducer; i++ {
				_ = c.AddMessageToQueue(noteOn(byte(p), r.Float64()))
			}
		}(p)
	}
	wg.Wait()

	got := c.RemoveNextBlockOfMessages(make([]Event, 0, producers*perProducer), 0, 1)
	assert.Len(t, got, producers*perProducer)
	assert.IsNonDecreasing(t, timestamps(got))
	assert.Zero(t, c.Dropped())
}

func TestRemoveDoesNotAllocate(t *testing.T) {
	c := NewCollector(64)
	events := make([]Event, 32)
	for i := range events {
		events[i] = noteOn(byte(i), float64(i)*0.001)
	}
	dst := make([]Event, 0, 64)

	allocs := testing.AllocsPerRun(50, func() {
		for _, ev := range events {
			_ = c.AddMessageToQueue(ev)
		}
		dst = c.RemoveNextBlockOfMessages(dst[:0], 0, 1)
	})
	assert.Zero(t, allocs)
	assert.Len(t, dst, 32)
}

func TestEventMessage(t *testing.T) {
	ev := noteOn(60, 0)
	var ch, key, vel uint8
	require.True(t, ev.Message().GetNoteOn(&ch, &key, &vel))
	assert.Equal(t, uint8(60), key)
	assert.Equal(t, uint8(100), vel)
}
