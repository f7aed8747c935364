// ABOUTME: Tests for SourcePlayer, TransportSource and the source wrappers
// ABOUTME: Drive callbacks directly with planar buffers, no device needed
package player

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/Sendspin/audioio/pkg/source"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate  = 48000
	testBlock = 64
)

func constBuffer(channels, frames int, v float32) audio.Buffer {
	b := audio.NewBuffer(channels, frames)
	for ch := 0; ch < channels; ch++ {
		for i := range b.Channel(ch) {
			b.Channel(ch)[i] = v
		}
	}
	return b
}

func indexBuffer(frames int) audio.Buffer {
	b := audio.NewBuffer(1, frames)
	for i := range b.Channel(0) {
		b.Channel(0)[i] = float32(i)
	}
	return b
}

// spySource counts lifecycle calls around a MemorySource.
type spySource struct {
	*source.MemorySource
	prepared atomic.Int32
	released atomic.Int32
}

func (s *spySource) Prepare(rate float64, block int) {
	s.prepared.Add(1)
	s.MemorySource.Prepare(rate, block)
}

func (s *spySource) Release() {
	s.released.Add(1)
	s.MemorySource.Release()
}

func render(cb interface {
	IOCallback(in, out [][]float32, n int)
}, channels, frames int) audio.Buffer {
	out := constBuffer(channels, frames, 9) // stale data must be overwritten
	cb.IOCallback(nil, out.Channels(nil), frames)
	return out
}

func TestSourcePlayerWithoutSourceIsSilent(t *testing.T) {
	p := NewSourcePlayer()
	p.PrepareToPlay(testRate, testBlock)
	assert.Zero(t, render(p, 2, testBlock).Magnitude())
}

func TestSourcePlayerZeroFillsShortReads(t *testing.T) {
	p := NewSourcePlayer()
	p.PrepareToPlay(testRate, testBlock)
	p.SetSource(source.NewMemorySource(constBuffer(2, 10, 0.5), testRate))

	out := render(p, 2, testBlock)
	assert.Equal(t, float32(0.5), out.Channel(0)[9])
	assert.Zero(t, out.Channel(0)[10])
	assert.Zero(t, out.Slice(10, -1).Magnitude())
}

func TestSourcePlayerGainRamp(t *testing.T) {
	p := NewSourcePlayer()
	p.PrepareToPlay(testRate, testBlock)
	src := source.NewMemorySource(constBuffer(1, testRate, 1), testRate)
	p.SetSource(src)

	p.SetGain(0.5)
	first := render(p, 1, testBlock)
	assert.Equal(t, float32(1), first.Channel(0)[0])
	assert.Less(t, first.Channel(0)[testBlock-1], float32(0.52))

	second := render(p, 1, testBlock)
	assert.Equal(t, float32(0.5), second.Magnitude())
	assert.Equal(t, float32(0.5), p.Gain())
}

func TestSourcePlayerSwapPreparesAndReleases(t *testing.T) {
	p := NewSourcePlayer()
	a := &spySource{MemorySource: source.NewMemorySource(constBuffer(1, 8, 1), testRate)}
	b := &spySource{MemorySource: source.NewMemorySource(constBuffer(1, 8, 1), testRate)}

	p.SetSource(a)
	assert.Zero(t, a.prepared.Load(), "not prepared before the device is")
	p.PrepareToPlay(testRate, testBlock)
	assert.EqualValues(t, 1, a.prepared.Load())

	p.SetSource(b)
	assert.EqualValues(t, 1, b.prepared.Load())
	assert.EqualValues(t, 1, a.released.Load())
	assert.Equal(t, Source(b), p.Source())

	p.ReleaseResources()
	assert.EqualValues(t, 1, b.released.Load())
}

func readBlock(t *testing.T, ts *TransportSource, channels int) audio.Buffer {
	t.Helper()
	dst := constBuffer(channels, testBlock, 9)
	n, err := ts.Read(dst)
	require.NoError(t, err)
	require.Equal(t, testBlock, n)
	return dst
}

func newTransport(t *testing.T, frames int) (*TransportSource, *source.MemorySource) {
	t.Helper()
	ts := NewTransportSource()
	src := source.NewMemorySource(constBuffer(2, frames, 0.5), testRate)
	ts.SetSource(src, 0, 0, 2)
	ts.Prepare(testRate, testBlock)
	return ts, src
}

func TestTransportStartStop(t *testing.T) {
	ts, src := newTransport(t, testRate)

	assert.Zero(t, readBlock(t, ts, 2).Magnitude(), "stopped transport is silent")
	assert.EqualValues(t, 0, src.Position())

	ts.Start()
	assert.True(t, ts.IsPlaying())
	readBlock(t, ts, 2) // fade in
	assert.Equal(t, float32(0.5), readBlock(t, ts, 2).Magnitude())

	ts.Stop()
	fade := readBlock(t, ts, 2)
	assert.Greater(t, fade.Channel(0)[0], float32(0.4))
	assert.Less(t, fade.Channel(0)[testBlock-1], float32(0.01))
	assert.Zero(t, readBlock(t, ts, 2).Magnitude(), "silent one block after stop")

	pos := src.Position()
	readBlock(t, ts, 2)
	assert.Equal(t, pos, src.Position(), "stopped transport does not consume")

	var kinds []TransportEventKind
	for len(ts.Events()) > 0 {
		kinds = append(kinds, (<-ts.Events()).Kind)
	}
	assert.Equal(t, []TransportEventKind{TransportStarted, TransportStopped}, kinds)
}

func TestTransportFinishes(t *testing.T) {
	ts, _ := newTransport(t, testBlock+10)
	ts.Start()
	readBlock(t, ts, 2)
	last := readBlock(t, ts, 2)

	assert.True(t, ts.HasStreamFinished())
	assert.False(t, ts.IsPlaying())
	assert.Zero(t, last.Slice(10, -1).Magnitude())
	assert.Zero(t, readBlock(t, ts, 2).Magnitude())

	var finished bool
	for len(ts.Events()) > 0 {
		if (<-ts.Events()).Kind == TransportFinished {
			finished = true
		}
	}
	assert.True(t, finished)
}

func TestTransportLoopingNeverFinishes(t *testing.T) {
	ts, _ := newTransport(t, 10)
	ts.SetLooping(true)
	ts.Start()
	for i := 0; i < 5; i++ {
		readBlock(t, ts, 2)
	}
	assert.False(t, ts.HasStreamFinished())
	assert.True(t, ts.IsPlaying())
}

func TestTransportPositioning(t *testing.T) {
	ts, src := newTransport(t, 2*testRate)
	assert.InDelta(t, 2.0, ts.LengthInSeconds(), 1e-9)

	ts.SetPosition(1.5)
	assert.InDelta(t, 1.5, ts.CurrentPosition(), 1e-9)
	ts.Start()
	readBlock(t, ts, 2)
	assert.EqualValues(t, int64(1.5*testRate)+testBlock, src.Position())
}

func TestTransportLimitsChannels(t *testing.T) {
	ts := NewTransportSource()
	ts.SetSource(source.NewMemorySource(constBuffer(2, testRate, 0.5), testRate), 0, 0, 1)
	ts.Prepare(testRate, testBlock)
	ts.Start()
	readBlock(t, ts, 2)
	out := readBlock(t, ts, 2)
	assert.Equal(t, float32(0.5), out.Channel(0)[0])
	assert.Zero(t, out.Channel(1)[0])
}

func TestTransportWithReadAheadAndResampling(t *testing.T) {
	ts := NewTransportSource(WithTransportLogger(zerolog.Nop()))
	src := source.NewMemorySource(constBuffer(2, testRate, 0.5), testRate/2)
	ts.SetSource(src, 4096, testRate/2, 2)
	ts.Prepare(testRate, testBlock)
	defer ts.Release()
	assert.InDelta(t, 2.0, ts.LengthInSeconds(), 1e-9)

	ts.Start()
	require.Eventually(t, func() bool {
		out := constBuffer(2, testBlock, 0)
		_, err := ts.Read(out)
		return err == nil && out.Channel(0)[testBlock-1] > 0.49
	}, time.Second, time.Millisecond)
	assert.Greater(t, ts.CurrentPosition(), 0.0)
}

func TestResamplingSourceInterpolates(t *testing.T) {
	r := NewResamplingSource(source.NewMemorySource(indexBuffer(100), 24000), 24000, 1)
	r.Prepare(48000, 16)
	assert.Equal(t, 0.5, r.Ratio())

	dst := audio.NewBuffer(1, 16)
	n, err := r.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	for i, v := range dst.Channel(0) {
		assert.InDelta(t, float32(i)/2, v, 1e-5)
	}

	// continuity across blocks
	_, err = r.Read(dst)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, dst.Channel(0)[0], 1e-5)
}

func TestResamplingSourceDownsamplesToEOF(t *testing.T) {
	r := NewResamplingSource(source.NewMemorySource(indexBuffer(40), 96000), 96000, 1)
	r.Prepare(48000, 8)

	var total int
	dst := audio.NewBuffer(1, 8)
	for {
		n, err := r.Read(dst)
		total += n
		if err != nil {
			break
		}
		assert.InDelta(t, float32(2*(total-n)), dst.Channel(0)[0], 1e-5)
	}
	assert.InDelta(t, 20, total, 1)
}

func TestBufferingSourceReadsAhead(t *testing.T) {
	src := source.NewMemorySource(indexBuffer(1000), testRate)
	b := NewBufferingSource(src, 256, 1, zerolog.Nop())
	b.Prepare(testRate, 32)
	defer b.Release()

	require.Eventually(t, func() bool { return b.Buffered() == 256 }, time.Second, time.Millisecond)

	dst := audio.NewBuffer(1, 32)
	n, err := b.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	assert.Equal(t, float32(0), dst.Channel(0)[0])
	assert.Equal(t, float32(31), dst.Channel(0)[31])
	assert.EqualValues(t, 32, b.Position())

	b.SetPosition(500)
	silent := audio.NewBuffer(1, 32)
	_, _ = b.Read(silent)
	require.Eventually(t, func() bool {
		_, err := b.Read(dst)
		return err == nil && dst.Channel(0)[0] >= 500
	}, time.Second, time.Millisecond)
}

func TestBufferingSourceReportsEOF(t *testing.T) {
	src := source.NewMemorySource(indexBuffer(40), testRate)
	b := NewBufferingSource(src, 128, 1, zerolog.Nop())
	b.Prepare(testRate, 32)
	defer b.Release()

	require.Eventually(t, func() bool { return b.Buffered() == 40 }, time.Second, time.Millisecond)
	dst := audio.NewBuffer(1, 32)
	n, err := b.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	n, err = b.Read(dst)
	assert.Equal(t, 8, n)
	assert.Error(t, err)
}

func TestRecorderWritesWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	rec, err := CreateRecorder(path, 16, zerolog.Nop())
	require.NoError(t, err)

	rec.PrepareToPlay(testRate, testBlock)
	in := constBuffer(2, testBlock, 0.5)
	for i := 0; i < 4; i++ {
		rec.IOCallback(in.Channels(nil), nil, testBlock)
	}
	require.Eventually(t, func() bool { return rec.Recorded() == 4*testBlock }, time.Second, time.Millisecond)
	require.NoError(t, rec.Close())
	assert.ErrorIs(t, rec.Close(), ErrRecorderClosed)

	got, err := source.OpenWAV(path)
	require.NoError(t, err)
	assert.Equal(t, float64(testRate), got.SampleRate())
	assert.Equal(t, 2, got.NumChannels())
	assert.EqualValues(t, 4*testBlock, got.Length())

	dst := audio.NewBuffer(2, testBlock)
	_, err = got.Read(dst)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, dst.Channel(1)[3], 1e-3)
	assert.Zero(t, rec.Dropped())
}
