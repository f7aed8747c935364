// ABOUTME: Consumer registry and the manager's real-time fan-out callback
// ABOUTME: Consumers are published as copy-on-write snapshots read lock-free by the audio goroutine
package manager

import (
	"math"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/Sendspin/audioio/pkg/device"
	"github.com/Sendspin/audioio/pkg/midi"
)

const (
	testToneHz        = 440
	testToneAmplitude = 0.5
	levelDecay        = 0.7
)

// MidiConsumer is implemented by callbacks that want the MIDI events due in
// each block. events is only valid for the duration of the call.
type MidiConsumer interface {
	ProcessMidi(events []midi.Event, blockStart, sampleRate float64)
}

type consumer struct {
	cb    device.Callback
	midi  MidiConsumer
	muted atomic.Bool
}

type consumerList struct {
	items []*consumer
}

func (l *consumerList) find(cb device.Callback) int {
	return slices.IndexFunc(l.items, func(c *consumer) bool { return c.cb == cb })
}

// AddCallback registers cb. It receives PrepareToPlay straight away when a
// device is running.
func (m *Manager) AddCallback(cb device.Callback) {
	if cb == nil {
		return
	}
	m.consMu.Lock()
	defer m.consMu.Unlock()

	old := m.consumers.Load()
	if old.find(cb) >= 0 {
		return
	}
	c := &consumer{cb: cb}
	if mc, ok := cb.(MidiConsumer); ok {
		c.midi = mc
	}
	if m.io.prepared {
		cb.PrepareToPlay(m.io.sampleRate, m.io.bufferSize)
		if ab, ok := cb.(device.AboutToStartCallback); ok && m.io.dev != nil {
			ab.AboutToStart(m.io.dev)
		}
	}

	items := make([]*consumer, 0, len(old.items)+1)
	items = append(items, old.items...)
	m.consumers.Store(&consumerList{items: append(items, c)})
}

// RemoveCallback unregisters cb. When it returns, no callback is using cb and
// none will.
func (m *Manager) RemoveCallback(cb device.Callback) {
	m.consMu.Lock()
	defer m.consMu.Unlock()

	old := m.consumers.Load()
	i := old.find(cb)
	if i < 0 {
		return
	}
	items := slices.Delete(slices.Clone(old.items), i, i+1)
	m.consumers.Store(&consumerList{items: items})
	m.io.waitQuiescent()

	if m.io.prepared {
		cb.ReleaseResources()
	}
}

// SetCallbackMuted keeps cb registered but stops rendering it.
func (m *Manager) SetCallbackMuted(cb device.Callback, muted bool) {
	list := m.consumers.Load()
	if i := list.find(cb); i >= 0 {
		list.items[i].muted.Store(muted)
	}
}

// SetMasterGain scales the mixed output. The change is ramped over one block.
func (m *Manager) SetMasterGain(gain float32) {
	m.masterGain.Store(math.Float32bits(max(gain, 0)))
}

// MasterGain returns the gain set by SetMasterGain
func (m *Manager) MasterGain() float32 {
	return math.Float32frombits(m.masterGain.Load())
}

// SetMuted silences the output without touching consumers
func (m *Manager) SetMuted(muted bool) { m.muted.Store(muted) }

// IsMuted reports the state set by SetMuted
func (m *Manager) IsMuted() bool { return m.muted.Load() }

// PlayTestSound mixes a one second 440 Hz tone into every output channel.
func (m *Manager) PlayTestSound() {
	rate := math.Float64frombits(m.io.rate.Load())
	if rate <= 0 {
		return
	}
	m.toneFrames.Store(int64(rate))
}

// CPUUsage returns the smoothed share of the block period spent in callbacks
func (m *Manager) CPUUsage() float64 {
	return math.Float64frombits(m.cpuLoad.Load())
}

// InputLevel returns the decaying input peak in [0, 1]
func (m *Manager) InputLevel() float32 {
	return math.Float32frombits(m.inLevel.Load())
}

// OutputLevel returns the decaying output peak in [0, 1]
func (m *Manager) OutputLevel() float32 {
	return math.Float32frombits(m.outLevel.Load())
}

// ioCallback is the single device.Callback the manager hands to the open
// device. Fields below prepared are written by the control goroutine while
// the device is stopped and read by the audio goroutine while it runs.
type ioCallback struct {
	m *Manager

	// seq is odd while a callback is in flight
	seq  atomic.Uint64
	rate atomic.Uint64

	prepared   bool
	sampleRate float64
	bufferSize int
	dev        device.Device
	numIn      int
	numOut     int

	inCopy   audio.Buffer
	scratch  audio.Buffer
	inViews  [][]float32
	outViews [][]float32
	midiBuf  []midi.Event

	framePos  int64
	lastGain  float32
	tonePhase float64
}

func newIOCallback(m *Manager) *ioCallback {
	return &ioCallback{m: m, lastGain: 1}
}

// configure records the active channel counts before the device starts.
func (io *ioCallback) configure(numIn, numOut int) {
	io.numIn, io.numOut = numIn, numOut
}

func (io *ioCallback) PrepareToPlay(sampleRate float64, bufferSize int) {
	m := io.m
	m.consMu.Lock()
	defer m.consMu.Unlock()

	frames := max(bufferSize, 1)
	io.inCopy.SetSize(io.numIn, frames)
	io.scratch.SetSize(io.numOut, frames)
	io.inViews = make([][]float32, 0, io.numIn)
	io.outViews = make([][]float32, 0, io.numOut)
	if cap(io.midiBuf) < m.collector.Capacity() {
		io.midiBuf = make([]midi.Event, 0, m.collector.Capacity())
	}

	io.sampleRate, io.bufferSize = sampleRate, bufferSize
	io.rate.Store(math.Float64bits(sampleRate))
	io.framePos = 0
	io.tonePhase = 0
	io.lastGain = m.targetGain()
	io.prepared = true

	for _, c := range m.consumers.Load().items {
		c.cb.PrepareToPlay(sampleRate, bufferSize)
	}
}

func (io *ioCallback) AboutToStart(dev device.Device) {
	m := io.m
	m.consMu.Lock()
	defer m.consMu.Unlock()
	io.dev = dev
	for _, c := range m.consumers.Load().items {
		if ab, ok := c.cb.(device.AboutToStartCallback); ok {
			ab.AboutToStart(dev)
		}
	}
}

func (io *ioCallback) ReleaseResources() {
	m := io.m
	m.consMu.Lock()
	defer m.consMu.Unlock()
	if !io.prepared {
		return
	}
	io.prepared = false
	io.dev = nil
	io.rate.Store(0)
	m.inLevel.Store(0)
	m.outLevel.Store(0)
	for _, c := range m.consumers.Load().items {
		c.cb.ReleaseResources()
	}
}

// DeviceError forwards asynchronous device errors to interested consumers.
func (io *ioCallback) DeviceError(err error) {
	for _, c := range io.m.consumers.Load().items {
		if ec, ok := c.cb.(device.ErrorCallback); ok {
			ec.DeviceError(err)
		}
	}
}

// waitQuiescent returns once any callback running at the time of the call
// has finished.
func (io *ioCallback) waitQuiescent() {
	s := io.seq.Load()
	if s%2 == 0 {
		return
	}
	for io.seq.Load() == s {
		runtime.Gosched()
	}
}

func (io *ioCallback) IOCallback(in, out [][]float32, numSamples int) {
	io.seq.Add(1)
	defer io.seq.Add(1)

	m := io.m
	began := time.Now()
	m.clock.Observe(began, io.framePos)

	if numSamples > io.scratch.NumFrames() {
		// a driver delivered more than it negotiated; grow once
		io.inCopy.SetSize(io.numIn, numSamples)
		io.scratch.SetSize(io.numOut, numSamples)
	}

	inBuf := audio.WrapBuffer(in, numSamples)
	outBuf := audio.WrapBuffer(out, numSamples)
	outBuf.Clear()

	rate := io.sampleRate
	var blockStart float64
	events := io.midiBuf[:0]
	if rate > 0 {
		blockStart = float64(io.framePos) / rate
		events = m.collector.RemoveNextBlockOfMessages(events, blockStart, float64(numSamples)/rate)
	}

	inCopy := io.inCopy.Slice(0, numSamples)
	scratch := io.scratch.Slice(0, numSamples)
	for _, c := range m.consumers.Load().items {
		if c.muted.Load() {
			continue
		}
		if c.midi != nil {
			c.midi.ProcessMidi(events, blockStart, rate)
		}
		inCopy.CopyFrom(inBuf)
		scratch.Clear()
		io.inViews = inCopy.Channels(io.inViews)
		io.outViews = scratch.Channels(io.outViews)
		c.cb.IOCallback(io.inViews, io.outViews, numSamples)
		outBuf.AddFrom(scratch, 1)
	}
	io.midiBuf = events[:0]

	target := m.targetGain()
	outBuf.ApplyGainRamp(io.lastGain, target)
	io.lastGain = target

	io.mixTestTone(outBuf, rate)

	storeLevel(&m.inLevel, inBuf.Magnitude())
	storeLevel(&m.outLevel, outBuf.Magnitude())

	if rate > 0 && numSamples > 0 {
		period := float64(numSamples) / rate
		load := time.Since(began).Seconds() / period
		prev := math.Float64frombits(m.cpuLoad.Load())
		m.cpuLoad.Store(math.Float64bits(prev*0.8 + load*0.2))
	}

	io.framePos += int64(numSamples)
	m.metrics.callbacks.Inc()
}

func (io *ioCallback) mixTestTone(out audio.Buffer, rate float64) {
	remaining := io.m.toneFrames.Load()
	if remaining <= 0 || rate <= 0 {
		return
	}
	n := int(min(int64(out.NumFrames()), remaining))
	step := 2 * math.Pi * testToneHz / rate
	for i := 0; i < n; i++ {
		s := float32(testToneAmplitude * math.Sin(io.tonePhase))
		for ch := 0; ch < out.NumChannels(); ch++ {
			out.Channel(ch)[i] += s
		}
		io.tonePhase += step
	}
	io.tonePhase = math.Mod(io.tonePhase, 2*math.Pi)
	io.m.toneFrames.Add(-int64(n))
}

func (m *Manager) targetGain() float32 {
	if m.muted.Load() {
		return 0
	}
	return math.Float32frombits(m.masterGain.Load())
}

func storeLevel(level *atomic.Uint32, peak float32) {
	prev := math.Float32frombits(level.Load()) * levelDecay
	level.Store(math.Float32bits(max(peak, prev)))
}
