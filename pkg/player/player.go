// ABOUTME: SourcePlayer, a device callback that streams a swappable source
// ABOUTME: Swaps are published atomically and wait out any callback using the old source
package player

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Sendspin/audioio/pkg/audio"
)

type sourceHolder struct {
	src Source
}

// SourcePlayer plays a Source through a device. Every callback pulls exactly
// the number of frames the device asked for; missing frames are silence.
type SourcePlayer struct {
	src  atomic.Pointer[sourceHolder]
	gain atomic.Uint32
	seq  atomic.Uint64

	// audio goroutine only
	lastGain float32

	mu         sync.Mutex
	prepared   bool
	sampleRate float64
	blockSize  int
}

// NewSourcePlayer returns a player with unity gain and no source.
func NewSourcePlayer() *SourcePlayer {
	p := &SourcePlayer{lastGain: 1}
	p.gain.Store(math.Float32bits(1))
	return p
}

// SetSource replaces the current source. The new source is prepared before it
// becomes audible and the old one is released once no callback uses it.
func (p *SourcePlayer) SetSource(src Source) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.src.Load()
	if old != nil && old.src == src {
		return
	}
	if src != nil && p.prepared {
		src.Prepare(p.sampleRate, p.blockSize)
	}
	var h *sourceHolder
	if src != nil {
		h = &sourceHolder{src: src}
	}
	p.src.Store(h)

	if old != nil {
		p.waitQuiescent()
		if p.prepared {
			old.src.Release()
		}
	}
}

// Source returns the current source, or nil
func (p *SourcePlayer) Source() Source {
	if h := p.src.Load(); h != nil {
		return h.src
	}
	return nil
}

// SetGain sets the linear output gain; changes are ramped over one block.
func (p *SourcePlayer) SetGain(gain float32) {
	p.gain.Store(math.Float32bits(max(gain, 0)))
}

// Gain returns the gain set by SetGain
func (p *SourcePlayer) Gain() float32 {
	return math.Float32frombits(p.gain.Load())
}

func (p *SourcePlayer) PrepareToPlay(sampleRate float64, bufferSize int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sampleRate, p.blockSize = sampleRate, bufferSize
	p.prepared = true
	p.lastGain = p.Gain()
	if h := p.src.Load(); h != nil {
		h.src.Prepare(sampleRate, bufferSize)
	}
}

func (p *SourcePlayer) IOCallback(_, out [][]float32, numSamples int) {
	p.seq.Add(1)
	defer p.seq.Add(1)

	buf := audio.WrapBuffer(out, numSamples)
	h := p.src.Load()
	if h == nil {
		buf.Clear()
		return
	}
	n, _ := h.src.Read(buf)
	if n < numSamples {
		buf.ClearRange(max(n, 0), numSamples-max(n, 0))
	}

	target := p.Gain()
	buf.ApplyGainRamp(p.lastGain, target)
	p.lastGain = target
}

func (p *SourcePlayer) ReleaseResources() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.prepared {
		return
	}
	p.prepared = false
	if h := p.src.Load(); h != nil {
		h.src.Release()
	}
}

func (p *SourcePlayer) waitQuiescent() {
	s := p.seq.Load()
	if s%2 == 0 {
		return
	}
	for p.seq.Load() == s {
		runtime.Gosched()
	}
}
