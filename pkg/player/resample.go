// ABOUTME: Streaming linear-interpolation sample rate converter
// ABOUTME: Keeps the fractional read position and the last input frame across blocks
package player

import (
	"errors"
	"io"
	"math"

	"github.com/Sendspin/audioio/pkg/audio"
)

// ResamplingSource converts a source recorded at one rate to the rate the
// consumer prepares it for.
type ResamplingSource struct {
	input      Source
	sourceRate float64
	channels   int

	// set by Prepare
	ratio float64
	buf   audio.Buffer

	// audio goroutine only
	pos  float64 // fractional frame index into buf
	have int     // valid frames in buf
	eof  bool
}

// NewResamplingSource wraps input, which produces channels channels at
// sourceRate.
func NewResamplingSource(input Source, sourceRate float64, channels int) *ResamplingSource {
	return &ResamplingSource{
		input:      input,
		sourceRate: sourceRate,
		channels:   max(channels, 1),
		ratio:      1,
	}
}

// Ratio returns input frames consumed per output frame
func (r *ResamplingSource) Ratio() float64 { return r.ratio }

func (r *ResamplingSource) Prepare(sampleRate float64, blockSize int) {
	r.ratio = 1
	if sampleRate > 0 && r.sourceRate > 0 {
		r.ratio = r.sourceRate / sampleRate
	}
	inBlock := int(math.Ceil(float64(blockSize)*r.ratio)) + 2
	r.buf.SetSize(r.channels, inBlock*2)
	r.Reset()
	r.input.Prepare(r.sourceRate, inBlock)
}

// Reset drops buffered input, e.g. after the input was repositioned.
func (r *ResamplingSource) Reset() {
	r.pos, r.have, r.eof = 0, 0, false
}

func (r *ResamplingSource) Release() { r.input.Release() }

func (r *ResamplingSource) Read(dst audio.Buffer) (int, error) {
	want := dst.NumFrames()
	out := 0
	for out < want {
		idx := int(r.pos)
		if idx+1 >= r.have {
			if !r.refill() {
				break
			}
			continue
		}
		frac := float32(r.pos - float64(idx))
		for ch := 0; ch < dst.NumChannels(); ch++ {
			o := dst.Channel(ch)
			if ch >= r.channels {
				o[out] = 0
				continue
			}
			in := r.buf.Channel(ch)
			o[out] = in[idx]*(1-frac) + in[idx+1]*frac
		}
		out++
		r.pos += r.ratio
	}
	if out < want {
		dst.ClearRange(out, want-out)
		return out, io.EOF
	}
	return out, nil
}

// refill moves the unread tail to the front and reads more input. It reports
// false once the input is exhausted.
func (r *ResamplingSource) refill() bool {
	if r.eof {
		return false
	}
	keep := 0
	if idx := int(r.pos); idx < r.have {
		keep = r.have - idx
		for ch := 0; ch < r.channels; ch++ {
			c := r.buf.Channel(ch)
			copy(c, c[idx:r.have])
		}
		r.pos -= float64(idx)
	} else {
		r.pos -= float64(r.have)
	}
	r.have = keep

	space := r.buf.NumFrames() - r.have
	if space <= 0 {
		return true
	}
	n, err := r.input.Read(r.buf.Slice(r.have, space))
	r.have += max(n, 0)
	if errors.Is(err, io.EOF) || (err == nil && n == 0) {
		r.eof = true
	}
	return n > 0
}
