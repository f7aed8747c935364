// ABOUTME: io.Reader that renders audio on demand for oto's pull model
// ABOUTME: Runs the stream callback in period-sized chunks and encodes float32 LE
package oto

import (
	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/Sendspin/audioio/pkg/device"
)

type pullReader struct {
	proc   device.StreamProc
	in     [][]float32
	out    [][]float32
	period int
}

func newPullReader(proc device.StreamProc, channels, period int) *pullReader {
	r := &pullReader{proc: proc, period: period}
	r.out = make([][]float32, channels)
	for i := range r.out {
		r.out[i] = make([]float32, period)
	}
	return r
}

// Read fills p with whole frames. It never blocks and never returns an error.
func (r *pullReader) Read(p []byte) (int, error) {
	frameBytes := len(r.out) * 4
	frames := len(p) / frameBytes
	for done := 0; done < frames; {
		n := min(frames-done, r.period)
		r.proc(r.in, r.out, n)
		audio.EncodeFloat32LE(r.out, p[done*frameBytes:], n)
		done += n
	}
	return frames * frameBytes, nil
}
