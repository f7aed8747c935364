//go:build cgo && !noaudio

// ABOUTME: miniaudio stream converting interleaved float32 bytes to planar buffers
// ABOUTME: Unrequested stops are reported as device loss
package malgo

import (
	"sync/atomic"

	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/Sendspin/audioio/pkg/device"
	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

type stream struct {
	req  device.StreamRequest
	proc device.StreamProc
	dev  *malgo.Device
	log  zerolog.Logger

	stopping atomic.Bool
	in       [][]float32
	out      [][]float32
	period   int
}

func newStream(req device.StreamRequest, proc device.StreamProc, log zerolog.Logger) *stream {
	s := &stream{req: req, proc: proc, log: log, period: req.BufferSize}
	s.in = make([][]float32, req.NumInputChannels)
	for i := range s.in {
		s.in[i] = make([]float32, req.BufferSize)
	}
	s.out = make([][]float32, req.NumOutputChannels)
	for i := range s.out {
		s.out[i] = make([]float32, req.BufferSize)
	}
	return s
}

// onData runs on the miniaudio thread. miniaudio may hand over more frames
// than the period, so the work is split into period-sized chunks.
func (s *stream) onData(pOutput, pInput []byte, frameCount uint32) {
	frames := int(frameCount)
	inStride := len(s.in) * 4
	outStride := len(s.out) * 4

	for done := 0; done < frames; {
		n := min(frames-done, s.period)
		if len(s.in) > 0 && len(pInput) >= (done+n)*inStride {
			audio.DecodeFloat32LE(pInput[done*inStride:], s.in, n)
		}
		s.proc(s.in, s.out, n)
		if len(s.out) > 0 && len(pOutput) >= (done+n)*outStride {
			audio.EncodeFloat32LE(s.out, pOutput[done*outStride:], n)
		}
		done += n
	}
}

func (s *stream) onStop() {
	if s.stopping.Load() {
		return
	}
	if s.req.OnError != nil {
		go s.req.OnError(&device.DeviceLostError{Device: endpointName(s.req)})
	}
}

func (s *stream) Start() error {
	s.stopping.Store(false)
	return s.dev.Start()
}

func (s *stream) Stop() error {
	s.stopping.Store(true)
	return s.dev.Stop()
}

func (s *stream) Close() error {
	s.stopping.Store(true)
	s.dev.Uninit()
	return nil
}

func (s *stream) SampleRate() float64 { return float64(s.dev.SampleRate()) }
func (s *stream) BufferSize() int     { return s.period }
func (s *stream) BitDepth() int       { return 32 }

// Latency reports two periods, the depth miniaudio is configured with
func (s *stream) Latency() (input, output int) {
	if len(s.in) > 0 {
		input = 2 * s.period
	}
	if len(s.out) > 0 {
		output = 2 * s.period
	}
	return input, output
}
