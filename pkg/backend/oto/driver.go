// ABOUTME: oto driver: single default output and process-wide context
// ABOUTME: The context is created by the first open and reused afterwards
package oto

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Sendspin/audioio/pkg/device"
	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"
)

// DeviceName is the only endpoint the driver lists
const DeviceName = "Default Output"

const numChannels = 2

// oto refuses a second context, so it is shared by every Driver.
var shared struct {
	mu   sync.Mutex
	ctx  *oto.Context
	rate int
}

// Driver is a device.Driver over oto.
type Driver struct {
	log zerolog.Logger
}

// NewDriver returns the oto driver
func NewDriver(log zerolog.Logger) *Driver {
	return &Driver{log: log.With().Str("component", "oto").Logger()}
}

func (d *Driver) Name() string                      { return "oto" }
func (d *Driver) HasSeparateInputsAndOutputs() bool { return true }

// Enumerate lists the default output. Once a context exists only its rate is
// offered.
func (d *Driver) Enumerate() (outputs, inputs []device.Descriptor, err error) {
	shared.mu.Lock()
	rate := shared.rate
	shared.mu.Unlock()

	rates := []float64{44100, 48000, 96000}
	if rate > 0 {
		rates = []float64{float64(rate)}
	}
	return []device.Descriptor{{
		Name:               DeviceName,
		IsDefault:          true,
		SampleRates:        rates,
		BufferSizes:        slices.Clone(device.StandardBufferSizes),
		DefaultBufferSize:  1024,
		OutputChannelNames: device.ChannelNames("Output", numChannels),
	}}, nil, nil
}

func (d *Driver) context(rate, bufferSize int) (*oto.Context, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.ctx != nil {
		if shared.rate != rate {
			return nil, &device.ConfigurationError{Device: DeviceName, Param: "sample rate", Requested: float64(rate), Supported: float64(shared.rate)}
		}
		return shared.ctx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: numChannels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(float64(bufferSize) / float64(rate) * float64(time.Second)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	shared.ctx = ctx
	shared.rate = rate
	d.log.Info().Int("sample_rate", rate).Msg("oto context created")
	return ctx, nil
}

// OpenStream implements device.Driver.
func (d *Driver) OpenStream(req device.StreamRequest, proc device.StreamProc) (device.Stream, error) {
	if req.Input != nil {
		return nil, &device.ConfigurationError{Device: DeviceName, Param: "input channels", Requested: req.NumInputChannels, Supported: 0}
	}
	ctx, err := d.context(int(req.SampleRate), req.BufferSize)
	if err != nil {
		return nil, err
	}

	s := &stream{req: req, reader: newPullReader(proc, numChannels, req.BufferSize)}
	s.player = ctx.NewPlayer(s.reader)
	return s, nil
}

type stream struct {
	req    device.StreamRequest
	reader *pullReader
	player *oto.Player
}

func (s *stream) Start() error {
	s.player.Play()
	return nil
}

func (s *stream) Stop() error {
	s.player.Pause()
	return nil
}

func (s *stream) Close() error {
	return s.player.Close()
}

func (s *stream) SampleRate() float64 { return s.req.SampleRate }
func (s *stream) BufferSize() int     { return s.req.BufferSize }
func (s *stream) BitDepth() int       { return 32 }

func (s *stream) Latency() (input, output int) {
	frameBytes := numChannels * 4
	return 0, s.req.BufferSize + s.player.BufferedSize()/frameBytes
}
