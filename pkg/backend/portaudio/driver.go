//go:build portaudio

// ABOUTME: PortAudio driver for one host API
// ABOUTME: Probes capability sets with IsFormatSupported and opens non-interleaved float32 streams
package portaudio

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/audioio/pkg/device"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// Initialize loads the native library. Call Terminate when done.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return nil
}

// Terminate releases the native library
func Terminate() {
	portaudio.Terminate()
}

// NewDrivers returns one driver per host API.
func NewDrivers(log zerolog.Logger) []*Driver {
	apis, err := portaudio.HostApis()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list portaudio host APIs")
		return nil
	}
	drivers := make([]*Driver, 0, len(apis))
	for _, api := range apis {
		drivers = append(drivers, &Driver{
			api: api.Name,
			log: log.With().Str("component", "portaudio").Str("host_api", api.Name).Logger(),
		})
	}
	return drivers
}

// Driver is a device.Driver for one PortAudio host API.
type Driver struct {
	api string
	log zerolog.Logger

	mu      sync.Mutex
	devices map[string]*portaudio.DeviceInfo
}

func (d *Driver) Name() string                      { return "PortAudio " + d.api }
func (d *Driver) HasSeparateInputsAndOutputs() bool { return true }

func (d *Driver) hostAPI() (*portaudio.HostApiInfo, error) {
	apis, err := portaudio.HostApis()
	if err != nil {
		return nil, err
	}
	for _, api := range apis {
		if api.Name == d.api {
			return api, nil
		}
	}
	return nil, fmt.Errorf("host API %q: %w", d.api, device.ErrBackendUnavailable)
}

// Enumerate implements device.Driver.
func (d *Driver) Enumerate() (outputs, inputs []device.Descriptor, err error) {
	api, err := d.hostAPI()
	if err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = make(map[string]*portaudio.DeviceInfo)
	seen := make(map[string]int)

	for _, info := range api.Devices {
		name := device.UniqueName(info.Name, seen)
		d.devices[name] = info
		if info.MaxOutputChannels > 0 {
			outputs = append(outputs, d.describe(name, info, false, info == api.DefaultOutputDevice))
		}
		if info.MaxInputChannels > 0 {
			inputs = append(inputs, d.describe(name, info, true, info == api.DefaultInputDevice))
		}
	}
	return outputs, inputs, nil
}

func (d *Driver) describe(name string, info *portaudio.DeviceInfo, input, isDefault bool) device.Descriptor {
	params := portaudio.StreamParameters{}
	channels := info.MaxOutputChannels
	if input {
		channels = info.MaxInputChannels
		params.Input = portaudio.StreamDeviceParameters{Device: info, Channels: channels, Latency: info.DefaultLowInputLatency}
	} else {
		params.Output = portaudio.StreamDeviceParameters{Device: info, Channels: channels, Latency: info.DefaultLowOutputLatency}
	}

	var rates []float64
	for _, rate := range device.StandardSampleRates {
		params.SampleRate = rate
		if portaudio.IsFormatSupported(params, func(in, out [][]float32) {}) == nil {
			rates = append(rates, rate)
		}
	}
	if len(rates) == 0 {
		rates = []float64{info.DefaultSampleRate}
	}

	desc := device.Descriptor{
		Name:              name,
		IsDefault:         isDefault,
		SampleRates:       rates,
		BufferSizes:       slices.Clone(device.StandardBufferSizes),
		DefaultBufferSize: 512,
	}
	if input {
		desc.InputChannelNames = device.ChannelNames("Input", channels)
	} else {
		desc.OutputChannelNames = device.ChannelNames("Output", channels)
	}
	return desc
}

// OpenStream implements device.Driver.
func (d *Driver) OpenStream(req device.StreamRequest, proc device.StreamProc) (device.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	params := portaudio.StreamParameters{
		SampleRate:      req.SampleRate,
		FramesPerBuffer: req.BufferSize,
	}
	if req.Output != nil {
		info, ok := d.devices[req.Output.Name]
		if !ok {
			return nil, fmt.Errorf("output %q: %w", req.Output.Name, device.ErrUnknownDevice)
		}
		params.Output = portaudio.StreamDeviceParameters{Device: info, Channels: req.NumOutputChannels, Latency: info.DefaultLowOutputLatency}
	}
	if req.Input != nil {
		info, ok := d.devices[req.Input.Name]
		if !ok {
			return nil, fmt.Errorf("input %q: %w", req.Input.Name, device.ErrUnknownDevice)
		}
		params.Input = portaudio.StreamDeviceParameters{Device: info, Channels: req.NumInputChannels, Latency: info.DefaultLowInputLatency}
	}

	s := &stream{req: req, proc: proc}
	pa, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	s.pa = pa
	return s, nil
}

type stream struct {
	req     device.StreamRequest
	proc    device.StreamProc
	pa      *portaudio.Stream
	started atomic.Bool
}

func (s *stream) callback(in, out [][]float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	if flags&(portaudio.InputOverflow|portaudio.OutputUnderflow) != 0 && s.req.OnXRun != nil {
		s.req.OnXRun()
	}
	frames := 0
	if len(out) > 0 {
		frames = len(out[0])
	} else if len(in) > 0 {
		frames = len(in[0])
	}
	s.proc(in, out, frames)
}

func (s *stream) Start() error {
	if err := s.pa.Start(); err != nil {
		return err
	}
	s.started.Store(true)
	return nil
}

func (s *stream) Stop() error {
	s.started.Store(false)
	return s.pa.Stop()
}

func (s *stream) Close() error { return s.pa.Close() }

func (s *stream) SampleRate() float64 { return s.pa.Info().SampleRate }
func (s *stream) BufferSize() int     { return s.req.BufferSize }
func (s *stream) BitDepth() int       { return 32 }
func (s *stream) ReportsXRuns() bool  { return true }

func (s *stream) Latency() (input, output int) {
	info := s.pa.Info()
	toFrames := func(d time.Duration) int { return int(d.Seconds() * info.SampleRate) }
	return toFrames(info.InputLatency), toFrames(info.OutputLatency)
}
