// ABOUTME: Scripted device list and stream factory for the simulated backend
// ABOUTME: Supports removal, busy endpoints, forced open failures and xrun injection
package simulated

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Sendspin/audioio/pkg/device"
	"github.com/rs/zerolog"
)

// ErrNoBackend is returned by Enumerate after SetAvailable(false)
var ErrNoBackend = errors.New("simulated backend disabled")

// Driver is a scripted device.Driver.
type Driver struct {
	name     string
	separate bool
	log      zerolog.Logger

	mu        sync.Mutex
	available bool
	outputs   []device.Descriptor
	inputs    []device.Descriptor
	busy      map[string]bool
	failOpen  map[string]error
	streams   []*Stream
	signal    func(ch, frame int) float32
}

// Option configures a Driver
type Option func(*Driver)

// WithLogger sets the driver logger
func WithLogger(log zerolog.Logger) Option {
	return func(d *Driver) { d.log = log }
}

// WithCombinedIO makes input and output endpoints a single choice, like
// backends that only open full-duplex devices.
func WithCombinedIO() Option {
	return func(d *Driver) { d.separate = false }
}

// WithInputSignal sets the generator for input samples. The default is silence.
func WithInputSignal(fn func(ch, frame int) float32) Option {
	return func(d *Driver) { d.signal = fn }
}

// NewDriver returns an empty, available driver.
func NewDriver(name string, opts ...Option) *Driver {
	d := &Driver{
		name:      name,
		separate:  true,
		log:       zerolog.Nop(),
		available: true,
		busy:      make(map[string]bool),
		failOpen:  make(map[string]error),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With().Str("component", "simulated").Str("driver", name).Logger()
	return d
}

// StereoOutput describes a typical two-channel output endpoint.
func StereoOutput(name string, isDefault bool) device.Descriptor {
	return device.Descriptor{
		Name:               name,
		IsDefault:          isDefault,
		SampleRates:        []float64{44100, 48000, 96000},
		BufferSizes:        slices.Clone(device.StandardBufferSizes),
		DefaultBufferSize:  512,
		OutputChannelNames: device.ChannelNames("Output", 2),
	}
}

// StereoInput describes a typical two-channel input endpoint.
func StereoInput(name string, isDefault bool) device.Descriptor {
	return device.Descriptor{
		Name:              name,
		IsDefault:         isDefault,
		SampleRates:       []float64{44100, 48000, 96000},
		BufferSizes:       slices.Clone(device.StandardBufferSizes),
		DefaultBufferSize: 512,
		InputChannelNames: device.ChannelNames("Input", 2),
	}
}

func (d *Driver) Name() string                      { return d.name }
func (d *Driver) HasSeparateInputsAndOutputs() bool { return d.separate }

// Enumerate lists outputs and inputs in the order they were added.
func (d *Driver) Enumerate() (outputs, inputs []device.Descriptor, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.available {
		return nil, nil, ErrNoBackend
	}
	for _, desc := range d.outputs {
		outputs = append(outputs, desc.Clone())
	}
	for _, desc := range d.inputs {
		inputs = append(inputs, desc.Clone())
	}
	return outputs, inputs, nil
}

// Add plugs in an endpoint. It appears in the output list when it has output
// channels and in the input list when it has input channels.
func (d *Driver) Add(desc device.Descriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(desc.OutputChannelNames) > 0 {
		d.outputs = append(slices.DeleteFunc(d.outputs, func(o device.Descriptor) bool { return o.Name == desc.Name }), desc.Clone())
	}
	if len(desc.InputChannelNames) > 0 {
		d.inputs = append(slices.DeleteFunc(d.inputs, func(o device.Descriptor) bool { return o.Name == desc.Name }), desc.Clone())
	}
	d.log.Debug().Str("device", desc.Name).Msg("endpoint added")
}

// Remove unplugs an endpoint. Streams using it stop delivering callbacks and
// report device.DeviceLostError through their OnError hook before Remove
// returns.
func (d *Driver) Remove(name string) {
	d.mu.Lock()
	d.outputs = slices.DeleteFunc(d.outputs, func(o device.Descriptor) bool { return o.Name == name })
	d.inputs = slices.DeleteFunc(d.inputs, func(o device.Descriptor) bool { return o.Name == name })
	var lost []*Stream
	for _, s := range d.streams {
		if s.uses(name) {
			lost = append(lost, s)
		}
	}
	d.mu.Unlock()

	d.log.Debug().Str("device", name).Int("streams", len(lost)).Msg("endpoint removed")
	for _, s := range lost {
		s.fail(&device.DeviceLostError{Device: name, Err: errors.New("endpoint removed")})
	}
}

// SetAvailable toggles whether the backend can be reached at all
func (d *Driver) SetAvailable(ok bool) {
	d.mu.Lock()
	d.available = ok
	d.mu.Unlock()
}

// SetBusy makes opens of name fail as if another application held it exclusively
func (d *Driver) SetBusy(name string, busy bool) {
	d.mu.Lock()
	d.busy[name] = busy
	d.mu.Unlock()
}

// FailOpen makes every open of name fail with err until cleared with nil
func (d *Driver) FailOpen(name string, err error) {
	d.mu.Lock()
	if err == nil {
		delete(d.failOpen, name)
	} else {
		d.failOpen[name] = err
	}
	d.mu.Unlock()
}

func (d *Driver) find(list []device.Descriptor, name string) bool {
	return slices.ContainsFunc(list, func(o device.Descriptor) bool { return o.Name == name })
}

// OpenStream implements device.Driver.
func (d *Driver) OpenStream(req device.StreamRequest, proc device.StreamProc) (device.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var names []string
	if req.Output != nil {
		if !d.find(d.outputs, req.Output.Name) {
			return nil, fmt.Errorf("output %q: %w", req.Output.Name, device.ErrUnknownDevice)
		}
		names = append(names, req.Output.Name)
	}
	if req.Input != nil {
		if !d.find(d.inputs, req.Input.Name) {
			return nil, fmt.Errorf("input %q: %w", req.Input.Name, device.ErrUnknownDevice)
		}
		names = append(names, req.Input.Name)
	}
	for _, n := range names {
		if err := d.failOpen[n]; err != nil {
			return nil, err
		}
		if d.busy[n] {
			return nil, &device.DeviceUnavailableError{Device: n, Err: device.ErrDeviceBusy}
		}
	}

	s := newStream(d, req, proc, names)
	d.streams = append(d.streams, s)
	d.log.Debug().Strs("endpoints", names).Float64("sample_rate", req.SampleRate).Int("buffer_size", req.BufferSize).Msg("stream opened")
	return s, nil
}

func (d *Driver) forget(s *Stream) {
	d.mu.Lock()
	d.streams = slices.DeleteFunc(d.streams, func(o *Stream) bool { return o == s })
	d.mu.Unlock()
}

func (d *Driver) snapshot() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.streams)
}

// Pump runs one period on every started stream. frames <= 0 uses each
// stream's buffer size.
func (d *Driver) Pump(frames int) {
	for _, s := range d.snapshot() {
		s.pump(frames)
	}
}

// PumpN runs n periods
func (d *Driver) PumpN(n, frames int) {
	for i := 0; i < n; i++ {
		d.Pump(frames)
	}
}

// InjectXRun reports an overrun on every stream using name
func (d *Driver) InjectXRun(name string) {
	for _, s := range d.snapshot() {
		if s.uses(name) && s.req.OnXRun != nil {
			s.req.OnXRun()
		}
	}
}

// Stream returns the most recent open stream using name, or nil.
func (d *Driver) Stream(name string) *Stream {
	streams := d.snapshot()
	for i := len(streams) - 1; i >= 0; i-- {
		if streams[i].uses(name) {
			return streams[i]
		}
	}
	return nil
}

// RunRealtime pumps at the period of the open streams until ctx is done, so
// the simulated backend can stand in for hardware in a running program.
func (d *Driver) RunRealtime(ctx context.Context) error {
	period := 10 * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		d.Pump(0)
		if p := d.period(); p > 0 && p != period {
			period = p
			ticker.Reset(period)
		}
	}
}

func (d *Driver) period() time.Duration {
	for _, s := range d.snapshot() {
		if s.req.SampleRate > 0 && s.req.BufferSize > 0 {
			return time.Duration(float64(s.req.BufferSize) / s.req.SampleRate * float64(time.Second))
		}
	}
	return 0
}
