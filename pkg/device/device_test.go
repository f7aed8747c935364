// ABOUTME: Tests for the generic device type and device handle
// ABOUTME: Uses an in-memory driver to check validation, busy endpoints and stop draining
package device

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	req     StreamRequest
	proc    StreamProc
	started atomic.Bool
	closed  atomic.Bool
}

func (s *fakeStream) Start() error        { s.started.Store(true); return nil }
func (s *fakeStream) Stop() error         { s.started.Store(false); return nil }
func (s *fakeStream) Close() error        { s.closed.Store(true); return nil }
func (s *fakeStream) SampleRate() float64 { return s.req.SampleRate }
func (s *fakeStream) BufferSize() int     { return s.req.BufferSize }
func (s *fakeStream) BitDepth() int       { return 32 }
func (s *fakeStream) Latency() (int, int) { return 10, 20 }

// pump runs one period with ramp input on every native channel.
func (s *fakeStream) pump() [][]float32 {
	frames := s.req.BufferSize
	in := make([][]float32, s.req.NumInputChannels)
	for ch := range in {
		in[ch] = make([]float32, frames)
		for i := range in[ch] {
			in[ch][i] = float32(ch + 1)
		}
	}
	out := make([][]float32, s.req.NumOutputChannels)
	for ch := range out {
		out[ch] = make([]float32, frames)
		for i := range out[ch] {
			out[ch][i] = 99
		}
	}
	s.proc(in, out, frames)
	return out
}

type fakeDriver struct {
	mu      sync.Mutex
	outputs []Descriptor
	inputs  []Descriptor
	streams []*fakeStream
	openErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		outputs: []Descriptor{{
			Name:               "Speakers",
			IsDefault:          true,
			SampleRates:        []float64{48000, 44100},
			BufferSizes:        []int{256, 512},
			OutputChannelNames: ChannelNames("Out", 4),
		}},
		inputs: []Descriptor{{
			Name:              "Mic",
			SampleRates:       []float64{44100, 48000},
			BufferSizes:       []int{512},
			InputChannelNames: ChannelNames("In", 2),
		}},
	}
}

func (f *fakeDriver) Name() string                      { return "Fake" }
func (f *fakeDriver) HasSeparateInputsAndOutputs() bool { return true }

func (f *fakeDriver) Enumerate() ([]Descriptor, []Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Descriptor, len(f.outputs))
	copy(out, f.outputs)
	in := make([]Descriptor, len(f.inputs))
	copy(in, f.inputs)
	return out, in, nil
}

func (f *fakeDriver) OpenStream(req StreamRequest, proc StreamProc) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeStream{req: req, proc: proc}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeDriver) lastStream() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[len(f.streams)-1]
}

func newTestType(t *testing.T) (*fakeDriver, Type) {
	t.Helper()
	drv := newFakeDriver()
	return drv, NewType(drv, zerolog.Nop())
}

func TestTypeDeviceNames(t *testing.T) {
	drv, typ := newTestType(t)
	drv.outputs = append([]Descriptor{{Name: "HDMI"}}, drv.outputs...)

	names := typ.DeviceNames(false)
	assert.Equal(t, []string{"Speakers", "HDMI"}, names)
	assert.Equal(t, 0, typ.DefaultDeviceIndex(false))
	assert.Equal(t, []string{"Mic"}, typ.DeviceNames(true))

	d, ok := typ.Describe("Speakers", false)
	require.True(t, ok)
	assert.Equal(t, []float64{44100, 48000}, d.SampleRates)
	assert.Equal(t, "Fake", d.TypeName)
	assert.True(t, typ.Available())
}

func TestTypeCreateUnknownDevice(t *testing.T) {
	_, typ := newTestType(t)
	_, err := typ.CreateDevice("Nope", "")
	assert.ErrorIs(t, err, ErrUnknownDevice)
	_, err = typ.CreateDevice("", "")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestTypeListenerFiresOnChange(t *testing.T) {
	drv, typ := newTestType(t)
	typ.ScanForDevices()

	var calls atomic.Int32
	remove := typ.AddListener(func() { calls.Add(1) })

	typ.ScanForDevices()
	assert.Equal(t, int32(0), calls.Load(), "unchanged scan must not notify")

	drv.mu.Lock()
	drv.outputs = nil
	drv.mu.Unlock()
	typ.ScanForDevices()
	assert.Equal(t, int32(1), calls.Load())

	remove()
	drv.mu.Lock()
	drv.outputs = newFakeDriver().outputs
	drv.mu.Unlock()
	typ.ScanForDevices()
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenValidation(t *testing.T) {
	tests := []struct {
		name  string
		cfg   OpenConfig
		param string
	}{
		{"unsupported rate", OpenConfig{SampleRate: 96000, BufferSize: 512, OutputChannels: audio.ChannelRange(2)}, "sample rate"},
		{"unsupported buffer", OpenConfig{SampleRate: 48000, BufferSize: 300, OutputChannels: audio.ChannelRange(2)}, "buffer size"},
		{"output channel out of range", OpenConfig{SampleRate: 48000, BufferSize: 512, OutputChannels: audio.NewChannelSet(4)}, "output channel"},
		{"input channel out of range", OpenConfig{SampleRate: 48000, BufferSize: 512, InputChannels: audio.NewChannelSet(0, 2)}, "input channel"},
		{"no channels", OpenConfig{SampleRate: 48000, BufferSize: 512}, "channels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv, typ := newTestType(t)
			dev, err := typ.CreateDevice("Speakers", "Mic")
			require.NoError(t, err)

			err = dev.Open(tt.cfg)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.param, cfgErr.Param)
			assert.False(t, dev.IsOpen())
			assert.Empty(t, drv.streams)
		})
	}
}

func TestOpenEchoesNegotiatedValues(t *testing.T) {
	_, typ := newTestType(t)
	dev, err := typ.CreateDevice("Speakers", "Mic")
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, dev.Open(OpenConfig{
		SampleRate:     44100,
		BufferSize:     512,
		OutputChannels: audio.NewChannelSet(1, 3),
		InputChannels:  audio.NewChannelSet(1),
	}))

	assert.True(t, dev.IsOpen())
	assert.Equal(t, 44100.0, dev.CurrentSampleRate())
	assert.Equal(t, 512, dev.CurrentBufferSize())
	assert.Equal(t, 32, dev.CurrentBitDepth())
	assert.Equal(t, 10, dev.InputLatency())
	assert.Equal(t, 20, dev.OutputLatency())
	assert.Equal(t, -1, dev.XRunCount())
	assert.Equal(t, []int{1, 3}, dev.ActiveOutputChannels().Indices())
	assert.Equal(t, []float64{44100, 48000}, dev.AvailableSampleRates())
	assert.Equal(t, []int{512}, dev.AvailableBufferSizes())
}

func TestOpenDefaultsWhenUnset(t *testing.T) {
	_, typ := newTestType(t)
	dev, err := typ.CreateDevice("Speakers", "")
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, dev.Open(OpenConfig{OutputChannels: audio.ChannelRange(2)}))
	assert.Equal(t, 48000.0, dev.CurrentSampleRate())
	assert.Equal(t, 512, dev.CurrentBufferSize())
}

func TestSecondOpenOfEndpointIsBusy(t *testing.T) {
	_, typ := newTestType(t)
	cfg := OpenConfig{SampleRate: 48000, BufferSize: 256, OutputChannels: audio.ChannelRange(2)}

	first, err := typ.CreateDevice("Speakers", "")
	require.NoError(t, err)
	require.NoError(t, first.Open(cfg))

	second, err := typ.CreateDevice("Speakers", "")
	require.NoError(t, err)
	err = second.Open(cfg)
	var unavailable *DeviceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, ErrDeviceBusy)
	assert.False(t, second.IsOpen())

	first.Close()
	require.NoError(t, second.Open(cfg))
	second.Close()
}

func TestOpenFailureReleasesEndpoint(t *testing.T) {
	drv, typ := newTestType(t)
	drv.openErr = errors.New("hardware said no")
	cfg := OpenConfig{SampleRate: 48000, BufferSize: 256, OutputChannels: audio.ChannelRange(2)}

	dev, err := typ.CreateDevice("Speakers", "")
	require.NoError(t, err)
	err = dev.Open(cfg)
	var unavailable *DeviceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, err, dev.LastError())

	drv.openErr = nil
	require.NoError(t, dev.Open(cfg))
	dev.Close()
}

func TestCallbackSeesCompactedChannels(t *testing.T) {
	drv, typ := newTestType(t)
	dev, err := typ.CreateDevice("Speakers", "Mic")
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, dev.Open(OpenConfig{
		SampleRate:     48000,
		BufferSize:     512,
		OutputChannels: audio.NewChannelSet(1, 3),
		InputChannels:  audio.NewChannelSet(1),
	}))

	var gotIn, gotOut int
	var firstIn float32
	cb := &CallbackFuncs{Process: func(in, out [][]float32, n int) {
		gotIn, gotOut = len(in), len(out)
		firstIn = in[0][0]
		for i := range out[1] {
			out[1][i] = 0.5
		}
	}}
	require.NoError(t, dev.Start(cb))

	out := drv.lastStream().pump()
	assert.Equal(t, 1, gotIn)
	assert.Equal(t, 2, gotOut)
	assert.Equal(t, float32(2), firstIn, "input channel 1 must arrive first")
	assert.Equal(t, float32(0), out[0][0], "inactive output must be silent")
	assert.Equal(t, float32(0.5), out[3][0])
}

func TestStopDrainsInFlightCallback(t *testing.T) {
	drv, typ := newTestType(t)
	dev, err := typ.CreateDevice("Speakers", "")
	require.NoError(t, err)
	defer dev.Close()
	require.NoError(t, dev.Open(OpenConfig{SampleRate: 48000, BufferSize: 256, OutputChannels: audio.ChannelRange(2)}))

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished, released atomic.Bool
	var calls atomic.Int32
	cb := &CallbackFuncs{
		Process: func(in, out [][]float32, n int) {
			if calls.Add(1) == 1 {
				close(entered)
				<-release
				finished.Store(true)
			}
		},
		Release: func() { released.Store(true) },
	}
	require.NoError(t, dev.Start(cb))

	stream := drv.lastStream()
	go stream.pump()
	<-entered

	stopped := make(chan struct{})
	go func() {
		dev.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a callback was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-stopped
	assert.True(t, finished.Load())
	assert.True(t, released.Load())
	assert.False(t, dev.IsPlaying())

	stream.pump()
	assert.Equal(t, int32(1), calls.Load(), "no callback may run after Stop")
	assert.True(t, stream.started.Load(), "native stream keeps running until Close")
}

func TestCloseIsIdempotent(t *testing.T) {
	drv, typ := newTestType(t)
	dev, err := typ.CreateDevice("Speakers", "")
	require.NoError(t, err)
	require.NoError(t, dev.Open(OpenConfig{SampleRate: 48000, BufferSize: 256, OutputChannels: audio.ChannelRange(2)}))
	require.NoError(t, dev.Start(&CallbackFuncs{}))

	dev.Close()
	dev.Close()
	assert.False(t, dev.IsOpen())
	assert.False(t, dev.IsPlaying())
	assert.True(t, drv.lastStream().closed.Load())
	assert.ErrorIs(t, dev.Start(&CallbackFuncs{}), ErrNotOpen)
}

type errorRecorder struct {
	CallbackFuncs
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) DeviceError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func TestAsyncErrorReachesConsumerAndHandler(t *testing.T) {
	drv, typ := newTestType(t)
	dev, err := typ.CreateDevice("Speakers", "")
	require.NoError(t, err)
	defer dev.Close()
	require.NoError(t, dev.Open(OpenConfig{SampleRate: 48000, BufferSize: 256, OutputChannels: audio.ChannelRange(2)}))

	rec := &errorRecorder{}
	require.NoError(t, dev.Start(rec))

	var handled error
	dev.SetErrorHandler(func(err error) { handled = err })

	drv.lastStream().req.OnError(errors.New("unplugged"))

	var lost *DeviceLostError
	require.ErrorAs(t, handled, &lost)
	assert.Equal(t, "Speakers", lost.Device)
	require.Len(t, rec.errs, 1)
	assert.ErrorAs(t, dev.LastError(), &lost)
}

func TestUniqueName(t *testing.T) {
	seen := map[string]int{}
	assert.Equal(t, "USB", UniqueName("USB", seen))
	assert.Equal(t, "USB (2)", UniqueName("USB", seen))
	assert.Equal(t, "HDMI", UniqueName("HDMI", seen))
	assert.Equal(t, "USB (3)", UniqueName("USB", seen))
}
