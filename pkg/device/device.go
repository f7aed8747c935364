// ABOUTME: Open-device handle built over a Driver stream
// ABOUTME: Validates configuration, compacts active channels and drains callbacks on stop
package device

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/rs/zerolog"
)

// Device is one open-able audio endpoint, or an input/output pair for types
// that choose them separately.
type Device interface {
	Name() string
	TypeName() string
	OutputDeviceName() string
	InputDeviceName() string

	OutputChannelNames() []string
	InputChannelNames() []string
	AvailableSampleRates() []float64
	AvailableBufferSizes() []int
	DefaultBufferSize() int

	// Open acquires the endpoint. Sample rate and buffer size must be members
	// of the capability sets; zero picks the device default.
	Open(cfg OpenConfig) error
	Close()
	IsOpen() bool

	// Start prepares cb and begins delivering callbacks.
	Start(cb Callback) error

	// Stop returns once no callback is running and none will start. It must not
	// be called from inside IOCallback.
	Stop()
	IsPlaying() bool

	LastError() error
	CurrentSampleRate() float64
	CurrentBufferSize() int
	CurrentBitDepth() int
	ActiveInputChannels() audio.ChannelSet
	ActiveOutputChannels() audio.ChannelSet
	InputLatency() int
	OutputLatency() int

	// XRunCount returns the number of overruns seen since Open, or -1 when the
	// backend cannot tell.
	XRunCount() int

	// SetErrorHandler installs a hook for asynchronous failures such as unplug.
	SetErrorHandler(fn func(error))
}

type callbackHolder struct {
	cb Callback
}

type driverDevice struct {
	typ *driverType
	out *Descriptor
	in  *Descriptor
	log zerolog.Logger

	mu            sync.Mutex
	stream        Stream
	streamRunning bool
	keys          []endpointKey
	cfg           OpenConfig
	playing       bool

	// Audio goroutine state. activeIn/activeOut and the view slices are only
	// replaced while no stream exists.
	activeIn  []int
	activeOut []int
	inViews   [][]float32
	outViews  [][]float32

	cb       atomic.Pointer[callbackHolder]
	running  atomic.Bool
	inFlight atomic.Int32
	xruns    atomic.Int64

	errMu      sync.Mutex
	lastErr    error
	errHandler func(error)
}

func newDriverDevice(t *driverType, out, in *Descriptor) *driverDevice {
	d := &driverDevice{typ: t, out: out, in: in}
	d.log = t.log.With().Str("device", d.Name()).Logger()
	return d
}

func (d *driverDevice) Name() string {
	if d.out != nil {
		return d.out.Name
	}
	return d.in.Name
}

func (d *driverDevice) TypeName() string { return d.typ.Name() }

func (d *driverDevice) OutputDeviceName() string {
	if d.out == nil {
		return ""
	}
	return d.out.Name
}

func (d *driverDevice) InputDeviceName() string {
	if d.in == nil {
		return ""
	}
	return d.in.Name
}

func (d *driverDevice) OutputChannelNames() []string {
	if d.out == nil {
		return nil
	}
	return slices.Clone(d.out.OutputChannelNames)
}

func (d *driverDevice) InputChannelNames() []string {
	if d.in == nil {
		return nil
	}
	return slices.Clone(d.in.InputChannelNames)
}

// AvailableSampleRates intersects the rates of both directions. An empty
// result means any rate is accepted.
func (d *driverDevice) AvailableSampleRates() []float64 {
	switch {
	case d.out == nil:
		return slices.Clone(d.in.SampleRates)
	case d.in == nil || len(d.in.SampleRates) == 0:
		return slices.Clone(d.out.SampleRates)
	case len(d.out.SampleRates) == 0:
		return slices.Clone(d.in.SampleRates)
	}
	var rates []float64
	for _, r := range d.out.SampleRates {
		if slices.Contains(d.in.SampleRates, r) {
			rates = append(rates, r)
		}
	}
	return rates
}

func (d *driverDevice) AvailableBufferSizes() []int {
	switch {
	case d.out == nil:
		return slices.Clone(d.in.BufferSizes)
	case d.in == nil || len(d.in.BufferSizes) == 0:
		return slices.Clone(d.out.BufferSizes)
	case len(d.out.BufferSizes) == 0:
		return slices.Clone(d.in.BufferSizes)
	}
	var sizes []int
	for _, s := range d.out.BufferSizes {
		if slices.Contains(d.in.BufferSizes, s) {
			sizes = append(sizes, s)
		}
	}
	return sizes
}

func (d *driverDevice) DefaultBufferSize() int {
	sizes := d.AvailableBufferSizes()
	var def int
	if d.out != nil {
		def = d.out.DefaultBufferSize
	} else {
		def = d.in.DefaultBufferSize
	}
	if def > 0 && (len(sizes) == 0 || slices.Contains(sizes, def)) {
		return def
	}
	if len(sizes) > 0 {
		return sizes[len(sizes)/2]
	}
	return 512
}

func (d *driverDevice) defaultSampleRate() float64 {
	rates := d.AvailableSampleRates()
	if len(rates) == 0 {
		return 44100
	}
	for _, preferred := range []float64{48000, 44100} {
		if slices.Contains(rates, preferred) {
			return preferred
		}
	}
	return rates[len(rates)-1]
}

func (d *driverDevice) validate(cfg *OpenConfig) error {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = d.defaultSampleRate()
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = d.DefaultBufferSize()
	}

	if rates := d.AvailableSampleRates(); len(rates) > 0 && !slices.Contains(rates, cfg.SampleRate) {
		return &ConfigurationError{Device: d.Name(), Param: "sample rate", Requested: cfg.SampleRate, Supported: rates}
	}
	if sizes := d.AvailableBufferSizes(); len(sizes) > 0 && !slices.Contains(sizes, cfg.BufferSize) {
		return &ConfigurationError{Device: d.Name(), Param: "buffer size", Requested: cfg.BufferSize, Supported: sizes}
	}
	if cfg.BufferSize < 0 {
		return &ConfigurationError{Device: d.Name(), Param: "buffer size", Requested: cfg.BufferSize}
	}

	numOut := len(d.OutputChannelNames())
	if h := cfg.OutputChannels.Highest(); h >= numOut {
		return &ConfigurationError{Device: d.Name(), Param: "output channel", Requested: h, Supported: fmt.Sprintf("0..%d", numOut-1)}
	}
	numIn := len(d.InputChannelNames())
	if h := cfg.InputChannels.Highest(); h >= numIn {
		return &ConfigurationError{Device: d.Name(), Param: "input channel", Requested: h, Supported: fmt.Sprintf("0..%d", numIn-1)}
	}
	if cfg.OutputChannels.IsEmpty() && cfg.InputChannels.IsEmpty() {
		return &ConfigurationError{Device: d.Name(), Param: "channels", Requested: "none"}
	}
	return nil
}

func (d *driverDevice) Open(cfg OpenConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		d.closeLocked()
	}

	cfg.InputChannels = cfg.InputChannels.Clone()
	cfg.OutputChannels = cfg.OutputChannels.Clone()
	if err := d.validate(&cfg); err != nil {
		d.setLastError(err)
		return err
	}

	var keys []endpointKey
	if !cfg.OutputChannels.IsEmpty() {
		keys = append(keys, endpointKey{name: d.out.Name})
	}
	if !cfg.InputChannels.IsEmpty() {
		keys = append(keys, endpointKey{input: true, name: d.in.Name})
	}
	if !d.typ.endpoints.acquire(keys...) {
		err := &DeviceUnavailableError{Device: d.Name(), Err: ErrDeviceBusy}
		d.setLastError(err)
		return err
	}

	activeIn := cfg.InputChannels.Indices()
	activeOut := cfg.OutputChannels.Indices()
	req := StreamRequest{
		SampleRate:        cfg.SampleRate,
		BufferSize:        cfg.BufferSize,
		NumInputChannels:  cfg.InputChannels.Highest() + 1,
		NumOutputChannels: cfg.OutputChannels.Highest() + 1,
		OnError:           d.handleStreamError,
		OnXRun:            func() { d.xruns.Add(1) },
	}
	if len(activeOut) > 0 {
		req.Output = d.out
	}
	if len(activeIn) > 0 {
		req.Input = d.in
	}

	d.activeIn, d.activeOut = activeIn, activeOut
	d.inViews = make([][]float32, len(activeIn))
	d.outViews = make([][]float32, len(activeOut))
	d.xruns.Store(0)

	stream, err := d.typ.driver.OpenStream(req, d.process)
	if err != nil {
		d.typ.endpoints.release(keys...)
		var cfgErr *ConfigurationError
		var unavailable *DeviceUnavailableError
		if !errors.As(err, &cfgErr) && !errors.As(err, &unavailable) {
			err = &DeviceUnavailableError{Device: d.Name(), Err: err}
		}
		d.setLastError(err)
		return err
	}

	d.stream = stream
	d.keys = keys
	d.cfg = cfg
	d.setLastError(nil)

	d.log.Info().
		Float64("sample_rate", stream.SampleRate()).
		Int("buffer_size", stream.BufferSize()).
		Str("inputs", cfg.InputChannels.String()).
		Str("outputs", cfg.OutputChannels.String()).
		Msg("device opened")
	return nil
}

func (d *driverDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
}

func (d *driverDevice) closeLocked() {
	if d.stream == nil {
		return
	}
	d.stopLocked()
	if d.streamRunning {
		if err := d.stream.Stop(); err != nil {
			d.log.Warn().Err(err).Msg("stream stop failed")
		}
		d.streamRunning = false
	}
	if err := d.stream.Close(); err != nil {
		d.log.Warn().Err(err).Msg("stream close failed")
	}
	d.stream = nil
	d.typ.endpoints.release(d.keys...)
	d.keys = nil
	d.log.Info().Msg("device closed")
}

func (d *driverDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream != nil
}

func (d *driverDevice) Start(cb Callback) error {
	if cb == nil {
		return errors.New("nil callback")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return ErrNotOpen
	}
	if d.playing {
		if current := d.cb.Load(); current != nil && current.cb == cb {
			return nil
		}
		d.stopLocked()
	}

	cb.PrepareToPlay(d.stream.SampleRate(), d.stream.BufferSize())
	if ab, ok := cb.(AboutToStartCallback); ok {
		ab.AboutToStart(d)
	}
	d.cb.Store(&callbackHolder{cb: cb})

	if !d.streamRunning {
		if err := d.stream.Start(); err != nil {
			d.cb.Store(nil)
			cb.ReleaseResources()
			wrapped := &DeviceUnavailableError{Device: d.Name(), Err: err}
			d.setLastError(wrapped)
			return wrapped
		}
		d.streamRunning = true
	}

	d.running.Store(true)
	d.playing = true
	return nil
}

func (d *driverDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// stopLocked clears the running flag and waits out any callback that saw it
// set. The native stream keeps running and delivers silence until Close.
func (d *driverDevice) stopLocked() {
	if !d.playing {
		return
	}
	d.running.Store(false)
	for d.inFlight.Load() > 0 {
		runtime.Gosched()
	}
	if h := d.cb.Swap(nil); h != nil {
		h.cb.ReleaseResources()
	}
	d.playing = false
}

func (d *driverDevice) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// process is the StreamProc handed to the driver.
func (d *driverDevice) process(in, out [][]float32, frames int) {
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	for _, ch := range out {
		clear(ch[:min(frames, len(ch))])
	}
	if !d.running.Load() {
		return
	}
	h := d.cb.Load()
	if h == nil {
		return
	}

	for i, ch := range d.activeIn {
		if ch < len(in) {
			d.inViews[i] = in[ch][:frames]
		}
	}
	for i, ch := range d.activeOut {
		if ch < len(out) {
			d.outViews[i] = out[ch][:frames]
		}
	}
	h.cb.IOCallback(d.inViews, d.outViews, frames)
}

func (d *driverDevice) handleStreamError(err error) {
	var lost *DeviceLostError
	if !errors.As(err, &lost) {
		err = &DeviceLostError{Device: d.Name(), Err: err}
	}
	d.log.Warn().Err(err).Msg("device error")

	d.errMu.Lock()
	d.lastErr = err
	handler := d.errHandler
	d.errMu.Unlock()

	if h := d.cb.Load(); h != nil {
		if ec, ok := h.cb.(ErrorCallback); ok {
			ec.DeviceError(err)
		}
	}
	if handler != nil {
		handler(err)
	}
}

func (d *driverDevice) setLastError(err error) {
	d.errMu.Lock()
	d.lastErr = err
	d.errMu.Unlock()
}

func (d *driverDevice) LastError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.lastErr
}

func (d *driverDevice) SetErrorHandler(fn func(error)) {
	d.errMu.Lock()
	d.errHandler = fn
	d.errMu.Unlock()
}

func (d *driverDevice) CurrentSampleRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return 0
	}
	return d.stream.SampleRate()
}

func (d *driverDevice) CurrentBufferSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return 0
	}
	return d.stream.BufferSize()
}

func (d *driverDevice) CurrentBitDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return 0
	}
	return d.stream.BitDepth()
}

func (d *driverDevice) ActiveInputChannels() audio.ChannelSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return audio.NewChannelSet()
	}
	return d.cfg.InputChannels.Clone()
}

func (d *driverDevice) ActiveOutputChannels() audio.ChannelSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return audio.NewChannelSet()
	}
	return d.cfg.OutputChannels.Clone()
}

func (d *driverDevice) InputLatency() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return 0
	}
	in, _ := d.stream.Latency()
	return in
}

func (d *driverDevice) OutputLatency() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return 0
	}
	_, out := d.stream.Latency()
	return out
}

func (d *driverDevice) XRunCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return 0
	}
	if r, ok := d.stream.(XRunReporter); !ok || !r.ReportsXRuns() {
		return -1
	}
	return int(d.xruns.Load())
}
