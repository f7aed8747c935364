//go:build cgo && !noaudio

// ABOUTME: miniaudio driver: enumeration and stream factory
// ABOUTME: Maps endpoint names to malgo device IDs captured at scan time
package malgo

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Sendspin/audioio/pkg/device"
	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

type endpointID struct {
	input bool
	name  string
}

// Driver is a device.Driver over one malgo context.
type Driver struct {
	mode Mode
	log  zerolog.Logger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
	ids map[endpointID]malgo.DeviceID
}

// NewDriver returns a driver for the given share mode. The malgo context is
// created on first use.
func NewDriver(mode Mode, log zerolog.Logger) *Driver {
	return &Driver{
		mode: mode,
		log:  log.With().Str("component", "malgo").Str("mode", mode.TypeName()).Logger(),
		ids:  make(map[endpointID]malgo.DeviceID),
	}
}

func (d *Driver) Name() string                      { return d.mode.TypeName() }
func (d *Driver) HasSeparateInputsAndOutputs() bool { return true }

func (d *Driver) shareMode() malgo.ShareMode {
	if d.mode == Exclusive {
		return malgo.Exclusive
	}
	return malgo.Shared
}

func (d *Driver) context() (*malgo.AllocatedContext, error) {
	if d.ctx != nil {
		return d.ctx, nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		d.log.Debug().Str("message", message).Msg("miniaudio")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	d.ctx = ctx
	return ctx, nil
}

// Enumerate implements device.Driver.
func (d *Driver) Enumerate() (outputs, inputs []device.Descriptor, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, err := d.context()
	if err != nil {
		return nil, nil, err
	}

	clear(d.ids)
	outputs, err = d.list(ctx, malgo.Playback, false)
	if err != nil {
		return nil, nil, err
	}
	inputs, err = d.list(ctx, malgo.Capture, true)
	if err != nil {
		return nil, nil, err
	}
	return outputs, inputs, nil
}

func (d *Driver) list(ctx *malgo.AllocatedContext, kind malgo.DeviceType, input bool) ([]device.Descriptor, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	descs := make([]device.Descriptor, 0, len(infos))
	for _, info := range infos {
		full, err := ctx.DeviceInfo(kind, info.ID, d.shareMode())
		if err != nil {
			d.log.Warn().Err(err).Str("device", info.Name()).Msg("unable to get device info")
			continue
		}

		formats := make([]nativeFormat, 0, len(full.Formats))
		for _, f := range full.Formats {
			formats = append(formats, nativeFormat{sampleRate: f.SampleRate, channels: f.Channels})
		}

		name := device.UniqueName(full.Name(), seen)
		d.ids[endpointID{input: input, name: name}] = full.ID
		descs = append(descs, describe(name, full.IsDefault == 1, input, formats, d.mode))
	}
	return descs, nil
}

// OpenStream implements device.Driver.
func (d *Driver) OpenStream(req device.StreamRequest, proc device.StreamProc) (device.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, err := d.context()
	if err != nil {
		return nil, err
	}

	kind := malgo.Duplex
	switch {
	case req.Input == nil:
		kind = malgo.Playback
	case req.Output == nil:
		kind = malgo.Capture
	}

	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(req.SampleRate)
	cfg.PeriodSizeInFrames = uint32(req.BufferSize)
	cfg.Periods = 2
	cfg.Alsa.NoMMap = 1

	if req.Output != nil {
		id, ok := d.ids[endpointID{name: req.Output.Name}]
		if !ok {
			return nil, fmt.Errorf("output %q: %w", req.Output.Name, device.ErrUnknownDevice)
		}
		cfg.Playback.DeviceID = id.Pointer()
		cfg.Playback.Format = malgo.FormatF32
		cfg.Playback.Channels = uint32(req.NumOutputChannels)
		cfg.Playback.ShareMode = d.shareMode()
	}
	if req.Input != nil {
		id, ok := d.ids[endpointID{input: true, name: req.Input.Name}]
		if !ok {
			return nil, fmt.Errorf("input %q: %w", req.Input.Name, device.ErrUnknownDevice)
		}
		cfg.Capture.DeviceID = id.Pointer()
		cfg.Capture.Format = malgo.FormatF32
		cfg.Capture.Channels = uint32(req.NumInputChannels)
		cfg.Capture.ShareMode = d.shareMode()
	}

	s := newStream(req, proc, d.log)
	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		if d.mode == Exclusive {
			return nil, &device.DeviceUnavailableError{Device: endpointName(req), Err: errors.Join(device.ErrDeviceBusy, err)}
		}
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}
	s.dev = dev
	return s, nil
}

// Close releases the malgo context. Streams must be closed first.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil
	}
	if err := d.ctx.Uninit(); err != nil {
		d.log.Warn().Err(err).Msg("malgo context uninit error")
	}
	d.ctx.Free()
	d.ctx = nil
	return nil
}

func endpointName(req device.StreamRequest) string {
	if req.Output != nil {
		return req.Output.Name
	}
	return req.Input.Name
}
