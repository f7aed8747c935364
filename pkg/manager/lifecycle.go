// ABOUTME: Device open, close, rollback and initialisation for the manager
// ABOUTME: Every transition makes at most one recovery attempt and records LastError
package manager

import (
	"errors"
	"fmt"
	"math"

	"github.com/Sendspin/audioio/pkg/device"
)

// ErrNoDevice is returned when there is no setup to restart
var ErrNoDevice = errors.New("no device selected")

// Initialise opens a device for numbers of channels given in opts. It tries
// the saved state, then the preferred setup, then the default devices.
func (m *Manager) Initialise(opts InitOptions) error {
	err := m.initialise(opts)
	m.flush()
	return err
}

// InitialiseWithDefaultDevices opens the default devices with the given
// channel counts.
func (m *Manager) InitialiseWithDefaultDevices(numIn, numOut int) error {
	return m.Initialise(InitOptions{NumInputChannels: numIn, NumOutputChannels: numOut})
}

func (m *Manager) initialise(opts InitOptions) error {
	if len(opts.SavedState) > 0 {
		st, err := parseState(opts.SavedState)
		if err == nil {
			err = m.applyState(st, opts.NumInputChannels, opts.NumOutputChannels)
		}
		if err == nil || !opts.SelectDefaultOnFailure {
			return err
		}
		m.log.Warn().Err(err).Msg("saved device state not usable, selecting defaults")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.numIn, m.numOut = max(opts.NumInputChannels, 0), max(opts.NumOutputChannels, 0)

	if err := m.checkBackendsLocked(); err != nil {
		return err
	}

	if opts.PreferredSetup != nil {
		err := m.setSetupLocked(*opts.PreferredSetup, false)
		if err == nil {
			return nil
		}
		m.log.Warn().Err(err).Msg("preferred setup failed, selecting defaults")
	}

	s, ok := m.defaultSetupLocked(opts.PreferredDeviceName)
	if !ok {
		err := &device.BackendAbsentError{Direction: m.directionLocked()}
		m.logAbsentLocked(err)
		m.lastErr = err
		return err
	}
	return m.setSetupLocked(s, false)
}

func (m *Manager) checkBackendsLocked() error {
	if len(m.types) > 0 {
		return nil
	}
	err := &device.BackendAbsentError{Direction: m.directionLocked()}
	m.logAbsentLocked(err)
	m.lastErr = err
	return err
}

func (m *Manager) logAbsentLocked(err error) {
	if m.absentLogged {
		return
	}
	m.absentLogged = true
	m.log.Warn().Err(err).Msg("audio disabled for this session")
}

func (m *Manager) directionLocked() string {
	switch {
	case m.numIn > 0 && m.numOut > 0:
		return "input and output"
	case m.numIn > 0:
		return "input"
	default:
		return "output"
	}
}

// defaultSetupLocked picks the first type with usable endpoints and its
// default devices, or the first device matching preferred.
func (m *Manager) defaultSetupLocked(preferred string) (Setup, bool) {
	for _, t := range m.types {
		outs := t.DeviceNames(false)
		ins := t.DeviceNames(true)

		s := DefaultSetup()
		s.DeviceType = t.Name()
		if m.numOut > 0 && len(outs) > 0 {
			s.OutputDeviceName = pickName(outs, preferred)
		}
		if m.numIn > 0 && len(ins) > 0 {
			s.InputDeviceName = pickName(ins, preferred)
			if !t.HasSeparateInputsAndOutputs() && s.OutputDeviceName != "" {
				// one endpoint serves both directions
				for _, n := range ins {
					if n == s.OutputDeviceName {
						s.InputDeviceName = n
					}
				}
			}
		}
		if s.hasDevice() {
			return s, true
		}
	}
	return Setup{}, false
}

func pickName(names []string, preferred string) string {
	if preferred != "" {
		for _, n := range names {
			if matchName(preferred, n) {
				return n
			}
		}
	}
	return names[0]
}

// SetSetup switches to s. If the new setup cannot be opened, the previous one
// is restored once and the error is returned. treatAsChosen makes s the
// device the manager returns to when it reappears after a removal.
func (m *Manager) SetSetup(s Setup, treatAsChosen bool) error {
	m.mu.Lock()
	err := m.setSetupLocked(s, treatAsChosen)
	m.mu.Unlock()
	m.flush()
	return err
}

func (m *Manager) setSetupLocked(s Setup, treatAsChosen bool) error {
	if t := m.resolveType(s.DeviceType); t != nil {
		s.DeviceType = t.Name()
	}
	if treatAsChosen {
		chosen := s.Clone()
		m.chosen = &chosen
	}
	m.closedByUser = false

	if m.state == StateOpen && m.setup.Equal(s) {
		return nil
	}

	prev := m.setup.Clone()
	wasOpen := m.state == StateOpen
	m.closeDeviceLocked()
	m.state = StateClosed

	err := m.openSetupLocked(s)
	if err == nil {
		return nil
	}
	m.log.Warn().Err(err).Str("output", s.OutputDeviceName).Str("input", s.InputDeviceName).
		Msg("opening device failed")

	if wasOpen {
		rerr := m.openSetupLocked(prev)
		if rerr == nil {
			m.metrics.rollbacks.Inc()
			m.lastErr = err
			m.emitLocked(ChangeEvent{Kind: EventRolledBack, Setup: m.setup.Clone(), Err: err})
			return err
		}
		m.log.Warn().Err(rerr).Msg("restoring previous device failed")
	}

	m.setup = s.Clone()
	m.lastErr = err
	m.emitLocked(ChangeEvent{Kind: EventClosed, Setup: m.setup.Clone(), Err: err})
	return err
}

// openSetupLocked negotiates s against the device's capabilities, opens it and
// starts streaming into the manager's callback.
func (m *Manager) openSetupLocked(s Setup) error {
	t := m.resolveType(s.DeviceType)
	if t == nil {
		return &device.BackendAbsentError{Direction: m.directionLocked()}
	}
	dev, err := t.CreateDevice(s.OutputDeviceName, s.InputDeviceName)
	if err != nil {
		return err
	}

	cfg := device.OpenConfig{
		SampleRate: NegotiateSampleRate(s.SampleRate, dev.AvailableSampleRates()),
		BufferSize: NegotiateBufferSize(s.BufferSize, dev.AvailableBufferSizes()),
	}
	numOut := len(dev.OutputChannelNames())
	numIn := len(dev.InputChannelNames())
	if s.UseDefaultOutputChannels {
		cfg.OutputChannels = DefaultChannels(m.numOut, numOut)
	} else {
		cfg.OutputChannels = NegotiateChannels(s.OutputChannels, numOut)
	}
	if s.UseDefaultInputChannels {
		cfg.InputChannels = DefaultChannels(m.numIn, numIn)
	} else {
		cfg.InputChannels = NegotiateChannels(s.InputChannels, numIn)
	}
	if cfg.OutputChannels.IsEmpty() && cfg.InputChannels.IsEmpty() {
		return &device.ConfigurationError{Device: dev.Name(), Param: "channels", Requested: 0}
	}

	dev.SetErrorHandler(func(err error) { m.enqueueLost(dev, err) })
	if err := dev.Open(cfg); err != nil {
		return err
	}

	m.io.configure(dev.ActiveInputChannels().Count(), dev.ActiveOutputChannels().Count())
	rate := dev.CurrentSampleRate()
	m.collector.Reset(rate)
	m.clock.Reset(rate)
	if rate > 0 {
		m.bufferSeconds.Store(math.Float64bits(float64(dev.CurrentBufferSize()) / rate))
	}

	if err := dev.Start(m.io); err != nil {
		dev.Close()
		return err
	}
	m.metrics.opens.Inc()

	actual := s.Clone()
	actual.DeviceType = t.Name()
	actual.SampleRate = rate
	actual.BufferSize = dev.CurrentBufferSize()
	actual.InputChannels = dev.ActiveInputChannels()
	actual.OutputChannels = dev.ActiveOutputChannels()

	m.dev, m.currentType, m.setup = dev, t, actual
	m.state = StateOpen
	m.lastErr = nil
	m.emitLocked(ChangeEvent{Kind: EventOpened, Setup: actual.Clone()})
	m.log.Info().
		Str("type", t.Name()).
		Str("device", dev.Name()).
		Float64("sample_rate", rate).
		Int("buffer_size", actual.BufferSize).
		Int("inputs", actual.InputChannels.Count()).
		Int("outputs", actual.OutputChannels.Count()).
		Msg("device opened")
	return nil
}

func (m *Manager) closeDeviceLocked() {
	if m.dev == nil {
		return
	}
	m.dev.Close()
	m.dev = nil
}

// CloseDevice closes the current device. It stays closed until SetSetup,
// RestartLastDevice or Initialise.
func (m *Manager) CloseDevice() {
	m.mu.Lock()
	if m.dev != nil {
		m.closeDeviceLocked()
		m.state = StateClosed
		m.closedByUser = true
		m.emitLocked(ChangeEvent{Kind: EventClosed, Setup: m.setup.Clone()})
	}
	m.mu.Unlock()
	m.flush()
}

// RestartLastDevice reopens the setup that was current before CloseDevice.
func (m *Manager) RestartLastDevice() error {
	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()

	if m.state == StateOpen {
		return nil
	}
	if !m.setup.hasDevice() {
		return ErrNoDevice
	}
	m.closedByUser = false
	if err := m.openSetupLocked(m.setup.Clone()); err != nil {
		m.lastErr = err
		return err
	}
	return nil
}

// SetCurrentDeviceType switches to the default devices of the named type.
func (m *Manager) SetCurrentDeviceType(name string, treatAsChosen bool) error {
	m.mu.Lock()
	defer m.flush()
	defer m.mu.Unlock()

	t := m.typeByName(name)
	if t == nil {
		return fmt.Errorf("device type %q: %w", name, device.ErrUnknownDevice)
	}
	if t == m.currentType && m.state == StateOpen {
		return nil
	}

	s := m.setup.Clone()
	s.DeviceType = name
	s.OutputDeviceName, s.InputDeviceName = "", ""
	if outs := t.DeviceNames(false); m.numOut > 0 && len(outs) > 0 {
		s.OutputDeviceName = outs[0]
	}
	if ins := t.DeviceNames(true); m.numIn > 0 && len(ins) > 0 {
		s.InputDeviceName = ins[0]
	}
	if !s.hasDevice() {
		return &device.BackendAbsentError{Direction: m.directionLocked()}
	}
	return m.setSetupLocked(s, treatAsChosen)
}
