// ABOUTME: Change notifications and asynchronous device event handling
// ABOUTME: Driver goroutines only enqueue; recovery runs on HandlePendingEvents or Run
package manager

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/Sendspin/audioio/pkg/device"
)

// EventKind classifies a ChangeEvent
type EventKind int

const (
	EventOpened EventKind = iota
	EventClosed
	EventLost
	EventFallback
	EventRolledBack
	EventListChanged
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventLost:
		return "lost"
	case EventFallback:
		return "fallback"
	case EventRolledBack:
		return "rolled-back"
	case EventListChanged:
		return "list-changed"
	default:
		return "unknown"
	}
}

// ChangeEvent describes a state transition. Setup is the setup in effect
// after the transition and Err the failure that caused it, if any.
type ChangeEvent struct {
	Kind  EventKind
	Setup Setup
	Err   error
}

type changeListener struct {
	id int
	fn func(ChangeEvent)
}

type lostEvent struct {
	dev device.Device
	err error
}

// AddChangeListener registers fn for state transitions. Listeners run on the
// goroutine that caused the transition, after the manager's locks are released.
func (m *Manager) AddChangeListener(fn func(ChangeEvent)) (remove func()) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.nextListenerID++
	id := m.nextListenerID
	m.listeners = append(m.listeners, changeListener{id: id, fn: fn})
	return func() {
		m.listenerMu.Lock()
		defer m.listenerMu.Unlock()
		m.listeners = slices.DeleteFunc(m.listeners, func(l changeListener) bool { return l.id == id })
	}
}

// emitLocked queues ev for delivery by flush. Callers hold m.mu.
func (m *Manager) emitLocked(ev ChangeEvent) {
	m.outbox = append(m.outbox, ev)
}

// flush delivers queued events. It must be called without m.mu held.
func (m *Manager) flush() {
	m.mu.Lock()
	events := m.outbox
	m.outbox = nil
	m.mu.Unlock()
	if len(events) == 0 {
		return
	}

	m.listenerMu.Lock()
	listeners := slices.Clone(m.listeners)
	m.listenerMu.Unlock()

	for _, ev := range events {
		for _, l := range listeners {
			l.fn(ev)
		}
	}
}

// enqueueLost is installed as the device error handler. It never blocks.
func (m *Manager) enqueueLost(dev device.Device, err error) {
	select {
	case m.lost <- lostEvent{dev: dev, err: err}:
	default:
		m.log.Warn().Err(err).Msg("device event queue full, dropping")
	}
	m.wakeUp()
}

// HandlePendingEvents processes queued device failures and device list
// changes. It performs at most one recovery attempt per event.
func (m *Manager) HandlePendingEvents() {
	defer m.flush()

	for {
		select {
		case ev := <-m.lost:
			m.handleLost(ev)
			continue
		default:
		}
		break
	}

	if m.listDirty.Swap(false) {
		m.handleListChange()
	}
}

// Run rescans device lists every scan interval and handles pending events
// until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.ScanForDevices()
		case <-m.wake:
		}
		m.HandlePendingEvents()
	}
}

func (m *Manager) handleLost(ev lostEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dev == nil || ev.dev != m.dev {
		m.log.Debug().Err(ev.err).Msg("ignoring error from a device that is no longer current")
		return
	}
	m.loseDeviceLocked(ev.err)
}

// loseDeviceLocked closes the failed device and makes one attempt to reopen
// with the missing endpoints replaced by their type's defaults.
func (m *Manager) loseDeviceLocked(cause error) {
	name := m.dev.Name()
	var lost *device.DeviceLostError
	if !errors.As(cause, &lost) {
		lost = &device.DeviceLostError{Device: name, Err: cause}
	}

	m.closeDeviceLocked()
	m.state = StateClosed
	m.lastErr = lost
	m.emitLocked(ChangeEvent{Kind: EventLost, Setup: m.setup.Clone(), Err: lost})
	m.log.Warn().Err(lost).Str("device", name).Msg("device lost")

	t := m.currentType
	if t == nil {
		return
	}
	t.ScanForDevices()

	fb := m.setup.Clone()
	fb.OutputDeviceName = presentOrDefault(t, fb.OutputDeviceName, false)
	fb.InputDeviceName = presentOrDefault(t, fb.InputDeviceName, true)
	if !fb.hasDevice() {
		m.log.Info().Msg("no fallback device available")
		return
	}

	m.metrics.fallbacks.Inc()
	if err := m.openSetupLocked(fb); err != nil {
		m.log.Warn().Err(err).Msg("fallback open failed")
		return
	}
	m.lastErr = lost
	m.emitLocked(ChangeEvent{Kind: EventFallback, Setup: m.setup.Clone(), Err: lost})
	m.log.Info().Str("device", m.dev.Name()).Msg("fell back to default device")
}

// presentOrDefault keeps name if t still lists it, otherwise substitutes the
// default endpoint for that direction. An empty name stays empty.
func presentOrDefault(t device.Type, name string, input bool) string {
	if name == "" {
		return ""
	}
	names := t.DeviceNames(input)
	if slices.Contains(names, name) {
		return name
	}
	if i := t.DefaultDeviceIndex(input); i >= 0 && i < len(names) {
		return names[i]
	}
	return ""
}

func (m *Manager) handleListChange() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.emitLocked(ChangeEvent{Kind: EventListChanged, Setup: m.setup.Clone()})

	if m.dev != nil && !m.devicePresentLocked(m.setup) {
		m.loseDeviceLocked(&device.DeviceLostError{Device: m.dev.Name()})
	}

	if m.chosen == nil || m.closedByUser || !m.devicePresentLocked(*m.chosen) {
		return
	}
	if m.state == StateOpen && sameDevices(m.setup, *m.chosen) {
		return
	}
	m.log.Info().Str("output", m.chosen.OutputDeviceName).Str("input", m.chosen.InputDeviceName).
		Msg("chosen device is back, reopening")
	if err := m.setSetupLocked(m.chosen.Clone(), false); err != nil {
		m.log.Warn().Err(err).Msg("reopening chosen device failed")
	}
}

func (m *Manager) devicePresentLocked(s Setup) bool {
	t := m.typeByName(s.DeviceType)
	if t == nil {
		return false
	}
	if s.OutputDeviceName != "" && !slices.Contains(t.DeviceNames(false), s.OutputDeviceName) {
		return false
	}
	if s.InputDeviceName != "" && !slices.Contains(t.DeviceNames(true), s.InputDeviceName) {
		return false
	}
	return s.hasDevice()
}

func sameDevices(a, b Setup) bool {
	return a.DeviceType == b.DeviceType &&
		a.OutputDeviceName == b.OutputDeviceName &&
		a.InputDeviceName == b.InputDeviceName
}
