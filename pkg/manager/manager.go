// ABOUTME: Audio device manager: owns device types, the open device and consumers
// ABOUTME: All control state lives in the Manager so several sessions can coexist
package manager

import (
	"math"
	"path"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/audioio/pkg/clock"
	"github.com/Sendspin/audioio/pkg/device"
	"github.com/Sendspin/audioio/pkg/midi"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of the managed session
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// TaggedName is a device name qualified by the type that lists it
type TaggedName struct {
	Type string
	Name string
}

// Manager orchestrates device selection, negotiation, callback fan-out, MIDI
// routing and failure recovery.
type Manager struct {
	log          zerolog.Logger
	session      string
	reg          prometheus.Registerer
	scanInterval time.Duration

	mu           sync.Mutex
	types        []device.Type
	typeRemoves  []func()
	currentType  device.Type
	dev          device.Device
	setup        Setup
	chosen       *Setup
	state        State
	lastErr      error
	numIn        int
	numOut       int
	absentLogged bool
	closedByUser bool
	outbox       []ChangeEvent

	io        *ioCallback
	consumers atomic.Pointer[consumerList]
	consMu    sync.Mutex

	masterGain atomic.Uint32
	muted      atomic.Bool
	toneFrames atomic.Int64
	inLevel    atomic.Uint32
	outLevel   atomic.Uint32
	cpuLoad    atomic.Uint64

	lost      chan lostEvent
	listDirty atomic.Bool
	wake      chan struct{}

	listenerMu     sync.Mutex
	listeners      []changeListener
	nextListenerID int

	midi          *midiRouter
	collector     *midi.Collector
	clock         *clock.DeviceClock
	bufferSeconds atomic.Uint64

	metrics *metrics
}

// Option configures a Manager
type Option func(*options)

type options struct {
	log               zerolog.Logger
	reg               prometheus.Registerer
	midiDriver        midi.Driver
	collectorCapacity int
	scanInterval      time.Duration
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithRegisterer registers the manager's metrics with reg instead of a
// private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithMidiDriver enables MIDI routing through drv
func WithMidiDriver(drv midi.Driver) Option {
	return func(o *options) { o.midiDriver = drv }
}

// WithCollectorCapacity bounds the number of in-flight MIDI events
func WithCollectorCapacity(n int) Option {
	return func(o *options) { o.collectorCapacity = n }
}

// WithScanInterval sets how often Run rescans the device lists
func WithScanInterval(d time.Duration) Option {
	return func(o *options) { o.scanInterval = d }
}

// New returns a manager with no device types.
func New(opts ...Option) *Manager {
	o := options{
		log:               zerolog.Nop(),
		collectorCapacity: 1024,
		scanInterval:      2 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.reg == nil {
		o.reg = prometheus.NewRegistry()
	}

	session := uuid.NewString()
	m := &Manager{
		log:          o.log.With().Str("component", "device-manager").Str("session", session).Logger(),
		session:      session,
		reg:          o.reg,
		scanInterval: o.scanInterval,
		numOut:       2,
		lost:         make(chan lostEvent, 16),
		wake:         make(chan struct{}, 1),
		collector:    midi.NewCollector(o.collectorCapacity),
		clock:        clock.New(),
	}
	m.consumers.Store(&consumerList{})
	m.masterGain.Store(math.Float32bits(1))
	m.io = newIOCallback(m)
	m.midi = newMidiRouter(m, o.midiDriver)
	m.metrics = newMetrics(m.reg, m)
	return m
}

// Session returns the identifier used to label this manager's metrics
func (m *Manager) Session() string { return m.session }

// AddDeviceType registers a device type. Its list changes are picked up by
// HandlePendingEvents.
func (m *Manager) AddDeviceType(t device.Type) {
	remove := t.AddListener(func() {
		m.listDirty.Store(true)
		m.wakeUp()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, t)
	m.typeRemoves = append(m.typeRemoves, remove)
	m.log.Debug().Str("type", t.Name()).Msg("device type added")
}

// AddDriver wraps drv in a device type and registers it
func (m *Manager) AddDriver(drv device.Driver) device.Type {
	t := device.NewType(drv, m.log)
	m.AddDeviceType(t)
	return t
}

// DeviceTypes returns the registered types in registration order
func (m *Manager) DeviceTypes() []device.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.types)
}

// CurrentDeviceType returns the type of the open or last opened device, or nil
func (m *Manager) CurrentDeviceType() device.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentType
}

// ScanForDevices refreshes every type's device list
func (m *Manager) ScanForDevices() {
	for _, t := range m.DeviceTypes() {
		t.ScanForDevices()
	}
}

// DeviceNames merges the names of every type, tagged with the owning type.
func (m *Manager) DeviceNames(input bool) []TaggedName {
	var names []TaggedName
	for _, t := range m.DeviceTypes() {
		for _, n := range t.DeviceNames(input) {
			names = append(names, TaggedName{Type: t.Name(), Name: n})
		}
	}
	return names
}

// State returns whether a device is open
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error of the last failed transition, or nil
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// CurrentSetup returns the setup of the open device with actual values filled
// in, or the last requested setup when closed.
func (m *Manager) CurrentSetup() Setup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setup.Clone()
}

// CurrentDevice returns the open device or nil
func (m *Manager) CurrentDevice() device.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev
}

// XRunCount returns the open device's overrun count, -1 when unknown or closed
func (m *Manager) XRunCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return -1
	}
	return m.dev.XRunCount()
}

// Collector returns the MIDI collector drained by the audio callback
func (m *Manager) Collector() *midi.Collector { return m.collector }

// Close shuts the device and every MIDI port and detaches from device types.
func (m *Manager) Close() {
	m.midi.closeAll()

	m.mu.Lock()
	m.closeDeviceLocked()
	m.state = StateClosed
	for _, remove := range m.typeRemoves {
		remove()
	}
	m.typeRemoves = nil
	m.mu.Unlock()
}

func (m *Manager) wakeUp() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) typeByName(name string) device.Type {
	for _, t := range m.types {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// resolveType picks the named type, then the current one, then the first.
func (m *Manager) resolveType(name string) device.Type {
	if t := m.typeByName(name); t != nil {
		return t
	}
	if m.currentType != nil {
		return m.currentType
	}
	if len(m.types) > 0 {
		return m.types[0]
	}
	return nil
}

// matchName reports whether name matches a case-insensitive wildcard pattern.
func matchName(pattern, name string) bool {
	pattern, name = strings.ToLower(pattern), strings.ToLower(name)
	if ok, err := path.Match(pattern, name); err == nil && ok {
		return true
	}
	return strings.Contains(name, pattern)
}
