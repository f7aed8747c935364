// ABOUTME: Device type enumerator/factory built over a Driver
// ABOUTME: Tracks name lists per direction and notifies listeners when they change
package device

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// Type enumerates the endpoints of one backend family and creates devices.
type Type interface {
	Name() string

	// ScanForDevices refreshes the name lists. A missing backend yields empty
	// lists rather than an error.
	ScanForDevices()

	// DeviceNames lists endpoint names for one direction, default first when known
	DeviceNames(input bool) []string

	// DefaultDeviceIndex returns the index of the default endpoint in
	// DeviceNames, or -1 when there is none.
	DefaultDeviceIndex(input bool) int

	HasSeparateInputsAndOutputs() bool

	// Describe returns the capability snapshot taken by the last scan
	Describe(name string, input bool) (Descriptor, bool)

	// CreateDevice returns an unopened device. An empty name leaves that
	// direction unused; an unknown name yields ErrUnknownDevice.
	CreateDevice(outputName, inputName string) (Device, error)

	// AddListener registers fn to be called after a scan that changed the
	// name lists. The returned function removes it.
	AddListener(fn func()) (remove func())

	// Available reports whether the last scan reached the backend
	Available() bool
}

type listenerEntry struct {
	id int
	fn func()
}

type driverType struct {
	driver Driver
	log    zerolog.Logger

	mu        sync.Mutex
	scanned   bool
	available bool
	outputs   []Descriptor
	inputs    []Descriptor
	listeners []listenerEntry
	nextID    int

	endpoints endpointRegistry
}

// NewType wraps a driver in the generic enumerator/factory.
func NewType(driver Driver, log zerolog.Logger) Type {
	return &driverType{
		driver: driver,
		log:    log.With().Str("component", "device-type").Str("type", driver.Name()).Logger(),
	}
}

func (t *driverType) Name() string { return t.driver.Name() }

func (t *driverType) HasSeparateInputsAndOutputs() bool {
	return t.driver.HasSeparateInputsAndOutputs()
}

func (t *driverType) ScanForDevices() {
	outputs, inputs, err := t.driver.Enumerate()

	t.mu.Lock()
	wasAvailable := t.available
	if err != nil {
		if wasAvailable || !t.scanned {
			t.log.Warn().Err(err).Msg("device enumeration failed")
		}
		outputs, inputs = nil, nil
		t.available = false
	} else {
		t.available = true
	}

	for i := range outputs {
		outputs[i] = outputs[i].Normalize()
		outputs[i].TypeName = t.driver.Name()
	}
	for i := range inputs {
		inputs[i] = inputs[i].Normalize()
		inputs[i].TypeName = t.driver.Name()
	}

	changed := t.scanned && (!sameNames(t.outputs, outputs) || !sameNames(t.inputs, inputs))
	t.outputs, t.inputs = outputs, inputs
	t.scanned = true
	listeners := slices.Clone(t.listeners)
	t.mu.Unlock()

	t.log.Debug().
		Int("outputs", len(outputs)).
		Int("inputs", len(inputs)).
		Bool("changed", changed).
		Msg("scanned devices")

	if changed {
		for _, l := range listeners {
			l.fn()
		}
	}
}

func sameNames(a, b []Descriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].IsDefault != b[i].IsDefault {
			return false
		}
	}
	return true
}

func (t *driverType) ensureScanned() {
	t.mu.Lock()
	scanned := t.scanned
	t.mu.Unlock()
	if !scanned {
		t.ScanForDevices()
	}
}

func (t *driverType) list(input bool) []Descriptor {
	if input {
		return t.inputs
	}
	return t.outputs
}

func (t *driverType) DeviceNames(input bool) []string {
	t.ensureScanned()
	t.mu.Lock()
	defer t.mu.Unlock()

	descs := t.list(input)
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		if d.IsDefault {
			names = append([]string{d.Name}, names...)
			continue
		}
		names = append(names, d.Name)
	}
	return names
}

// DefaultDeviceIndex is 0 whenever any endpoint exists: DeviceNames moves the
// reported default to the front, and without one the first endpoint is used.
func (t *driverType) DefaultDeviceIndex(input bool) int {
	if len(t.DeviceNames(input)) == 0 {
		return -1
	}
	return 0
}

func (t *driverType) Describe(name string, input bool) (Descriptor, bool) {
	t.ensureScanned()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range t.list(input) {
		if d.Name == name {
			return d.Clone(), true
		}
	}
	return Descriptor{}, false
}

func (t *driverType) Available() bool {
	t.ensureScanned()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.available
}

func (t *driverType) CreateDevice(outputName, inputName string) (Device, error) {
	if outputName == "" && inputName == "" {
		return nil, fmt.Errorf("%s: no device name given: %w", t.Name(), ErrUnknownDevice)
	}

	var out, in *Descriptor
	if outputName != "" {
		d, ok := t.Describe(outputName, false)
		if !ok {
			return nil, fmt.Errorf("%s: output %q: %w", t.Name(), outputName, ErrUnknownDevice)
		}
		out = &d
	}
	if inputName != "" {
		d, ok := t.Describe(inputName, true)
		if !ok {
			return nil, fmt.Errorf("%s: input %q: %w", t.Name(), inputName, ErrUnknownDevice)
		}
		in = &d
	}

	return newDriverDevice(t, out, in), nil
}

func (t *driverType) AddListener(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.listeners = slices.DeleteFunc(t.listeners, func(l listenerEntry) bool { return l.id == id })
	}
}

type endpointKey struct {
	input bool
	name  string
}

// endpointRegistry enforces one open handle per endpoint of a type. It lives
// in the Type so independent sessions never share hidden state.
type endpointRegistry struct {
	mu   sync.Mutex
	held map[endpointKey]struct{}
}

func (r *endpointRegistry) acquire(keys ...endpointKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if _, ok := r.held[k]; ok {
			return false
		}
	}
	if r.held == nil {
		r.held = make(map[endpointKey]struct{})
	}
	for _, k := range keys {
		r.held[k] = struct{}{}
	}
	return true
}

func (r *endpointRegistry) release(keys ...endpointKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.held, k)
	}
}
