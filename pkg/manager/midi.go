// ABOUTME: MIDI input enablement, per-input callbacks and the default output
// ABOUTME: Enabled inputs feed the collector with device-time timestamps
package manager

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/audioio/pkg/midi"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrNoMidiDriver is returned by MIDI operations on a manager built without
// WithMidiDriver.
var ErrNoMidiDriver = errors.New("no MIDI driver configured")

type midiCallback struct {
	key int
	id  string
	cb  midi.InputCallback
}

type midiRouter struct {
	m   *Manager
	drv midi.Driver

	mu         sync.Mutex
	inputs     *xsync.MapOf[string, midi.Input]
	callbacks  atomic.Pointer[[]midiCallback]
	nextKey    int
	defaultOut midi.Output
}

func newMidiRouter(m *Manager, drv midi.Driver) *midiRouter {
	r := &midiRouter{m: m, drv: drv, inputs: xsync.NewMapOf[string, midi.Input]()}
	r.callbacks.Store(&[]midiCallback{})
	return r
}

// handler returns the raw handler for one input port. It runs on the driver's
// goroutine.
func (r *midiRouter) handler(info midi.DeviceInfo) midi.RawHandler {
	return func(data []byte, at time.Time) {
		ev := midi.Event{
			Data:      slices.Clone(data),
			Timestamp: r.m.clock.DeviceTime(at) + math.Float64frombits(r.m.bufferSeconds.Load()),
		}
		if err := r.m.collector.AddMessageToQueue(ev); err != nil {
			r.m.log.Debug().Err(err).Str("input", info.Identifier).Msg("MIDI event dropped")
		}
		for _, c := range *r.callbacks.Load() {
			if c.id == "" || c.id == info.Identifier {
				c.cb.HandleIncomingMidiMessage(info, ev)
			}
		}
	}
}

func (r *midiRouter) enabledIDs() []string {
	var ids []string
	r.inputs.Range(func(id string, _ midi.Input) bool {
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)
	return ids
}

func (r *midiRouter) defaultOutputID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defaultOut == nil {
		return ""
	}
	return r.defaultOut.Info().Identifier
}

func (r *midiRouter) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs.Range(func(id string, in midi.Input) bool {
		if err := in.Close(); err != nil {
			r.m.log.Debug().Err(err).Str("input", id).Msg("closing MIDI input")
		}
		r.inputs.Delete(id)
		return true
	})
	if r.defaultOut != nil {
		_ = r.defaultOut.Close()
		r.defaultOut = nil
	}
}

// MidiInputs lists the MIDI input ports of the configured driver
func (m *Manager) MidiInputs() ([]midi.DeviceInfo, error) {
	if m.midi.drv == nil {
		return nil, ErrNoMidiDriver
	}
	return m.midi.drv.Inputs()
}

// MidiOutputs lists the MIDI output ports of the configured driver
func (m *Manager) MidiOutputs() ([]midi.DeviceInfo, error) {
	if m.midi.drv == nil {
		return nil, ErrNoMidiDriver
	}
	return m.midi.drv.Outputs()
}

// SetMidiInputEnabled opens or closes the input with the given identifier.
func (m *Manager) SetMidiInputEnabled(id string, enabled bool) error {
	r := m.midi
	if r.drv == nil {
		return ErrNoMidiDriver
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !enabled {
		in, ok := r.inputs.LoadAndDelete(id)
		if !ok {
			return nil
		}
		m.log.Info().Str("input", id).Msg("MIDI input disabled")
		return in.Close()
	}

	if _, ok := r.inputs.Load(id); ok {
		return nil
	}
	infos, err := r.drv.Inputs()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(infos, func(d midi.DeviceInfo) bool { return d.Identifier == id })
	if i < 0 {
		return fmt.Errorf("MIDI input %q not found", id)
	}
	in, err := r.drv.OpenInput(id, r.handler(infos[i]))
	if err != nil {
		return err
	}
	if err := in.Start(); err != nil {
		_ = in.Close()
		return err
	}
	r.inputs.Store(id, in)
	m.log.Info().Str("input", id).Msg("MIDI input enabled")
	return nil
}

// IsMidiInputEnabled reports whether the input is open
func (m *Manager) IsMidiInputEnabled(id string) bool {
	_, ok := m.midi.inputs.Load(id)
	return ok
}

// AddMidiInputCallback delivers events from the input id to cb, or from every
// enabled input when id is empty. cb runs on the MIDI driver's goroutine.
func (m *Manager) AddMidiInputCallback(id string, cb midi.InputCallback) (remove func()) {
	r := m.midi
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextKey++
	key := r.nextKey
	list := append(slices.Clone(*r.callbacks.Load()), midiCallback{key: key, id: id, cb: cb})
	r.callbacks.Store(&list)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.removeCallbacks(func(c midiCallback) bool { return c.key == key })
	}
}

// RemoveMidiInputCallback removes every registration of cb for id. Callbacks
// of an uncomparable type, such as InputCallbackFunc, can only be removed with
// the function returned by AddMidiInputCallback.
func (m *Manager) RemoveMidiInputCallback(id string, cb midi.InputCallback) {
	if cb == nil || !reflect.TypeOf(cb).Comparable() {
		return
	}
	r := m.midi
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeCallbacks(func(c midiCallback) bool {
		return c.id == id && reflect.TypeOf(c.cb) == reflect.TypeOf(cb) && c.cb == cb
	})
}

func (r *midiRouter) removeCallbacks(match func(midiCallback) bool) {
	list := slices.DeleteFunc(slices.Clone(*r.callbacks.Load()), match)
	r.callbacks.Store(&list)
}

// SetDefaultMidiOutput opens the output with the given identifier and closes
// the previous one. An empty id only closes.
func (m *Manager) SetDefaultMidiOutput(id string) error {
	r := m.midi
	if r.drv == nil {
		return ErrNoMidiDriver
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.defaultOut != nil {
		if r.defaultOut.Info().Identifier == id {
			return nil
		}
		_ = r.defaultOut.Close()
		r.defaultOut = nil
	}
	if id == "" {
		return nil
	}
	out, err := r.drv.OpenOutput(id)
	if err != nil {
		return err
	}
	r.defaultOut = out
	m.log.Info().Str("output", id).Msg("default MIDI output set")
	return nil
}

// DefaultMidiOutput returns the open default output, or nil
func (m *Manager) DefaultMidiOutput() midi.Output {
	r := m.midi
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultOut
}
