// ABOUTME: Persistence of the device setup as a TOML document
// ABOUTME: Restoring tolerates missing keys and hardware that is no longer present
package manager

import (
	"errors"
	"fmt"

	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/pelletier/go-toml"
)

const stateRoot = "devicesetup"

// ErrInvalidState is returned for documents without a device setup table
var ErrInvalidState = errors.New("invalid device state document")

type savedState struct {
	setup         Setup
	enabledInputs []string
	defaultOutput string
	// fields that were present but unreadable and fell back to defaults
	warnings []error
}

// StateDocument serialises the chosen setup, or the current one when nothing
// was chosen explicitly, together with the MIDI routing.
func (m *Manager) StateDocument() ([]byte, error) {
	m.mu.Lock()
	s := m.setup.Clone()
	if m.chosen != nil {
		s = m.chosen.Clone()
	}
	m.mu.Unlock()

	tree, err := toml.TreeFromMap(map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	key := func(k string) string { return stateRoot + "." + k }

	tree.Set(key("deviceType"), s.DeviceType)
	tree.Set(key("outputDeviceName"), s.OutputDeviceName)
	tree.Set(key("inputDeviceName"), s.InputDeviceName)
	tree.Set(key("sampleRate"), s.SampleRate)
	tree.Set(key("bufferSize"), int64(s.BufferSize))
	tree.Set(key("useDefaultInputChannels"), s.UseDefaultInputChannels)
	tree.Set(key("useDefaultOutputChannels"), s.UseDefaultOutputChannels)
	if !s.UseDefaultInputChannels {
		tree.Set(key("inputChannels"), s.InputChannels.String())
	}
	if !s.UseDefaultOutputChannels {
		tree.Set(key("outputChannels"), s.OutputChannels.String())
	}

	enabled := m.midi.enabledIDs()
	if enabled == nil {
		enabled = []string{}
	}
	tree.Set(key("midi.enabledInputs"), enabled)
	tree.Set(key("midi.defaultOutput"), m.midi.defaultOutputID())

	doc, err := tree.ToTomlString()
	if err != nil {
		return nil, fmt.Errorf("encode device state: %w", err)
	}
	return []byte(doc), nil
}

// RestoreState applies a document produced by StateDocument. Devices that are
// no longer present are replaced by the defaults of the same type, and the
// saved devices are remembered so they are reopened when they come back.
func (m *Manager) RestoreState(doc []byte) error {
	st, err := parseState(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	numIn, numOut := m.numIn, m.numOut
	m.mu.Unlock()

	err = m.applyState(st, numIn, numOut)
	m.flush()
	return err
}

func (m *Manager) applyState(st *savedState, numIn, numOut int) error {
	for _, w := range st.warnings {
		m.log.Warn().Err(w).Msg("ignoring unreadable device state field")
	}

	m.mu.Lock()
	err := m.applySetupLocked(st.setup, numIn, numOut)
	m.mu.Unlock()

	for _, id := range st.enabledInputs {
		if merr := m.SetMidiInputEnabled(id, true); merr != nil {
			m.log.Warn().Err(merr).Str("input", id).Msg("saved MIDI input not available")
		}
	}
	if st.defaultOutput != "" {
		if merr := m.SetDefaultMidiOutput(st.defaultOutput); merr != nil {
			m.log.Warn().Err(merr).Str("output", st.defaultOutput).Msg("saved MIDI output not available")
		}
	}
	return err
}

func (m *Manager) applySetupLocked(saved Setup, numIn, numOut int) error {
	m.numIn, m.numOut = max(numIn, 0), max(numOut, 0)
	if err := m.checkBackendsLocked(); err != nil {
		return err
	}

	t := m.resolveType(saved.DeviceType)
	s := saved.Clone()
	s.DeviceType = t.Name()
	s.OutputDeviceName = presentOrDefault(t, s.OutputDeviceName, false)
	s.InputDeviceName = presentOrDefault(t, s.InputDeviceName, true)
	if !s.hasDevice() {
		def, ok := m.defaultSetupLocked("")
		if !ok {
			err := &MissingDeviceError{Setup: saved}
			m.lastErr = err
			return err
		}
		// keep the saved format on the default endpoints
		s.DeviceType = def.DeviceType
		s.OutputDeviceName = def.OutputDeviceName
		s.InputDeviceName = def.InputDeviceName
	}

	err := m.setSetupLocked(s, false)
	if saved.hasDevice() {
		chosen := saved.Clone()
		chosen.DeviceType = t.Name()
		m.chosen = &chosen
	}
	return err
}

// MissingDeviceError reports a saved setup whose devices are gone with no
// default left to replace them.
type MissingDeviceError struct {
	Setup Setup
}

func (e *MissingDeviceError) Error() string {
	return fmt.Sprintf("saved devices %q/%q not present and no default available",
		e.Setup.OutputDeviceName, e.Setup.InputDeviceName)
}

func parseState(doc []byte) (*savedState, error) {
	tree, err := toml.LoadBytes(doc)
	if err != nil {
		return nil, fmt.Errorf("parse device state: %w", err)
	}
	sub, ok := tree.Get(stateRoot).(*toml.Tree)
	if !ok {
		return nil, ErrInvalidState
	}

	st := &savedState{setup: DefaultSetup()}
	s := &st.setup
	s.DeviceType = stringValue(sub, "deviceType")
	s.OutputDeviceName = stringValue(sub, "outputDeviceName")
	s.InputDeviceName = stringValue(sub, "inputDeviceName")

	switch v := sub.Get("sampleRate").(type) {
	case float64:
		s.SampleRate = v
	case int64:
		s.SampleRate = float64(v)
	}
	if v, ok := sub.Get("bufferSize").(int64); ok {
		s.BufferSize = int(v)
	}
	if v, ok := sub.Get("useDefaultInputChannels").(bool); ok {
		s.UseDefaultInputChannels = v
	}
	if v, ok := sub.Get("useDefaultOutputChannels").(bool); ok {
		s.UseDefaultOutputChannels = v
	}

	if raw, ok := sub.Get("inputChannels").(string); ok {
		if set, err := audio.ParseChannelSet(raw); err != nil {
			st.warnings = append(st.warnings, fmt.Errorf("device state inputChannels: %w", err))
			s.UseDefaultInputChannels = true
		} else {
			s.InputChannels = set
			if !sub.Has("useDefaultInputChannels") {
				s.UseDefaultInputChannels = false
			}
		}
	}
	if raw, ok := sub.Get("outputChannels").(string); ok {
		if set, err := audio.ParseChannelSet(raw); err != nil {
			st.warnings = append(st.warnings, fmt.Errorf("device state outputChannels: %w", err))
			s.UseDefaultOutputChannels = true
		} else {
			s.OutputChannels = set
			if !sub.Has("useDefaultOutputChannels") {
				s.UseDefaultOutputChannels = false
			}
		}
	}

	if raw, ok := sub.Get("midi.enabledInputs").([]interface{}); ok {
		for _, v := range raw {
			if id, ok := v.(string); ok {
				st.enabledInputs = append(st.enabledInputs, id)
			}
		}
	}
	st.defaultOutput = stringValue(sub, "midi.defaultOutput")
	return st, nil
}

func stringValue(t *toml.Tree, key string) string {
	s, _ := t.Get(key).(string)
	return s
}
