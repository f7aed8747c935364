// ABOUTME: Volume control facade over the platform mixer or a software gain stage
// ABOUTME: Platforms without a mixer binding get a neutral control whose setters report false
package volume

import "math"

// Control adjusts an output level. Setters report whether the change was
// applied.
type Control interface {
	Gain() float32
	SetGain(gain float32) bool
	IsMuted() bool
	SetMuted(muted bool) bool
}

// Unsupported is the neutral control: gain 0, never muted, setters fail.
type Unsupported struct{}

func (Unsupported) Gain() float32        { return 0 }
func (Unsupported) SetGain(float32) bool { return false }
func (Unsupported) IsMuted() bool        { return false }
func (Unsupported) SetMuted(bool) bool   { return false }

// System returns the control for the platform's default output. No mixer
// bindings are built in, so this is always Unsupported.
func System() Control { return Unsupported{} }

// GainStage is anything with a linear master gain and mute, such as
// *manager.Manager.
type GainStage interface {
	SetMasterGain(gain float32)
	MasterGain() float32
	SetMuted(muted bool)
	IsMuted() bool
}

// Software controls a GainStage. Gain is clamped to [0, 1].
type Software struct {
	stage GainStage
}

// NewSoftware returns a Control over stage.
func NewSoftware(stage GainStage) *Software {
	return &Software{stage: stage}
}

func (s *Software) Gain() float32 { return s.stage.MasterGain() }

func (s *Software) SetGain(gain float32) bool {
	if math.IsNaN(float64(gain)) {
		return false
	}
	s.stage.SetMasterGain(min(max(gain, 0), 1))
	return true
}

func (s *Software) IsMuted() bool { return s.stage.IsMuted() }

func (s *Software) SetMuted(muted bool) bool {
	s.stage.SetMuted(muted)
	return true
}

// Percent converts a control's gain to the 0-100 scale used by volume
// sliders. A muted control reads 0.
func Percent(c Control) int {
	if c.IsMuted() {
		return 0
	}
	return int(math.Round(float64(c.Gain()) * 100))
}

// SetPercent sets the gain from a 0-100 value, clamping out-of-range input.
func SetPercent(c Control, percent int) bool {
	percent = min(max(percent, 0), 100)
	return c.SetGain(float32(percent) / 100)
}
