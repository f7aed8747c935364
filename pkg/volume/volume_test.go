// ABOUTME: Tests for the volume facade
// ABOUTME: Covers the neutral control and the software gain stage adapter
package volume

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stage struct {
	gain  float32
	muted bool
}

func (s *stage) SetMasterGain(g float32) { s.gain = g }
func (s *stage) MasterGain() float32     { return s.gain }
func (s *stage) SetMuted(m bool)         { s.muted = m }
func (s *stage) IsMuted() bool           { return s.muted }

func TestUnsupported(t *testing.T) {
	c := System()
	assert.Zero(t, c.Gain())
	assert.False(t, c.IsMuted())
	assert.False(t, c.SetGain(0.5))
	assert.False(t, c.SetMuted(true))
	assert.False(t, c.IsMuted())
}

func TestSoftwareClampsGain(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want float32
	}{
		{"in range", 0.25, 0.25},
		{"negative", -1, 0},
		{"above unity", 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &stage{}
			c := NewSoftware(s)
			assert.True(t, c.SetGain(tt.in))
			assert.Equal(t, tt.want, c.Gain())
		})
	}

	c := NewSoftware(&stage{gain: 0.5})
	assert.False(t, c.SetGain(float32(math.NaN())))
	assert.Equal(t, float32(0.5), c.Gain())
}

func TestPercent(t *testing.T) {
	s := &stage{gain: 1}
	c := NewSoftware(s)
	assert.Equal(t, 100, Percent(c))

	assert.True(t, SetPercent(c, 40))
	assert.Equal(t, 40, Percent(c))
	assert.True(t, SetPercent(c, 250))
	assert.Equal(t, 100, Percent(c))

	assert.True(t, c.SetMuted(true))
	assert.Equal(t, 0, Percent(c))
	assert.True(t, s.muted)
}
