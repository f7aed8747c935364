//go:build !portaudio

// ABOUTME: Tests for the PortAudio stub
// ABOUTME: Ensures builds without the tag degrade to no device types
package portaudio

import (
	"testing"

	"github.com/Sendspin/audioio/pkg/device"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStubIsUnavailable(t *testing.T) {
	assert.ErrorIs(t, Initialize(), device.ErrBackendUnavailable)
	assert.Empty(t, NewDrivers(zerolog.Nop()))

	var _ device.Driver = (*Driver)(nil)
}
