// ABOUTME: Tests for configuration loading
// ABOUTME: Checks defaults, flag and environment precedence and config files
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	return Load(NewFlagSet("test"), args)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t, "--config", writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Device.OutputChannels)
	assert.Equal(t, 2*time.Second, cfg.ScanInterval)
	assert.True(t, cfg.TUI)
	assert.Equal(t, "devicesetup.toml", filepath.Base(cfg.State.File))
}

func TestFlagsOverrideFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
[device]
output = "Speakers"
samplerate = 44100.0
buffersize = 256
`)
	t.Setenv("AUDIOIO_DEVICE_BUFFERSIZE", "128")

	cfg, err := load(t, "--config", path, "-r", "48000", "--midi-in", "a,b")
	require.NoError(t, err)
	assert.Equal(t, "Speakers", cfg.Device.Output)
	assert.Equal(t, 48000.0, cfg.Device.SampleRate, "flag beats file")
	assert.Equal(t, 128, cfg.Device.BufferSize, "env beats file")
	assert.Equal(t, []string{"a", "b"}, cfg.MIDI.Inputs)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"negative rate", []string{"--rate=-1"}},
		{"negative buffer", []string{"--buffer=-64"}},
		{"negative channels", []string{"--out-channels=-2"}},
		{"zero scan", []string{"--scan=0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", writeConfig(t, "")}, tt.args...)
			_, err := load(t, args...)
			assert.Error(t, err)
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
