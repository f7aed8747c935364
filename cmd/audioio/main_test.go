// ABOUTME: Tests for the audioio binary helpers
// ABOUTME: Runs against the simulated backend only
package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sendspin/audioio/internal/config"
	"github.com/Sendspin/audioio/internal/logging"
	"github.com/Sendspin/audioio/internal/ui"
	"github.com/Sendspin/audioio/pkg/backend/simulated"
	"github.com/Sendspin/audioio/pkg/manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimManager(t *testing.T) *manager.Manager {
	t.Helper()
	m := manager.New()
	t.Cleanup(m.Close)
	sim := simulated.NewDriver("Simulated")
	sim.Add(simulated.StereoOutput("Speakers", true))
	m.AddDriver(sim)
	return m
}

func TestListDevices(t *testing.T) {
	m := newSimManager(t)
	var buf bytes.Buffer
	require.NoError(t, listDevices(&buf, m))

	out := buf.String()
	assert.Contains(t, out, "Speakers (default)")
	assert.Contains(t, out, "MIDI:", "no MIDI driver configured")
}

func TestDescribeEvent(t *testing.T) {
	ev := manager.ChangeEvent{
		Kind:  manager.EventLost,
		Setup: manager.Setup{OutputDeviceName: "Speakers"},
		Err:   errors.New("unplugged"),
	}
	line := describeEvent(ev)
	assert.Contains(t, line, "Speakers: unplugged")
}

func TestSessionCommandsAndState(t *testing.T) {
	m := newSimManager(t)
	statePath := filepath.Join(t.TempDir(), "state", "devicesetup.toml")
	cfg, err := config.Load(config.NewFlagSet("test"), []string{
		"--config", writeEmptyConfig(t), "--state", statePath, "--tui=false",
	})
	require.NoError(t, err)
	require.NoError(t, initialise(m, cfg))
	assert.Equal(t, manager.StateOpen, m.State())

	logger, err := logging.New(logging.Options{Quiet: true})
	require.NoError(t, err)
	s, err := newSession(m, cfg, logger)
	require.NoError(t, err)
	defer s.close()

	s.apply(ui.Command{Kind: ui.CmdVolume, Volume: 40})
	assert.InDelta(t, 0.4, m.MasterGain(), 1e-6)
	s.apply(ui.Command{Kind: ui.CmdMute, Muted: true})
	assert.True(t, m.IsMuted())
	s.apply(ui.Command{Kind: ui.CmdClose})
	assert.Equal(t, manager.StateClosed, m.State())
	s.apply(ui.Command{Kind: ui.CmdRestart})
	assert.Equal(t, manager.StateOpen, m.State())

	st := s.status()
	assert.Equal(t, "Speakers", st.Output)
	assert.Equal(t, 40, st.Volume)
	assert.True(t, st.Muted)

	saveState(m, cfg, logger.Logger)
	m2 := newSimManager(t)
	require.NoError(t, initialise(m2, cfg))
	assert.Equal(t, "Speakers", m2.CurrentSetup().OutputDeviceName)
}

func writeEmptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	return path
}
