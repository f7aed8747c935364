// ABOUTME: Tests for root logger construction
// ABOUTME: Checks level parsing, component tagging and file output
package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", JSON: true, Console: &buf})
	require.NoError(t, err)

	l.Info().Msg("hidden")
	cl := l.Component("manager")
	cl.Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"manager"`)
	assert.Contains(t, out, "shown")
	assert.NoError(t, l.Close())
}

func TestInvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audioio.log")
	l, err := New(Options{File: path, Quiet: true})
	require.NoError(t, err)
	l.Info().Msg("to disk")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to disk")
}
