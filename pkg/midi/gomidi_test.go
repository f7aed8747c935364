// ABOUTME: Tests for the gomidi driver adapter
// ABOUTME: Uses the gomidi loopback test driver so no MIDI hardware is needed
package midi

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/drivers/testdrv"
)

func TestPortIDsDisambiguateDuplicates(t *testing.T) {
	infos := portIDs([]string{"Keys", "Pads", "Keys"})
	assert.Equal(t, []DeviceInfo{
		{Name: "Keys", Identifier: "Keys"},
		{Name: "Pads", Identifier: "Pads"},
		{Name: "Keys", Identifier: "Keys #2"},
	}, infos)
}

func TestGomidiLoopback(t *testing.T) {
	drv := NewGomidiDriver(testdrv.New("loop"))

	ins, err := drv.Inputs()
	require.NoError(t, err)
	require.NotEmpty(t, ins)
	outs, err := drv.Outputs()
	require.NoError(t, err)
	require.NotEmpty(t, outs)

	var mu sync.Mutex
	var got [][]byte
	in, err := drv.OpenInput(ins[0].Identifier, func(data []byte, at time.Time) {
		mu.Lock()
		got = append(got, append([]byte(nil), data...))
		mu.Unlock()
	})
	require.NoError(t, err)
	defer in.Close()
	assert.Equal(t, ins[0], in.Info())
	require.NoError(t, in.Start())

	out, err := drv.OpenOutput(outs[0].Identifier)
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, out.Send([]byte{0x90, 64, 90}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte{0x90, 64, 90}, got[0])

	require.NoError(t, in.Stop())
}

func TestOpenUnknownPort(t *testing.T) {
	drv := NewGomidiDriver(testdrv.New("loop"))
	_, err := drv.OpenInput("missing", func([]byte, time.Time) {})
	assert.Error(t, err)
	_, err = drv.OpenOutput("missing")
	assert.Error(t, err)
}
