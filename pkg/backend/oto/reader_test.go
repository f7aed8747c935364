// ABOUTME: Tests for the oto pull reader
// ABOUTME: Verifies chunking by period and float32 encoding without a sound card
package oto

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullReaderChunksByPeriod(t *testing.T) {
	var calls []int
	r := newPullReader(func(in, out [][]float32, frames int) {
		calls = append(calls, frames)
		for i := 0; i < frames; i++ {
			out[0][i] = 0.5
			out[1][i] = -0.5
		}
	}, 2, 4)

	p := make([]byte, 10*8+3)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 80, n, "partial frames are not written")
	assert.Equal(t, []int{4, 4, 2}, calls)

	left := math.Float32frombits(binary.LittleEndian.Uint32(p[72:]))
	right := math.Float32frombits(binary.LittleEndian.Uint32(p[76:]))
	assert.Equal(t, float32(0.5), left)
	assert.Equal(t, float32(-0.5), right)
}

func TestEnumerateListsDefaultOutput(t *testing.T) {
	outs, ins, err := NewDriver(zerolog.Nop()).Enumerate()
	require.NoError(t, err)
	assert.Empty(t, ins)
	require.Len(t, outs, 1)
	assert.Equal(t, DeviceName, outs[0].Name)
	assert.True(t, outs[0].IsDefault)
}
