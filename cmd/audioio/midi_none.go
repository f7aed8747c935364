//go:build !cgo

// ABOUTME: MIDI is unavailable without cgo
// ABOUTME: The manager then reports ErrNoMidiDriver for MIDI calls
package main

import (
	"github.com/Sendspin/audioio/pkg/midi"
	"github.com/rs/zerolog"
)

func openMidiDriver(log zerolog.Logger) (midi.Driver, func()) {
	log.Info().Msg("MIDI needs a cgo build")
	return nil, func() {}
}
