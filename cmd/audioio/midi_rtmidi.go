//go:build cgo

// ABOUTME: MIDI ports through RtMidi when cgo is available
// ABOUTME: Failure to start RtMidi only disables MIDI
package main

import (
	"github.com/Sendspin/audioio/pkg/midi"
	"github.com/rs/zerolog"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func openMidiDriver(log zerolog.Logger) (midi.Driver, func()) {
	drv, err := rtmididrv.New()
	if err != nil {
		log.Warn().Err(err).Msg("MIDI disabled")
		return nil, func() {}
	}
	return midi.NewGomidiDriver(drv), func() { _ = drv.Close() }
}
