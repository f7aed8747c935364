// ABOUTME: MIDI event collection and device access
// ABOUTME: Serialises events from any goroutine into ordered per-callback blocks
// Package midi provides the Collector, which turns MIDI events arriving on
// driver goroutines into an ordered stream the audio goroutine drains one
// callback window at a time, and a small device abstraction (Driver, Input,
// Output) with an adapter for gomidi drivers.
//
// Timestamps are seconds in the device time base:
//
//	c := midi.NewCollector(512)
//	c.Reset(48000)
//	c.AddMessageToQueue(midi.Event{Data: []byte{0x90, 60, 100}, Timestamp: 0.25})
//	// on the audio goroutine, for a window of 512 frames at 48kHz:
//	events = c.RemoveNextBlockOfMessages(events[:0], pos/48000, 512.0/48000)
package midi
