// ABOUTME: Package documentation for source playback
// ABOUTME: Describes how players, transports and wrappers compose
// Package player turns sources into device callbacks.
//
// A SourcePlayer is a device.Callback that pulls one block per callback from a
// Source. A TransportSource adds start/stop, seeking, gain and end-of-stream
// detection, and inserts a BufferingSource (read-ahead on a goroutine) and a
// ResamplingSource (rate conversion) when asked:
//
//	ts := player.NewTransportSource()
//	ts.SetSource(file, 32768, file.SampleRate(), 2)
//	sp := player.NewSourcePlayer()
//	sp.SetSource(ts)
//	mgr.AddCallback(sp)
//	ts.Start()
//
// Recorder is a callback that writes the device input to a WAV file.
package player
