// ABOUTME: Host-to-device clock mapping for timestamping events
// ABOUTME: Offset and drift filter published lock-free to any goroutine
// Package clock estimates the relation between the host monotonic clock and
// a device's sample clock.
//
// The audio goroutine calls Observe once per callback with the frame position;
// MIDI input goroutines call DeviceTime to stamp events in device seconds so
// they can be placed inside the right callback window.
package clock
