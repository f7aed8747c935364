// ABOUTME: miniaudio backend via gen2brain/malgo
// ABOUTME: Shared and exclusive mode device types over one malgo context per driver
// Package malgo exposes miniaudio playback, capture and duplex devices as a
// device.Driver. Streams are opened in 32-bit float and converted to planar
// buffers allocated at open time.
//
// The package needs cgo. Building with the noaudio tag, or without cgo,
// compiles a stub whose Enumerate reports the backend as unavailable.
package malgo
