// ABOUTME: Package documentation for audio sources
// ABOUTME: Generated, in-memory and decoded file sources for the transport
// Package source provides positionable audio sources: a sine generator, an
// in-memory buffer, and WAV, MP3 and FLAC file decoders. Every source reads
// planar float32 frames into an audio.Buffer and reports io.EOF when a
// non-looping source runs out.
//
// File decoders do blocking I/O in Read. Wrap them in player.BufferingSource
// before handing them to a real-time callback.
package source
