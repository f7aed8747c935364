// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines planar buffers, channel sets and sample conversion functions
// Package audio provides the sample containers shared by devices, the manager
// and sources.
//
//   - Buffer: a planar float32 view whose Slice/Clear/AddFrom helpers never
//     allocate, so they are safe on the real-time callback path
//   - ChannelSet: ordered set of active channel indices, persisted as a binary
//     string with channel 0 right-most
//
// It also keeps the integer conversions the backends need:
//   - 16-bit ↔ 24-bit conversions
//   - float32 ↔ int16 / 24-bit conversions
//   - interleave / deinterleave
//
// Example:
//
//	buf := audio.NewBuffer(2, 512)
//	buf.AddFrom(other, 0.5)
//	peak := buf.Magnitude()
package audio
