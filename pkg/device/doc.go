// ABOUTME: Device type and device abstractions over native backends
// ABOUTME: Generic implementations so each backend only supplies a Driver
// Package device defines the enumerator/factory (Type), the open-device handle
// (Device) and the consumer contract (Callback).
//
// Backends implement Driver. NewType wraps a Driver and supplies name lists,
// change notifications, capability validation, one-handle-per-endpoint
// enforcement and callback draining.
//
// Example:
//
//	typ := device.NewType(drv, logger)
//	dev, err := typ.CreateDevice(typ.DeviceNames(false)[0], "")
//	err = dev.Open(device.OpenConfig{SampleRate: 48000, BufferSize: 512,
//		OutputChannels: audio.ChannelRange(2)})
//	err = dev.Start(cb)
//	defer dev.Close()
package device
