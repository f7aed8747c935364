// ABOUTME: Deterministic in-memory audio driver
// ABOUTME: Drives device callbacks on demand and scripts hardware changes for tests
// Package simulated implements device.Driver without any native library.
//
// Callbacks run only when Pump is called, or from a ticker in RunRealtime, so
// tests decide exactly how many periods elapse. Hardware changes are scripted:
//
//	drv := simulated.NewDriver("Simulated")
//	drv.Add(simulated.StereoOutput("Speakers", true))
//	typ := device.NewType(drv, logger)
//	...
//	drv.Pump(0)             // one period on every started stream
//	drv.Remove("Speakers")  // open streams report device.DeviceLostError
package simulated
