// ABOUTME: PortAudio backend with one device type per host API
// ABOUTME: Needs the portaudio build tag; otherwise a stub reports it unavailable
// Package portaudio exposes every PortAudio host API (ALSA, JACK, CoreAudio,
// WASAPI, ASIO...) as its own device.Driver.
//
//	if err := portaudio.Initialize(); err == nil {
//		defer portaudio.Terminate()
//		for _, drv := range portaudio.NewDrivers(logger) {
//			mgr.AddDeviceType(device.NewType(drv, logger))
//		}
//	}
//
// Build with -tags portaudio to link against the native library.
package portaudio
