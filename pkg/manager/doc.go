// ABOUTME: Package documentation for the audio device manager
// ABOUTME: Explains ownership, threading and recovery rules
// Package manager runs one audio session: it chooses a device from the
// registered device types, negotiates the stream parameters, mixes any number
// of consumers into the device callback and recovers when the device fails.
//
// Control methods may be called from any goroutine. Device failures reported
// by drivers are queued and handled by HandlePendingEvents, or by Run which
// also rescans the device lists periodically:
//
//	m := manager.New(manager.WithLogger(log))
//	m.AddDriver(drv)
//	if err := m.InitialiseWithDefaultDevices(0, 2); err != nil {
//		return err
//	}
//	m.AddCallback(player)
//	go m.Run(ctx)
package manager
