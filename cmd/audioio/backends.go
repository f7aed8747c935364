// ABOUTME: Registers the audio backends available in this build with the manager
// ABOUTME: Native types come first; the simulated type keeps headless hosts usable
package main

import (
	"github.com/Sendspin/audioio/internal/logging"
	"github.com/Sendspin/audioio/pkg/backend/malgo"
	"github.com/Sendspin/audioio/pkg/backend/oto"
	"github.com/Sendspin/audioio/pkg/backend/portaudio"
	"github.com/Sendspin/audioio/pkg/backend/simulated"
	"github.com/Sendspin/audioio/pkg/manager"
)

const simulatedType = "Simulated"

// addBackends registers device types in order of preference. It returns the
// simulated driver, which needs RunRealtime to produce callbacks, and a
// function releasing process-wide backend state.
func addBackends(m *manager.Manager, logger *logging.Logger) (*simulated.Driver, func()) {
	log := logger.Component("backends")
	cleanup := func() {}

	m.AddDriver(malgo.NewDriver(malgo.Shared, logger.Logger))
	m.AddDriver(malgo.NewDriver(malgo.Exclusive, logger.Logger))

	if err := portaudio.Initialize(); err != nil {
		log.Debug().Err(err).Msg("PortAudio unavailable")
	} else {
		for _, drv := range portaudio.NewDrivers(logger.Logger) {
			m.AddDriver(drv)
		}
		cleanup = portaudio.Terminate
	}

	m.AddDriver(oto.NewDriver(logger.Logger))

	sim := simulated.NewDriver(simulatedType, simulated.WithLogger(logger.Component("simulated")))
	sim.Add(simulated.StereoOutput("Simulated Output", true))
	sim.Add(simulated.StereoInput("Simulated Input", true))
	m.AddDriver(sim)

	for _, t := range m.DeviceTypes() {
		log.Debug().Str("type", t.Name()).Msg("device type registered")
	}
	return sim, cleanup
}
