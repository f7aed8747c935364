// ABOUTME: Startup and shutdown steps: device initialisation, saved state, MIDI and metrics
// ABOUTME: The device setup document is read before Initialise and written on exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Sendspin/audioio/internal/config"
	"github.com/Sendspin/audioio/pkg/manager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func initialise(m *manager.Manager, cfg *config.Config) error {
	opts := manager.InitOptions{
		NumInputChannels:       cfg.Device.InputChannels,
		NumOutputChannels:      cfg.Device.OutputChannels,
		SelectDefaultOnFailure: true,
		PreferredDeviceName:    cfg.Device.Output,
	}
	if !cfg.State.Disabled {
		doc, err := os.ReadFile(cfg.State.File)
		switch {
		case err == nil:
			opts.SavedState = doc
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("failed to read device state: %w", err)
		}
	}

	d := cfg.Device
	if d.Type != "" || d.Output != "" || d.Input != "" || d.SampleRate > 0 || d.BufferSize > 0 {
		s := manager.DefaultSetup()
		s.DeviceType = d.Type
		s.OutputDeviceName = d.Output
		s.InputDeviceName = d.Input
		s.SampleRate = d.SampleRate
		s.BufferSize = d.BufferSize
		opts.PreferredSetup = &s
		// explicit flags beat the remembered setup
		opts.SavedState = nil
	}
	return m.Initialise(opts)
}

func saveState(m *manager.Manager, cfg *config.Config, log zerolog.Logger) {
	if cfg.State.Disabled {
		return
	}
	doc, err := m.StateDocument()
	if err != nil {
		log.Warn().Err(err).Msg("device state not saved")
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.State.File), 0o700); err != nil {
		log.Warn().Err(err).Msg("device state not saved")
		return
	}
	if err := os.WriteFile(cfg.State.File, doc, 0o600); err != nil {
		log.Warn().Err(err).Msg("device state not saved")
		return
	}
	log.Debug().Str("file", cfg.State.File).Msg("device state saved")
}

func setupMidi(m *manager.Manager, cfg *config.Config, log zerolog.Logger) {
	for _, id := range cfg.MIDI.Inputs {
		if err := m.SetMidiInputEnabled(id, true); err != nil {
			log.Warn().Err(err).Str("input", id).Msg("MIDI input not enabled")
		}
	}
	if cfg.MIDI.Output != "" {
		if err := m.SetDefaultMidiOutput(cfg.MIDI.Output); err != nil {
			log.Warn().Err(err).Str("output", cfg.MIDI.Output).Msg("MIDI output not opened")
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return ctx.Err()
}
