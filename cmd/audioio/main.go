// ABOUTME: Entry point for the audioio device monitor
// ABOUTME: Opens a device through the manager, optionally plays or records a file, shows a TUI
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sendspin/audioio/internal/config"
	"github.com/Sendspin/audioio/internal/logging"
	"github.com/Sendspin/audioio/internal/ui"
	"github.com/Sendspin/audioio/internal/version"
	"github.com/Sendspin/audioio/pkg/manager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "audioio:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(config.NewFlagSet("audioio"), args)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		JSON:  cfg.Log.JSON,
		// the TUI owns the terminal
		Quiet: cfg.TUI,
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Component("main")
	log.Info().Str("version", version.Version).Str("config", cfg.ConfigFile).Msg("starting audioio")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	midiDrv, closeMidi := openMidiDriver(logger.Component("midi"))
	defer closeMidi()

	opts := []manager.Option{
		manager.WithLogger(logger.Logger),
		manager.WithRegisterer(reg),
		manager.WithScanInterval(cfg.ScanInterval),
	}
	if midiDrv != nil {
		opts = append(opts, manager.WithMidiDriver(midiDrv))
	}
	m := manager.New(opts...)
	defer m.Close()

	sim, cleanup := addBackends(m, logger)
	defer cleanup()

	if cfg.List {
		return listDevices(os.Stdout, m)
	}

	if err := initialise(m, cfg); err != nil {
		// keep running: the monitor shows the error and devices may appear
		log.Error().Err(err).Msg("no audio device opened")
	}
	defer saveState(m, cfg, log)
	setupMidi(m, cfg, log)

	app, err := newSession(m, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return m.Run(ctx) })
	g.Go(func() error { return sim.RunRealtime(ctx) })
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.Metrics.Addr, reg, logger.Component("metrics")) })
	}

	if !cfg.TUI {
		app.logEvents()
		g.Go(func() error { return app.watchTransport(ctx) })
		err = g.Wait()
		return ignoreCanceled(err)
	}

	controls := ui.NewControls()
	prog := ui.New(controls)
	app.sendTo(prog)
	g.Go(func() error { return app.handleCommands(ctx, controls) })
	g.Go(func() error { return app.statusLoop(ctx) })
	g.Go(func() error { return app.watchTransport(ctx) })
	g.Go(func() error {
		go func() {
			<-ctx.Done()
			prog.Quit()
		}()
		if _, err := prog.Run(); err != nil {
			return fmt.Errorf("TUI failed: %w", err)
		}
		// quitting the TUI ends the program
		return context.Canceled
	})
	return ignoreCanceled(g.Wait())
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
