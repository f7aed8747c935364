// ABOUTME: Running program state: the file transport, the recorder and the monitor feed
// ABOUTME: Translates TUI commands into manager and transport calls
package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Sendspin/audioio/internal/config"
	"github.com/Sendspin/audioio/internal/logging"
	"github.com/Sendspin/audioio/internal/ui"
	"github.com/Sendspin/audioio/pkg/manager"
	"github.com/Sendspin/audioio/pkg/midi"
	"github.com/Sendspin/audioio/pkg/player"
	"github.com/Sendspin/audioio/pkg/source"
	"github.com/Sendspin/audioio/pkg/volume"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

const (
	statusInterval = 200 * time.Millisecond
	// frames decoded ahead of the audio callback
	readAhead = 32768
)

type session struct {
	m   *manager.Manager
	log zerolog.Logger
	vol volume.Control

	file      string
	src       source.File
	transport *player.TransportSource
	player    *player.SourcePlayer
	recorder  *player.Recorder

	midiCount atomic.Int64
	removers  []func()
	prog      *tea.Program
}

func newSession(m *manager.Manager, cfg *config.Config, logger *logging.Logger) (*session, error) {
	s := &session{
		m:   m,
		log: logger.Component("session"),
		vol: volume.NewSoftware(m),
	}

	if cfg.Play != "" {
		src, err := source.Open(cfg.Play)
		if err != nil {
			return nil, err
		}
		src.SetLooping(cfg.Loop)
		s.file, s.src = cfg.Play, src
		s.transport = player.NewTransportSource(player.WithTransportLogger(logger.Component("transport")))
		s.transport.SetSource(src, readAhead, src.SampleRate(), src.NumChannels())
		s.player = player.NewSourcePlayer()
		s.player.SetSource(s.transport)
		m.AddCallback(s.player)
		s.transport.Start()
		s.log.Info().Str("file", cfg.Play).Float64("rate", src.SampleRate()).Msg("playing")
	}

	if cfg.Record != "" {
		rec, err := player.CreateRecorder(cfg.Record, 16, logger.Logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.recorder = rec
		m.AddCallback(rec)
	}

	if cfg.TestTone {
		m.PlayTestSound()
	}

	s.removers = append(s.removers, m.AddMidiInputCallback("", midi.InputCallbackFunc(func(midi.DeviceInfo, midi.Event) {
		s.midiCount.Add(1)
	})))
	return s, nil
}

func (s *session) close() {
	for _, remove := range s.removers {
		remove()
	}
	if s.player != nil {
		s.m.RemoveCallback(s.player)
		s.player.SetSource(nil)
	}
	if s.src != nil {
		_ = s.src.Close()
	}
	if s.recorder != nil {
		s.m.RemoveCallback(s.recorder)
		if err := s.recorder.Close(); err != nil {
			s.log.Error().Err(err).Msg("recording incomplete")
		}
	}
}

// sendTo routes device events to the TUI.
func (s *session) sendTo(prog *tea.Program) {
	s.prog = prog
	s.removers = append(s.removers, s.m.AddChangeListener(func(ev manager.ChangeEvent) {
		prog.Send(ui.EventMsg(describeEvent(ev)))
	}))
}

// logEvents routes device events to the log.
func (s *session) logEvents() {
	s.removers = append(s.removers, s.m.AddChangeListener(func(ev manager.ChangeEvent) {
		e := s.log.Info()
		if ev.Err != nil {
			e = s.log.Warn().Err(ev.Err)
		}
		e.Str("event", ev.Kind.String()).Str("output", ev.Setup.OutputDeviceName).Msg("device event")
	}))
}

func describeEvent(ev manager.ChangeEvent) string {
	line := time.Now().Format(time.TimeOnly) + " " + ev.Kind.String()
	if name := ev.Setup.OutputDeviceName; name != "" {
		line += " " + name
	}
	if ev.Err != nil {
		line += ": " + ev.Err.Error()
	}
	return line
}

// watchTransport reports transport state changes until ctx is done.
func (s *session) watchTransport(ctx context.Context) error {
	if s.transport == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.transport.Events():
			line := fmt.Sprintf("%s %s at %.1fs", filepath.Base(s.file), ev.Kind, ev.Position)
			if s.prog != nil {
				s.prog.Send(ui.EventMsg(line))
			} else {
				s.log.Info().Str("file", s.file).Stringer("state", ev.Kind).Float64("position", ev.Position).Msg("transport")
			}
		}
	}
}

func (s *session) handleCommands(ctx context.Context, controls *ui.Controls) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-controls.Commands:
			s.apply(cmd)
		}
	}
}

func (s *session) apply(cmd ui.Command) {
	switch cmd.Kind {
	case ui.CmdVolume:
		volume.SetPercent(s.vol, cmd.Volume)
	case ui.CmdMute:
		s.vol.SetMuted(cmd.Muted)
	case ui.CmdTestTone:
		s.m.PlayTestSound()
	case ui.CmdTogglePlay:
		if s.transport == nil {
			return
		}
		if s.transport.IsPlaying() {
			s.transport.Stop()
			return
		}
		if s.transport.HasStreamFinished() {
			s.transport.SetPosition(0)
		}
		s.transport.Start()
	case ui.CmdRescan:
		s.m.ScanForDevices()
		s.m.HandlePendingEvents()
	case ui.CmdClose:
		s.m.CloseDevice()
	case ui.CmdRestart:
		if err := s.m.RestartLastDevice(); err != nil {
			s.log.Warn().Err(err).Msg("restart failed")
		}
	}
}

func (s *session) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.prog.Send(s.status())
		}
	}
}

func (s *session) status() ui.StatusMsg {
	st := ui.StatusMsg{
		Session:     s.m.Session(),
		State:       s.m.State().String(),
		CPU:         s.m.CPUUsage(),
		InputLevel:  s.m.InputLevel(),
		OutputLevel: s.m.OutputLevel(),
		XRuns:       max(s.m.XRunCount(), 0),
		Volume:      int(s.m.MasterGain()*100 + 0.5),
		Muted:       s.m.IsMuted(),
		MidiCount:   s.midiCount.Load(),
	}
	for _, t := range s.m.DeviceTypes() {
		st.Types = append(st.Types, t.Name())
	}
	if t := s.m.CurrentDeviceType(); t != nil {
		st.DeviceType = t.Name()
	}
	if err := s.m.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if dev := s.m.CurrentDevice(); dev != nil {
		st.Output = dev.OutputDeviceName()
		st.Input = dev.InputDeviceName()
		st.SampleRate = dev.CurrentSampleRate()
		st.BufferSize = dev.CurrentBufferSize()
		st.InputChannels = dev.ActiveInputChannels().Count()
		st.OutputChannels = dev.ActiveOutputChannels().Count()
		if st.SampleRate > 0 {
			frames := dev.OutputLatency() + st.BufferSize
			st.Latency = time.Duration(float64(frames) / st.SampleRate * float64(time.Second))
		}
	}
	if s.transport != nil {
		st.File = filepath.Base(s.file)
		st.Playing = s.transport.IsPlaying()
		st.Position = s.transport.CurrentPosition()
		st.Length = s.transport.LengthInSeconds()
	}
	if inputs, err := s.m.MidiInputs(); err == nil {
		for _, in := range inputs {
			if s.m.IsMidiInputEnabled(in.Identifier) {
				st.MidiInputs = append(st.MidiInputs, in.Name)
			}
		}
	}
	return st
}
