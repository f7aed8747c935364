// ABOUTME: Bubbletea model for the device monitor
// ABOUTME: Renders device state, meters and recent events; keys become Commands
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const maxEvents = 6

// Model represents the TUI state
type Model struct {
	// Device
	deviceType string
	output     string
	input      string
	state      string
	lastErr    string
	sampleRate float64
	bufferSize int
	inChans    int
	outChans   int
	latency    time.Duration

	// Meters
	cpu      float64
	inLevel  float32
	outLevel float32
	xruns    int

	// Controls
	volume int
	muted  bool

	// Transport
	file     string
	playing  bool
	position float64
	length   float64

	// MIDI
	midiInputs []string
	midiCount  int64

	events []string

	// Debug
	showDebug bool
	session   string
	types     []string

	// Dimensions
	width  int
	height int

	controls *Controls
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case EventMsg:
		m.addEvent(string(msg))
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var s strings.Builder
	s.WriteString(m.renderHeader())
	s.WriteString(m.renderMeters())
	s.WriteString(m.renderTransport())
	s.WriteString(m.renderEvents())
	if m.showDebug {
		s.WriteString(m.renderDebug())
	}
	s.WriteString(m.renderHelp())
	return s.String()
}

func (m Model) renderHeader() string {
	status := m.state
	if m.lastErr != "" {
		status += ": " + m.lastErr
	}

	s := fmt.Sprintf(`┌─ audioio ────────────────────────────────────────────┐
│ Type:   %-44s │
│ Status: %-44s │
├──────────────────────────────────────────────────────┤
`, truncate(m.deviceType, 44), truncate(status, 44))
	if m.state != "open" {
		return s
	}
	s += fmt.Sprintf("│ Out: %-47s │\n", truncate(describe(m.output, m.outChans), 47))
	s += fmt.Sprintf("│ In:  %-47s │\n", truncate(describe(m.input, m.inChans), 47))
	s += fmt.Sprintf("│ %-52s │\n", fmt.Sprintf("%.0f Hz, %d frames (%.1f ms)",
		m.sampleRate, m.bufferSize, float64(m.latency.Microseconds())/1000))
	return s
}

func (m Model) renderMeters() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " muted"
	}
	return fmt.Sprintf("│%-54s│\n", "") +
		fmt.Sprintf("│ %-52s │\n", fmt.Sprintf("Volume: [%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteIcon)) +
		fmt.Sprintf("│ %-52s │\n", fmt.Sprintf("Out:    [%s] In: [%s]", renderBar(percent(m.outLevel), 100, 10), renderBar(percent(m.inLevel), 100, 10))) +
		fmt.Sprintf("│ %-52s │\n", fmt.Sprintf("CPU: %.1f%%  XRuns: %d  MIDI: %d", m.cpu*100, m.xruns, m.midiCount))
}

func (m Model) renderTransport() string {
	if m.file == "" {
		return ""
	}
	state := "stopped"
	if m.playing {
		state = "playing"
	}
	pos := formatSeconds(m.position)
	if m.length >= 0 {
		pos += " / " + formatSeconds(m.length)
	}
	return "├──────────────────────────────────────────────────────┤\n" +
		fmt.Sprintf("│ %-52s │\n", truncate(m.file, 52)) +
		fmt.Sprintf("│ %-52s │\n", state+"  "+pos)
}

func (m Model) renderEvents() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	if len(m.events) == 0 {
		return s + "│ No events                                            │\n"
	}
	for _, e := range m.events {
		s += fmt.Sprintf("│ %-52s │\n", truncate(e, 52))
	}
	return s
}

func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Session: %-41s │
│   Types:   %-41s │
│   MIDI in: %-41s │
`, truncate(m.session, 41), truncate(strings.Join(m.types, ", "), 41),
		truncate(strings.Join(m.midiInputs, ", "), 41))
}

func (m Model) renderHelp() string {
	return `│ ↑/↓:Vol m:Mute t:Tone p:Play s:Rescan c:Close o:Open │
│ d:Debug q:Quit                                       │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+5, 100)
		m.send(Command{Kind: CmdVolume, Volume: m.volume})
	case "down":
		m.volume = max(m.volume-5, 0)
		m.send(Command{Kind: CmdVolume, Volume: m.volume})
	case "m":
		m.muted = !m.muted
		m.send(Command{Kind: CmdMute, Muted: m.muted})
	case "t":
		m.send(Command{Kind: CmdTestTone})
	case "p":
		m.send(Command{Kind: CmdTogglePlay})
	case "s":
		m.send(Command{Kind: CmdRescan})
	case "c":
		m.send(Command{Kind: CmdClose})
	case "o":
		m.send(Command{Kind: CmdRestart})
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) send(c Command) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Commands <- c:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	m.deviceType = msg.DeviceType
	m.state = msg.State
	m.lastErr = msg.LastError
	if msg.State == "open" {
		m.output, m.input = msg.Output, msg.Input
		m.sampleRate, m.bufferSize = msg.SampleRate, msg.BufferSize
		m.inChans, m.outChans = msg.InputChannels, msg.OutputChannels
		m.latency = msg.Latency
	}
	m.cpu = msg.CPU
	m.inLevel, m.outLevel = msg.InputLevel, msg.OutputLevel
	m.xruns = msg.XRuns
	m.volume = msg.Volume
	m.muted = msg.Muted
	m.file = msg.File
	m.playing = msg.Playing
	m.position, m.length = msg.Position, msg.Length
	m.midiInputs = msg.MidiInputs
	m.midiCount = msg.MidiCount
	if msg.Session != "" {
		m.session = msg.Session
	}
	if len(msg.Types) > 0 {
		m.types = msg.Types
	}
}

func (m *Model) addEvent(e string) {
	m.events = append(m.events, e)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

// StatusMsg is a full snapshot of the monitored manager
type StatusMsg struct {
	Session    string
	Types      []string
	DeviceType string
	State      string
	LastError  string

	Output         string
	Input          string
	SampleRate     float64
	BufferSize     int
	InputChannels  int
	OutputChannels int
	Latency        time.Duration

	CPU         float64
	InputLevel  float32
	OutputLevel float32
	XRuns       int
	Volume      int
	Muted       bool

	File     string
	Playing  bool
	Position float64
	Length   float64

	MidiInputs []string
	MidiCount  int64
}

// EventMsg appends a line to the event list
type EventMsg string

// Utility functions
func renderBar(value, total, width int) string {
	value = min(max(value, 0), total)
	filled := (value * width) / total
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func describe(name string, channels int) string {
	if name == "" || channels == 0 {
		return "(none)"
	}
	return fmt.Sprintf("%s (%s)", name, channelName(channels))
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%d ch", channels)
	}
}

func percent(level float32) int {
	return int(min(max(level, 0), 1) * 100)
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second)).Truncate(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
