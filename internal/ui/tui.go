// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the command channel it feeds
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// CommandKind names a user action
type CommandKind int

const (
	CmdVolume CommandKind = iota
	CmdMute
	CmdTestTone
	CmdTogglePlay
	CmdRescan
	CmdClose
	CmdRestart
)

// Command is a user action for the program driving the manager
type Command struct {
	Kind   CommandKind
	Volume int
	Muted  bool
}

// Controls carries commands out of the TUI
type Controls struct {
	Commands chan Command
}

// NewControls creates a command channel. Commands are dropped when the
// consumer falls behind.
func NewControls() *Controls {
	return &Controls{Commands: make(chan Command, 10)}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		volume:   100,
		state:    "closed",
		controls: controls,
	}
}

// New builds the program; the caller runs it and feeds it StatusMsg and
// EventMsg through Send.
func New(controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(controls), tea.WithAltScreen())
}
