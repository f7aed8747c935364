// ABOUTME: Adapter from gomidi drivers to the MIDI Driver interface
// ABOUTME: Works with rtmidi in binaries and testdrv in tests
package midi

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// GomidiDriver adapts a gomidi drivers.Driver.
type GomidiDriver struct {
	drv drivers.Driver
}

// NewGomidiDriver wraps drv
func NewGomidiDriver(drv drivers.Driver) *GomidiDriver {
	return &GomidiDriver{drv: drv}
}

// portIDs gives ports with duplicate names distinct identifiers
func portIDs(names []string) []DeviceInfo {
	seen := make(map[string]int, len(names))
	infos := make([]DeviceInfo, 0, len(names))
	for _, n := range names {
		seen[n]++
		id := n
		if c := seen[n]; c > 1 {
			id = n + " #" + strconv.Itoa(c)
		}
		infos = append(infos, DeviceInfo{Name: n, Identifier: id})
	}
	return infos
}

func (g *GomidiDriver) ins() ([]drivers.In, []DeviceInfo, error) {
	ins, err := g.drv.Ins()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list MIDI inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return ins, portIDs(names), nil
}

func (g *GomidiDriver) outs() ([]drivers.Out, []DeviceInfo, error) {
	outs, err := g.drv.Outs()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list MIDI outputs: %w", err)
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return outs, portIDs(names), nil
}

func (g *GomidiDriver) Inputs() ([]DeviceInfo, error) {
	_, infos, err := g.ins()
	return infos, err
}

func (g *GomidiDriver) Outputs() ([]DeviceInfo, error) {
	_, infos, err := g.outs()
	return infos, err
}

// OpenInput opens the port but delivers nothing until Start.
func (g *GomidiDriver) OpenInput(id string, handler RawHandler) (Input, error) {
	ins, infos, err := g.ins()
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(infos, func(d DeviceInfo) bool { return d.Identifier == id })
	if i < 0 {
		return nil, fmt.Errorf("MIDI input %q not found", id)
	}
	if err := ins[i].Open(); err != nil {
		return nil, fmt.Errorf("failed to open MIDI input %q: %w", id, err)
	}
	return &gomidiInput{port: ins[i], info: infos[i], handler: handler}, nil
}

func (g *GomidiDriver) OpenOutput(id string) (Output, error) {
	outs, infos, err := g.outs()
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(infos, func(d DeviceInfo) bool { return d.Identifier == id })
	if i < 0 {
		return nil, fmt.Errorf("MIDI output %q not found", id)
	}
	if err := outs[i].Open(); err != nil {
		return nil, fmt.Errorf("failed to open MIDI output %q: %w", id, err)
	}
	return &gomidiOutput{port: outs[i], info: infos[i]}, nil
}

type gomidiInput struct {
	port    drivers.In
	info    DeviceInfo
	handler RawHandler

	mu   sync.Mutex
	stop func()
}

func (in *gomidiInput) Info() DeviceInfo { return in.info }

func (in *gomidiInput) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stop != nil {
		return nil
	}
	stop, err := in.port.Listen(func(msg []byte, _ int32) {
		in.handler(msg, time.Now())
	}, drivers.ListenConfig{SysEx: true})
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %w", in.info.Name, err)
	}
	in.stop = stop
	return nil
}

func (in *gomidiInput) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stop != nil {
		in.stop()
		in.stop = nil
	}
	return nil
}

func (in *gomidiInput) Close() error {
	_ = in.Stop()
	return in.port.Close()
}

type gomidiOutput struct {
	port drivers.Out
	info DeviceInfo
}

func (out *gomidiOutput) Info() DeviceInfo { return out.info }

func (out *gomidiOutput) Send(data []byte) error {
	return out.port.Send(data)
}

func (out *gomidiOutput) Close() error {
	return out.port.Close()
}
