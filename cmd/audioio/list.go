// ABOUTME: Plain-text listing of device types, devices and MIDI ports
// ABOUTME: Used by --list for scripting and for checking which backends a build has
package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Sendspin/audioio/pkg/device"
	"github.com/Sendspin/audioio/pkg/manager"
)

func listDevices(w io.Writer, m *manager.Manager) error {
	m.ScanForDevices()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tDIRECTION\tDEVICE\tCHANNELS\tRATES")
	for _, t := range m.DeviceTypes() {
		if !t.Available() {
			fmt.Fprintf(tw, "%s\t-\t(backend unavailable)\t\t\n", t.Name())
			continue
		}
		listDirection(tw, t, false)
		listDirection(tw, t, true)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	ins, err := m.MidiInputs()
	if err != nil {
		fmt.Fprintf(w, "\nMIDI: %v\n", err)
		return nil
	}
	outs, err := m.MidiOutputs()
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	for _, in := range ins {
		fmt.Fprintf(w, "MIDI in   %s\n", in.Identifier)
	}
	for _, out := range outs {
		fmt.Fprintf(w, "MIDI out  %s\n", out.Identifier)
	}
	return nil
}

func listDirection(w io.Writer, t device.Type, input bool) {
	dir := "out"
	if input {
		dir = "in"
	}
	def := t.DefaultDeviceIndex(input)
	for i, name := range t.DeviceNames(input) {
		label := name
		if i == def {
			label += " (default)"
		}
		desc, _ := t.Describe(name, input)
		channels := len(desc.OutputChannelNames)
		if input {
			channels = len(desc.InputChannelNames)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\n", t.Name(), dir, label, channels, desc.SampleRates)
	}
}
