// ABOUTME: Timestamped MIDI event
// ABOUTME: Raw bytes plus device-time stamp, inspectable through gomidi
package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Event is one MIDI message stamped in device seconds.
type Event struct {
	Data      []byte
	Timestamp float64
}

// Message returns the event as a gomidi message for inspection
func (e Event) Message() gomidi.Message {
	return gomidi.Message(e.Data)
}

func (e Event) String() string {
	return fmt.Sprintf("%.6f %s", e.Timestamp, e.Message().String())
}
