// ABOUTME: Driver adapter capability contract
// ABOUTME: One implementation per native backend; the core never calls native APIs directly
package device

// StreamProc is the real-time entry point a driver invokes once per hardware
// period. in and out hold one slice per native channel requested in the
// StreamRequest; frames is the number of valid samples in each.
type StreamProc func(in, out [][]float32, frames int)

// StreamRequest describes a native stream to open. Input or Output is nil when
// that direction is unused.
type StreamRequest struct {
	Output            *Descriptor
	Input             *Descriptor
	SampleRate        float64
	BufferSize        int
	NumInputChannels  int
	NumOutputChannels int

	// OnError must be called asynchronously when the stream fails outside any
	// call, e.g. when the endpoint is unplugged.
	OnError func(error)

	// OnXRun is called when the driver detects an overrun or underrun.
	OnXRun func()
}

// Stream is an open native stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	SampleRate() float64
	BufferSize() int
	BitDepth() int
	Latency() (input, output int)
}

// Driver is the capability set a native backend exposes to the core.
type Driver interface {
	// Name is the backend family name reported as the device type name
	Name() string

	// Enumerate lists the endpoints currently present, default first when the
	// backend can tell.
	Enumerate() (outputs, inputs []Descriptor, err error)

	// OpenStream opens, but does not start, a native stream. proc may be
	// invoked from a driver thread as soon as Start is called.
	OpenStream(req StreamRequest, proc StreamProc) (Stream, error)

	// HasSeparateInputsAndOutputs reports whether input and output endpoints
	// are chosen independently.
	HasSeparateInputsAndOutputs() bool
}

// XRunReporter is implemented by streams that can detect overruns. Devices over
// streams without it report an unknown xrun count.
type XRunReporter interface {
	ReportsXRuns() bool
}
