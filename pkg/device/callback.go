// ABOUTME: Consumer capability invoked by devices and the manager
// ABOUTME: Optional interfaces add device-start and error notifications
package device

// Callback is implemented by consumers of the real-time audio stream.
//
// IOCallback runs on the audio goroutine: it must not block, allocate or take
// locks that a control goroutine may hold for long. in and out only contain the
// active channels, compacted in channel-index order.
type Callback interface {
	PrepareToPlay(sampleRate float64, bufferSize int)
	IOCallback(in, out [][]float32, numSamples int)
	ReleaseResources()
}

// AboutToStartCallback is implemented by consumers that need the device itself
// before streaming begins.
type AboutToStartCallback interface {
	AboutToStart(dev Device)
}

// ErrorCallback is implemented by consumers that want asynchronous device
// errors. It is called from a driver goroutine.
type ErrorCallback interface {
	DeviceError(err error)
}

// CallbackFuncs adapts plain functions to Callback. Nil fields are skipped.
type CallbackFuncs struct {
	Prepare func(sampleRate float64, bufferSize int)
	Process func(in, out [][]float32, numSamples int)
	Release func()
}

func (f *CallbackFuncs) PrepareToPlay(sampleRate float64, bufferSize int) {
	if f.Prepare != nil {
		f.Prepare(sampleRate, bufferSize)
	}
}

func (f *CallbackFuncs) IOCallback(in, out [][]float32, numSamples int) {
	if f.Process != nil {
		f.Process(in, out, numSamples)
	}
}

func (f *CallbackFuncs) ReleaseResources() {
	if f.Release != nil {
		f.Release()
	}
}
