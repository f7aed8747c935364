// ABOUTME: Source contracts consumed by players and transports
// ABOUTME: Read fills a planar buffer and signals the end with io.EOF
package player

import "github.com/Sendspin/audioio/pkg/audio"

// Source produces audio one block at a time.
type Source interface {
	// Prepare is called before the first Read and again whenever the device
	// rate or block size changes.
	Prepare(sampleRate float64, blockSize int)

	// Read fills dst from its first frame and returns how many frames were
	// produced. A short count with io.EOF means the source is exhausted.
	Read(dst audio.Buffer) (int, error)

	Release()
}

// PositionableSource is a Source with a seekable frame position.
type PositionableSource interface {
	Source
	SetPosition(frame int64)
	Position() int64

	// Length is the total number of frames, or a negative value when unknown
	Length() int64
	Looping() bool
	SetLooping(on bool)
}
