// ABOUTME: File source factory dispatching on the file extension
// ABOUTME: Returns a positionable source at the file's native sample rate
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sendspin/audioio/pkg/audio"
)

// File is a decoded audio file ready for a transport.
type File interface {
	Prepare(sampleRate float64, blockSize int)
	Read(dst audio.Buffer) (int, error)
	Release()

	SetPosition(frame int64)
	Position() int64
	Length() int64
	Looping() bool
	SetLooping(on bool)

	SampleRate() float64
	NumChannels() int
	Close() error
}

// Open decodes path as WAV, MP3 or FLAC according to its extension.
func Open(path string) (File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	var (
		f   File
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		f, err = OpenWAV(path)
	case ".mp3":
		f, err = OpenMP3(path)
	case ".flac":
		f, err = OpenFLAC(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .wav, .mp3, .flac)", ext)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
