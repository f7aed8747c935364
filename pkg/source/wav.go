// ABOUTME: WAV file decoding into a memory source
// ABOUTME: Uses go-audio/wav to read the whole PCM chunk up front
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Sendspin/audioio/pkg/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for input that is not a PCM WAV stream
var ErrInvalidWAV = errors.New("not a valid WAV file")

// OpenWAV decodes the file at path.
func OpenWAV(path string) (*MemorySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// DecodeWAV reads a complete WAV stream.
func DecodeWAV(r io.ReadSeeker) (*MemorySource, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return nil, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}
	return NewMemorySource(audio.FromIntBuffer(buf), float64(dec.SampleRate)), nil
}
