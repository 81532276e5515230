package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when a file does not carry a readable RIFF/WAVE header.
var ErrInvalidWAV = errors.New("invalid WAV file")

// WAVInfo describes a recording without decoding its samples.
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	SizeBytes     int64   `json:"size_bytes"`
}

// Frames returns the number of model frames covering the recording at frameHz.
func (i *WAVInfo) Frames(frameHz float64) int {
	return int(i.Duration * frameHz)
}

// Probe reads the header of the WAV file at path.
func Probe(path string) (*WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidWAV, path, err)
	}
	bytesPerSec := int64(dec.SampleRate) * int64(dec.NumChans) * int64(dec.BitDepth) / 8
	if bytesPerSec == 0 {
		return nil, fmt.Errorf("%w: %s: empty sample format", ErrInvalidWAV, path)
	}

	return &WAVInfo{
		SampleRate:    dec.SampleRate,
		Channels:      dec.NumChans,
		BitsPerSample: dec.BitDepth,
		Duration:      float64(dec.PCMLen()) / float64(bytesPerSec),
		SizeBytes:     stat.Size(),
	}, nil
}
