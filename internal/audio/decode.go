package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
)

// Working format shared by every clip inside a job. Batch responses are
// decoded into it before segmentation, and silence is generated in it.
const (
	ExpectedSampleRate = 24000
	ExpectedChannels   = 1
	ExpectedBitDepth   = 16
)

// ErrFormatMismatch is returned when a decoded WAV is not in the working format.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// DecodeWAV decodes working-format WAV bytes into float32 PCM samples.
func DecodeWAV(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.New("empty WAV input")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	if dec.SampleRate != ExpectedSampleRate {
		return nil, fmt.Errorf("%w: sample rate %d, want %d", ErrFormatMismatch, dec.SampleRate, ExpectedSampleRate)
	}
	if dec.NumChans != ExpectedChannels {
		return nil, fmt.Errorf("%w: channels %d, want %d", ErrFormatMismatch, dec.NumChans, ExpectedChannels)
	}
	if dec.BitDepth != ExpectedBitDepth {
		return nil, fmt.Errorf("%w: bit depth %d, want %d", ErrFormatMismatch, dec.BitDepth, ExpectedBitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM data: %w", err)
	}

	return buf.Data, nil
}

// IsWorkingFormat reports whether data is a WAV already in the working format,
// so callers can skip a transcode pass.
func IsWorkingFormat(data []byte) bool {
	if len(data) < 44 {
		return false
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return false
	}
	return dec.SampleRate == ExpectedSampleRate &&
		dec.NumChans == ExpectedChannels &&
		dec.BitDepth == ExpectedBitDepth
}
