package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

const wavFormatPCM = 1

// EncodeWAV encodes samples as a working-format WAV. Samples outside
// [-1, 1] are clipped.
func EncodeWAV(samples []float32) ([]byte, error) {
	clipped := make([]float32, len(samples))
	for i, s := range samples {
		clipped[i] = max(-1, min(1, s))
	}

	var f memFile
	enc := wav.NewEncoder(&f, ExpectedSampleRate, ExpectedBitDepth, ExpectedChannels, wavFormatPCM)
	err := enc.Write(&goaudio.Float32Buffer{
		Data:           clipped,
		Format:         &goaudio.Format{SampleRate: ExpectedSampleRate, NumChannels: ExpectedChannels},
		SourceBitDepth: ExpectedBitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav header: %w", err)
	}
	return f.data, nil
}

// memFile is an in-memory io.WriteSeeker; the encoder seeks back to patch
// the RIFF sizes on Close.
type memFile struct {
	data []byte
	pos  int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	copy(m.data[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = m.pos + offset
	case io.SeekEnd:
		next = int64(len(m.data)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	m.pos = next
	return next, nil
}
