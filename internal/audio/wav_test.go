package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
)

// makeWAV builds a silent PCM WAV with the given header fields.
func makeWAV(sampleRate uint32, numChannels, bitDepth uint16, numSamples int) []byte {
	blockAlign := numChannels * bitDepth / 8
	dataSize := uint32(numSamples) * uint32(blockAlign)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVEfmt ")
	for _, v := range []any{
		uint32(16), uint16(1), numChannels, sampleRate,
		sampleRate * uint32(blockAlign), blockAlign, bitDepth,
	} {
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

func TestDecodeWAV(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantLen  int
		wantErr  bool
		mismatch bool
	}{
		{name: "working format", data: makeWAV(24000, 1, 16, 480), wantLen: 480},
		{name: "empty", data: nil, wantErr: true},
		{name: "not a wav", data: []byte("this is not a RIFF file at all, just text"), wantErr: true},
		{name: "44.1 kHz", data: makeWAV(44100, 1, 16, 10), wantErr: true, mismatch: true},
		{name: "stereo", data: makeWAV(24000, 2, 16, 10), wantErr: true, mismatch: true},
		{name: "24-bit", data: makeWAV(24000, 1, 24, 10), wantErr: true, mismatch: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeWAV(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.mismatch && !errors.Is(err, ErrFormatMismatch) {
					t.Errorf("err = %v; want ErrFormatMismatch", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeWAV: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("samples = %d; want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestEncodeWAV_WorkingFormat(t *testing.T) {
	data, err := EncodeWAV(make([]float32, 100))
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("bad header %q", data[:12])
	}
	if !IsWorkingFormat(data) {
		t.Error("encoded WAV is not in the working format")
	}
	if riff := binary.LittleEndian.Uint32(data[4:8]); int(riff) != len(data)-8 {
		t.Errorf("RIFF size = %d; want %d", riff, len(data)-8)
	}
}

func TestEncodeWAV_ClipsOutOfRange(t *testing.T) {
	data, err := EncodeWAV([]float32{2, -3, 0.25})
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeWAV(data)
	if err != nil {
		t.Fatal(err)
	}

	const tolerance = 2.0 / 32768
	for i, want := range []float32{1, -1, 0.25} {
		if math.Abs(float64(got[i]-want)) > tolerance {
			t.Errorf("sample %d = %f; want %f", i, got[i], want)
		}
	}
}

func TestEncodeWAV_DoesNotMutateInput(t *testing.T) {
	in := []float32{1.5}
	if _, err := EncodeWAV(in); err != nil {
		t.Fatal(err)
	}
	if in[0] != 1.5 {
		t.Errorf("input modified: %f", in[0])
	}
}

func TestDecodeEncodeRoundtrip(t *testing.T) {
	original := []float32{0.0, 0.5, -0.5, 1.0, -1.0}
	encoded, err := EncodeWAV(original)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	decoded, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(decoded) != len(original) {
		t.Fatalf("roundtrip: got %d samples, want %d", len(decoded), len(original))
	}

	const tolerance = 2.0 / 32768
	for i, want := range original {
		if math.Abs(float64(decoded[i]-want)) > tolerance {
			t.Errorf("sample[%d] = %f, want %f", i, decoded[i], want)
		}
	}
}

func TestMemFile(t *testing.T) {
	var f memFile
	_, _ = f.Write([]byte("abcdef"))

	if _, err := f.Seek(2, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	_, _ = f.Write([]byte("XY"))
	if _, err := f.Seek(-1, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	_, _ = f.Write([]byte("Z!"))

	if got := string(f.data); got != "abXYeZ!" {
		t.Errorf("data = %q; want %q", got, "abXYeZ!")
	}

	if _, err := f.Seek(-100, io.SeekCurrent); err == nil {
		t.Error("expected error for negative position")
	}
	if _, err := f.Seek(0, 42); err == nil {
		t.Error("expected error for invalid whence")
	}
}
