package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WrapPCM16 prepends a RIFF/WAVE header to raw little-endian 16-bit PCM so
// that headerless backend output can be handed to the media tool as a file.
func WrapPCM16(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, fmt.Errorf("pcm length %d is not a whole number of frames", len(pcm))
	}

	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)

	return buf.Bytes(), nil
}
