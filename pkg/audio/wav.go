package audio

import "encoding/binary"

// WAVHeaderSize is the length of the canonical RIFF/WAVE header written by
// PCM16ToWAV.
const WAVHeaderSize = 44

// PCM16ToWAV wraps little-endian 16-bit PCM samples in a canonical 44-byte
// RIFF/WAVE header. Channels below 1 are treated as mono.
func PCM16ToWAV(samples []int16, sampleRate, channels int) []byte {
	if channels < 1 {
		channels = 1
	}
	dataLen := len(samples) * 2
	blockAlign := channels * 2

	buf := make([]byte, WAVHeaderSize+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(WAVHeaderSize-8+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[WAVHeaderSize+i*2:], uint16(s))
	}
	return buf
}

// MuLawToWAV decodes a mu-law buffer and wraps it as a mono WAV file at rate.
func MuLawToWAV(data []byte, rate int) []byte {
	return PCM16ToWAV(MuLawToPCM16(data), rate, 1)
}
