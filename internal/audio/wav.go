package audio

import "encoding/binary"

// wavHeaderSize is the size of a canonical PCM WAV header: RIFF descriptor,
// fmt chunk (16-byte body) and data chunk header.
const wavHeaderSize = 44

// wavFormatPCM is the WAV format code for uncompressed linear PCM.
const wavFormatPCM = 1

// EncodeWAV wraps 16-bit little-endian mono PCM in a WAV container at the
// given sample rate. The speech-to-text collaborator expects a WAV file, not
// raw samples.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	const channels = 1
	const bitsPerSample = 16

	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf := make([]byte, wavHeaderSize+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)

	return buf
}
