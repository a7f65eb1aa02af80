// Package audio provides the codec transcoding between the G.711 u-law
// telephony wire format and 16-bit linear PCM, plus sample-rate conversion
// for synthesized speech.
package audio

import "encoding/binary"

const (
	// TelephonyRate is the fixed sample rate of the call transport (Hz).
	TelephonyRate = 8000
)

// G.711 u-law (PCMU) decoding table: maps each u-law byte to a 16-bit linear
// PCM sample.
var ulawToLinear [256]int16

// G.711 u-law encoding table: maps each 16-bit signed sample to a u-law byte.
var linearToUlaw [65536]uint8

func init() {
	for i := 0; i < 256; i++ {
		ulawToLinear[i] = decodeUlaw(uint8(i))
	}
	for i := -32768; i <= 32767; i++ {
		linearToUlaw[uint16(int16(i))] = encodeUlaw(int16(i))
	}
}

// decodeUlaw converts a u-law byte to a 16-bit linear PCM sample.
func decodeUlaw(u uint8) int16 {
	// Complement to obtain the original code.
	u = ^u
	sign := int16(1)
	if u&0x80 != 0 {
		sign = -1
		u &= 0x7F
	}
	exponent := int((u >> 4) & 0x07)
	mantissa := int(u & 0x0F)
	// Reconstruct the biased magnitude in the 16-bit domain so that
	// decode(encode(x)) stays within one companding step of x.
	magnitude := ((mantissa<<3 + 0x84) << uint(exponent)) - 0x84
	return sign * int16(magnitude)
}

// encodeUlaw converts a 16-bit linear PCM sample to a u-law byte.
func encodeUlaw(sample int16) uint8 {
	const bias = 0x84
	const clip = 32635

	sign := uint8(0)
	if sample < 0 {
		sign = 0x80
		sample = -sample
	}
	if sample > clip {
		sample = clip
	}
	sample += bias

	exponent := 7
	mask := int16(0x4000)
	for exponent > 0 {
		if sample&mask != 0 {
			break
		}
		exponent--
		mask >>= 1
	}

	mantissa := (sample >> (uint(exponent) + 3)) & 0x0F
	return ^(sign | uint8(exponent<<4) | uint8(mantissa))
}

// DecodeULaw decodes G.711 u-law telephony bytes to 16-bit signed linear PCM,
// little-endian, same sample count and rate. Each input byte maps to exactly
// one output sample pair; there are no failure modes for well-formed input.
func DecodeULaw(ulaw []byte) []byte {
	pcm := make([]byte, len(ulaw)*2)
	for i, b := range ulaw {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(ulawToLinear[b]))
	}
	return pcm
}

// EncodeULaw compands 16-bit little-endian linear PCM to G.711 u-law, one
// output byte per input sample. A trailing odd byte is ignored.
func EncodeULaw(pcm []byte) []byte {
	n := len(pcm) / 2
	ulaw := make([]byte, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		ulaw[i] = linearToUlaw[uint16(s)]
	}
	return ulaw
}

// EncodeOutbound converts linear PCM at the synthesis sample rate into the
// telephony wire format: the signal is resampled from srcRate down to dstRate
// and then companded to u-law. The u-law output therefore has
// round(n*dstRate/srcRate) bytes for n input samples.
func EncodeOutbound(pcm []byte, srcRate, dstRate int) []byte {
	return EncodeULaw(Resample(pcm, srcRate, dstRate))
}
