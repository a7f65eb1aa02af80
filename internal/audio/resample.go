package audio

import (
	"encoding/binary"
	"math"
)

// Resample converts 16-bit little-endian mono PCM from srcRate to dstRate
// using linear interpolation. The output holds round(n*dstRate/srcRate)
// samples for n input samples, preserving signal duration. Equal rates
// return a copy. Empty input yields empty output.
func Resample(pcm []byte, srcRate, dstRate int) []byte {
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	if srcRate == dstRate {
		out := make([]byte, n*2)
		copy(out, pcm[:n*2])
		return out
	}

	outN := int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
	if outN == 0 {
		return nil
	}

	out := make([]byte, outN*2)
	step := float64(srcRate) / float64(dstRate)

	for i := 0; i < outN; i++ {
		pos := float64(i) * step
		i0 := int(pos)
		if i0 >= n-1 {
			// Past the last interpolation interval: hold the final sample.
			last := int16(binary.LittleEndian.Uint16(pcm[(n-1)*2:]))
			binary.LittleEndian.PutUint16(out[i*2:], uint16(last))
			continue
		}
		frac := pos - float64(i0)
		s0 := float64(int16(binary.LittleEndian.Uint16(pcm[i0*2:])))
		s1 := float64(int16(binary.LittleEndian.Uint16(pcm[(i0+1)*2:])))
		v := s0 + (s1-s0)*frac
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v))))
	}

	return out
}
