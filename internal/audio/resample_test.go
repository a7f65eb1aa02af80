package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestResampleLengthLaw(t *testing.T) {
	cases := []struct {
		name     string
		inSamples, srcRate, dstRate int
	}{
		{"24k to 8k", 2400, 24000, 8000},
		{"24k to 8k odd", 1001, 24000, 8000},
		{"16k to 8k", 320, 16000, 8000},
		{"8k to 8k", 240, 8000, 8000},
		{"8k to 16k", 240, 8000, 16000},
		{"single sample", 1, 24000, 8000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pcm := make([]byte, tc.inSamples*2)
			out := Resample(pcm, tc.srcRate, tc.dstRate)

			want := int(math.Round(float64(tc.inSamples) * float64(tc.dstRate) / float64(tc.srcRate)))
			if len(out) != want*2 {
				t.Errorf("Resample(%d samples, %d->%d) = %d samples, want %d",
					tc.inSamples, tc.srcRate, tc.dstRate, len(out)/2, want)
			}
		})
	}
}

func TestResampleEmpty(t *testing.T) {
	if out := Resample(nil, 24000, 8000); len(out) != 0 {
		t.Errorf("Resample(nil) = %d bytes, want 0", len(out))
	}
}

func TestResampleSameRateCopies(t *testing.T) {
	pcm := pcmBytes([]int16{100, -200, 300, -400})
	out := Resample(pcm, 8000, 8000)

	if len(out) != len(pcm) {
		t.Fatalf("length = %d, want %d", len(out), len(pcm))
	}
	for i := range pcm {
		if out[i] != pcm[i] {
			t.Fatalf("byte %d = %d, want %d", i, out[i], pcm[i])
		}
	}

	// Must be a copy, not an alias.
	out[0] ^= 0xFF
	if pcm[0] == out[0] {
		t.Error("Resample returned the input slice instead of a copy")
	}
}

// TestResampleConstantSignal checks that a DC signal survives rate conversion
// unchanged: linear interpolation between equal values is the value itself.
func TestResampleConstantSignal(t *testing.T) {
	samples := make([]int16, 2400)
	for i := range samples {
		samples[i] = 1234
	}

	out := Resample(pcmBytes(samples), 24000, 8000)
	for i := 0; i < len(out)/2; i++ {
		if s := int16(binary.LittleEndian.Uint16(out[i*2:])); s != 1234 {
			t.Fatalf("output sample %d = %d, want 1234", i, s)
		}
	}
}

// TestResampleSineError downsamples a 440 Hz tone from 24 kHz to 8 kHz and
// compares against the ideal 8 kHz rendering. Linear interpolation of a
// smooth low-frequency signal should stay within a small fraction of full
// scale.
func TestResampleSineError(t *testing.T) {
	const srcRate, dstRate = 24000, 8000
	const freq = 440.0
	const amp = 16000.0

	in := make([]int16, srcRate/10) // 100 ms
	for i := range in {
		in[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/srcRate))
	}

	out := pcmSamples(t, Resample(pcmBytes(in), srcRate, dstRate))
	for i, got := range out {
		ideal := amp * math.Sin(2*math.Pi*freq*float64(i)/dstRate)
		if diff := math.Abs(float64(got) - ideal); diff > amp*0.02 {
			t.Fatalf("sample %d: got %d, ideal %.0f (diff %.0f)", i, got, ideal, diff)
		}
	}
}
