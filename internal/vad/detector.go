// Package vad implements per-frame voice activity detection and the turn
// segmentation that decides when a caller has finished speaking.
package vad

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrBadFrameSize is returned when a frame does not match the configured
// frame size exactly. Callers must reject undersized frames before
// classification rather than pad them.
var ErrBadFrameSize = errors.New("frame does not match configured frame size")

// MaxAggressiveness is the highest supported detector aggressiveness.
const MaxAggressiveness = 3

// energyThresholds maps aggressiveness 0-3 to the normalized RMS level above
// which a frame counts as speech. Low aggressiveness classifies more
// ambiguous audio as speech; high aggressiveness demands a stronger signal.
var energyThresholds = [MaxAggressiveness + 1]float64{0.008, 0.015, 0.028, 0.045}

// Detector classifies fixed-duration PCM frames as speech or non-speech
// using normalized RMS energy. Frames are telephony-rate mono 16-bit
// little-endian PCM of exactly the configured duration.
type Detector struct {
	frameBytes int
	threshold  float64
}

// NewDetector creates a detector for the given sample rate and frame
// duration. aggressiveness is an ordinal sensitivity from 0 (permissive) to
// 3 (strict).
func NewDetector(aggressiveness, sampleRate, frameMillis int) (*Detector, error) {
	if aggressiveness < 0 || aggressiveness > MaxAggressiveness {
		return nil, fmt.Errorf("aggressiveness must be between 0 and %d, got %d", MaxAggressiveness, aggressiveness)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if frameMillis <= 0 {
		return nil, fmt.Errorf("frame duration must be positive, got %dms", frameMillis)
	}

	return &Detector{
		frameBytes: sampleRate * frameMillis / 1000 * 2,
		threshold:  energyThresholds[aggressiveness],
	}, nil
}

// FrameBytes returns the exact byte length a frame must have.
func (d *Detector) FrameBytes() int {
	return d.frameBytes
}

// Classify reports whether the frame contains speech. The frame must be
// exactly FrameBytes long; anything else returns ErrBadFrameSize.
func (d *Detector) Classify(frame []byte) (bool, error) {
	if len(frame) != d.frameBytes {
		return false, fmt.Errorf("%w: got %d bytes, want %d", ErrBadFrameSize, len(frame), d.frameBytes)
	}

	var sum float64
	n := len(frame) / 2
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i*2:]))) / 32768.0
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))

	return rms >= d.threshold, nil
}
