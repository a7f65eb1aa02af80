package vad

// DefaultSilenceFrames is the default number of consecutive non-speech
// frames after speech that ends a turn: 25 frames of 30ms is roughly 750ms
// of sustained silence.
const DefaultSilenceFrames = 25

// Segmenter splits an incoming PCM stream into detector-sized frames and
// tracks the speech/silence run that signals end-of-turn.
//
// Media chunks rarely align to frame boundaries. The trailing partial frame
// of each chunk is carried forward and prefixed onto the next chunk before
// re-splitting, so no audio is ever dropped at a chunk boundary. Carried
// bytes are classified as soon as enough data arrives to complete a frame.
//
// Turn policy: non-speech frames before the first speech frame are ignored
// entirely. Once a speech frame is seen, each non-speech frame increments
// the silence run and each speech frame resets it. When the run exceeds the
// configured threshold while speaking, the turn ends exactly once and the
// speaking flag and counter reset.
type Segmenter struct {
	det       *Detector
	threshold int

	remainder  []byte
	speaking   bool
	silenceRun int
}

// NewSegmenter creates a segmenter over the given detector. silenceFrames is
// the threshold the silence run must exceed to end a turn; values below 1
// fall back to DefaultSilenceFrames.
func NewSegmenter(det *Detector, silenceFrames int) *Segmenter {
	if silenceFrames < 1 {
		silenceFrames = DefaultSilenceFrames
	}
	return &Segmenter{det: det, threshold: silenceFrames}
}

// Push feeds a chunk of 16-bit PCM into the segmenter and returns the
// chunk-relative byte offset just past the frame that ended each turn, one
// entry per speech-then-sustained-silence run completed within the chunk. A
// large chunk spanning several complete runs therefore reports several
// boundaries, in order. All complete frames in the chunk (including
// carried-over bytes from previous chunks) are classified; any trailing
// partial frame is retained for the next call.
func (s *Segmenter) Push(pcm []byte) []int {
	carried := len(s.remainder)
	data := pcm
	if carried > 0 {
		data = append(s.remainder, pcm...)
		s.remainder = nil
	}

	frameBytes := s.det.FrameBytes()
	var boundaries []int

	off := 0
	for ; off+frameBytes <= len(data); off += frameBytes {
		// Size is exact by construction, so classification cannot fail.
		speech, err := s.det.Classify(data[off : off+frameBytes])
		if err != nil {
			continue
		}

		if speech {
			s.speaking = true
			s.silenceRun = 0
			continue
		}

		if !s.speaking {
			// Leading silence: not counted.
			continue
		}

		s.silenceRun++
		if s.silenceRun > s.threshold {
			s.speaking = false
			s.silenceRun = 0
			// The ending frame always extends beyond the carried bytes
			// (carried < frameBytes), so the offset lands inside pcm.
			boundaries = append(boundaries, off+frameBytes-carried)
		}
	}

	if off < len(data) {
		s.remainder = append([]byte(nil), data[off:]...)
	}

	return boundaries
}

// Speaking reports whether at least one speech frame has been observed since
// the last turn end or reset.
func (s *Segmenter) Speaking() bool {
	return s.speaking
}

// SilenceRun returns the current count of consecutive non-speech frames
// observed while speaking.
func (s *Segmenter) SilenceRun() int {
	return s.silenceRun
}

// PendingBytes returns how many carried-over bytes are waiting for the next
// chunk to complete a frame.
func (s *Segmenter) PendingBytes() int {
	return len(s.remainder)
}

// Reset clears the speech state and any carried remainder. Used when the
// session terminates.
func (s *Segmenter) Reset() {
	s.remainder = nil
	s.speaking = false
	s.silenceRun = 0
}
