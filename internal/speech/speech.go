// Package speech defines the collaborator interfaces for the spoken-turn
// pipeline (transcription, reply generation, synthesis) and provides an
// OpenAI-backed implementation.
package speech

import (
	"context"
	"errors"
)

// ErrServiceUnavailable indicates the remote speech service could not be
// reached or refused the request. The turn is abandoned; the session is not.
var ErrServiceUnavailable = errors.New("speech service unavailable")

// ErrTranscriptionFailed indicates the service accepted the audio but could
// not produce a transcript.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Transcriber converts a completed turn of linear PCM audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}

// ReplyGenerator produces the assistant's textual reply for a transcript,
// steered by the tenant's system prompt.
type ReplyGenerator interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}

// Synthesizer renders reply text as linear PCM audio at the provider's
// native sample rate, which is returned alongside the samples.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (pcm []byte, sampleRate int, err error)
}

// Pipeline bundles the three collaborators a turn needs. A nil Pipeline on a
// session means the speech stack is not configured and every turn degrades
// to silence.
type Pipeline interface {
	Transcriber
	ReplyGenerator
	Synthesizer
}
