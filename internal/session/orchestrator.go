package session

import (
	"context"
	"log/slog"

	"github.com/voxgate/voxgate/internal/audio"
	"github.com/voxgate/voxgate/internal/metrics"
	"github.com/voxgate/voxgate/internal/speech"
)

// orchestrator runs the speech pipeline for one completed turn. Every step
// fails open: an error ends the turn with silence and is logged, never
// surfaced to the session.
type orchestrator struct {
	pipeline speech.Pipeline
	emitter  AudioEmitter
	stats    *metrics.Stats
	logger   *slog.Logger
}

// processTurn transcribes the buffered turn audio, generates a reply under
// the given system prompt, synthesizes it, transcodes to the telephony
// format, and emits one outbound media event on the stream. The context is
// the session context; termination cancels in-flight work and discards any
// unemitted result.
func (o *orchestrator) processTurn(ctx context.Context, streamSID, systemPrompt string, pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	if o.pipeline == nil {
		o.logger.Debug("speech pipeline not configured, dropping turn")
		o.turnFailed()
		return
	}

	transcript, err := o.pipeline.Transcribe(ctx, pcm, audio.TelephonyRate)
	if err != nil {
		o.logger.Error("transcription failed", "stream_sid", streamSID, "error", err)
		o.turnFailed()
		return
	}
	if transcript == "" {
		o.logger.Debug("empty transcript, no reply", "stream_sid", streamSID)
		return
	}

	reply, err := o.pipeline.Complete(ctx, systemPrompt, transcript)
	if err != nil {
		o.logger.Error("reply generation failed", "stream_sid", streamSID, "error", err)
		o.turnFailed()
		return
	}

	replyPCM, sampleRate, err := o.pipeline.Synthesize(ctx, reply)
	if err != nil {
		o.logger.Error("speech synthesis failed", "stream_sid", streamSID, "error", err)
		o.turnFailed()
		return
	}

	if len(replyPCM)%2 != 0 {
		o.logger.Warn("synthesized audio ends mid-sample, dropping the trailing byte",
			"stream_sid", streamSID, "bytes", len(replyPCM))
		replyPCM = replyPCM[:len(replyPCM)-1]
	}
	payload := audio.EncodeOutbound(replyPCM, sampleRate, audio.TelephonyRate)

	// The session may have terminated while the pipeline was running.
	if ctx.Err() != nil {
		o.logger.Debug("session gone, discarding reply", "stream_sid", streamSID)
		return
	}

	if err := o.emitter.EmitAudio(streamSID, payload); err != nil {
		o.logger.Error("emitting reply failed", "stream_sid", streamSID, "error", err)
		o.turnFailed()
		return
	}

	o.logger.Info("turn processed",
		"stream_sid", streamSID,
		"transcript_len", len(transcript),
		"reply_len", len(reply),
		"payload_bytes", len(payload))
	if o.stats != nil {
		o.stats.TurnProcessed()
	}
}

func (o *orchestrator) turnFailed() {
	if o.stats != nil {
		o.stats.TurnFailed()
	}
}
