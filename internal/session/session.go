// Package session implements the per-call state machine that buffers caller
// audio, detects end-of-turn, and drives the spoken-reply pipeline.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxgate/voxgate/internal/audio"
	"github.com/voxgate/voxgate/internal/database"
	"github.com/voxgate/voxgate/internal/database/models"
	"github.com/voxgate/voxgate/internal/metrics"
	"github.com/voxgate/voxgate/internal/speech"
	"github.com/voxgate/voxgate/internal/vad"
)

// State is the lifecycle phase of a call session.
type State int

const (
	// StateAwaitingConnect is the initial state before the connect event.
	StateAwaitingConnect State = iota
	// StateActive means the call is live and media is being buffered.
	StateActive
	// StateTerminated is final. No transition leaves it.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingConnect:
		return "awaiting_connect"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AudioEmitter sends one outbound audio payload, already in the telephony
// encoding, tagged with the stream it belongs to. The protocol handler
// implements it.
type AudioEmitter interface {
	EmitAudio(streamSID string, payload []byte) error
}

// Config carries the collaborators and tuning for one session.
type Config struct {
	// DialedNumber is the tenant-identifying number from the connection URL.
	DialedNumber string
	// FallbackPrompt steers reply generation when no tenant matches the
	// dialed number.
	FallbackPrompt string

	Tenants  database.TenantRepository
	CallLogs database.CallLogRepository
	Pipeline speech.Pipeline // nil means the speech stack is not configured
	Emitter  AudioEmitter
	Stats    *metrics.Stats
	Logger   *slog.Logger

	VADAggressiveness int
	VADFrameMs        int // 0 means the 30 ms default
	SilenceFrames     int
}

// Session is the per-connection call state. It is exclusively owned by its
// connection's goroutines; only Terminate may be called concurrently with the
// event handlers.
type Session struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	seg  *vad.Segmenter
	orch *orchestrator

	mu        sync.Mutex
	state     State
	streamSID string
	tenant    *models.Tenant
	callLogID int64
	startedAt time.Time
	buffer    []byte
}

// New creates a session in the AwaitingConnect state. The session context is
// derived from parent and cancelled on termination, aborting any in-flight
// turn work.
func New(parent context.Context, cfg Config) (*Session, error) {
	if cfg.Emitter == nil {
		return nil, fmt.Errorf("session: emitter is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("subsystem", "session", "dialed_number", cfg.DialedNumber)

	frameMs := cfg.VADFrameMs
	if frameMs <= 0 {
		frameMs = 30
	}
	det, err := vad.NewDetector(cfg.VADAggressiveness, audio.TelephonyRate, frameMs)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	silenceFrames := cfg.SilenceFrames
	if silenceFrames <= 0 {
		silenceFrames = vad.DefaultSilenceFrames
	}

	ctx, cancel := context.WithCancel(parent)

	return &Session{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		seg:    vad.NewSegmenter(det, silenceFrames),
		orch: &orchestrator{
			pipeline: cfg.Pipeline,
			emitter:  cfg.Emitter,
			stats:    cfg.Stats,
			logger:   logger,
		},
		state: StateAwaitingConnect,
	}, nil
}

// Context returns the session context, cancelled on termination.
func (s *Session) Context() context.Context { return s.ctx }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StreamSID returns the transport stream identifier, empty before connect.
func (s *Session) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

// TenantResolved reports whether the dialed number matched a tenant.
func (s *Session) TenantResolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenant != nil
}

// HandleConnected activates the session: it resolves the tenant for the
// dialed number and, when one exists, opens a call log entry. An unknown
// dialed number is not an error; the session proceeds with the fallback
// prompt and no log entry. Store failures are logged and likewise degrade to
// the unresolved path.
func (s *Session) HandleConnected(ctx context.Context, streamSID, callSID string) error {
	s.mu.Lock()
	if s.state != StateAwaitingConnect {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("connect event in state %s", state)
	}
	s.mu.Unlock()

	var tenant *models.Tenant
	if s.cfg.Tenants != nil {
		var err error
		tenant, err = s.cfg.Tenants.GetByDialedNumber(ctx, s.cfg.DialedNumber)
		if err != nil {
			s.logger.Error("tenant lookup failed", "error", err)
			tenant = nil
		}
	}

	var callLogID int64
	if tenant != nil && s.cfg.CallLogs != nil {
		id, err := s.cfg.CallLogs.Start(ctx, tenant.ID, streamSID, callSID, s.cfg.DialedNumber)
		if err != nil {
			s.logger.Error("opening call log failed", "error", err)
		} else {
			callLogID = id
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingConnect {
		// Terminated while we were resolving. Close the entry we just
		// opened so it does not linger as in_progress.
		if callLogID != 0 && s.cfg.CallLogs != nil {
			if err := s.cfg.CallLogs.End(ctx, callLogID, 0, models.CallStatusDisconnected); err != nil {
				s.logger.Error("closing orphaned call log failed", "error", err)
			}
		}
		return fmt.Errorf("connect event in state %s", s.state)
	}
	s.state = StateActive
	s.streamSID = streamSID
	s.tenant = tenant
	s.callLogID = callLogID
	s.startedAt = time.Now()

	if tenant != nil {
		s.logger.Info("call connected", "stream_sid", streamSID, "call_sid", callSID, "tenant_id", tenant.ID)
	} else {
		s.logger.Info("call connected without tenant", "stream_sid", streamSID, "call_sid", callSID)
	}
	return nil
}

// HandleMedia decodes one inbound telephony payload, appends it to the turn
// buffer, and runs turn detection over the new audio. Each turn completed
// within the payload is handed to the orchestrator separately, split at its
// own ending frame; audio after the last boundary stays buffered for the
// next turn. Media outside the Active state is dropped.
func (s *Session) HandleMedia(payload []byte) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	pcm := audio.DecodeULaw(payload)
	s.buffer = append(s.buffer, pcm...)
	boundaries := s.seg.Push(pcm)

	var turns [][]byte
	var streamSID string
	if len(boundaries) > 0 {
		// Boundaries are offsets into pcm; the chunk starts at base in the
		// buffer.
		base := len(s.buffer) - len(pcm)
		start := 0
		for _, b := range boundaries {
			end := base + b
			turns = append(turns, s.buffer[start:end:end])
			start = end
		}
		s.buffer = append([]byte(nil), s.buffer[start:]...)
		streamSID = s.streamSID
	}
	s.mu.Unlock()

	for _, turn := range turns {
		s.orch.processTurn(s.ctx, streamSID, s.systemPrompt(), turn)
	}
}

// Terminate ends the session with the given final status (completed for a
// stop event, disconnected for an abrupt transport loss). It cancels any
// in-flight turn work, closes the call log entry with the call duration, and
// is a no-op when called again.
func (s *Session) Terminate(status string) {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == StateActive
	callLogID := s.callLogID
	startedAt := s.startedAt
	streamSID := s.streamSID
	s.state = StateTerminated
	s.buffer = nil
	s.seg.Reset()
	s.mu.Unlock()

	s.cancel()

	if wasActive && callLogID != 0 && s.cfg.CallLogs != nil {
		duration := int(time.Since(startedAt).Seconds())
		// The session context is gone; give the store its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cfg.CallLogs.End(ctx, callLogID, duration, status); err != nil {
			s.logger.Error("closing call log failed", "error", err)
		}
	}

	if wasActive {
		s.logger.Info("call terminated", "stream_sid", streamSID, "status", status)
	}
}

// systemPrompt returns the tenant prompt, or the fallback when the tenant is
// unresolved or has no prompt configured.
func (s *Session) systemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tenant != nil && s.tenant.SystemPrompt != "" {
		return s.tenant.SystemPrompt
	}
	return s.cfg.FallbackPrompt
}
