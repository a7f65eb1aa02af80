// Package gateway terminates the telephony media-stream WebSocket and maps
// its event protocol onto call sessions.
package gateway

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxgate/voxgate/internal/database"
	"github.com/voxgate/voxgate/internal/database/models"
	"github.com/voxgate/voxgate/internal/metrics"
	"github.com/voxgate/voxgate/internal/session"
	"github.com/voxgate/voxgate/internal/speech"
)

// eventQueueSize bounds the per-connection event queue. Media arriving while
// a turn is being processed queues here instead of being dropped; a full
// queue applies backpressure on the read pump.
const eventQueueSize = 64

// HandlerConfig carries the session tuning shared by all connections.
type HandlerConfig struct {
	FallbackPrompt    string
	VADAggressiveness int
	VADFrameMs        int
	SilenceFrames     int
}

// Handler accepts media-stream connections and runs one session per
// connection.
type Handler struct {
	cfg      HandlerConfig
	tenants  database.TenantRepository
	callLogs database.CallLogRepository
	pipeline speech.Pipeline // nil when the speech stack is not configured
	stats    *metrics.Stats
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the media-stream handler.
func NewHandler(cfg HandlerConfig, store database.Store, pipeline speech.Pipeline, stats *metrics.Stats, logger *slog.Logger) *Handler {
	h := &Handler{
		cfg:      cfg,
		pipeline: pipeline,
		stats:    stats,
		logger:   logger.With("subsystem", "gateway"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if store != nil {
		h.tenants = store.Tenants()
		h.callLogs = store.CallLogs()
	}
	return h
}

// ServeHTTP upgrades the connection and runs the session loop until the call
// ends. The dialed number must arrive as the numero_chiamato query parameter;
// without it the connection is closed right after the upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dialedNumber := r.URL.Query().Get("numero_chiamato")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	wc := &wsConn{conn: conn}
	defer wc.Close()

	// Connections carry no stream SID until the connected event arrives, so
	// tag every log line with a server-side connection id.
	logger := h.logger.With("conn_id", uuid.NewString())

	if dialedNumber == "" {
		logger.Warn("connection without numero_chiamato, closing", "remote", r.RemoteAddr)
		wc.CloseWith(websocket.ClosePolicyViolation, "numero_chiamato is required")
		return
	}

	sess, err := session.New(r.Context(), session.Config{
		DialedNumber:      dialedNumber,
		FallbackPrompt:    h.cfg.FallbackPrompt,
		Tenants:           h.tenants,
		CallLogs:          h.callLogs,
		Pipeline:          h.pipeline,
		Emitter:           wc,
		Stats:             h.stats,
		Logger:            logger,
		VADAggressiveness: h.cfg.VADAggressiveness,
		VADFrameMs:        h.cfg.VADFrameMs,
		SilenceFrames:     h.cfg.SilenceFrames,
	})
	if err != nil {
		logger.Error("creating session failed", "error", err)
		wc.CloseWith(websocket.CloseInternalServerErr, "session setup failed")
		return
	}
	defer sess.Terminate(models.CallStatusDisconnected)

	if h.stats != nil {
		h.stats.CallStarted()
		defer h.stats.CallEnded()
	}
	logger.Info("media stream accepted", "dialed_number", dialedNumber, "remote", r.RemoteAddr)

	// The read pump decodes envelopes onto a buffered queue so the session
	// loop can spend time in turn processing without dropping media.
	events := make(chan Envelope, eventQueueSize)
	go readPump(logger, wc, sess, events)

	for env := range events {
		switch env.Event {
		case EventConnected:
			callSID := ""
			if env.Start != nil {
				callSID = env.Start.CallSID
			}
			if err := sess.HandleConnected(r.Context(), env.StreamSID, callSID); err != nil {
				logger.Warn("connect event rejected", "error", err)
			}
		case EventMedia:
			if env.Media == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(env.Media.Payload)
			if err != nil {
				logger.Warn("undecodable media payload", "error", err)
				continue
			}
			sess.HandleMedia(payload)
		case EventStop:
			sess.Terminate(models.CallStatusCompleted)
			return
		default:
			logger.Debug("ignoring unknown event", "event", env.Event)
		}
	}

	// Read pump ended: the transport dropped without a stop event. The
	// deferred Terminate records the call as disconnected.
}

// readPump reads and decodes frames until the connection or session ends,
// then closes the event queue.
func readPump(logger *slog.Logger, wc *wsConn, sess *session.Session, events chan<- Envelope) {
	defer close(events)
	for {
		_, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read pump closed", "error", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("undecodable event envelope", "error", err)
			continue
		}
		select {
		case events <- env:
		case <-sess.Context().Done():
			return
		}
	}
}

// wsConn serializes writes to a websocket connection and implements
// session.AudioEmitter.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// EmitAudio sends one outbound media event with the base64 telephony payload.
func (c *wsConn) EmitAudio(streamSID string, payload []byte) error {
	env := Envelope{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     &MediaInfo{Payload: base64.StdEncoding.EncodeToString(payload)},
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(env)
}

// CloseWith sends a close frame with the given code and reason.
func (c *wsConn) CloseWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Close closes the underlying connection.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
