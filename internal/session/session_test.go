package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/voxgate/voxgate/internal/audio"
	"github.com/voxgate/voxgate/internal/database"
	"github.com/voxgate/voxgate/internal/database/models"
	"github.com/voxgate/voxgate/internal/metrics"
)

// fakeTenants serves a single tenant keyed by dialed number.
type fakeTenants struct {
	tenant    *models.Tenant
	lookupErr error
}

func (f *fakeTenants) Create(ctx context.Context, t *models.Tenant) error  { return nil }
func (f *fakeTenants) GetByID(ctx context.Context, id int64) (*models.Tenant, error) {
	return nil, nil
}
func (f *fakeTenants) GetByDialedNumber(ctx context.Context, number string) (*models.Tenant, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.tenant != nil && f.tenant.DialedNumber == number {
		return f.tenant, nil
	}
	return nil, nil
}
func (f *fakeTenants) List(ctx context.Context) ([]models.Tenant, error)  { return nil, nil }
func (f *fakeTenants) Update(ctx context.Context, t *models.Tenant) error { return nil }
func (f *fakeTenants) Delete(ctx context.Context, id int64) error         { return nil }
func (f *fakeTenants) Count(ctx context.Context) (int64, error)           { return 0, nil }

type endCall struct {
	id       int64
	duration int
	status   string
}

// fakeCallLogs records Start and End invocations.
type fakeCallLogs struct {
	mu       sync.Mutex
	startErr error
	nextID   int64
	starts   []int64
	ends     []endCall
}

func (f *fakeCallLogs) Start(ctx context.Context, tenantID int64, streamSID, callSID, dialedNumber string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return 0, f.startErr
	}
	f.nextID++
	f.starts = append(f.starts, f.nextID)
	return f.nextID, nil
}

func (f *fakeCallLogs) End(ctx context.Context, id int64, durationSeconds int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends = append(f.ends, endCall{id: id, duration: durationSeconds, status: status})
	return nil
}

func (f *fakeCallLogs) GetByID(ctx context.Context, id int64) (*models.CallLogEntry, error) {
	return nil, nil
}
func (f *fakeCallLogs) List(ctx context.Context, filter database.CallLogFilter) ([]models.CallLogEntry, int, error) {
	return nil, 0, nil
}
func (f *fakeCallLogs) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return nil, nil
}

// fakePipeline returns canned results and records the prompts and turn
// buffers it was given.
type fakePipeline struct {
	mu            sync.Mutex
	transcribeErr error
	completeErr   error
	synthesizeErr error
	transcript    string
	reply         string
	synthPCM      []byte // overrides the default synthesized chunk
	prompts       []string
	turnBytes     []int
}

func (f *fakePipeline) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	f.mu.Lock()
	f.turnBytes = append(f.turnBytes, len(pcm))
	f.mu.Unlock()
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	return f.transcript, nil
}

func (f *fakePipeline) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, systemPrompt)
	f.mu.Unlock()
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.reply, nil
}

func (f *fakePipeline) Synthesize(ctx context.Context, text string) ([]byte, int, error) {
	if f.synthesizeErr != nil {
		return nil, 0, f.synthesizeErr
	}
	if f.synthPCM != nil {
		return f.synthPCM, 24000, nil
	}
	// 10 ms of silence at the synthesis rate.
	return make([]byte, 480), 24000, nil
}

type emittedAudio struct {
	streamSID string
	payload   []byte
}

// fakeEmitter records emitted audio events.
type fakeEmitter struct {
	mu      sync.Mutex
	emitErr error
	emitted []emittedAudio
}

func (f *fakeEmitter) EmitAudio(streamSID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, emittedAudio{streamSID: streamSID, payload: payload})
	return nil
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emitted)
}

const testNumber = "+390612345678"

func testTenant() *models.Tenant {
	return &models.Tenant{
		ID:           7,
		Name:         "Trattoria da Mario",
		DialedNumber: testNumber,
		SystemPrompt: "Sei la receptionist della Trattoria da Mario.",
	}
}

type sessionFixture struct {
	session  *Session
	tenants  *fakeTenants
	callLogs *fakeCallLogs
	pipeline *fakePipeline
	emitter  *fakeEmitter
	stats    *metrics.Stats
}

func newFixture(t *testing.T, mutate func(*Config)) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		tenants:  &fakeTenants{tenant: testTenant()},
		callLogs: &fakeCallLogs{},
		pipeline: &fakePipeline{transcript: "vorrei prenotare", reply: "Certo!"},
		emitter:  &fakeEmitter{},
		stats:    &metrics.Stats{},
	}
	cfg := Config{
		DialedNumber:      testNumber,
		FallbackPrompt:    "Sei una receptionist generica.",
		Tenants:           f.tenants,
		CallLogs:          f.callLogs,
		Pipeline:          f.pipeline,
		Emitter:           f.emitter,
		Stats:             f.stats,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		VADAggressiveness: 3,
		SilenceFrames:     25,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	f.session = s
	return f
}

// speechPayload returns 30 ms of a loud tone in the telephony encoding.
func speechPayload() []byte {
	const samples = 240
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(16000 * math.Sin(2*math.Pi*400*float64(i)/8000))
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(v >> 8)
	}
	return audio.EncodeULaw(pcm)
}

// silencePayload returns 30 ms of digital silence in the telephony encoding.
func silencePayload() []byte {
	return audio.EncodeULaw(make([]byte, 480))
}

func connect(t *testing.T, s *Session, streamSID string) {
	t.Helper()
	if err := s.HandleConnected(context.Background(), streamSID, "CA0001"); err != nil {
		t.Fatalf("HandleConnected() error: %v", err)
	}
}

func feedTurn(s *Session, speechFrames, silenceFrames int) {
	for i := 0; i < speechFrames; i++ {
		s.HandleMedia(speechPayload())
	}
	for i := 0; i < silenceFrames; i++ {
		s.HandleMedia(silencePayload())
	}
}

func TestHandleConnectedResolvesTenant(t *testing.T) {
	f := newFixture(t, nil)
	connect(t, f.session, "MZabc")

	if got := f.session.State(); got != StateActive {
		t.Errorf("state = %s, want active", got)
	}
	if !f.session.TenantResolved() {
		t.Error("tenant not resolved for known dialed number")
	}
	if len(f.callLogs.starts) != 1 {
		t.Errorf("call log starts = %d, want 1", len(f.callLogs.starts))
	}
	if got := f.session.StreamSID(); got != "MZabc" {
		t.Errorf("StreamSID() = %q", got)
	}
}

func TestHandleConnectedUnknownNumber(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.DialedNumber = "+390600000000"
	})
	connect(t, f.session, "MZabc")

	if got := f.session.State(); got != StateActive {
		t.Errorf("state = %s, want active", got)
	}
	if f.session.TenantResolved() {
		t.Error("tenant resolved for unknown dialed number")
	}
	if len(f.callLogs.starts) != 0 {
		t.Errorf("call log starts = %d, want 0 for unknown number", len(f.callLogs.starts))
	}
}

func TestHandleConnectedLookupErrorDegrades(t *testing.T) {
	f := newFixture(t, nil)
	f.tenants.lookupErr = errors.New("store down")
	connect(t, f.session, "MZabc")

	if got := f.session.State(); got != StateActive {
		t.Errorf("state = %s, want active despite lookup error", got)
	}
	if f.session.TenantResolved() {
		t.Error("tenant resolved despite lookup error")
	}
}

func TestHandleConnectedTwice(t *testing.T) {
	f := newFixture(t, nil)
	connect(t, f.session, "MZabc")

	if err := f.session.HandleConnected(context.Background(), "MZother", "CA2"); err == nil {
		t.Error("second connect succeeded, want error")
	}
	if got := f.session.StreamSID(); got != "MZabc" {
		t.Errorf("StreamSID() = %q after duplicate connect", got)
	}
}

func TestMediaBeforeConnectIgnored(t *testing.T) {
	f := newFixture(t, nil)
	feedTurn(f.session, 40, 26)

	if f.emitter.count() != 0 {
		t.Errorf("emitted %d events before connect, want 0", f.emitter.count())
	}
}

func TestEndToEndTurn(t *testing.T) {
	f := newFixture(t, nil)
	connect(t, f.session, "abc")

	feedTurn(f.session, 40, 26)

	if f.emitter.count() != 1 {
		t.Fatalf("emitted %d media events, want exactly 1", f.emitter.count())
	}
	if got := f.emitter.emitted[0].streamSID; got != "abc" {
		t.Errorf("emitted on stream %q, want abc", got)
	}
	// 240 synthesis samples at 24 kHz resample to 80 telephony samples,
	// companded to 80 bytes.
	if got := len(f.emitter.emitted[0].payload); got != 80 {
		t.Errorf("payload = %d bytes, want 80", got)
	}
	if len(f.pipeline.prompts) != 1 || f.pipeline.prompts[0] != testTenant().SystemPrompt {
		t.Errorf("prompts = %q, want tenant prompt", f.pipeline.prompts)
	}

	f.session.Terminate(models.CallStatusCompleted)

	if len(f.callLogs.ends) != 1 {
		t.Fatalf("call log ends = %d, want 1", len(f.callLogs.ends))
	}
	if got := f.callLogs.ends[0].status; got != models.CallStatusCompleted {
		t.Errorf("final status = %q, want completed", got)
	}
	if processed, failed := f.stats.Turns(); processed != 1 || failed != 0 {
		t.Errorf("turns = %d processed / %d failed, want 1/0", processed, failed)
	}
}

func TestFallbackPromptForUnresolvedTenant(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.DialedNumber = "+390600000000"
	})
	connect(t, f.session, "abc")
	feedTurn(f.session, 40, 26)

	if len(f.pipeline.prompts) != 1 {
		t.Fatalf("prompts recorded = %d, want 1", len(f.pipeline.prompts))
	}
	if got := f.pipeline.prompts[0]; got != "Sei una receptionist generica." {
		t.Errorf("prompt = %q, want fallback", got)
	}
	if len(f.callLogs.starts) != 0 {
		t.Errorf("call log opened for unresolved tenant")
	}
}

func TestSecondTurnAfterBufferClear(t *testing.T) {
	f := newFixture(t, nil)
	connect(t, f.session, "abc")

	feedTurn(f.session, 40, 26)
	feedTurn(f.session, 40, 26)

	if f.emitter.count() != 2 {
		t.Errorf("emitted %d media events over two turns, want 2", f.emitter.count())
	}
}

// TestTwoTurnsInOneMediaEvent: one large payload containing two complete
// speech-then-sustained-silence runs produces two replies, each from its own
// run's audio only.
func TestTwoTurnsInOneMediaEvent(t *testing.T) {
	f := newFixture(t, nil)
	connect(t, f.session, "abc")

	var run []byte
	for i := 0; i < 5; i++ {
		run = append(run, speechPayload()...)
	}
	for i := 0; i < 26; i++ {
		run = append(run, silencePayload()...)
	}
	f.session.HandleMedia(append(append([]byte(nil), run...), run...))

	if f.emitter.count() != 2 {
		t.Fatalf("emitted %d media events for two runs in one payload, want 2", f.emitter.count())
	}
	// 31 frames of 240 u-law bytes decode to 480 PCM bytes each.
	wantBytes := 31 * 480
	if len(f.pipeline.turnBytes) != 2 ||
		f.pipeline.turnBytes[0] != wantBytes || f.pipeline.turnBytes[1] != wantBytes {
		t.Errorf("turn buffers = %v bytes, want [%d %d]", f.pipeline.turnBytes, wantBytes, wantBytes)
	}
}

func TestNoTriggerAtThreshold(t *testing.T) {
	f := newFixture(t, nil)
	connect(t, f.session, "abc")

	feedTurn(f.session, 40, 25)

	if f.emitter.count() != 0 {
		t.Errorf("emitted %d events at exactly threshold silence, want 0", f.emitter.count())
	}
}

func TestPipelineFailureKeepsSessionAlive(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline.transcribeErr = errors.New("whisper down")
	connect(t, f.session, "abc")

	feedTurn(f.session, 40, 26)

	if f.emitter.count() != 0 {
		t.Errorf("emitted %d events after pipeline failure, want 0", f.emitter.count())
	}
	if got := f.session.State(); got != StateActive {
		t.Errorf("state = %s after pipeline failure, want active", got)
	}
	if _, failed := f.stats.Turns(); failed != 1 {
		t.Errorf("failed turns = %d, want 1", failed)
	}
}

func TestNilPipelineDegradesToSilence(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Pipeline = nil
	})
	connect(t, f.session, "abc")

	feedTurn(f.session, 40, 26)

	if f.emitter.count() != 0 {
		t.Errorf("emitted %d events without a pipeline, want 0", f.emitter.count())
	}
	if got := f.session.State(); got != StateActive {
		t.Errorf("state = %s, want active", got)
	}
}

// TestOddSynthesisLengthTruncated: a synthesized chunk ending mid-sample is
// truncated to whole samples and still produces a well-formed reply.
func TestOddSynthesisLengthTruncated(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline.synthPCM = make([]byte, 481)
	connect(t, f.session, "abc")

	feedTurn(f.session, 40, 26)

	if f.emitter.count() != 1 {
		t.Fatalf("emitted %d media events, want 1", f.emitter.count())
	}
	if got := len(f.emitter.emitted[0].payload); got != 80 {
		t.Errorf("payload = %d bytes, want 80", got)
	}
}

func TestTerminateIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	connect(t, f.session, "abc")

	f.session.Terminate(models.CallStatusCompleted)
	f.session.Terminate(models.CallStatusDisconnected)

	if len(f.callLogs.ends) != 1 {
		t.Errorf("call log ends = %d after double terminate, want 1", len(f.callLogs.ends))
	}
	if got := f.callLogs.ends[0].status; got != models.CallStatusCompleted {
		t.Errorf("final status = %q, want the first terminate's status", got)
	}
	if got := f.session.State(); got != StateTerminated {
		t.Errorf("state = %s, want terminated", got)
	}
}

func TestTerminateDisconnected(t *testing.T) {
	f := newFixture(t, nil)
	connect(t, f.session, "abc")

	f.session.Terminate(models.CallStatusDisconnected)

	if len(f.callLogs.ends) != 1 || f.callLogs.ends[0].status != models.CallStatusDisconnected {
		t.Errorf("ends = %+v, want one disconnected entry", f.callLogs.ends)
	}
}

func TestTerminateCancelsContext(t *testing.T) {
	f := newFixture(t, nil)
	connect(t, f.session, "abc")

	f.session.Terminate(models.CallStatusCompleted)

	select {
	case <-f.session.Context().Done():
	default:
		t.Error("session context not cancelled after terminate")
	}
}

func TestMediaAfterTerminateIgnored(t *testing.T) {
	f := newFixture(t, nil)
	connect(t, f.session, "abc")
	f.session.Terminate(models.CallStatusCompleted)

	feedTurn(f.session, 40, 26)

	if f.emitter.count() != 0 {
		t.Errorf("emitted %d events after terminate, want 0", f.emitter.count())
	}
}
