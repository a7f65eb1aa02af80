package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*OpenAIClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewOpenAIClient(OpenAIConfig{
		APIKey:          "sk-test",
		BaseURL:         srv.URL,
		TranscribeModel: "whisper-1",
		ChatModel:       "gpt-4o-mini",
		TTSModel:        "tts-1",
		TTSVoice:        "nova",
		Temperature:     0.7,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewOpenAIClient() error: %v", err)
	}
	return c, srv
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestTranscribe(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q, want /audio/transcriptions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q, want whisper-1", got)
		}
		if got := r.FormValue("response_format"); got != "text" {
			t.Errorf("response_format = %q, want text", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		head := make([]byte, 4)
		io.ReadFull(f, head)
		if string(head) != "RIFF" {
			t.Errorf("uploaded file does not start with RIFF, got %q", head)
		}
		io.WriteString(w, "vorrei prenotare un tavolo\n")
	}))

	text, err := c.Transcribe(context.Background(), make([]byte, 1600), 8000)
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}
	if text != "vorrei prenotare un tavolo" {
		t.Errorf("Transcribe() = %q", text)
	}
}

func TestTranscribeServerError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.Transcribe(context.Background(), make([]byte, 16), 8000)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestTranscribeBadRequest(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"audio too short"}`)
	}))

	_, err := c.Transcribe(context.Background(), make([]byte, 16), 8000)
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Errorf("err = %v, want ErrTranscriptionFailed", err)
	}
}

func TestComplete(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"gpt-4o-mini"`) {
			t.Errorf("body missing model: %s", body)
		}
		if !strings.Contains(string(body), "prompt di prova") {
			t.Errorf("body missing system prompt: %s", body)
		}
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Certo, per quante persone?"}}]}`)
	}))

	reply, err := c.Complete(context.Background(), "prompt di prova", "vorrei prenotare")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if reply != "Certo, per quante persone?" {
		t.Errorf("Complete() = %q", reply)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))

	_, err := c.Complete(context.Background(), "p", "u")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestSynthesize(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %q, want /audio/speech", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"response_format":"pcm"`) {
			t.Errorf("body missing pcm format: %s", body)
		}
		if !strings.Contains(string(body), `"voice":"nova"`) {
			t.Errorf("body missing voice: %s", body)
		}
		w.Write(pcm)
	}))

	got, rate, err := c.Synthesize(context.Background(), "Certo!")
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if rate != ttsSampleRate {
		t.Errorf("rate = %d, want %d", rate, ttsSampleRate)
	}
	if len(got) != len(pcm) {
		t.Errorf("pcm length = %d, want %d", len(got), len(pcm))
	}
}

func TestContextCancellation(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "p", "u")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("err = %v, want ErrServiceUnavailable", err)
	}
}
