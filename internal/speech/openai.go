package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voxgate/voxgate/internal/audio"
)

// ttsSampleRate is the sample rate of raw PCM returned by the OpenAI speech
// endpoint when response_format is "pcm".
const ttsSampleRate = 24000

// defaultBaseURL is the OpenAI API root.
const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures the OpenAI-backed speech pipeline.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string // defaults to the public API
	TranscribeModel string // e.g. "whisper-1"
	ChatModel       string // e.g. "gpt-4o-mini"
	TTSModel        string // e.g. "tts-1"
	TTSVoice        string // e.g. "nova"
	Temperature     float64
}

// OpenAIClient implements Pipeline against the OpenAI REST API.
type OpenAIClient struct {
	cfg    OpenAIConfig
	http   *http.Client
	logger *slog.Logger
}

// NewOpenAIClient creates a pipeline client. Returns an error if the API key
// is missing; callers treat an absent pipeline as a degraded configuration,
// not a fatal one.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OpenAIClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: 60 * time.Second},
		logger: logger.With("subsystem", "speech-pipeline"),
	}, nil
}

// Transcribe wraps the PCM turn audio in a WAV container and requests a
// plain-text transcript.
func (c *OpenAIClient) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	wav := audio.EncodeWAV(pcm, sampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", "turn.wav")
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	if err := mw.WriteField("model", c.cfg.TranscribeModel); err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	if err := mw.WriteField("response_format", "text"); err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: transcription returned %d", ErrServiceUnavailable, resp.StatusCode)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrTranscriptionFailed, resp.StatusCode, truncate(data, 200))
	}

	return strings.TrimSpace(string(data)), nil
}

// chatRequest is the JSON body for the chat completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete asks the chat model for a reply to the transcript under the given
// system prompt.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	reqBody := chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
		Temperature: c.cfg.Temperature,
	}

	data, err := c.postJSON(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: decoding chat response: %v", ErrServiceUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: chat response has no choices", ErrServiceUnavailable)
	}

	return parsed.Choices[0].Message.Content, nil
}

// speechRequest is the JSON body for the speech synthesis endpoint.
type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize renders the reply text as raw 16-bit PCM at the provider's
// native 24 kHz rate.
func (c *OpenAIClient) Synthesize(ctx context.Context, text string) ([]byte, int, error) {
	reqBody := speechRequest{
		Model:          c.cfg.TTSModel,
		Voice:          c.cfg.TTSVoice,
		Input:          text,
		ResponseFormat: "pcm",
	}

	data, err := c.postJSON(ctx, "/audio/speech", reqBody)
	if err != nil {
		return nil, 0, err
	}

	return data, ttsSampleRate, nil
}

// postJSON sends a JSON POST to the given API path and returns the raw
// response body. Transport errors, 5xx and 429 map to ErrServiceUnavailable.
func (c *OpenAIClient) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrServiceUnavailable, path, resp.StatusCode, truncate(data, 200))
	}

	return data, nil
}

// truncate shortens a response body for log/error inclusion.
func truncate(data []byte, max int) string {
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
