package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the VoxGate server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir     string
	HTTPPort    int
	DatabaseURL string // Postgres DSN; when empty the embedded SQLite store is used
	DBMaxConns  int    // connection pool size for the Postgres store
	LogLevel    string
	LogFormat   string // log output format: "text" or "json"

	OpenAIAPIKey    string
	OpenAIBaseURL   string // override for self-hosted or proxied endpoints
	TranscribeModel string
	ChatModel       string
	TTSModel        string
	TTSVoice        string
	Temperature     float64

	VADAggressiveness int // 0 (permissive) .. 3 (aggressive)
	VADFrameMs        int
	SilenceFrames     int // consecutive silent frames that close a caller turn

	FallbackPrompt string // system prompt used when the dialed number matches no tenant
	JWTSecret      string // hex-encoded 32-byte secret for admin JWT signing
}

// defaults
const (
	defaultDataDir           = "./data"
	defaultHTTPPort          = 8080
	defaultDBMaxConns        = 10
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultTranscribeModel   = "whisper-1"
	defaultChatModel         = "gpt-4o-mini"
	defaultTTSModel          = "tts-1"
	defaultTTSVoice          = "nova"
	defaultTemperature       = 0.7
	defaultVADAggressiveness = 3
	defaultVADFrameMs        = 30
	defaultSilenceFrames     = 25
)

// defaultFallbackPrompt answers calls for numbers that have no tenant
// configured yet, so the line is never silent.
const defaultFallbackPrompt = "Sei una receptionist telefonica cortese e professionale. " +
	"Rispondi in italiano, con frasi brevi. Se non conosci una informazione, " +
	"chiedi gentilmente al chiamante di richiamare piu tardi."

// envPrefix is the prefix for all VoxGate environment variables.
const envPrefix = "VOXGATE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("voxgate", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the embedded database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "Postgres connection string (embedded SQLite is used if empty)")
	fs.IntVar(&cfg.DBMaxConns, "db-max-conns", defaultDBMaxConns, "maximum open connections for the Postgres store")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	fs.StringVar(&cfg.OpenAIAPIKey, "openai-api-key", "", "OpenAI API key for the speech pipeline")
	fs.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", "", "OpenAI API base URL override")
	fs.StringVar(&cfg.TranscribeModel, "transcribe-model", defaultTranscribeModel, "speech-to-text model name")
	fs.StringVar(&cfg.ChatModel, "chat-model", defaultChatModel, "chat completion model name")
	fs.StringVar(&cfg.TTSModel, "tts-model", defaultTTSModel, "text-to-speech model name")
	fs.StringVar(&cfg.TTSVoice, "tts-voice", defaultTTSVoice, "text-to-speech voice name")
	fs.Float64Var(&cfg.Temperature, "temperature", defaultTemperature, "chat completion sampling temperature")

	fs.IntVar(&cfg.VADAggressiveness, "vad-aggressiveness", defaultVADAggressiveness, "voice activity detector aggressiveness (0-3)")
	fs.IntVar(&cfg.VADFrameMs, "vad-frame-ms", defaultVADFrameMs, "voice activity detector frame duration in milliseconds (10, 20, 30)")
	fs.IntVar(&cfg.SilenceFrames, "silence-frames", defaultSilenceFrames, "consecutive silent frames that end a caller turn")

	fs.StringVar(&cfg.FallbackPrompt, "fallback-prompt", defaultFallbackPrompt, "system prompt used when no tenant matches the dialed number")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for admin JWT signing (auto-generated if empty)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":           envPrefix + "DATA_DIR",
		"http-port":          envPrefix + "HTTP_PORT",
		"database-url":       envPrefix + "DATABASE_URL",
		"db-max-conns":       envPrefix + "DB_MAX_CONNS",
		"log-level":          envPrefix + "LOG_LEVEL",
		"log-format":         envPrefix + "LOG_FORMAT",
		"openai-api-key":     envPrefix + "OPENAI_API_KEY",
		"openai-base-url":    envPrefix + "OPENAI_BASE_URL",
		"transcribe-model":   envPrefix + "TRANSCRIBE_MODEL",
		"chat-model":         envPrefix + "CHAT_MODEL",
		"tts-model":          envPrefix + "TTS_MODEL",
		"tts-voice":          envPrefix + "TTS_VOICE",
		"temperature":        envPrefix + "TEMPERATURE",
		"vad-aggressiveness": envPrefix + "VAD_AGGRESSIVENESS",
		"vad-frame-ms":       envPrefix + "VAD_FRAME_MS",
		"silence-frames":     envPrefix + "SILENCE_FRAMES",
		"fallback-prompt":    envPrefix + "FALLBACK_PROMPT",
		"jwt-secret":         envPrefix + "JWT_SECRET",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "database-url":
			cfg.DatabaseURL = val
		case "db-max-conns":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.DBMaxConns = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "openai-api-key":
			cfg.OpenAIAPIKey = val
		case "openai-base-url":
			cfg.OpenAIBaseURL = val
		case "transcribe-model":
			cfg.TranscribeModel = val
		case "chat-model":
			cfg.ChatModel = val
		case "tts-model":
			cfg.TTSModel = val
		case "tts-voice":
			cfg.TTSVoice = val
		case "temperature":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.Temperature = v
			}
		case "vad-aggressiveness":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.VADAggressiveness = v
			}
		case "vad-frame-ms":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.VADFrameMs = v
			}
		case "silence-frames":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SilenceFrames = v
			}
		case "fallback-prompt":
			cfg.FallbackPrompt = val
		case "jwt-secret":
			cfg.JWTSecret = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("db-max-conns must be at least 1, got %d", c.DBMaxConns)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", c.Temperature)
	}
	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		return fmt.Errorf("vad-aggressiveness must be between 0 and 3, got %d", c.VADAggressiveness)
	}
	switch c.VADFrameMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("vad-frame-ms must be 10, 20 or 30, got %d", c.VADFrameMs)
	}
	if c.SilenceFrames < 1 {
		return fmt.Errorf("silence-frames must be at least 1, got %d", c.SilenceFrames)
	}
	if c.FallbackPrompt == "" {
		return fmt.Errorf("fallback-prompt must not be empty")
	}

	return nil
}

// UsePostgres reports whether the Postgres-backed store should be used
// instead of the embedded SQLite database.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
