package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration. It is loaded once at startup and never mutated.
type Config struct {
	Completion CompletionConfig
	Deepgram   DeepgramConfig
	Audio      AudioConfig
	Speech     SpeechConfig
	Session    SessionConfig
	Log        LogConfig
}

type CompletionConfig struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	RequestTimeout time.Duration
}

type DeepgramConfig struct {
	APIKey     string
	APIBaseURL string
	Model      string
	Language   string
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type SpeechConfig struct {
	Model         string
	Voices        []string
	PlayerCommand string
}

type SessionConfig struct {
	ChunkSize      int
	StreamingGrace time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadDotEnv reads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Completion: CompletionConfig{
			APIKey:         strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			APIBaseURL:     envOrDefault("OPENAI_API_BASE", "https://api.openai.com/v1"),
			Model:          envOrDefault("PARLANTE_COMPLETION_MODEL", "gpt-3.5-turbo-instruct"),
			RequestTimeout: time.Duration(envOrDefaultInt("PARLANTE_REQUEST_TIMEOUT_MS", 60000)) * time.Millisecond,
		},
		Deepgram: DeepgramConfig{
			APIKey:     strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL: envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:      envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:   envOrDefault("PARLANTE_LANGUAGE", "es-ES"),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("PARLANTE_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("PARLANTE_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("PARLANTE_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("PARLANTE_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("PARLANTE_CHANNELS", 1),
		},
		Speech: SpeechConfig{
			Model:         envOrDefault("PARLANTE_TTS_MODEL", "tts-1"),
			Voices:        envList("PARLANTE_TTS_VOICES", []string{"alloy", "nova", "shimmer"}),
			PlayerCommand: envOrDefault("PARLANTE_PLAYER_COMMAND", "ffplay"),
		},
		Session: SessionConfig{
			ChunkSize:      envOrDefaultInt("PARLANTE_AUDIO_CHUNK_SIZE", 4096),
			StreamingGrace: time.Duration(envOrDefaultInt("PARLANTE_STREAMING_GRACE_MS", 600)) * time.Millisecond,
		},
		Log: LogConfig{
			Level:  envOrDefault("PARLANTE_LOG_LEVEL", "info"),
			Format: envOrDefault("PARLANTE_LOG_FORMAT", "console"),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.StreamingGrace < 0 {
		cfg.Session.StreamingGrace = 0
	}
	if cfg.Completion.RequestTimeout <= 0 {
		cfg.Completion.RequestTimeout = 60 * time.Second
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envList(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
