package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrAPIKeyMissing is returned when the one required secret is absent.
// Startup halts on it; every other setting has a default.
var ErrAPIKeyMissing = errors.New("missing Google API key")

// Config aggregates every setting the service reads.
type Config struct {
	Server ServerConfig
	Gemini GeminiConfig
	TTS    TTSConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	gemini, err := loadGeminiConfig()
	if err != nil {
		return nil, err
	}

	tts, err := loadTTSConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Gemini: gemini, TTS: tts}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr          string
	MaxAudioBytes int64
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	maxAudio := int64(32 << 20)
	if override, err := parseOptionalIntEnv("MAX_AUDIO_BYTES"); err != nil {
		return ServerConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return ServerConfig{}, fmt.Errorf("invalid MAX_AUDIO_BYTES value: %d", *override)
		}
		maxAudio = int64(*override)
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port, MaxAudioBytes: maxAudio}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, MaxAudioBytes: maxAudio}, nil
}

// GeminiConfig describes the remote generation service.
type GeminiConfig struct {
	APIKey string
	Model  string
}

func loadGeminiConfig() (GeminiConfig, error) {
	apiKey := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	if apiKey == "" {
		return GeminiConfig{}, fmt.Errorf("%w: set GOOGLE_API_KEY in .env or the environment", ErrAPIKeyMissing)
	}

	return GeminiConfig{
		APIKey: apiKey,
		Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
	}, nil
}

// TTSConfig describes the speech synthesis endpoint.
type TTSConfig struct {
	BaseURL     string
	Voice       string
	MaxChunkLen int
	Timeout     int // seconds
}

func loadTTSConfig() (TTSConfig, error) {
	timeoutSeconds := 30
	if timeout, err := parseOptionalIntEnv("TTS_TIMEOUT"); err != nil {
		return TTSConfig{}, err
	} else if timeout != nil {
		timeoutSeconds = *timeout
	}

	maxChunk := 0 // 0 keeps the client default
	if chunk, err := parseOptionalIntEnv("TTS_MAX_CHUNK_LEN"); err != nil {
		return TTSConfig{}, err
	} else if chunk != nil {
		maxChunk = *chunk
	}

	return TTSConfig{
		BaseURL:     getEnvOrDefault("TTS_BASE_URL", ""),
		Voice:       getEnvOrDefault("TTS_VOICE", "it"),
		MaxChunkLen: maxChunk,
		Timeout:     timeoutSeconds,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
