// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vox/pkg/live/wire"
)

type Config struct {
	// ServerURL is the ws:// or wss:// endpoint of the agent gateway.
	ServerURL string
	// APIKey is sent as a bearer token; empty means unauthenticated.
	APIKey string

	Voice wire.Voice

	// ChunkSamples is the capture chunk size in samples per frame.
	ChunkSamples int

	DialTimeout time.Duration

	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string

	Debug bool
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		ServerURL:    envOr("VOX_SERVER_URL", "ws://127.0.0.1:8080/v1/live"),
		APIKey:       strings.TrimSpace(os.Getenv("VOX_API_KEY")),
		Voice:        wire.Voice(envOr("VOX_VOICE", string(wire.VoicePuck))),
		ChunkSamples: envIntOr("VOX_CHUNK_SAMPLES", 4096),
		DialTimeout:  envDurationOr("VOX_DIAL_TIMEOUT", 15*time.Second),
		MetricsAddr:  strings.TrimSpace(os.Getenv("VOX_METRICS_ADDR")),
		Debug:        envBoolOr("VOX_DEBUG", false),
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return Config{}, fmt.Errorf("VOX_SERVER_URL is not a valid URL: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return Config{}, fmt.Errorf("VOX_SERVER_URL must use ws:// or wss://, got %q", u.Scheme)
	}

	if !wire.ValidVoice(cfg.Voice) {
		return Config{}, fmt.Errorf("VOX_VOICE must be one of %v", wire.Voices())
	}
	if cfg.ChunkSamples <= 0 {
		return Config{}, fmt.Errorf("VOX_CHUNK_SAMPLES must be > 0")
	}
	if cfg.DialTimeout <= 0 {
		return Config{}, fmt.Errorf("VOX_DIAL_TIMEOUT must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
