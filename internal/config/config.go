package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice relay service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	UpstreamAPIKey string
	UpstreamURL    string
	UpstreamModel  string
	DefaultVoice   string
	ReconnectDelay time.Duration

	GeocodeBaseURL string
	GeocodeAPIKey  string

	ProfileBaseURL      string
	ProfileClientID     string
	ProfileClientSecret string

	KeepaliveURL      string
	KeepaliveInterval time.Duration

	MediaDirs          []string
	MediaMaxAge        time.Duration
	MediaSweepInterval time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults. A missing
// upstream API key is the only fatal condition: the relay cannot open its
// upstream session without it.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "taravoice"),
		AllowAnyOrigin:      false,
		UpstreamAPIKey:      stringsTrimSpace("OPENAI_API_KEY"),
		UpstreamURL:         envOrDefault("UPSTREAM_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		UpstreamModel:       envOrDefault("UPSTREAM_REALTIME_MODEL", "gpt-realtime"),
		DefaultVoice:        envOrDefault("UPSTREAM_DEFAULT_VOICE", "verse"),
		ReconnectDelay:      2500 * time.Millisecond,
		GeocodeBaseURL:      envOrDefault("GEOCODE_BASE_URL", "https://geocode.maps.co"),
		GeocodeAPIKey:       stringsTrimSpace("GEOCODE_API_KEY"),
		ProfileBaseURL:      stringsTrimSpace("PROFILE_API_BASE_URL"),
		ProfileClientID:     stringsTrimSpace("PROFILE_API_CLIENT_ID"),
		ProfileClientSecret: stringsTrimSpace("PROFILE_API_CLIENT_SECRET"),
		KeepaliveURL:        stringsTrimSpace("KEEPALIVE_URL"),
		KeepaliveInterval:   10 * time.Minute,
		MediaDirs:           splitList(os.Getenv("MEDIA_TMP_DIRS")),
		MediaMaxAge:         time.Hour,
		MediaSweepInterval:  10 * time.Minute,
		DatabaseURL:         stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:     15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectDelay, err = durationFromEnv("UPSTREAM_RECONNECT_DELAY", cfg.ReconnectDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.KeepaliveInterval, err = durationFromEnv("KEEPALIVE_INTERVAL", cfg.KeepaliveInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.MediaMaxAge, err = durationFromEnv("MEDIA_TMP_MAX_AGE", cfg.MediaMaxAge)
	if err != nil {
		return Config{}, err
	}
	cfg.MediaSweepInterval, err = durationFromEnv("MEDIA_SWEEP_INTERVAL", cfg.MediaSweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.UpstreamAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.ReconnectDelay <= 0 {
		return Config{}, fmt.Errorf("UPSTREAM_RECONNECT_DELAY must be positive")
	}
	if cfg.MediaMaxAge <= 0 {
		return Config{}, fmt.Errorf("MEDIA_TMP_MAX_AGE must be positive")
	}
	if cfg.KeepaliveInterval <= 0 {
		return Config{}, fmt.Errorf("KEEPALIVE_INTERVAL must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
