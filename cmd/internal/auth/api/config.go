package authapi

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the backend HTTP client.
type Config struct {
	// BaseURL is the deployment origin, e.g. https://panel.example.com.
	BaseURL string

	// Timeout bounds each request, including reading the body.
	Timeout time.Duration

	// MaxBodyBytes caps decoded response bodies.
	MaxBodyBytes int64

	// UserAgent is sent on every request.
	UserAgent string
}

// LoadConfigFromEnv loads client config from environment variables with safe defaults.
// FLEETDASH_BASE_URL is required and must be an absolute http(s) URL.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:      strings.TrimRight(strings.TrimSpace(os.Getenv("FLEETDASH_BASE_URL")), "/"),
		Timeout:      envDuration("FLEETDASH_HTTP_TIMEOUT", 15*time.Second),
		MaxBodyBytes: envInt64("FLEETDASH_HTTP_MAX_BODY_BYTES", 4<<20), // 4 MiB
		UserAgent:    envString("FLEETDASH_HTTP_USER_AGENT", "fleetdash/1"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" {
		return ErrConfig
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrConfig
	}
	return nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
