package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config defines runtime configuration for the push client.
type Config struct {
	// Path is appended to the deployment base URL, e.g. "/ws".
	Path string

	// Backoff is the reconnect delay table, indexed by attempt and saturating
	// at the last entry.
	Backoff []time.Duration

	// WriteTimeout bounds each outbound frame.
	WriteTimeout time.Duration

	// ReadLimit caps the size of an inbound frame in bytes.
	ReadLimit int64

	// ConnectDelay defers the first dial after the client becomes eligible.
	// An Activate/Deactivate/Activate burst inside the delay dials once.
	ConnectDelay time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Path:         defaultPath,
		Backoff:      append([]time.Duration(nil), defaultBackoff...),
		WriteTimeout: defaultWriteTimeout,
		ReadLimit:    defaultReadLimit,
	}
}

// LoadConfigFromEnv loads realtime configuration from environment variables.
//
// Optional:
//   - FLEETDASH_RT_PATH (must start with "/")
//   - FLEETDASH_RT_BACKOFF (comma-separated positive durations, e.g. "1s,2s,5s")
//   - FLEETDASH_RT_WRITE_TIMEOUT
//   - FLEETDASH_RT_READ_LIMIT (bytes)
//   - FLEETDASH_RT_CONNECT_DELAY (zero or positive duration)
//
// Returns ErrConfig if a value is present but invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("FLEETDASH_RT_PATH")); v != "" {
		if !strings.HasPrefix(v, "/") {
			return Config{}, ErrConfig
		}
		cfg.Path = v
	}

	if v := strings.TrimSpace(os.Getenv("FLEETDASH_RT_BACKOFF")); v != "" {
		b, err := ParseBackoff(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Backoff = b
	}

	if v := strings.TrimSpace(os.Getenv("FLEETDASH_RT_WRITE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.WriteTimeout = d
	}

	if v := strings.TrimSpace(os.Getenv("FLEETDASH_RT_READ_LIMIT")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, ErrConfig
		}
		cfg.ReadLimit = n
	}

	if v := strings.TrimSpace(os.Getenv("FLEETDASH_RT_CONNECT_DELAY")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ConnectDelay = d
	}

	return cfg, nil
}

// ParseBackoff parses a comma-separated list of positive durations.
func ParseBackoff(s string) ([]time.Duration, error) {
	parts := strings.Split(s, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil || d <= 0 {
			return nil, ErrConfig
		}
		out = append(out, d)
	}
	return out, nil
}

func (c Config) normalized() Config {
	if c.Path == "" {
		c.Path = defaultPath
	}
	if len(c.Backoff) == 0 {
		c.Backoff = append([]time.Duration(nil), defaultBackoff...)
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}
	if c.ConnectDelay < 0 {
		c.ConnectDelay = 0
	}
	return c
}

// delay returns the backoff for the given attempt.
func (c Config) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(c.Backoff) {
		attempt = len(c.Backoff) - 1
	}
	return c.Backoff[attempt]
}
