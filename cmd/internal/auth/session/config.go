package session

import (
	"os"
	"strings"
	"time"
)

// Config defines runtime configuration for the session store.
type Config struct {
	// StorageKey is the single persistence slot holding the session snapshot.
	StorageKey string

	// ExpiryMargin is subtracted from token lifetimes: a token expiring within
	// the margin is treated as already expired.
	ExpiryMargin time.Duration

	// LogoutTimeout bounds the fire-and-forget logout notification.
	LogoutTimeout time.Duration

	// PersistTimeout bounds each persister call.
	PersistTimeout time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		StorageKey:     "auth-storage",
		ExpiryMargin:   30 * time.Second,
		LogoutTimeout:  5 * time.Second,
		PersistTimeout: 3 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - FLEETDASH_SESSION_KEY
//   - FLEETDASH_SESSION_EXPIRY_MARGIN
//   - FLEETDASH_SESSION_LOGOUT_TIMEOUT
//   - FLEETDASH_SESSION_PERSIST_TIMEOUT
//
// Returns ErrConfig if a value is present but invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("FLEETDASH_SESSION_KEY")); v != "" {
		cfg.StorageKey = v
	}

	if v := os.Getenv("FLEETDASH_SESSION_EXPIRY_MARGIN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ExpiryMargin = d
	}

	if v := os.Getenv("FLEETDASH_SESSION_LOGOUT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.LogoutTimeout = d
	}

	if v := os.Getenv("FLEETDASH_SESSION_PERSIST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.PersistTimeout = d
	}

	return cfg, nil
}
