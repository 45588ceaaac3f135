package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	authapi "fleetdash/cmd/internal/auth/api"
	"fleetdash/cmd/internal/auth/session"
	"fleetdash/cmd/internal/realtime"
	"fleetdash/cmd/security/password"
)

// Storage backends for the session snapshot.
const (
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config contains all runtime configuration.
type Config struct {
	LogLevel  string
	LogFormat string // json | pretty

	Storage  string
	StateDir string

	RedisURL string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// MetricsAddr enables the ops HTTP server (/healthz, /readyz, /metrics)
	// when non-empty.
	MetricsAddr string

	// ValidateInterval is how often a long-running command re-checks the
	// session tokens.
	ValidateInterval time.Duration

	API      authapi.Config
	Session  session.Config
	Realtime realtime.Config

	// Password is checked locally before register sends anything.
	Password password.Policy

	// ConfigFile is the YAML file the values were seeded from, if any.
	ConfigFile string
}

// LoadConfig loads Config from the environment, seeded by an optional YAML
// file. path wins over FLEETDASH_CONFIG; environment values win over the file.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = EnvString(envPrefix+"CONFIG", "")
	}
	if path != "" {
		values, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		if _, err := seedEnv(values); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		LogLevel:  EnvString(envPrefix+"LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(EnvString(envPrefix+"LOG_FORMAT", "json")),

		Storage:  strings.ToLower(EnvString(envPrefix+"STORAGE", StorageFile)),
		StateDir: EnvString(envPrefix+"STATE_DIR", defaultStateDir()),

		RedisURL: EnvString(envPrefix+"REDIS_URL", ""),

		DatabaseURL: EnvString(envPrefix+"DATABASE_URL", ""),
		DBMaxConns:  EnvInt32(envPrefix+"DB_MAX_CONNS", 4),
		DBMinConns:  EnvInt32(envPrefix+"DB_MIN_CONNS", 0),

		MetricsAddr: EnvString(envPrefix+"METRICS_ADDR", ""),

		ValidateInterval: EnvDuration(envPrefix+"VALIDATE_INTERVAL", time.Minute),

		ConfigFile: path,
	}

	var err error
	if cfg.API, err = authapi.LoadConfigFromEnv(); err != nil {
		return Config{}, configErrorf("FLEETDASH_BASE_URL must be an absolute http(s) URL: %v", err)
	}
	if cfg.Session, err = session.LoadConfigFromEnv(); err != nil {
		return Config{}, configErrorf("session: %v", err)
	}
	if cfg.Realtime, err = realtime.LoadConfigFromEnv(); err != nil {
		return Config{}, configErrorf("realtime: %v", err)
	}
	if cfg.Password, err = password.PolicyFromEnv(); err != nil {
		return Config{}, configErrorf("%v", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage {
	case StorageFile, StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			return configErrorf("FLEETDASH_STORAGE=redis requires FLEETDASH_REDIS_URL")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return configErrorf("FLEETDASH_STORAGE=postgres requires FLEETDASH_DATABASE_URL")
		}
	default:
		return configErrorf("unknown FLEETDASH_STORAGE %q", c.Storage)
	}

	switch c.LogFormat {
	case "json", "pretty":
	default:
		return configErrorf("unknown FLEETDASH_LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "fleetdash")
	}
	return ".fleetdash"
}
