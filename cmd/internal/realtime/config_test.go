package realtime

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("FLEETDASH_RT_PATH", "")
	t.Setenv("FLEETDASH_RT_BACKOFF", "")
	t.Setenv("FLEETDASH_RT_WRITE_TIMEOUT", "")
	t.Setenv("FLEETDASH_RT_READ_LIMIT", "")
	t.Setenv("FLEETDASH_RT_CONNECT_DELAY", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("FLEETDASH_RT_PATH", "/push")
	t.Setenv("FLEETDASH_RT_BACKOFF", "500ms, 1s ,3s")
	t.Setenv("FLEETDASH_RT_WRITE_TIMEOUT", "2s")
	t.Setenv("FLEETDASH_RT_READ_LIMIT", "1024")
	t.Setenv("FLEETDASH_RT_CONNECT_DELAY", "20ms")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Path != "/push" || cfg.WriteTimeout != 2*time.Second || cfg.ReadLimit != 1024 || cfg.ConnectDelay != 20*time.Millisecond {
		t.Fatalf("cfg=%+v", cfg)
	}
	want := []time.Duration{500 * time.Millisecond, time.Second, 3 * time.Second}
	if !reflect.DeepEqual(cfg.Backoff, want) {
		t.Fatalf("backoff=%v want=%v", cfg.Backoff, want)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := map[string]string{
		"FLEETDASH_RT_PATH":          "ws",
		"FLEETDASH_RT_BACKOFF":       "1s,-2s",
		"FLEETDASH_RT_WRITE_TIMEOUT": "soon",
		"FLEETDASH_RT_READ_LIMIT":    "0",
		"FLEETDASH_RT_CONNECT_DELAY": "-1s",
	}

	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("err=%v want ErrConfig", err)
			}
		})
	}
}

func TestConfig_DelaySaturates(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	got := make([]time.Duration, 0, 8)
	for attempt := -1; attempt < 7; attempt++ {
		got = append(got, cfg.delay(attempt))
	}
	want := []time.Duration{
		time.Second, time.Second, 2 * time.Second, 5 * time.Second,
		10 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("delays=%v want=%v", got, want)
	}
}

func TestConfig_NormalizedFillsZeroValues(t *testing.T) {
	t.Parallel()

	if got := (Config{}).normalized(); !reflect.DeepEqual(got, DefaultConfig()) {
		t.Fatalf("normalized=%+v", got)
	}
}
