package app

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "FLEETDASH_"

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// EnvBool reads a bool env var with a default.
func EnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvInt32 reads a non-negative int32 env var with a default.
func EnvInt32(key string, def int32) int32 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	return int32(n)
}

// EnvDuration reads a positive duration env var with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
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

// loadConfigFile reads a flat YAML document whose keys are environment
// variable names without the FLEETDASH_ prefix, in any case:
//
//	base_url: https://panel.example.com
//	storage: redis
//	rt_backoff: [1s, 2s, 5s]
//
// Lists are joined with commas. The result is keyed by full variable name.
func loadConfigFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, configErrorf("parse %s: %v", path, err)
	}

	out := make(map[string]string, len(doc))
	for k, v := range doc {
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(k), "-", "_"))
		s, err := scalarString(v)
		if err != nil {
			return nil, configErrorf("%s: key %q: %v", path, k, err)
		}
		out[key] = s
	}
	return out, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			s, err := scalarString(e)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	case map[string]any:
		return "", fmt.Errorf("nested mappings are not supported")
	default:
		return fmt.Sprint(t), nil
	}
}

// seedEnv exports file values for variables the environment does not set,
// so the environment always wins over the file. It returns the keys it set.
func seedEnv(values map[string]string) ([]string, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	set := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(os.Getenv(k)) != "" || values[k] == "" {
			continue
		}
		if err := os.Setenv(k, values[k]); err != nil {
			return set, err
		}
		set = append(set, k)
	}
	return set, nil
}
