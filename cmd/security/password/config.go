package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Policy controls registration-time password validation.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// DefaultPolicy mirrors the backend's registration rules.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		MaxLength:      256,
		RejectVeryWeak: true,
	}
}

// PolicyFromEnv loads the policy from environment variables.
//
// Env surface:
// - FLEETDASH_PASSWORD_MIN_LEN
// - FLEETDASH_PASSWORD_MAX_LEN
// - FLEETDASH_PASSWORD_REJECT_VERY_WEAK (true/false)
func PolicyFromEnv() (Policy, error) {
	p := DefaultPolicy()

	if v, ok := os.LookupEnv("FLEETDASH_PASSWORD_MIN_LEN"); ok && strings.TrimSpace(v) != "" {
		n, err := atoiInRange(v, 1, 1024)
		if err != nil {
			return Policy{}, fmt.Errorf("FLEETDASH_PASSWORD_MIN_LEN: %w", err)
		}
		p.MinLength = n
	}

	if v, ok := os.LookupEnv("FLEETDASH_PASSWORD_MAX_LEN"); ok && strings.TrimSpace(v) != "" {
		n, err := atoiInRange(v, 1, 4096)
		if err != nil {
			return Policy{}, fmt.Errorf("FLEETDASH_PASSWORD_MAX_LEN: %w", err)
		}
		p.MaxLength = n
	}

	if v, ok := os.LookupEnv("FLEETDASH_PASSWORD_REJECT_VERY_WEAK"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Policy{}, fmt.Errorf("FLEETDASH_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		p.RejectVeryWeak = b
	}

	if p.MinLength > p.MaxLength {
		return Policy{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			p.MinLength,
			p.MaxLength,
		)
	}
	return p, nil
}

func atoiInRange(s string, minVal, maxVal int) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}
