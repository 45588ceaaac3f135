package token

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// fingerprintLen is the number of hex chars kept from the SHA-256 digest.
const fingerprintLen = 12

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short digest of a credential for log correlation.
// Empty input yields an empty fingerprint.
func Fingerprint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return HashSHA256Hex(raw)[:fingerprintLen]
}

// ExpiresAt decodes the "exp" claim of a JWT without verifying its signature.
// Only the payload segment is read; the header's alg does not matter.
func ExpiresAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrEmpty
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: want 3 segments, got %d", ErrMalformed, len(parts))
	}

	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}

	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// ValidFor reports whether raw carries an exp strictly later than now+margin.
// Unreadable tokens are never valid.
func ValidFor(raw string, now time.Time, margin time.Duration) bool {
	exp, err := ExpiresAt(raw)
	if err != nil {
		return false
	}
	return exp.After(now.Add(margin))
}
