package store

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// codeBytes is the entropy of an authorization code (256 bits).
const codeBytes = 32

// maxCodeAttempts bounds retries on the (practically impossible) code collision.
const maxCodeAttempts = 3

// generateCode creates a URL-safe random authorization code.
func generateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ceilSeconds rounds d up to whole seconds, at least one.
func ceilSeconds(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return (d + time.Second - 1).Truncate(time.Second)
}
