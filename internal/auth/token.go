package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const (
	adminTokenLength   = 32
	fallbackTokenInput = "fallback"
)

// AdminToken is the shared secret guarding admin-only HTTP writes.
type AdminToken struct {
	value []byte
}

// NewAdminToken returns the explicit override when set, otherwise the first 32
// hex characters of sha256(botToken). The chat transport derives the same
// value when it builds admin links.
func NewAdminToken(botToken, override string) AdminToken {
	if override != "" {
		return AdminToken{value: []byte(override)}
	}
	if botToken == "" {
		botToken = fallbackTokenInput
	}
	sum := sha256.Sum256([]byte(botToken))
	return AdminToken{value: []byte(hex.EncodeToString(sum[:])[:adminTokenLength])}
}

// String returns the token for embedding in admin links.
func (t AdminToken) String() string {
	return string(t.value)
}

// Verify reports whether candidate matches exactly, in constant time.
func (t AdminToken) Verify(candidate string) bool {
	if len(t.value) == 0 || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare(t.value, []byte(candidate)) == 1
}
