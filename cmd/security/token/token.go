package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the secret-hashing HMAC key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "MEMBERDESK_TOKEN_HMAC_KEY"

	// DefaultSecretBytes is the random payload size of a claim-link secret (256 bits).
	DefaultSecretBytes = 32

	// MinSecretBytes is the lowest accepted payload size (128 bits).
	MinSecretBytes = 16

	// MaxEncodedSecretLen bounds secrets accepted from URLs before hashing.
	MaxEncodedSecretLen = 256
)

// NewSecret returns a URL-safe random secret of nBytes entropy.
func NewSecret(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = DefaultSecretBytes
	}
	if nBytes < MinSecretBytes {
		return "", ErrWeakSecret
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	// URL-safe, no padding: the secret is embedded verbatim as a query parameter.
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WellFormedSecret reports whether s could have been produced by NewSecret.
// Malformed values are treated by callers exactly like unknown ones.
func WellFormedSecret(s string) bool {
	if s == "" || len(s) > MaxEncodedSecretLen {
		return false
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	return len(b) >= MinSecretBytes
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// HMACEnabled reports whether the env key is present (non-empty after trim).
// It does not enforce minimum length. Use HMACKeyFromEnv for policy checks.
func HMACEnabled() bool {
	return strings.TrimSpace(os.Getenv(HMACEnvKey)) != ""
}

// HashSecretHex hashes a claim-link secret for server-side storage and lookup.
//   - If MEMBERDESK_TOKEN_HMAC_KEY is set, uses HMAC-SHA256(secret, key).
//   - Otherwise falls back to SHA-256(secret).
func HashSecretHex(secret string) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		return HashSHA256Hex(secret)
	}
	return HashHMACSHA256Hex(secret, []byte(key))
}

// HashSecretHexRequireHMAC hashes in enforced-HMAC mode.
// It fails if the key is missing or too short.
func HashSecretHexRequireHMAC(secret string, minBytes int) (string, error) {
	key, err := HMACKeyFromEnv(minBytes)
	if err != nil {
		return "", err
	}
	return HashHMACSHA256Hex(secret, key), nil
}
