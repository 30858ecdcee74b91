package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the fingerprint HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "JOBMARKET_TOKEN_HMAC_KEY"

	fingerprintLen = 12
)

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

// Fingerprint returns a short digest of tok suitable for logs.
// Behavior:
// - If JOBMARKET_TOKEN_HMAC_KEY is set (non-empty), uses HMAC-SHA256(tok, key).
// - Otherwise SHA-256(tok).
// An empty token fingerprints to "".
func Fingerprint(tok string) string {
	if tok == "" {
		return ""
	}
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	var sum string
	if key == "" {
		sum = HashSHA256Hex(tok)
	} else {
		sum = HashHMACSHA256Hex(tok, []byte(key))
	}
	return sum[:fingerprintLen]
}
