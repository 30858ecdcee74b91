package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealKeyEnvKey is the env var holding the hex-encoded sealing key.
// #nosec G101 -- not a credential; it's an environment variable name.
const SealKeyEnvKey = "JOBMARKET_SESSION_SEAL_KEY"

// sealedPrefix marks values produced by Sealer so plaintext records written
// before sealing was enabled are rejected rather than misread.
const sealedPrefix = "xc1."

// Sealer encrypts short secrets with XChaCha20-Poly1305.
// Output is "xc1." + base64url(nonce || ciphertext).
type Sealer struct {
	key []byte
}

// NewSealer builds a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrSealKeyInvalid
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Sealer{key: k}, nil
}

// NewSealerFromHex builds a Sealer from a hex-encoded 32-byte key.
func NewSealerFromHex(keyHex string) (*Sealer, error) {
	key, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, ErrSealKeyInvalid
	}
	return NewSealer(key)
}

// SealerFromEnv returns (nil, nil) when JOBMARKET_SESSION_SEAL_KEY is unset.
func SealerFromEnv() (*Sealer, error) {
	raw := strings.TrimSpace(os.Getenv(SealKeyEnvKey))
	if raw == "" {
		return nil, nil
	}
	return NewSealerFromHex(raw)
}

// Seal encrypts plain. The associated data binds the ciphertext to its slot.
func (s *Sealer) Seal(plain, associated string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := aead.Seal(nonce, nonce, []byte(plain), []byte(associated))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal with the same associated data.
func (s *Sealer) Open(sealed, associated string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", ErrSealedInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", ErrSealedInvalid
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrSealedInvalid
	}

	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, []byte(associated))
	if err != nil {
		return "", ErrSealedInvalid
	}
	return string(plain), nil
}
