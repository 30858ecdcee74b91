package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Version = 19 // argon2.Version is 0x13 (19)

	// MaxLength is the longest password accepted for hashing or verification.
	MaxLength = 256
)

// Params controls Argon2id hashing cost. MemoryKiB is in KiB as required by argon2.IDKey.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the OWASP baseline for Argon2id (19 MiB, t=2, p=1).
func DefaultParams() Params {
	return Params{
		MemoryKiB:   19 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hash hashes pw and returns the encoded hash string.
func (p Params) Hash(pw string) (string, error) {
	if pw == "" {
		return "", ErrPasswordEmpty
	}
	if len(pw) > MaxLength {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(pw), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		p.MemoryKiB,
		p.Iterations,
		p.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify checks whether pw matches encoded.
// Returns (true, nil) for a match, (false, nil) for a mismatch,
// and (false, ErrInvalidHash) for malformed hashes or hashes whose cost
// exceeds twice the receiver's.
func (p Params) Verify(encoded, pw string) (bool, error) {
	if len(pw) > MaxLength {
		return false, nil
	}

	got, salt, expected, err := decode(encoded)
	if err != nil {
		return false, err
	}
	if got.MemoryKiB > p.MemoryKiB*2 || got.Iterations > p.Iterations*2 || got.Parallelism > p.Parallelism*2 {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(pw), salt, got.Iterations, got.MemoryKiB, got.Parallelism, got.KeyLength)
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 || len(salt) > 64 {
		return Params{}, nil, nil, ErrInvalidHash
	}
	hash, err := b64.DecodeString(parts[5])
	if err != nil || len(hash) < 16 || len(hash) > 128 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	return Params{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),        // #nosec G115 -- bounded to 255 above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded to 64 above.
		KeyLength:   uint32(len(hash)), // #nosec G115 -- bounded to 128 above.
	}, salt, hash, nil
}
