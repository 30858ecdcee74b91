// Package ids provides id primitives (ULID) shared by the session agent and the identity stub.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars).
// ULIDs are lexicographically sortable, which keeps session ids ordered in logs.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustULID is NewULID for call sites where an id is only used for correlation.
// It returns an empty string instead of failing.
func MustULID(now time.Time) string {
	id, err := NewULID(now)
	if err != nil {
		return ""
	}
	return id
}
