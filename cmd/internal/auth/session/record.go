package session

import "context"

// Record is the durable projection of a session: the token entry and the
// serialized profile entry. Phase is never persisted.
type Record struct {
	Token   string
	Profile string
}

// RecordStore persists exactly one Record.
//
// Implementations must write and erase both entries together: a reader must
// never observe one entry without the other. Load returns ErrNoRecord when
// nothing is stored and ErrCorruptRecord when only one entry is present.
type RecordStore interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
	Erase(ctx context.Context) error
	Close() error
}

// checkPair classifies the presence of the two entries.
func checkPair(token, profile string, hasToken, hasProfile bool) (Record, error) {
	switch {
	case !hasToken && !hasProfile:
		return Record{}, ErrNoRecord
	case hasToken != hasProfile, token == "", profile == "":
		return Record{}, ErrCorruptRecord
	default:
		return Record{Token: token, Profile: profile}, nil
	}
}
