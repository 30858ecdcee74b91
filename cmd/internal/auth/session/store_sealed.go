package session

import (
	"context"
	"errors"

	"jobmarket/cmd/security/token"
)

const sealedTokenSlot = "session.token"

// SealedRecordStore encrypts the token entry before it reaches the inner
// store. The profile entry is stored as is.
type SealedRecordStore struct {
	inner  RecordStore
	sealer *token.Sealer
}

// NewSealedRecordStore wraps inner. A nil sealer returns inner unchanged.
func NewSealedRecordStore(inner RecordStore, sealer *token.Sealer) RecordStore {
	if sealer == nil {
		return inner
	}
	return &SealedRecordStore{inner: inner, sealer: sealer}
}

// Load opens the token. A token that cannot be opened (wrong key, tampered,
// or written before sealing was enabled) makes the record corrupt.
func (s *SealedRecordStore) Load(ctx context.Context) (Record, error) {
	rec, err := s.inner.Load(ctx)
	if err != nil {
		return Record{}, err
	}

	plain, err := s.sealer.Open(rec.Token, sealedTokenSlot)
	if err != nil {
		if errors.Is(err, token.ErrSealedInvalid) {
			return Record{}, ErrCorruptRecord
		}
		return Record{}, err
	}
	rec.Token = plain
	return rec, nil
}

func (s *SealedRecordStore) Save(ctx context.Context, rec Record) error {
	sealed, err := s.sealer.Seal(rec.Token, sealedTokenSlot)
	if err != nil {
		return err
	}
	rec.Token = sealed
	return s.inner.Save(ctx, rec)
}

func (s *SealedRecordStore) Erase(ctx context.Context) error { return s.inner.Erase(ctx) }

func (s *SealedRecordStore) Close() error { return s.inner.Close() }
