package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileRecordStore keeps the record in one JSON document on disk.
//
// The parent directory is created 0700 and the file is written 0600 since it
// holds a token. Writes go to a temp file in the same directory followed by a
// rename, so a crash leaves either the old record or the new one.
type FileRecordStore struct {
	path string
}

type fileRecord struct {
	Token   *string `json:"token"`
	Profile *string `json:"profile"`
}

// NewFileRecordStore returns a store at path.
func NewFileRecordStore(path string) *FileRecordStore {
	return &FileRecordStore{path: path}
}

// Path returns the record location.
func (s *FileRecordStore) Path() string { return s.path }

func (s *FileRecordStore) Load(_ context.Context) (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, ErrNoRecord
		}
		return Record{}, fmt.Errorf("reading session file %s: %w", s.path, err)
	}

	var fr fileRecord
	if err := json.Unmarshal(data, &fr); err != nil {
		return Record{}, ErrCorruptRecord
	}

	var tok, prof string
	if fr.Token != nil {
		tok = *fr.Token
	}
	if fr.Profile != nil {
		prof = *fr.Profile
	}
	return checkPair(tok, prof, fr.Token != nil, fr.Profile != nil)
}

func (s *FileRecordStore) Save(_ context.Context, rec Record) error {
	data, err := json.MarshalIndent(fileRecord{Token: &rec.Token, Profile: &rec.Profile}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session record: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating session directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp session file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing session file %s: %w", s.path, err)
	}
	return nil
}

// Erase removes the record (idempotent).
func (s *FileRecordStore) Erase(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file %s: %w", s.path, err)
	}
	return nil
}

func (s *FileRecordStore) Close() error { return nil }
