package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	kvKeyToken   = "token"
	kvKeyProfile = "profile"
)

// PostgresRecordStore keeps the record as two rows of jobmarket.session_kv,
// scoped by namespace so several agents can share one database.
type PostgresRecordStore struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPostgresRecordStore creates a Postgres-backed record store.
// The pool is owned by the caller.
func NewPostgresRecordStore(pool *pgxpool.Pool, namespace string) *PostgresRecordStore {
	if namespace == "" {
		namespace = "default"
	}
	return &PostgresRecordStore{pool: pool, namespace: namespace}
}

// EnsureSchema creates the schema and table if they do not exist.
func (s *PostgresRecordStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS jobmarket;
		CREATE TABLE IF NOT EXISTS jobmarket.session_kv (
			namespace  text        NOT NULL,
			key        text        NOT NULL,
			value      text        NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, key)
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure session_kv schema: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Load(ctx context.Context) (Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, value
		FROM jobmarket.session_kv
		WHERE namespace = $1 AND key IN ($2, $3)
	`, s.namespace, kvKeyToken, kvKeyProfile)
	if err != nil {
		return Record{}, fmt.Errorf("select session_kv: %w", err)
	}
	defer rows.Close()

	var (
		tok, prof            string
		hasToken, hasProfile bool
	)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Record{}, fmt.Errorf("scan session_kv: %w", err)
		}
		switch key {
		case kvKeyToken:
			tok, hasToken = value, true
		case kvKeyProfile:
			prof, hasProfile = value, true
		}
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("iterate session_kv: %w", err)
	}

	return checkPair(tok, prof, hasToken, hasProfile)
}

func (s *PostgresRecordStore) Save(ctx context.Context, rec Record) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, kv := range [...][2]string{{kvKeyToken, rec.Token}, {kvKeyProfile, rec.Profile}} {
			_, err := tx.Exec(ctx, `
				INSERT INTO jobmarket.session_kv (namespace, key, value, updated_at)
				VALUES ($1, $2, $3, now())
				ON CONFLICT (namespace, key)
				DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
			`, s.namespace, kv[0], kv[1])
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert session_kv: %w", err)
	}
	return nil
}

// Erase removes both rows in one statement (idempotent).
func (s *PostgresRecordStore) Erase(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM jobmarket.session_kv
		WHERE namespace = $1
	`, s.namespace)
	if err != nil {
		return fmt.Errorf("delete session_kv: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Close() error { return nil }
