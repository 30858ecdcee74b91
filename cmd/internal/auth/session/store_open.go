package session

import (
	"context"
	"fmt"

	"jobmarket/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenRecordStore builds the RecordStore selected by cfg, wrapped in a
// SealedRecordStore when a seal key is configured.
//
// pool is required for StorePostgres and ignored otherwise; it stays owned by
// the caller.
func OpenRecordStore(ctx context.Context, cfg Config, pool *pgxpool.Pool) (RecordStore, error) {
	var sealer *token.Sealer
	if cfg.SealKeyHex != "" {
		s, err := token.NewSealerFromHex(cfg.SealKeyHex)
		if err != nil {
			return nil, fmt.Errorf("%w: seal key: %v", ErrConfig, err)
		}
		sealer = s
	}

	var inner RecordStore
	switch cfg.Store {
	case StoreMemory:
		inner = NewMemoryRecordStore()

	case StoreFile, "":
		path := cfg.FilePath
		if path == "" {
			path = DefaultFilePath()
		}
		inner = NewFileRecordStore(path)

	case StoreRedis:
		rs, err := OpenRedisRecordStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		inner = rs

	case StorePostgres:
		if pool == nil {
			return nil, fmt.Errorf("%w: postgres store requires a database pool", ErrConfig)
		}
		ps := NewPostgresRecordStore(pool, cfg.Namespace)
		if err := ps.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		inner = ps

	default:
		return nil, fmt.Errorf("%w: unknown store %q", ErrConfig, cfg.Store)
	}

	return NewSealedRecordStore(inner, sealer), nil
}
