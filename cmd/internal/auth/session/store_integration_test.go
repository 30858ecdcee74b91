package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"jobmarket/cmd/identity/ids"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when JOBMARKET_TEST_REDIS_URL or
// JOBMARKET_TEST_DATABASE_URL is set. Each run uses a fresh key prefix or
// namespace and removes it afterwards.

func exerciseRecordStore(ctx context.Context, t *testing.T, rs RecordStore) {
	t.Helper()

	if _, err := rs.Load(ctx); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord on empty store, got %v", err)
	}

	first := mustRecord(t, "tok-1", Profile{Role: RoleEmployee})
	if err := rs.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := mustRecord(t, "tok-2", Profile{Role: RoleEmployer, FirstName: "Grace"})
	if err := rs.Save(ctx, second); err != nil {
		t.Fatalf("Save (overwrite): %v", err)
	}

	got, err := rs.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != second {
		t.Fatalf("expected %+v, got %+v", second, got)
	}

	if err := rs.Erase(ctx); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if err := rs.Erase(ctx); err != nil {
		t.Fatalf("second Erase: %v", err)
	}
	if _, err := rs.Load(ctx); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord after erase, got %v", err)
	}
}

func TestRedisRecordStore_Integration(t *testing.T) {
	t.Parallel()

	redisURL := os.Getenv("JOBMARKET_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("JOBMARKET_TEST_REDIS_URL is not set; skipping Redis integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prefix := "jobmarket:test:" + ids.MustULID(time.Now())
	rs, err := OpenRedisRecordStore(ctx, redisURL, prefix)
	if err != nil {
		if os.Getenv("CI") == "" {
			t.Skipf("redis unreachable: %v", err)
		}
		t.Fatalf("OpenRedisRecordStore: %v", err)
	}
	defer func() { _ = rs.Close() }()
	t.Cleanup(func() { _ = rs.Erase(context.Background()) })

	exerciseRecordStore(ctx, t, rs)

	// A lone token key is a corrupt record.
	if err := rs.client.Set(ctx, rs.tokenKey, "orphan", 0).Err(); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := rs.Load(ctx); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord for half record, got %v", err)
	}
}

func TestPostgresRecordStore_Integration(t *testing.T) {
	t.Parallel()

	dbURL := os.Getenv("JOBMARKET_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("JOBMARKET_TEST_DATABASE_URL is not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		if os.Getenv("CI") == "" {
			t.Skipf("postgres unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}

	ps := NewPostgresRecordStore(pool, "test-"+ids.MustULID(time.Now()))
	if err := ps.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { _ = ps.Erase(context.Background()) })

	exerciseRecordStore(ctx, t, ps)

	if _, err := pool.Exec(ctx, `
		INSERT INTO jobmarket.session_kv (namespace, key, value) VALUES ($1, 'profile', '{"role":"employee"}')
	`, ps.namespace); err != nil {
		t.Fatalf("insert orphan profile: %v", err)
	}
	if _, err := ps.Load(ctx); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord for half record, got %v", err)
	}
}
