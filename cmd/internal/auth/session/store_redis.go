package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisRecordStore keeps the record under two keys, <prefix>:token and
// <prefix>:profile. Writes and erases run in MULTI/EXEC so both keys change
// together; reads use a single MGET.
type RedisRecordStore struct {
	client     *redis.Client
	tokenKey   string
	profileKey string
	ownsClient bool
}

// NewRedisRecordStore wraps an existing client. Close does not close it.
func NewRedisRecordStore(client *redis.Client, prefix string) *RedisRecordStore {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "jobmarket:session"
	}
	return &RedisRecordStore{
		client:     client,
		tokenKey:   prefix + ":token",
		profileKey: prefix + ":profile",
	}
}

// OpenRedisRecordStore dials rawURL (redis:// or rediss://) and pings it.
func OpenRedisRecordStore(ctx context.Context, rawURL, prefix string) (*RedisRecordStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: redis url: %v", ErrConfig, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := NewRedisRecordStore(client, prefix)
	s.ownsClient = true
	return s, nil
}

func (s *RedisRecordStore) Load(ctx context.Context) (Record, error) {
	vals, err := s.client.MGet(ctx, s.tokenKey, s.profileKey).Result()
	if err != nil {
		return Record{}, fmt.Errorf("redis mget: %w", err)
	}
	if len(vals) != 2 {
		return Record{}, ErrCorruptRecord
	}

	tok, hasToken := vals[0].(string)
	prof, hasProfile := vals[1].(string)
	return checkPair(tok, prof, hasToken, hasProfile)
}

func (s *RedisRecordStore) Save(ctx context.Context, rec Record) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey, rec.Token, 0)
		pipe.Set(ctx, s.profileKey, rec.Profile, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (s *RedisRecordStore) Erase(ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.tokenKey, s.profileKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis erase: %w", err)
	}
	return nil
}

func (s *RedisRecordStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}
