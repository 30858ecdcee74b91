package session

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// StoreKind selects the RecordStore backend.
type StoreKind string

const (
	StoreFile     StoreKind = "file"
	StoreRedis    StoreKind = "redis"
	StorePostgres StoreKind = "postgres"
	StoreMemory   StoreKind = "memory"
)

// Config defines all runtime configuration for the session subsystem.
type Config struct {
	// Store selects where the persisted record lives.
	Store StoreKind

	// FilePath is the record location for StoreFile.
	FilePath string

	// RedisURL and RedisPrefix configure StoreRedis.
	RedisURL    string
	RedisPrefix string

	// DatabaseURL and Namespace configure StorePostgres.
	// Namespace separates agents sharing one database.
	DatabaseURL string
	Namespace   string

	// SealKeyHex enables token sealing at rest when non-empty (hex, 32 bytes).
	SealKeyHex string

	// VerifyURL is the identity service verification endpoint.
	VerifyURL string

	// VerifyTimeout bounds one verification call. Exceeding it is a transient failure.
	VerifyTimeout time.Duration

	// RevalidateInterval is the fixed period between background verifications.
	RevalidateInterval time.Duration

	// BreakerFailures is the number of consecutive transient failures that
	// opens the verification circuit breaker; BreakerCooldown is how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	// SubscriberQueue is the per-subscriber event buffer.
	SubscriberQueue int
}

// DefaultConfig returns a configuration suitable for a developer workstation.
func DefaultConfig() Config {
	return Config{
		Store:              StoreFile,
		FilePath:           DefaultFilePath(),
		RedisPrefix:        "jobmarket:session",
		Namespace:          "default",
		VerifyURL:          "http://127.0.0.1:7080/auth/verify",
		VerifyTimeout:      10 * time.Second,
		RevalidateInterval: 30 * time.Second,
		BreakerFailures:    5,
		BreakerCooldown:    60 * time.Second,
		SubscriberQueue:    16,
	}
}

// DefaultFilePath returns the record path used by StoreFile.
// Checks JOBMARKET_SESSION_FILE first, then $XDG_CONFIG_HOME, then ~/.config.
func DefaultFilePath() string {
	if p := strings.TrimSpace(os.Getenv("JOBMARKET_SESSION_FILE")); p != "" {
		return p
	}

	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "jobmarket-session.json")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "jobmarket", "session.json")
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - JOBMARKET_SESSION_STORE (file, redis, postgres, memory)
//   - JOBMARKET_SESSION_FILE
//   - JOBMARKET_REDIS_URL, JOBMARKET_REDIS_PREFIX
//   - JOBMARKET_DATABASE_URL, JOBMARKET_SESSION_NAMESPACE
//   - JOBMARKET_SESSION_SEAL_KEY
//   - JOBMARKET_IDENTITY_VERIFY_URL
//   - JOBMARKET_VERIFY_TIMEOUT
//   - JOBMARKET_REVALIDATE_INTERVAL
//   - JOBMARKET_VERIFY_BREAKER_FAILURES, JOBMARKET_VERIFY_BREAKER_COOLDOWN
//   - JOBMARKET_SESSION_SUBSCRIBER_QUEUE
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := envTrim("JOBMARKET_SESSION_STORE"); v != "" {
		cfg.Store = StoreKind(strings.ToLower(v))
	}
	if v := envTrim("JOBMARKET_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := envTrim("JOBMARKET_REDIS_PREFIX"); v != "" {
		cfg.RedisPrefix = v
	}
	if v := envTrim("JOBMARKET_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := envTrim("JOBMARKET_SESSION_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	cfg.SealKeyHex = envTrim("JOBMARKET_SESSION_SEAL_KEY")
	if v := envTrim("JOBMARKET_IDENTITY_VERIFY_URL"); v != "" {
		cfg.VerifyURL = v
	}

	if v := envTrim("JOBMARKET_VERIFY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.VerifyTimeout = d
	}

	if v := envTrim("JOBMARKET_REVALIDATE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RevalidateInterval = d
	}

	if v := envTrim("JOBMARKET_VERIFY_BREAKER_FAILURES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return Config{}, ErrConfig
		}
		cfg.BreakerFailures = uint32(n)
	}

	if v := envTrim("JOBMARKET_VERIFY_BREAKER_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.BreakerCooldown = d
	}

	if v := envTrim("JOBMARKET_SESSION_SUBSCRIBER_QUEUE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 4096 {
			return Config{}, ErrConfig
		}
		cfg.SubscriberQueue = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c Config) Validate() error {
	switch c.Store {
	case StoreFile:
		if strings.TrimSpace(c.FilePath) == "" {
			return ErrConfig
		}
	case StoreRedis:
		if c.RedisURL == "" || c.RedisPrefix == "" {
			return ErrConfig
		}
	case StorePostgres:
		if c.DatabaseURL == "" || c.Namespace == "" {
			return ErrConfig
		}
	case StoreMemory:
	default:
		return ErrConfig
	}

	u, err := url.Parse(c.VerifyURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrConfig
	}

	// The verification timeout must fit inside one revalidation period,
	// otherwise every tick after the first would be dropped.
	if c.VerifyTimeout <= 0 || c.RevalidateInterval <= 0 || c.VerifyTimeout > c.RevalidateInterval {
		return ErrConfig
	}
	return nil
}

func envTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
