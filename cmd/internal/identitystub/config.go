package identitystub

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// ErrConfig is returned for invalid stub configuration.
var ErrConfig = errors.New("identitystub: invalid config")

// Config defines the identity stub runtime configuration.
type Config struct {
	Addr   string
	Issuer string

	// SecretKeyHex is the Ed25519 PASETO v4 secret key. Empty generates an
	// ephemeral key, so tokens do not survive a restart.
	SecretKeyHex string

	TokenTTL  time.Duration
	ClockSkew time.Duration

	// SeedPassword is the password of the built-in demo accounts.
	// Empty disables seeding.
	SeedPassword string

	MaxBodyBytes int64

	// Failed-login throttling. LoginIPMax failures per LoginIPWindow block
	// a client address; Lockout tiers block an account.
	LoginIPMax      int
	LoginIPWindow   time.Duration
	LoginUserWindow time.Duration
	Lockout         []LockoutTier
}

// DefaultConfig returns a local development configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:7080",
		Issuer:       "jobmarket-identity-stub",
		TokenTTL:     24 * time.Hour,
		ClockSkew:    30 * time.Second,
		SeedPassword: "jobmarket-dev-password",
		MaxBodyBytes: 1 << 16,

		LoginIPMax:      20,
		LoginIPWindow:   5 * time.Minute,
		LoginUserWindow: 15 * time.Minute,
		Lockout: []LockoutTier{
			{Threshold: 5, Duration: 5 * time.Minute},
			{Threshold: 10, Duration: 30 * time.Minute},
			{Threshold: 20, Duration: 2 * time.Hour},
		},
	}
}

// LoadConfigFromEnv loads the stub configuration.
//
// Optional:
//   - JOBMARKET_STUB_ADDR
//   - JOBMARKET_STUB_ISSUER
//   - JOBMARKET_STUB_PASETO_SECRET_KEY_HEX
//   - JOBMARKET_STUB_TOKEN_TTL
//   - JOBMARKET_STUB_CLOCK_SKEW
//   - JOBMARKET_STUB_SEED_PASSWORD ("-" disables seeding)
//   - JOBMARKET_STUB_MAX_BODY_BYTES
//   - JOBMARKET_STUB_LOGIN_IP_MAX (0 disables the per-address limit)
//   - JOBMARKET_STUB_LOGIN_IP_WINDOW
//   - JOBMARKET_STUB_LOGIN_USER_WINDOW
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := envTrim("JOBMARKET_STUB_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := envTrim("JOBMARKET_STUB_ISSUER"); v != "" {
		cfg.Issuer = v
	}
	cfg.SecretKeyHex = envTrim("JOBMARKET_STUB_PASETO_SECRET_KEY_HEX")

	if v := envTrim("JOBMARKET_STUB_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TokenTTL = d
	}
	if v := envTrim("JOBMARKET_STUB_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 || d > 5*time.Minute {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}
	if v, ok := os.LookupEnv("JOBMARKET_STUB_SEED_PASSWORD"); ok {
		v = strings.TrimSpace(v)
		if v == "-" {
			v = ""
		}
		cfg.SeedPassword = v
	}
	if v := envTrim("JOBMARKET_STUB_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 512 || n > 1<<20 {
			return Config{}, ErrConfig
		}
		cfg.MaxBodyBytes = n
	}

	if v := envTrim("JOBMARKET_STUB_LOGIN_IP_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, ErrConfig
		}
		cfg.LoginIPMax = n
	}
	for key, dst := range map[string]*time.Duration{
		"JOBMARKET_STUB_LOGIN_IP_WINDOW":   &cfg.LoginIPWindow,
		"JOBMARKET_STUB_LOGIN_USER_WINDOW": &cfg.LoginUserWindow,
	} {
		if v := envTrim(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return Config{}, ErrConfig
			}
			*dst = d
		}
	}

	if cfg.SecretKeyHex != "" {
		if _, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.SecretKeyHex); err != nil {
			return Config{}, ErrConfig
		}
	}
	return cfg, nil
}

func envTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
