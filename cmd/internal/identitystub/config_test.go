package identitystub

import (
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	secret := paseto.NewV4AsymmetricSecretKey()
	t.Setenv("JOBMARKET_STUB_PASETO_SECRET_KEY_HEX", secret.ExportHex())
	t.Setenv("JOBMARKET_STUB_TOKEN_TTL", "2h")
	t.Setenv("JOBMARKET_STUB_SEED_PASSWORD", "-")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.TokenTTL != 2*time.Hour || cfg.SeedPassword != "" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	m, err := NewTokenManager(cfg)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	if m.PublicKeyHex() != secret.Public().ExportHex() {
		t.Fatalf("token manager did not use the configured key")
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		"JOBMARKET_STUB_PASETO_SECRET_KEY_HEX": "not-hex",
		"JOBMARKET_STUB_TOKEN_TTL":             "-1h",
		"JOBMARKET_STUB_CLOCK_SKEW":            "1h",
		"JOBMARKET_STUB_MAX_BODY_BYTES":        "10",
		"JOBMARKET_STUB_LOGIN_IP_MAX":          "-1",
		"JOBMARKET_STUB_LOGIN_USER_WINDOW":     "0s",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := LoadConfigFromEnv(); err != ErrConfig {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}
