package app

import (
	"strings"
	"time"

	"jobmarket/cmd/internal/auth/session"
	"jobmarket/cmd/internal/realtime"

	"github.com/spf13/pflag"
)

// Config contains all runtime configuration of the session agent.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64

	// CORSAllowedOrigins admits the front end's dev server. A trailing ":*"
	// matches any port.
	CORSAllowedOrigins []string

	DBMaxConns int32
	DBMinConns int32

	Session session.Config
	WS      realtime.Config
}

// LoadConfig loads Config from environment variables with defaults.
// Only the session section can fail validation.
func LoadConfig() (Config, error) {
	sess, err := session.LoadConfigFromEnv()
	if err != nil {
		return Config{}, err
	}

	return Config{
		HTTPAddr:  EnvString("JOBMARKET_HTTP_ADDR", "127.0.0.1:7070"),
		LogLevel:  EnvString("JOBMARKET_LOG_LEVEL", "info"),
		LogFormat: EnvString("JOBMARKET_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("JOBMARKET_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("JOBMARKET_HTTP_READ_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("JOBMARKET_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("JOBMARKET_HTTP_MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(EnvInt("JOBMARKET_HTTP_MAX_BODY_BYTES", 64<<10)),

		CORSAllowedOrigins: EnvCSV("JOBMARKET_CORS_ALLOWED_ORIGINS", "http://localhost:*,http://127.0.0.1:*"),

		DBMaxConns: EnvInt32("JOBMARKET_DB_MAX_CONNS", 4),
		DBMinConns: EnvInt32("JOBMARKET_DB_MIN_CONNS", 0),

		Session: sess,
		WS:      realtime.LoadConfigFromEnv(),
	}, nil
}

// BindFlags registers command-line overrides for the most common settings.
// Defaults are taken from cfg, so flags win over the environment.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "listen address for the agent HTTP surface")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json, text, pretty")
	fs.StringVar((*string)(&cfg.Session.Store), "session-store", string(cfg.Session.Store), "record store: file, redis, postgres, memory")
	fs.StringVar(&cfg.Session.FilePath, "session-file", cfg.Session.FilePath, "record file for the file store")
	fs.StringVar(&cfg.Session.VerifyURL, "verify-url", cfg.Session.VerifyURL, "identity service verification endpoint")
	fs.DurationVar(&cfg.Session.RevalidateInterval, "revalidate-interval", cfg.Session.RevalidateInterval, "period between background verifications")
}

// Validate re-checks values that flags may have changed.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errEmptyAddr
	}
	return c.Session.Validate()
}
