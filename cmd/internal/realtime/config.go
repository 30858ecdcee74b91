package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the session event gateway.
type Config struct {
	// DevInsecure disables websocket.Accept origin verification. Dev only.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	SendQueue int

	HelloTimeout     time.Duration
	WriteTimeout     time.Duration
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultConfig only admits localhost origins.
func DefaultConfig() Config {
	return Config{
		OriginRequired:   true,
		AllowedOrigins:   []string{"http://localhost", "http://127.0.0.1"},
		SendQueue:        defaultSendQueue,
		HelloTimeout:     helloTimeout,
		WriteTimeout:     writeTimeout,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// LoadConfigFromEnv overlays JOBMARKET_WS_* variables on DefaultConfig.
// Unparseable values keep the default.
func LoadConfigFromEnv() Config {
	c := DefaultConfig()

	c.DevInsecure = envBoolWS("JOBMARKET_WS_DEV_INSECURE", c.DevInsecure)
	c.OriginRequired = envBoolWS("JOBMARKET_WS_ORIGIN_REQUIRED", c.OriginRequired)
	if v := envCSVWS("JOBMARKET_WS_ALLOWED_ORIGINS"); v != nil {
		c.AllowedOrigins = v
	}

	c.SendQueue = envIntWS("JOBMARKET_WS_SEND_QUEUE", c.SendQueue)
	c.HelloTimeout = envDurationWS("JOBMARKET_WS_HELLO_TIMEOUT", c.HelloTimeout)
	c.WriteTimeout = envDurationWS("JOBMARKET_WS_WRITE_TIMEOUT", c.WriteTimeout)
	c.HeartbeatEvery = envDurationWS("JOBMARKET_WS_HEARTBEAT_INTERVAL", c.HeartbeatEvery)
	c.HeartbeatTimeout = envDurationWS("JOBMARKET_WS_HEARTBEAT_TIMEOUT", c.HeartbeatTimeout)
	c.RateEvents = envIntWS("JOBMARKET_WS_RATE_EVENTS", c.RateEvents)
	c.RateWindow = envDurationWS("JOBMARKET_WS_RATE_WINDOW", c.RateWindow)
	return c
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.SendQueue < minSendQueue {
		c.SendQueue = minSendQueue
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = d.HelloTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = d.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	return c
}

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// envCSVWS returns nil when key is unset or holds no entries.
func envCSVWS(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
