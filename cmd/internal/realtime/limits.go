package realtime

import "time"

const (
	// Inbound frames are tiny (hello, nothing else); cap them hard.
	maxFrameBytes = 8 << 10 // 8 KiB

	// A client must say hello within this window after the upgrade.
	helloTimeout = 10 * time.Second

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	maxPingFailures   = 3

	writeTimeout = 5 * time.Second
	closeGrace   = 1 * time.Second

	defaultSendQueue = 64
	minSendQueue     = 8

	// Per-connection inbound limits (frames per window).
	rateLimitEvents = 20
	rateLimitWindow = 10 * time.Second
)
