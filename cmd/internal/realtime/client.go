package realtime

import (
	"sync"
	"sync/atomic"

	v1 "jobmarket/shared/contracts/session/v1"
)

// Client is one connected websocket subscriber.
//
// Send is never closed by the gateway; goroutines stop on Done.
type Client struct {
	ConnID string
	Send   chan v1.Envelope

	subscriberID atomic.Pointer[string]

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(connID string, sendQueue int) *Client {
	if sendQueue <= 0 {
		sendQueue = defaultSendQueue
	}
	return &Client{
		ConnID: connID,
		Send:   make(chan v1.Envelope, sendQueue),
		done:   make(chan struct{}),
	}
}

// SubscriberID returns the session subscription id, or "" before hello.
func (c *Client) SubscriberID() string {
	if p := c.subscriberID.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Client) setSubscriberID(id string) { c.subscriberID.Store(&id) }

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop. Idempotent.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() { close(c.done) })
}
