// Package realtime streams session state changes to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"jobmarket/cmd/identity/ids"
	"jobmarket/cmd/internal/auth/session"
	v1 "jobmarket/shared/contracts/session/v1"

	"github.com/coder/websocket"
)

// Source is the session side of the gateway. *session.Manager satisfies it.
type Source interface {
	Subscribe() *session.Subscription
	Unsubscribe(*session.Subscription)
	Snapshot() session.Snapshot
	Loading() bool
}

// Gateway is the websocket entrypoint for session events.
//
// A client connects with subprotocol jobmarket.session.v1 and sends hello.
// The gateway answers with hello_ack and the current session.state, then
// pushes a session.state envelope after every observable change.
type Gateway struct {
	log *slog.Logger
	src Source
	cfg Config

	patterns []string
	conns    atomic.Int64
}

// NewGateway constructs a gateway. A zero Config field falls back to the default.
func NewGateway(log *slog.Logger, src Source, cfg Config) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()
	return &Gateway{
		log:      log,
		src:      src,
		cfg:      cfg,
		patterns: originPatterns(cfg.AllowedOrigins),
	}
}

// Conns returns the number of open websocket connections.
func (g *Gateway) Conns() int64 { return g.conns.Load() }

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and runs the subscriber loop until either
// side goes away.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.patterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	g.conns.Add(1)
	defer g.conns.Add(-1)

	client := NewClient(ids.MustULID(time.Now().UTC()), g.cfg.SendQueue)
	log := g.log.With("conn_id", client.ConnID)
	log.Debug("ws.connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		closeOnce sync.Once
		sub       atomic.Pointer[session.Subscription]
	)
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			if s := sub.Swap(nil); s != nil {
				g.src.Unsubscribe(s)
			}
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writeLoop(ctx, conn, client, log, shutdown)
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		g.heartbeat(ctx, conn, client, log, shutdown)
	}()

	var forwardDone chan struct{}
	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		readCtx, readCancel := ctx, context.CancelFunc(func() {})
		if sub.Load() == nil {
			readCtx, readCancel = context.WithTimeout(ctx, g.cfg.HelloTimeout)
		}
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		kind := readErrUnknown
		if err != nil {
			kind = classifyReadErr(err)
		}
		// Malformed frames count against the limit too.
		if (err == nil || kind == readErrBadJSON) && !rl.Allow(time.Now()) {
			g.trySendError(ctx, client, "rate_limited", "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err != nil {
			switch kind {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				// The library closes the conn when a read context expires,
				// so a hello timeout cannot be reported in-band.
				if ctx.Err() == nil {
					log.Info("ws.hello.timeout")
					shutdown(websocket.StatusPolicyViolation, "hello timeout")
				} else {
					shutdown(websocket.StatusNormalClosure, "context done")
				}
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeHello:
			if sub.Load() != nil {
				g.trySendError(ctx, client, "already_subscribed", "hello already received")
				continue readLoop
			}
			s, err := g.onHello(ctx, client, env)
			if err != nil {
				g.trySendError(ctx, client, "hello_failed", err.Error())
				shutdown(websocket.StatusPolicyViolation, "hello failed")
				break readLoop
			}
			sub.Store(s)
			log.Debug("ws.subscribed", "subscriber_id", s.ID)

			forwardDone = make(chan struct{})
			go func() {
				defer close(forwardDone)
				g.forward(ctx, client, s, log)
			}()

		default:
			g.trySendError(ctx, client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	// A subscription stored after a concurrent shutdown is released here.
	if s := sub.Swap(nil); s != nil {
		g.src.Unsubscribe(s)
	}
	<-writerDone
	if forwardDone != nil {
		<-forwardDone
	}

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
	log.Debug("ws.disconnected")
}

func (g *Gateway) onHello(ctx context.Context, client *Client, env v1.Envelope) (*session.Subscription, error) {
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		var p v1.HelloPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	}

	// Subscribe before reading the snapshot so no change falls between them.
	s := g.src.Subscribe()
	client.setSubscriberID(s.ID)

	now := time.Now().UTC()
	ack, err := newEnvelope(v1.TypeHelloAck, now, v1.HelloAckPayload{SubscriberID: s.ID})
	if err == nil {
		var state v1.Envelope
		state, err = newEnvelope(v1.TypeSessionState, now, StatePayload(g.src.Snapshot(), g.src.Loading()))
		if err == nil && !(g.enqueue(ctx, client, ack) && g.enqueue(ctx, client, state)) {
			err = errors.New("backpressure: hello_ack")
		}
	}
	if err != nil {
		g.src.Unsubscribe(s)
		return nil, err
	}
	return s, nil
}

// forward copies published snapshots onto the client's send queue. A full
// queue drops the snapshot; the next one carries the complete state anyway.
func (g *Gateway) forward(ctx context.Context, client *Client, s *session.Subscription, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-s.Done():
			return
		case snap := <-s.C:
			env, err := newEnvelope(v1.TypeSessionState, time.Now().UTC(), StatePayload(snap, false))
			if err != nil {
				log.Error("ws.encode.fail", "err", err)
				continue
			}
			if !g.enqueue(ctx, client, env) {
				log.Debug("ws.state.dropped", "epoch", snap.Epoch)
			}
		}
	}
}

func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client, log *slog.Logger, shutdown func(websocket.StatusCode, string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case env := <-client.Send:
			if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
				log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
				shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, client *Client, log *slog.Logger, shutdown func(websocket.StatusCode, string)) {
	t := time.NewTicker(g.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(hbCtx)
			hbCancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			log.Info("ws.ping.fail", "failures", failures, "err", err)
			if failures >= maxPingFailures {
				shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	env, err := newEnvelope(v1.TypeError, time.Now().UTC(), v1.ErrorPayload{Code: code, Message: msg})
	if err != nil {
		return
	}
	_ = g.enqueue(ctx, client, env)
}

// enqueue never blocks.
func (g *Gateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

var errBadFrame = errors.New("bad frame")

func newEnvelope(typ string, ts time.Time, payload any) (v1.Envelope, error) {
	id, err := ids.NewULID(ts)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.NewEnvelope(typ, id, ts, payload)
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	switch {
	case errors.Is(err, errBadFrame):
		return readErrBadJSON
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	default:
		return readErrUnknown
	}
}
