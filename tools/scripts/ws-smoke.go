// Package main is a manual smoke test for the session agent's event stream.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello/hello_ack and the initial session.state
//   - with --login: login through the agent pushes an authenticated state,
//     and logout pushes an unauthenticated one
//
// With --identity-url the token is obtained from the identity stub using
// --email/--password; otherwise --token is used as is.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "jobmarket/shared/contracts/session/v1"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"
)

const maxReadBytes = 1 << 20 // 1MiB

func main() {
	var (
		agentURL    = pflag.String("agent", "http://127.0.0.1:7070", "session agent base URL")
		origin      = pflag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		login       = pflag.Bool("login", false, "also exercise login and logout through the agent")
		identityURL = pflag.String("identity-url", "", "identity stub base URL used to obtain a token")
		email       = pflag.String("email", "employer@jobmarket.test", "identity stub account")
		password    = pflag.String("password", "jobmarket-dev-password", "identity stub password")
		tok         = pflag.String("token", "smoke-token", "token to log in with when --identity-url is empty")
		role        = pflag.String("role", "employer", "role to log in with when --identity-url is empty")
		timeout     = pflag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose     = pflag.BoolP("verbose", "v", false, "verbose output")
	)
	pflag.Parse()

	wsURL, err := wsURLFor(*agentURL)
	if err != nil {
		fatalf("invalid --agent: %v", err)
	}

	ctx := context.Background()

	conn := mustConnect(ctx, wsURL, *origin, *timeout)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	subID := mustHello(ctx, conn, *timeout)
	initial := mustState(ctx, conn, *timeout)
	if *verbose {
		fmt.Printf("subscribed: %s phase=%s authenticated=%v\n", subID, initial.Phase, initial.Authenticated)
	}
	if !*login {
		fmt.Println("OK: ws-smoke passed (handshake only)")
		return
	}

	loginTok, profile := *tok, map[string]any{"subject_id": "smoke-user", "role": *role}
	if *identityURL != "" {
		loginTok, profile = mustIdentityLogin(ctx, *identityURL, *email, *password, *timeout)
	}

	mustPost(ctx, strings.TrimRight(*agentURL, "/")+"/session/login",
		map[string]any{"token": loginTok, "profile": profile}, *timeout)
	in := mustState(ctx, conn, *timeout)
	if !in.Authenticated || in.Profile == nil {
		fatalf("expected authenticated state after login, got %+v", in)
	}
	if *verbose {
		fmt.Printf("logged in: session=%s role=%s epoch=%d\n", in.SessionID, in.Profile.Role, in.Epoch)
	}

	mustPost(ctx, strings.TrimRight(*agentURL, "/")+"/session/logout", nil, *timeout)
	out := mustState(ctx, conn, *timeout)
	if out.Authenticated {
		fatalf("expected unauthenticated state after logout, got %+v", out)
	}

	fmt.Println("OK: ws-smoke passed")
}

func wsURLFor(agent string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(agent))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func mustConnect(parent context.Context, wsURL, origin string, timeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if err != nil {
		if resp != nil {
			fatalf("dial failed: %v (status=%d)", err, resp.StatusCode)
		}
		fatalf("dial failed: %v", err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got %q want %q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustHello(parent context.Context, conn *websocket.Conn, timeout time.Duration) string {
	env, err := v1.NewEnvelope(v1.TypeHello, fmt.Sprintf("smoke-%d", time.Now().UnixNano()), time.Now().UTC(), v1.HelloPayload{})
	if err != nil {
		fatalf("hello: %v", err)
	}
	mustWrite(parent, conn, env, timeout)

	ack := mustRead(parent, conn, timeout)
	if ack.Type != v1.TypeHelloAck {
		fatalf("expected %s, got %s (%s)", v1.TypeHelloAck, ack.Type, ack.Payload)
	}
	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil || p.SubscriberID == "" {
		fatalf("bad hello_ack payload %s: %v", ack.Payload, err)
	}
	return p.SubscriberID
}

func mustState(parent context.Context, conn *websocket.Conn, timeout time.Duration) v1.SessionStatePayload {
	env := mustRead(parent, conn, timeout)
	if env.Type != v1.TypeSessionState {
		fatalf("expected %s, got %s (%s)", v1.TypeSessionState, env.Type, env.Payload)
	}
	var p v1.SessionStatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("bad session.state payload: %v", err)
	}
	return p
}

func mustWrite(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write: %v", err)
	}
}

func mustRead(parent context.Context, conn *websocket.Conn, timeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("read: %v (close_status=%v)", err, websocket.CloseStatus(err))
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		fatalf("bad envelope %q: %v", data, err)
	}
	if err := env.Validate(); err != nil {
		fatalf("invalid envelope: %v", err)
	}
	return env
}

func mustIdentityLogin(parent context.Context, base, email, password string, timeout time.Duration) (string, map[string]any) {
	body := mustPost(parent, strings.TrimRight(base, "/")+"/auth/login",
		map[string]string{"email": email, "password": password}, timeout)

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID          string `json:"id"`
			Role        string `json:"role"`
			FirstName   string `json:"first_name"`
			LastName    string `json:"last_name"`
			DisplayName string `json:"display_name"`
			Verified    bool   `json:"verified"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		fatalf("bad identity login response %s: %v", body, err)
	}
	return resp.Token, map[string]any{
		"subject_id":   resp.User.ID,
		"role":         resp.User.Role,
		"first_name":   resp.User.FirstName,
		"last_name":    resp.User.LastName,
		"display_name": resp.User.DisplayName,
		"verified":     resp.User.Verified,
	}
}

func mustPost(parent context.Context, target string, payload any, timeout time.Duration) []byte {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var rd io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, rd)
	if err != nil {
		fatalf("request %s: %v", target, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST %s: %v", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if resp.StatusCode/100 != 2 {
		fatalf("POST %s: status %d: %s", target, resp.StatusCode, body)
	}
	return body
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
