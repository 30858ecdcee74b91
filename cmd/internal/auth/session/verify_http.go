package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const maxVerifyBody = 1 << 20

var errTransientVerify = errors.New("transient verification failure")

// HTTPVerifier verifies tokens against the identity service:
//
//	GET <VerifyURL>
//	Authorization: Bearer <token>
//
// 2xx confirms (a body with "valid": false rejects), 401 and 403 reject, and
// everything else is transient. Calls run behind a circuit breaker that only
// counts transient failures; while it is open Verify returns a transient
// result without touching the network.
type HTTPVerifier struct {
	url     string
	timeout time.Duration
	client  *http.Client
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPVerifier builds a verifier from cfg. A nil client uses a default
// client; the per-call timeout is always applied through the request context.
func NewHTTPVerifier(cfg Config, client *http.Client, log *slog.Logger) *HTTPVerifier {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	v := &HTTPVerifier{
		url:     cfg.VerifyURL,
		timeout: cfg.VerifyTimeout,
		client:  client,
		log:     log,
	}
	v.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "identity-verify",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, errTransientVerify)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("session.verify.breaker", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return v
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open").
func (v *HTTPVerifier) BreakerState() string {
	return v.breaker.State().String()
}

// Verify implements Verifier.
func (v *HTTPVerifier) Verify(ctx context.Context, token string) Result {
	if strings.TrimSpace(token) == "" {
		return Transient("empty_token", ErrEmptyToken)
	}

	out, err := v.breaker.Execute(func() (interface{}, error) {
		res := v.call(ctx, token)
		if res.Outcome == OutcomeTransient {
			return res, errTransientVerify
		}
		return res, nil
	})
	if res, ok := out.(Result); ok {
		return res
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Transient("breaker_open", err)
	}
	return Transient("unknown", err)
}

func (v *HTTPVerifier) call(ctx context.Context, token string) Result {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return Transient("bad_request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Transient("timeout", err)
		}
		return Transient("network", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyBody))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Transient("timeout", err)
		}
		return Transient("read_body", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		res := Rejected(fmt.Sprintf("status_%d", resp.StatusCode))
		res.Err = statusError(resp.StatusCode, body)
		return res

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return decodeVerifyBody(body)

	default:
		return Transient(fmt.Sprintf("status_%d", resp.StatusCode), statusError(resp.StatusCode, body))
	}
}

type verifyUser struct {
	ID          *string `json:"id"`
	Role        *string `json:"role"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DisplayName *string `json:"display_name"`
	Verified    *bool   `json:"verified"`
}

type verifyResponse struct {
	Valid *bool       `json:"valid"`
	User  *verifyUser `json:"user"`
	verifyUser
}

// decodeVerifyBody maps a 2xx body to a result. An empty body confirms
// without attributes; an undecodable one is transient.
func decodeVerifyBody(body []byte) Result {
	if len(bytes.TrimSpace(body)) == 0 {
		return Confirmed(ProfilePatch{})
	}

	var vr verifyResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return Transient("malformed_body", err)
	}
	if vr.Valid != nil && !*vr.Valid {
		return Rejected("invalid_token")
	}

	u := vr.verifyUser
	if vr.User != nil {
		u = *vr.User
	}
	return Confirmed(u.patch())
}

func (u verifyUser) patch() ProfilePatch {
	p := ProfilePatch{
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName,
		Verified:    u.Verified,
	}
	if u.ID != nil && *u.ID != "" {
		p.SubjectID = u.ID
	}
	if u.Role != nil {
		if r, ok := ParseRole(*u.Role); ok {
			p.Role = &r
		}
	}
	return p
}

func statusError(status int, body []byte) *StatusError {
	se := &StatusError{StatusCode: status}

	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		se.Code = env.Error.Code
	}
	return se
}
