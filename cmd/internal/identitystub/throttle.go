package identitystub

import (
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LockoutTier locks an account for Duration after its most recent failure
// once Threshold failures are on record.
type LockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// loginThrottle keeps failed login attempts in memory, keyed by client IP
// and by normalized email.
type loginThrottle struct {
	ipMax      int
	ipWindow   time.Duration
	userWindow time.Duration
	tiers      []LockoutTier

	mu      sync.Mutex
	byIP    map[string][]time.Time
	byEmail map[string][]time.Time
}

func newLoginThrottle(cfg Config) *loginThrottle {
	tiers := slices.Clone(cfg.Lockout)
	slices.SortFunc(tiers, func(a, b LockoutTier) int { return b.Threshold - a.Threshold })
	return &loginThrottle{
		ipMax:      cfg.LoginIPMax,
		ipWindow:   cfg.LoginIPWindow,
		userWindow: cfg.LoginUserWindow,
		tiers:      tiers,
		byIP:       make(map[string][]time.Time),
		byEmail:    make(map[string][]time.Time),
	}
}

// check reports whether a login from ip for email must be refused, and for how long.
func (t *loginThrottle) check(ip, email string, now time.Time) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ip != "" && t.ipMax > 0 {
		failures := prune(t.byIP, ip, now.Add(-t.ipWindow))
		if blocked, retry := evaluateWindowThrottle(now, failures, t.ipMax, t.ipWindow); blocked {
			return true, retry
		}
	}
	if email != "" {
		return evaluateProgressiveLockout(now, prune(t.byEmail, email, now.Add(-t.userWindow)), t.tiers)
	}
	return false, 0
}

func (t *loginThrottle) recordFailure(ip, email string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ip != "" {
		t.byIP[ip] = append(prune(t.byIP, ip, now.Add(-t.ipWindow)), now)
	}
	if email != "" {
		t.byEmail[email] = append(prune(t.byEmail, email, now.Add(-t.userWindow)), now)
	}
}

// reset forgets an account's failures after a successful login.
func (t *loginThrottle) reset(email string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byEmail, email)
}

// prune drops failures at or before cut and removes the key once none remain.
func prune(m map[string][]time.Time, key string, cut time.Time) []time.Time {
	ts := m[key]
	out := ts[:0]
	for _, v := range ts {
		if v.After(cut) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		delete(m, key)
		return nil
	}
	m[key] = out
	return out
}

// evaluateWindowThrottle blocks once limit failures fall inside window; the
// block lifts when the oldest of them leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	var inWindow int
	var oldest time.Time
	for _, f := range failures {
		if !f.After(cut) {
			continue
		}
		inWindow++
		if oldest.IsZero() || f.Before(oldest) {
			oldest = f
		}
	}
	if inWindow < limit {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

// evaluateProgressiveLockout applies the first tier (highest threshold
// first) whose lockout has not yet expired.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []LockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}
	latest := failures[0]
	for _, f := range failures[1:] {
		if f.After(latest) {
			latest = f
		}
	}
	for _, tier := range tiers {
		if tier.Threshold <= 0 || len(failures) < tier.Threshold {
			continue
		}
		if retry := latest.Add(tier.Duration).Sub(now); retry > 0 {
			return true, retry
		}
	}
	return false, 0
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

// clientIP uses the connection address only; the stub is never behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return ""
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
