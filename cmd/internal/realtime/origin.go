package realtime

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	host := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		switch {
		case a == "*":
			return nil
		case strings.EqualFold(origin, a):
			return nil
		case host != "" && host == originHostOnly(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// originHostOnly lowercases the host of a URL or host[:port] string.
func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return strings.ToLower(s)
}

// originPatterns turns the allowlist into websocket.AcceptOptions patterns
// so the library's own same-host check agrees with enforceOrigin.
func originPatterns(allowed []string) []string {
	var out []string
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		out = append(out, h, h+":*")
	}
	slices.Sort(out)
	return slices.Compact(out)
}
