package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"jobmarket/cmd/internal/auth/session"
	"jobmarket/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes carries what the HTTP handlers need. dbPool is nil unless the
// postgres record store is in use.
type routes struct {
	log          Logger
	mgr          *session.Manager
	ws           *realtime.Gateway
	gatherer     prometheus.Gatherer
	dbPool       *pgxpool.Pool
	maxBodyBytes int64
}

func registerHTTP(mux *http.ServeMux, rt *routes) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /session", rt.getSession)
	mux.HandleFunc("POST /session/login", rt.login)
	mux.HandleFunc("POST /session/logout", rt.logout)
	mux.HandleFunc("PATCH /session/profile", rt.updateProfile)
	mux.HandleFunc("GET /session/access", rt.access)
	mux.HandleFunc("POST /session/revalidate", rt.revalidate)

	mux.Handle("GET /ws", rt.ws)
}

func (rt *routes) readyz(w http.ResponseWriter, r *http.Request) {
	if rt.mgr.Loading() {
		http.Error(w, "session loading", http.StatusServiceUnavailable)
		return
	}
	if rt.dbPool != nil {
		if err := PingDB(r.Context(), rt.dbPool, 2*time.Second); err != nil {
			rt.log.Info("readyz.db.not_ready", "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

type sessionView struct {
	Phase         string           `json:"phase"`
	Authenticated bool             `json:"authenticated"`
	Loading       bool             `json:"loading"`
	Profile       *session.Profile `json:"profile"`
}

func (rt *routes) getSession(w http.ResponseWriter, _ *http.Request) {
	snap := rt.mgr.Snapshot()
	view := sessionView{
		Phase:         snap.Phase.String(),
		Authenticated: snap.Authenticated(),
		Loading:       rt.mgr.Loading(),
	}
	if view.Authenticated {
		view.Profile = snap.Profile
	}
	writeJSON(w, http.StatusOK, view)
}

type loginRequest struct {
	Token   string          `json:"token"`
	Profile session.Profile `json:"profile"`
}

func (rt *routes) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, rt.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := rt.mgr.Login(r.Context(), req.Token, req.Profile); err != nil {
		rt.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *routes) logout(w http.ResponseWriter, r *http.Request) {
	if err := rt.mgr.Logout(r.Context()); err != nil {
		rt.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *routes) updateProfile(w http.ResponseWriter, r *http.Request) {
	var patch session.ProfilePatch
	if err := decodeJSON(w, r, rt.maxBodyBytes, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if patch.Role != nil {
		role, ok := session.ParseRole(string(*patch.Role))
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_role", "unknown role")
			return
		}
		patch.Role = &role
	}

	p, err := rt.mgr.UpdateProfile(r.Context(), patch)
	if err != nil {
		rt.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (rt *routes) access(w http.ResponseWriter, r *http.Request) {
	c, ok := session.ParseCapability(r.URL.Query().Get("capability"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown_capability", "unknown capability")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"capability": string(c),
		"allowed":    rt.mgr.CanAccess(c),
	})
}

func (rt *routes) revalidate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": rt.mgr.Revalidate()})
}

func (rt *routes) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidLogin):
		writeError(w, http.StatusBadRequest, "invalid_login", "token and a known role are required")
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusUnauthorized, "no_session", "no active session")
	default:
		rt.log.Error("http.session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "session update failed")
	}
}

// ---- JSON helpers ----

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// decodeJSON reads exactly one JSON object of at most limit bytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if limit <= 0 {
		limit = 64 << 10
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("body exceeds %d bytes", limit)
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}
