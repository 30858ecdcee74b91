package identitystub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"jobmarket/cmd/identity"
	"jobmarket/cmd/identity/ids"
	"jobmarket/cmd/security/token"
)

// Handler serves the identity contract consumed by the session agent:
//
//	POST /auth/login   {email, password} -> {token, expires_at, user}
//	GET  /auth/verify  Bearer            -> {valid, user} or 401
//	POST /auth/logout  Bearer            -> 204, token revoked
type Handler struct {
	log      *slog.Logger
	cfg      Config
	dir      *identity.MemoryDirectory
	tokens   *TokenManager
	throttle *loginThrottle
	now      func() time.Time

	// Dummy hash for timing-resistant login checks.
	dummyHash string

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, dir *identity.MemoryDirectory, tokens *TokenManager) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		log:      log,
		cfg:      cfg,
		dir:      dir,
		tokens:   tokens,
		throttle: newLoginThrottle(cfg),
		now:      func() time.Time { return time.Now().UTC() },
		revoked:  make(map[string]time.Time),
	}
	if hash, err := dir.HashPassword("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}
	return h
}

// Register wires the identity routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("GET /auth/verify", h.handleVerify)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Verified    bool   `json:"verified"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

type verifyResponse struct {
	Valid bool         `json:"valid"`
	User  userResponse `json:"user"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName,
		Verified:    u.Verified,
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := identity.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ip := clientIP(r)
	if blocked, retry := h.throttle.check(ip, email, h.now()); blocked {
		h.log.Info("identity.login.throttled", "ip", ip, "retry_after", retry)
		writeRateLimited(w, retry)
		return
	}

	ctx := r.Context()
	u, err := h.dir.GetByEmail(ctx, email)
	if err != nil {
		if h.dummyHash != "" {
			_, _ = h.dir.VerifyPassword(identity.User{PasswordHash: h.dummyHash}, req.Password)
		}
		h.throttle.recordFailure(ip, email, h.now())
		h.log.Info("identity.login.failed", "reason", "not_found")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	ok, err := h.dir.VerifyPassword(u, req.Password)
	if err != nil || !ok {
		h.throttle.recordFailure(ip, email, h.now())
		h.log.Info("identity.login.failed", "user_id", u.ID, "reason", "bad_password")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}
	h.throttle.reset(email)
	if u.Disabled {
		h.log.Info("identity.login.failed", "user_id", u.ID, "reason", "disabled")
		writeError(w, http.StatusForbidden, "account_disabled", "account disabled")
		return
	}

	now := h.now()
	tokenID, err := ids.NewULID(now)
	if err != nil {
		h.log.Error("identity.login.token_id.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	tok, exp, err := h.tokens.Issue(u.ID, tokenID, now)
	if err != nil {
		h.log.Error("identity.login.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("identity.login.ok", "user_id", u.ID, "role", u.Role, "token_fp", token.Fingerprint(tok))
	writeJSON(w, http.StatusOK, loginResponse{Token: tok, ExpiresAt: exp, User: toUserResponse(u)})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Valid: true, User: toUserResponse(u)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	u, claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	h.revoked[claims.TokenID] = claims.ExpiresAt
	h.pruneRevokedLocked(h.now())
	h.mu.Unlock()

	h.log.Info("identity.logout.ok", "user_id", u.ID, "token_id", claims.TokenID)
	w.WriteHeader(http.StatusNoContent)
}

// authenticate resolves the bearer token to an active user, writing 401 on failure.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (identity.User, Claims, bool) {
	raw := bearerToken(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return identity.User{}, Claims{}, false
	}

	claims, err := h.tokens.Verify(raw, h.now())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
		return identity.User{}, Claims{}, false
	}

	h.mu.Lock()
	_, revoked := h.revoked[claims.TokenID]
	h.mu.Unlock()
	if revoked {
		writeError(w, http.StatusUnauthorized, "token_revoked", "token revoked")
		return identity.User{}, Claims{}, false
	}

	u, err := h.dir.GetByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "unknown subject")
		return identity.User{}, Claims{}, false
	}
	if u.Disabled {
		writeError(w, http.StatusUnauthorized, "account_disabled", "account disabled")
		return identity.User{}, Claims{}, false
	}
	return u, claims, true
}

func (h *Handler) pruneRevokedLocked(now time.Time) {
	for id, exp := range h.revoked {
		if now.After(exp) {
			delete(h.revoked, id)
		}
	}
}
