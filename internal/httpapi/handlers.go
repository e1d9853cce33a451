package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"bizdesk.org/internal/auth"
	"bizdesk.org/internal/config"
	"bizdesk.org/internal/obs"
	"bizdesk.org/internal/store/pg"
)

// ReadyProbe is the readiness check (pings the directory database when one
// is configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the collaborators the HTTP layer is composed from. Store is nil
// when the service runs against a remote directory; the handlers that need
// local writes answer 503 in that mode.
type Deps struct {
	Codec     *auth.Codec
	Blacklist *auth.Blacklist
	Verifier  *auth.VerificationCache
	Resolver  *auth.Resolver
	Store     *pg.Store
	Gate      auth.Gate
	Log       *zap.Logger
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	cfg       *config.Config
	codec     *auth.Codec
	blacklist *auth.Blacklist
	verifier  *auth.VerificationCache
	resolver  *auth.Resolver
	store     *pg.Store
	gate      auth.Gate
	log       *zap.Logger
}

func New(cfg *config.Config, deps Deps, version string) *API {
	a := &API{
		mux:       http.NewServeMux(),
		version:   version,
		cfg:       cfg,
		codec:     deps.Codec,
		blacklist: deps.Blacklist,
		verifier:  deps.Verifier,
		resolver:  deps.Resolver,
		store:     deps.Store,
		gate:      deps.Gate,
		log:       deps.Log,
	}
	if a.gate == nil {
		a.gate = auth.DenyAllGate{}
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.store != nil {
		a.readyProbe = ReadyProbe{DB: a.store.DB()}
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.Handle("/v1/auth/validate",
		RateLimit(http.HandlerFunc(a.handleValidate), cfg.Rate.ValidateWindow, cfg.Rate.ValidateMax))

	// users
	a.mux.HandleFunc("/v1/me", a.handleMe)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// directory endpoints consumed by sibling services
	a.mux.HandleFunc("/internal/users/verify", a.handleInternalVerify)
	a.mux.HandleFunc("/internal/permissions/check", a.handleInternalPermissionCheck)
	a.mux.HandleFunc("/internal/roles/", a.handleInternalRolePermissions)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler composes the middleware chain around the mux. The gate runs
// innermost so that rejected requests still show up in logs and metrics.
func (a *API) Handler() http.Handler {
	h := a.withGate(a.mux)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = LoggingJSON(h, a.log)
	h = RequestID(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "bizdesk-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "bizdesk-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// ensurePermission authorizes the current request for the permission code.
// A missing identity is 401, a denial or an unanswerable lookup is 403, and
// bad input is a server bug, not a client error.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, code string) bool {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Authentication required")
		return false
	}
	granted, err := a.resolver.HasPermission(r.Context(), id.UserID, id.Role, code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			writeError(w, r, http.StatusInternalServerError, "permission check failed")
			return false
		}
		a.log.Warn("permission lookup failed, denying",
			zap.String("user_id", id.UserID),
			zap.String("permission", code),
			zap.Error(err))
		writeError(w, r, http.StatusForbidden, fmt.Sprintf("Missing permission: %s", code))
		return false
	}
	if !granted {
		writeError(w, r, http.StatusForbidden, fmt.Sprintf("Missing permission: %s", code))
		return false
	}
	return true
}

// --- helpers ---

// envelope is the uniform response shape consumed by the frontend.
type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, message string) {
	env := envelope{Success: false, Message: message}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		env.Details = map[string]any{"request_id": rid}
	}
	writeJSON(w, code, env)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %s", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
