package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"bizdesk.org/internal/audit"
	"bizdesk.org/internal/auth"
	"bizdesk.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

type userResponse struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, "login unavailable")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.store.FindUserByEmail(r.Context(), email)
	if err != nil {
		// Unknown account and wrong password read identically.
		writeError(w, r, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if user.Status != auth.UserStatusActive {
		writeError(w, r, http.StatusForbidden, "Account is not active")
		return
	}

	id := auth.Identity{UserID: user.ID, Role: user.Role, Name: user.Name, Email: user.Email}
	token, expiresAt, err := a.codec.Sign(id, a.cfg.Auth.AccessTTL)
	if err != nil {
		a.log.Error("token issuance failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	a.setAuthCookies(w, r, token, expiresAt)
	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), id), "auth.login", map[string]any{
		"email":      email,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeSuccess(w, http.StatusOK, sessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      userResponse{ID: user.ID, Role: user.Role, Name: user.Name, Email: user.Email},
	})
}

// handleLogout revokes the presented token and, with ?everywhere=true, every
// token issued to the user so far. Cookies are cleared unconditionally so a
// client with a garbled token still ends up logged out.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	raw := extractToken(r, a.cfg.Auth.AccessCookie)
	if raw != "" {
		if claims, err := a.codec.Verify(raw); err == nil {
			a.blacklist.RevokeToken(raw, claims.ExpiresAt.Time)
			obs.Revocation("token")

			fields := map[string]any{}
			ctx := auth.ContextWithIdentity(r.Context(), claims.Identity())
			if r.URL.Query().Get("everywhere") == "true" {
				a.blacklist.RevokeUser(claims.Subject)
				obs.Revocation("user")
				if a.verifier != nil {
					a.verifier.Invalidate(claims.Subject)
				}
				fields["everywhere"] = true
			}
			_ = audit.LogEvent(ctx, "auth.logout", fields)
		}
	}

	a.clearAuthCookies(w, r)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true})
}

type validateRequest struct {
	Token string `json:"token"`
}

// handleValidate runs the full verification pipeline on a token supplied by
// a sibling service or the frontend, without requiring the request itself to
// be authenticated.
func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	raw := extractToken(r, a.cfg.Auth.AccessCookie)
	if raw == "" {
		var req validateRequest
		if err := decodeJSON(w, r, &req); err == nil {
			raw = strings.TrimSpace(req.Token)
		}
	}
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return
	}

	edge, ok := a.gate.(*EdgeGate)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	id, err := edge.AuthenticateToken(r.Context(), raw)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"valid": true,
		"user":  userResponse{ID: id.UserID, Role: id.Role, Name: id.Name, Email: id.Email},
	})
}

// --- cookies ---

func (a *API) setAuthCookies(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	secure := r.TLS != nil
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.Auth.AccessCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.Auth.RefreshCookie,
		Value:    newOpaqueToken(),
		Path:     "/",
		Expires:  time.Now().Add(a.cfg.Auth.RefreshTTL),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearAuthCookies(w http.ResponseWriter, r *http.Request) {
	secure := r.TLS != nil
	for _, name := range []string{a.cfg.Auth.AccessCookie, a.cfg.Auth.RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func newOpaqueToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
