package httpapi

import (
	"context"
	"net/http"
	"strings"

	"bizdesk.org/internal/auth"
	"bizdesk.org/internal/directory"
	"bizdesk.org/internal/obs"
)

// Identity headers attached for downstream handlers once the gate admits a
// request. Inbound copies are always stripped first; only the gate may set
// them.
const (
	IdentityUserIDHeader = "X-Auth-User-Id"
	IdentityRoleHeader   = "X-Auth-User-Role"
	IdentityNameHeader   = "X-Auth-User-Name"
	IdentityEmailHeader  = "X-Auth-User-Email"
)

// TokenHeader is the fallback credential carrier for clients that cannot
// set an Authorization header.
const TokenHeader = "X-Auth-Token"

const (
	loginPath     = "/auth/login"
	dashboardPath = "/dashboard"
)

// EdgeGate is the production auth.Gate: token verification, revocation
// checking and subject liveness, in that order. Each stage only runs if the
// previous one passed, so a forged token never triggers a directory lookup.
type EdgeGate struct {
	codec        *auth.Codec
	blacklist    *auth.Blacklist
	verifier     *auth.VerificationCache
	accessCookie string
}

var _ auth.Gate = (*EdgeGate)(nil)

// NewEdgeGate wires the verification pipeline. Blacklist and verifier may be
// nil; the corresponding stage is then skipped.
func NewEdgeGate(codec *auth.Codec, blacklist *auth.Blacklist, verifier *auth.VerificationCache, accessCookie string) *EdgeGate {
	return &EdgeGate{
		codec:        codec,
		blacklist:    blacklist,
		verifier:     verifier,
		accessCookie: accessCookie,
	}
}

// Authenticate extracts the bearer token from the request and runs the
// verification pipeline on it.
func (g *EdgeGate) Authenticate(r *http.Request) (auth.Identity, error) {
	raw := extractToken(r, g.accessCookie)
	if raw == "" {
		obs.TokenValidation("missing")
		return auth.Identity{}, auth.ErrUnauthorized
	}
	return g.AuthenticateToken(r.Context(), raw)
}

// AuthenticateToken runs verify, revocation and liveness on an already
// extracted token.
func (g *EdgeGate) AuthenticateToken(ctx context.Context, raw string) (auth.Identity, error) {
	claims, err := g.codec.Verify(raw)
	if err != nil {
		obs.TokenValidation("invalid")
		return auth.Identity{}, err
	}
	if g.blacklist != nil && g.blacklist.IsRevoked(raw, claims) {
		obs.TokenValidation("revoked")
		return auth.Identity{}, auth.ErrUnauthorized
	}
	id := claims.Identity()
	if g.verifier != nil {
		if !g.verifier.IsValid(ctx, id.UserID) {
			obs.TokenValidation("stale")
			return auth.Identity{}, auth.ErrUnauthorized
		}
		// The directory is fresher than the token: a role change takes
		// effect without waiting for re-issuance.
		if record, ok := g.verifier.Snapshot(id.UserID); ok && record.Role != "" {
			id.Role = record.Role
		}
	}
	obs.TokenValidation("allowed")
	return id, nil
}

// withGate classifies each request and enforces authentication on protected
// routes. API routes get a 401 JSON envelope, page routes a redirect to the
// login page; sibling-service traffic and public routes pass through.
func (a *API) withGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripIdentityHeaders(r)

		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/internal/") &&
			r.Header.Get(directory.SkipHeader) == "true" {
			next.ServeHTTP(w, r)
			return
		}

		// Already-authenticated users do not see the auth pages again.
		if a.isAuthPage(r.URL.Path) {
			if id, err := a.gate.Authenticate(r); err == nil && id.UserID != "" {
				http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if a.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		id, err := a.gate.Authenticate(r)
		if err != nil {
			a.rejectUnauthenticated(w, r)
			return
		}

		attachIdentityHeaders(r, id)
		ctx := auth.ContextWithIdentity(r.Context(), id)
		if raw := extractToken(r, a.cfg.Auth.AccessCookie); raw != "" {
			ctx = auth.ContextWithToken(ctx, raw)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rejectUnauthenticated is the terminal state for requests the gate turned
// away. The message never says why: attackers probing with forged, revoked
// or expired tokens all read the same answer.
func (a *API) rejectUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if isAPIRoute(r) {
		writeError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	a.clearAuthCookies(w, r)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (a *API) isPublic(path string) bool {
	for _, p := range a.cfg.PublicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range a.cfg.PublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (a *API) isAuthPage(path string) bool {
	switch path {
	case "/auth/login", "/auth/register", "/auth/recover":
		return true
	}
	return false
}

func isAPIRoute(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/v1/") || strings.HasPrefix(r.URL.Path, "/internal/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// extractToken looks for the credential in precedence order: Authorization
// bearer, the X-Auth-Token header, then the access cookie.
func extractToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			return strings.TrimSpace(c.Value)
		}
	}
	return ""
}

func stripIdentityHeaders(r *http.Request) {
	r.Header.Del(IdentityUserIDHeader)
	r.Header.Del(IdentityRoleHeader)
	r.Header.Del(IdentityNameHeader)
	r.Header.Del(IdentityEmailHeader)
}

func attachIdentityHeaders(r *http.Request, id auth.Identity) {
	r.Header.Set(IdentityUserIDHeader, id.UserID)
	r.Header.Set(IdentityRoleHeader, id.Role)
	if id.Name != "" {
		r.Header.Set(IdentityNameHeader, id.Name)
	}
	if id.Email != "" {
		r.Header.Set(IdentityEmailHeader, id.Email)
	}
}
