package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"bizdesk.org/internal/directory"
)

// handleInternalVerify answers the liveness question for sibling services.
// The result is emitted both as headers (the fast path their clients read
// first) and as the JSON envelope.
func (a *API) handleInternalVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory unavailable")
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "userId is required")
		return
	}

	record, found, err := a.store.VerifyUser(r.Context(), userID)
	if err != nil {
		a.log.Error("user verify lookup failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "verification failed")
		return
	}
	if !found {
		w.Header().Set(directory.VerifiedHeader, "false")
		writeError(w, r, http.StatusNotFound, "User not found")
		return
	}

	w.Header().Set(directory.VerifiedHeader, "true")
	w.Header().Set(directory.UserIDHeader, record.ID)
	w.Header().Set(directory.RoleHeader, record.Role)
	w.Header().Set(directory.StatusHeader, record.Status)
	writeSuccess(w, http.StatusOK, record)
}

func (a *API) handleInternalPermissionCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory unavailable")
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if userID == "" || code == "" {
		writeError(w, r, http.StatusBadRequest, "userId and code are required")
		return
	}

	granted, err := a.store.CheckPermission(r.Context(), userID, code)
	if err != nil {
		a.log.Error("permission check failed",
			zap.String("user_id", userID), zap.String("code", code), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "permission check failed")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"granted": granted})
}

func (a *API) handleInternalRolePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/internal/roles/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	role := parts[0]

	permissions, err := a.store.RolePermissions(r.Context(), role)
	if err != nil {
		a.log.Error("role permissions lookup failed", zap.String("role", role), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "role lookup failed")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"permissions": permissions})
}
