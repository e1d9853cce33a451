package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"bizdesk.org/internal/audit"
	"bizdesk.org/internal/auth"
)

type updatePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeSuccess(w, http.StatusOK, userResponse{
		ID:    id.UserID,
		Role:  id.Role,
		Name:  id.Name,
		Email: id.Email,
	})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]
	switch parts[1] {
	case "permissions":
		a.handleUserPermissions(w, r, userID)
	case "role":
		a.handleUserRole(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermission(w, r, auth.PermUsersManage) {
		return
	}
	var req updatePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.SetUserPermissions(r.Context(), userID, req.Permissions); err != nil {
		handleStoreError(w, r, err)
		return
	}
	// Cached decisions for this user are stale the moment the grants change.
	a.resolver.Invalidate(userID)

	_ = audit.LogEvent(r.Context(), "users.permissions.update", map[string]any{
		"target_user_id": userID,
		"count":          len(req.Permissions),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserRole(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermission(w, r, auth.PermUsersManage) {
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := strings.TrimSpace(req.Role)
	switch role {
	case auth.RoleAdmin, auth.RoleManager, auth.RoleEmployee:
	default:
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	if err := a.store.SetUserRole(r.Context(), userID, role); err != nil {
		handleStoreError(w, r, err)
		return
	}
	// A role change affects both permission decisions and the verification
	// snapshot the gate consults.
	a.resolver.Invalidate(userID)
	if a.verifier != nil {
		a.verifier.Invalidate(userID)
	}

	_ = audit.LogEvent(r.Context(), "users.role.update", map[string]any{
		"target_user_id": userID,
		"role":           role,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "directory operation failed")
	}
}
