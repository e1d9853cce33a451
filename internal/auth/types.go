package auth

import (
	"net/http"
	"strings"
)

const (
	RoleAdmin    = "ADMIN"
	RoleManager  = "MANAGER"
	RoleEmployee = "EMPLOYEE"
)

const (
	UserStatusActive    = "ACTIVE"
	UserStatusSuspended = "SUSPENDED"
	UserStatusDeleted   = "DELETED"
)

// Identity is reconstructed per request from verified token claims. It is
// never persisted; only the user id is guaranteed to be present.
type Identity struct {
	UserID string
	Role   string
	Name   string
	Email  string
}

// UserRecord is the directory snapshot returned by the user-lookup
// collaborator for liveness checks.
type UserRecord struct {
	ID     string `json:"id"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// Usable reports whether the record describes a subject that may still
// authenticate: it exists and its status has not been suspended or deleted.
func (u UserRecord) Usable() bool {
	return strings.TrimSpace(u.ID) != "" && u.Status == UserStatusActive
}

// Gate authenticates an inbound request and yields the caller identity.
// Implementations are selected at composition time: the edge gate when a
// verification backend is configured, DenyAllGate otherwise.
type Gate interface {
	Authenticate(r *http.Request) (Identity, error)
}

// DenyAllGate refuses every request. It is wired where no verification
// capability exists, so that a misconfigured deployment fails closed
// instead of letting unverified traffic through.
type DenyAllGate struct{}

func (DenyAllGate) Authenticate(*http.Request) (Identity, error) {
	return Identity{}, ErrUnauthorized
}
