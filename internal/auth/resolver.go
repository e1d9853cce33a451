package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"bizdesk.org/internal/obs"
)

// PermissionLookup resolves grants from the permission service.
type PermissionLookup interface {
	CheckPermission(ctx context.Context, userID, code string) (bool, error)
	RolePermissions(ctx context.Context, role string) ([]string, error)
}

const (
	defaultPermissionTTL  = 300 * time.Second
	defaultPermissionSize = 8192

	// Composite cache key separator; NUL cannot appear in ids or codes.
	permKeySep = "\x00"
)

// Resolver decides whether a user holds a permission, combining the admin
// bypass, cached grants and the remote permission service. Bad input is a
// loud typed error, never a silent denial, so callers cannot mistake a
// programming bug for an authorization decision.
type Resolver struct {
	lookup PermissionLookup
	cache  *expirable.LRU[string, bool]
	log    *zap.Logger
}

// NewResolver constructs a Resolver. TTL and size fall back to defaults
// when non-positive.
func NewResolver(lookup PermissionLookup, ttl time.Duration, size int, log *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = defaultPermissionTTL
	}
	if size <= 0 {
		size = defaultPermissionSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		lookup: lookup,
		cache:  expirable.NewLRU[string, bool](size, nil, ttl),
		log:    log,
	}
}

// HasPermission reports whether the user holds the permission code.
// Resolution order: admin bypass, cache, remote service. An unreachable
// permission service denies, with the wrapped error returned for logging.
func (r *Resolver) HasPermission(ctx context.Context, userID, role, code string) (bool, error) {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" {
		return false, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if code == "" {
		return false, fmt.Errorf("%w: permission code is required", ErrInvalidInput)
	}
	if role == RoleAdmin {
		return true, nil
	}

	key := userID + permKeySep + code
	if granted, ok := r.cache.Get(key); ok {
		obs.CacheHit("permission")
		return granted, nil
	}
	obs.CacheMiss("permission")

	if r.lookup == nil {
		return false, fmt.Errorf("%w: no permission service configured", ErrLookupFailed)
	}
	granted, err := r.lookup.CheckPermission(ctx, userID, code)
	if err != nil {
		return false, fmt.Errorf("%w: check %q for user %s: %v", ErrLookupFailed, code, userID, err)
	}
	r.cache.Add(key, granted)
	return granted, nil
}

// HasAnyPermission reports whether the user holds at least one of the
// codes, short-circuiting on the first grant. Codes that individually fail
// to resolve do not abort the scan; if nothing resolves to granted, the
// aggregated diagnostics come back with the denial.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID, role string, codes []string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len(codes) == 0 {
		return false, fmt.Errorf("%w: at least one permission code is required", ErrInvalidInput)
	}
	if role == RoleAdmin {
		return true, nil
	}

	var errs []error
	for _, code := range codes {
		granted, err := r.HasPermission(ctx, userID, role, code)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if granted {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}

// IsPermissionIncludedInRole reports whether the code belongs to the role's
// default permission set. ADMIN short-circuits true.
func (r *Resolver) IsPermissionIncludedInRole(ctx context.Context, code, role string) (bool, error) {
	code = strings.TrimSpace(code)
	role = strings.TrimSpace(role)
	if code == "" || role == "" {
		return false, fmt.Errorf("%w: permission code and role are required", ErrInvalidInput)
	}
	if role == RoleAdmin {
		return true, nil
	}
	if r.lookup == nil {
		return false, fmt.Errorf("%w: no permission service configured", ErrLookupFailed)
	}
	defaults, err := r.lookup.RolePermissions(ctx, role)
	if err != nil {
		return false, fmt.Errorf("%w: role defaults for %s: %v", ErrLookupFailed, role, err)
	}
	for _, candidate := range defaults {
		if candidate == code {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops every cached entry for the user. Must be called after
// any operation that changes the user's role or explicit grants.
func (r *Resolver) Invalidate(userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return
	}
	prefix := userID + permKeySep
	for _, key := range r.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			r.cache.Remove(key)
		}
	}
}

// Clear drops all cached permission decisions.
func (r *Resolver) Clear() {
	r.cache.Purge()
}
