package auth

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"bizdesk.org/internal/obs"
)

// UserLookup resolves a user id to its current directory snapshot. The
// boolean reports whether the user exists; transport problems are errors.
type UserLookup interface {
	VerifyUser(ctx context.Context, userID string) (UserRecord, bool, error)
}

const (
	defaultVerificationTTL  = 300 * time.Second
	defaultVerificationSize = 4096
)

type verification struct {
	valid    bool
	snapshot UserRecord
}

// VerificationCache answers "is this subject still usable" without hitting
// the directory on every request. An entry is trusted for the TTL and then
// re-fetched. Concurrent misses for the same user may each call the lookup;
// a few duplicate idempotent lookups under load are cheaper than
// serializing the hot path.
type VerificationCache struct {
	lookup  UserLookup
	entries *expirable.LRU[string, verification]
	log     *zap.Logger
}

// NewVerificationCache constructs the cache. TTL and size fall back to
// defaults when non-positive.
func NewVerificationCache(lookup UserLookup, ttl time.Duration, size int, log *zap.Logger) *VerificationCache {
	if ttl <= 0 {
		ttl = defaultVerificationTTL
	}
	if size <= 0 {
		size = defaultVerificationSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VerificationCache{
		lookup:  lookup,
		entries: expirable.NewLRU[string, verification](size, nil, ttl),
		log:     log,
	}
}

// IsValid reports whether the user still exists with a usable status. A
// lookup that cannot complete counts as invalid: a user we cannot verify
// must not be treated as authenticated.
func (c *VerificationCache) IsValid(ctx context.Context, userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	if entry, ok := c.entries.Get(userID); ok {
		obs.CacheHit("verification")
		return entry.valid
	}
	obs.CacheMiss("verification")

	if c.lookup == nil {
		c.log.Warn("user verification skipped: no lookup configured", zap.String("user_id", userID))
		return false
	}
	record, found, err := c.lookup.VerifyUser(ctx, userID)
	if err != nil {
		// Fail closed, but do not cache the failure: the next request
		// should retry instead of extending the outage for a full TTL.
		c.log.Warn("user verification lookup failed",
			zap.String("user_id", userID), zap.Error(err))
		return false
	}
	entry := verification{valid: found && record.Usable(), snapshot: record}
	c.entries.Add(userID, entry)
	return entry.valid
}

// Snapshot returns the cached directory record for the user, if any.
func (c *VerificationCache) Snapshot(userID string) (UserRecord, bool) {
	entry, ok := c.entries.Get(strings.TrimSpace(userID))
	if !ok || !entry.valid {
		return UserRecord{}, false
	}
	return entry.snapshot, true
}

// Invalidate drops the entry for one user, forcing a re-check on next use.
func (c *VerificationCache) Invalidate(userID string) {
	c.entries.Remove(strings.TrimSpace(userID))
}

// Clear drops all entries; used for test isolation and the operational
// force-re-verification signal.
func (c *VerificationCache) Clear() {
	c.entries.Purge()
}
