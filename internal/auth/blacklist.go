package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Expired entries are pruned on every Nth access in addition to the timer
// sweep, so memory stays bounded even without the background goroutine.
const sweepEveryN = 64

const defaultMaxTokenTTL = 24 * time.Hour

// Blacklist tracks revoked tokens and revoked users in process-local memory.
// Entries stay authoritative until the underlying token would have expired
// naturally; after that they may be dropped, since expiry checking rejects
// the token anyway. Losing the blacklist on restart is an accepted
// trade-off: revoked-but-unexpired tokens regain validity until they expire.
type Blacklist struct {
	mu       sync.Mutex
	tokens   map[string]time.Time // token hash -> prune deadline
	users    map[string]time.Time // user id -> revoked-at
	accesses uint64

	now         func() time.Time
	maxTokenTTL time.Duration
}

// BlacklistOption configures Blacklist behavior.
type BlacklistOption func(*Blacklist)

// BlacklistClock overrides the time source (useful for tests).
func BlacklistClock(fn func() time.Time) BlacklistOption {
	return func(b *Blacklist) {
		if fn != nil {
			b.now = fn
		}
	}
}

// BlacklistMaxTokenTTL bounds how long user-level revocation entries are
// retained: once every token issued before the revocation has expired, the
// entry no longer protects anything.
func BlacklistMaxTokenTTL(ttl time.Duration) BlacklistOption {
	return func(b *Blacklist) {
		if ttl > 0 {
			b.maxTokenTTL = ttl
		}
	}
}

// NewBlacklist constructs an empty revocation store.
func NewBlacklist(opts ...BlacklistOption) *Blacklist {
	b := &Blacklist{
		tokens:      make(map[string]time.Time),
		users:       make(map[string]time.Time),
		now:         time.Now,
		maxTokenTTL: defaultMaxTokenTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RevokeToken marks a specific token as revoked until its natural expiry.
// Idempotent. The raw token is never stored, only its hash.
func (b *Blacklist) RevokeToken(raw string, expiresAt time.Time) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeSweepLocked()
	// The entry must outlive the grace window, during which the token is
	// still accepted by expiry checking.
	b.tokens[hashToken(raw)] = expiresAt.Add(ExpiryGrace)
}

// RevokeUser marks all tokens issued to the user before this moment as
// revoked ("log out everywhere"). Idempotent.
func (b *Blacklist) RevokeUser(userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeSweepLocked()
	b.users[userID] = b.now()
}

// IsRevoked reports whether the token is revoked, either individually or
// because its subject was revoked after the token was issued. Claims may be
// nil when the token never verified; only the per-token set applies then.
func (b *Blacklist) IsRevoked(raw string, claims *Claims) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeSweepLocked()

	if deadline, ok := b.tokens[hashToken(strings.TrimSpace(raw))]; ok && b.now().Before(deadline) {
		return true
	}
	if claims == nil || claims.IssuedAt == nil {
		return false
	}
	revokedAt, ok := b.users[strings.TrimSpace(claims.Subject)]
	if !ok {
		return false
	}
	return claims.IssuedAt.Time.Before(revokedAt)
}

// Sweep drops entries whose associated token would already have expired.
func (b *Blacklist) Sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweepLocked()
}

// Len returns the number of live entries. Intended for tests and metrics.
func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tokens) + len(b.users)
}

// Clear drops all entries; used for test isolation and the operational
// force-re-verification signal.
func (b *Blacklist) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]time.Time)
	b.users = make(map[string]time.Time)
}

// Run sweeps on a timer until the context is cancelled.
func (b *Blacklist) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}

func (b *Blacklist) maybeSweepLocked() {
	b.accesses++
	if b.accesses%sweepEveryN == 0 {
		b.sweepLocked()
	}
}

func (b *Blacklist) sweepLocked() {
	now := b.now()
	for hash, deadline := range b.tokens {
		if !now.Before(deadline) {
			delete(b.tokens, hash)
		}
	}
	for userID, revokedAt := range b.users {
		if now.Sub(revokedAt) > b.maxTokenTTL+ExpiryGrace {
			delete(b.users, userID)
		}
	}
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
