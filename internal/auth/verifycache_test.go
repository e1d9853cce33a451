package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubUserLookup struct {
	calls  int
	record UserRecord
	found  bool
	err    error
}

func (s *stubUserLookup) VerifyUser(ctx context.Context, userID string) (UserRecord, bool, error) {
	s.calls++
	return s.record, s.found, s.err
}

func TestVerificationCacheCachesLookups(t *testing.T) {
	lookup := &stubUserLookup{
		record: UserRecord{ID: "user-1", Role: RoleEmployee, Status: UserStatusActive},
		found:  true,
	}
	cache := NewVerificationCache(lookup, time.Minute, 16, nil)

	for i := 0; i < 3; i++ {
		if !cache.IsValid(context.Background(), "user-1") {
			t.Fatalf("expected user valid on call %d", i+1)
		}
	}
	if lookup.calls != 1 {
		t.Fatalf("expected 1 lookup within TTL, got %d", lookup.calls)
	}
}

func TestVerificationCacheRejectsMissingUser(t *testing.T) {
	lookup := &stubUserLookup{found: false}
	cache := NewVerificationCache(lookup, time.Minute, 16, nil)

	if cache.IsValid(context.Background(), "ghost") {
		t.Fatal("expected missing user to be invalid")
	}
	// Negative results are cached too.
	cache.IsValid(context.Background(), "ghost")
	if lookup.calls != 1 {
		t.Fatalf("expected negative result cached, got %d lookups", lookup.calls)
	}
}

func TestVerificationCacheRejectsInactiveStatus(t *testing.T) {
	for _, status := range []string{UserStatusSuspended, UserStatusDeleted} {
		lookup := &stubUserLookup{
			record: UserRecord{ID: "user-1", Role: RoleManager, Status: status},
			found:  true,
		}
		cache := NewVerificationCache(lookup, time.Minute, 16, nil)
		if cache.IsValid(context.Background(), "user-1") {
			t.Fatalf("expected %s user to be invalid", status)
		}
	}
}

func TestVerificationCacheFailsClosedWithoutCachingErrors(t *testing.T) {
	lookup := &stubUserLookup{err: errors.New("directory down")}
	cache := NewVerificationCache(lookup, time.Minute, 16, nil)

	if cache.IsValid(context.Background(), "user-1") {
		t.Fatal("expected lookup failure to deny")
	}

	// Directory recovers: the next request must retry, not serve a cached
	// failure for the full TTL.
	lookup.err = nil
	lookup.record = UserRecord{ID: "user-1", Role: RoleEmployee, Status: UserStatusActive}
	lookup.found = true
	if !cache.IsValid(context.Background(), "user-1") {
		t.Fatal("expected recovery on next request")
	}
	if lookup.calls != 2 {
		t.Fatalf("expected 2 lookups, got %d", lookup.calls)
	}
}

func TestVerificationCacheInvalidate(t *testing.T) {
	lookup := &stubUserLookup{
		record: UserRecord{ID: "user-1", Role: RoleEmployee, Status: UserStatusActive},
		found:  true,
	}
	cache := NewVerificationCache(lookup, time.Minute, 16, nil)

	cache.IsValid(context.Background(), "user-1")
	cache.Invalidate("user-1")
	cache.IsValid(context.Background(), "user-1")
	if lookup.calls != 2 {
		t.Fatalf("expected re-fetch after Invalidate, got %d lookups", lookup.calls)
	}
}

func TestVerificationCacheSnapshot(t *testing.T) {
	lookup := &stubUserLookup{
		record: UserRecord{ID: "user-1", Role: RoleManager, Status: UserStatusActive},
		found:  true,
	}
	cache := NewVerificationCache(lookup, time.Minute, 16, nil)

	if _, ok := cache.Snapshot("user-1"); ok {
		t.Fatal("expected no snapshot before first lookup")
	}
	cache.IsValid(context.Background(), "user-1")
	record, ok := cache.Snapshot("user-1")
	if !ok || record.Role != RoleManager {
		t.Fatalf("expected cached snapshot, got %+v ok=%v", record, ok)
	}
}

func TestVerificationCacheBlankUserID(t *testing.T) {
	cache := NewVerificationCache(&stubUserLookup{}, time.Minute, 16, nil)
	if cache.IsValid(context.Background(), "   ") {
		t.Fatal("blank user id must be invalid")
	}
}
