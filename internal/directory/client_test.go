package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientVerifyUserEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/users/verify" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("userId"); got != "user-1" {
			t.Fatalf("unexpected userId %q", got)
		}
		if got := r.Header.Get(SkipHeader); got != "true" {
			t.Fatalf("expected %s header, got %q", SkipHeader, got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"user-1","role":"MANAGER","status":"ACTIVE"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	record, found, err := c.VerifyUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !found || record.Role != "MANAGER" || record.Status != "ACTIVE" {
		t.Fatalf("unexpected record %+v found=%v", record, found)
	}
}

func TestClientVerifyUserHeaderFastPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(VerifiedHeader, "true")
		w.Header().Set(UserIDHeader, "user-1")
		w.Header().Set(RoleHeader, "EMPLOYEE")
		w.Header().Set(StatusHeader, "ACTIVE")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	record, found, err := c.VerifyUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !found || record.ID != "user-1" || record.Role != "EMPLOYEE" {
		t.Fatalf("unexpected record %+v found=%v", record, found)
	}
}

func TestClientVerifyUserNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"success":false,"message":"User not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, found, err := c.VerifyUser(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("not-found must not be an error, got %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

func TestClientVerifyUserServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, _, err := c.VerifyUser(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestClientCheckPermission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/permissions/check" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("userId") != "user-1" || q.Get("code") != "customers.view" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"granted":true}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	granted, err := c.CheckPermission(context.Background(), "user-1", "customers.view")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !granted {
		t.Fatal("expected grant")
	}
}

func TestClientRolePermissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/roles/EMPLOYEE/permissions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"permissions":["customers.view","requests.view"]}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	perms, err := c.RolePermissions(context.Background(), "EMPLOYEE")
	if err != nil {
		t.Fatalf("role permissions: %v", err)
	}
	if len(perms) != 2 || perms[0] != "customers.view" {
		t.Fatalf("unexpected permissions %v", perms)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("   "); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
