package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/users/abc/permissions":         "/v1/users/:id/permissions",
		"/v1/users/abc/role":                "/v1/users/:id/role",
		"/internal/roles/MANAGER/permissions": "/internal/roles/:role/permissions",
		"/v1/auth/login":                    "/v1/auth/login",
		"/internal/users/verify?userId=7":   "/internal/users/verify",
		"/v1/me":                            "/v1/me",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
