package obs

import "strings"

// CanonicalPath collapses path parameters so metrics cardinality stays
// bounded: one series per route, not per user or role.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[0] == "v1" && parts[1] == "users":
		parts[2] = ":id"
	case len(parts) >= 3 && parts[0] == "internal" && parts[1] == "roles":
		parts[2] = ":role"
	default:
		return path
	}
	return "/" + strings.Join(parts, "/")
}
