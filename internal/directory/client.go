package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"bizdesk.org/internal/auth"
)

// Headers shared between the gate's skip rule and the verify endpoint's
// fast path. The gate must never re-intercept its own lookup traffic.
const (
	SkipHeader     = "X-Auth-Skip"
	UserIDHeader   = "X-User-Id"
	RoleHeader     = "X-User-Role"
	StatusHeader   = "X-User-Status"
	VerifiedHeader = "X-User-Verified"
)

const defaultTimeout = 3 * time.Second

// Client consumes the user-lookup and permission-lookup collaborator over
// HTTP. All calls are bounded by the client timeout; an unanswerable lookup
// is an error and callers fail closed.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

var _ auth.UserLookup = (*Client)(nil)
var _ auth.PermissionLookup = (*Client)(nil)

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout bounds every lookup call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying transport (useful for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient constructs a Client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("directory: base URL is required")
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envelope is the collaborator's JSON response shape.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// VerifyUser asks the directory whether the user still exists and with what
// role/status. The verification result may arrive either as response
// headers (fast path) or as the JSON envelope body; both encodings carry
// the same tuple. An explicit not-found is not an error.
func (c *Client) VerifyUser(ctx context.Context, userID string) (auth.UserRecord, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return auth.UserRecord{}, false, fmt.Errorf("directory: user id is required")
	}
	endpoint := c.baseURL + "/internal/users/verify?userId=" + url.QueryEscape(userID)
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return auth.UserRecord{}, false, err
	}
	defer drain(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return auth.UserRecord{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return auth.UserRecord{}, false, fmt.Errorf("directory: verify returned %d", resp.StatusCode)
	}

	// Header fast path.
	if verified := resp.Header.Get(VerifiedHeader); verified != "" {
		if verified != "true" {
			return auth.UserRecord{}, false, nil
		}
		record := auth.UserRecord{
			ID:     resp.Header.Get(UserIDHeader),
			Role:   resp.Header.Get(RoleHeader),
			Status: resp.Header.Get(StatusHeader),
		}
		if record.ID != "" {
			return record, true, nil
		}
		// Verified header without identity headers: fall through to body.
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return auth.UserRecord{}, false, fmt.Errorf("directory: decode verify response: %w", err)
	}
	if !env.Success {
		return auth.UserRecord{}, false, nil
	}
	var record auth.UserRecord
	if err := json.Unmarshal(env.Data, &record); err != nil {
		return auth.UserRecord{}, false, fmt.Errorf("directory: decode user record: %w", err)
	}
	if record.ID == "" {
		return auth.UserRecord{}, false, fmt.Errorf("directory: verify response missing user id")
	}
	return record, true, nil
}

type permissionCheck struct {
	Granted bool `json:"granted"`
}

// CheckPermission asks the permission service whether the user holds the
// explicit or role-derived grant.
func (c *Client) CheckPermission(ctx context.Context, userID, code string) (bool, error) {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return false, fmt.Errorf("directory: user id and permission code are required")
	}
	endpoint := c.baseURL + "/internal/permissions/check?userId=" + url.QueryEscape(userID) +
		"&code=" + url.QueryEscape(code)
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return false, err
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("directory: permission check returned %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return false, fmt.Errorf("directory: decode permission response: %w", err)
	}
	if !env.Success {
		return false, fmt.Errorf("directory: permission check failed: %s", env.Message)
	}
	var check permissionCheck
	if err := json.Unmarshal(env.Data, &check); err != nil {
		return false, fmt.Errorf("directory: decode permission grant: %w", err)
	}
	return check.Granted, nil
}

type rolePermissions struct {
	Permissions []string `json:"permissions"`
}

// RolePermissions returns the default permission codes for the role.
func (c *Client) RolePermissions(ctx context.Context, role string) ([]string, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, fmt.Errorf("directory: role is required")
	}
	endpoint := c.baseURL + "/internal/roles/" + url.PathEscape(role) + "/permissions"
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory: role permissions returned %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("directory: decode role response: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("directory: role permissions failed: %s", env.Message)
	}
	var defaults rolePermissions
	if err := json.Unmarshal(env.Data, &defaults); err != nil {
		return nil, fmt.Errorf("directory: decode role permissions: %w", err)
	}
	return defaults.Permissions, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(SkipHeader, "true")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	return resp, nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}
