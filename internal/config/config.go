package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Auth holds token issuance and verification settings.
type Auth struct {
	Secret        string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessCookie  string
	RefreshCookie string
}

// Cache holds TTLs and capacity for the verification and permission caches.
type Cache struct {
	UserTTL       time.Duration
	PermissionTTL time.Duration
	Size          int
}

// Rate bounds the token-validation endpoint per client IP.
type Rate struct {
	ValidateWindow time.Duration
	ValidateMax    int
}

// Directory points at the user/permission lookup collaborator when the
// service runs without its own database.
type Directory struct {
	BaseURL string
	Timeout time.Duration
}

// Config is the process configuration, loaded from BIZDESK_* environment
// variables with spec defaults.
type Config struct {
	ListenAddr string
	PGDSN      string

	Auth      Auth
	Cache     Cache
	Rate      Rate
	Directory Directory

	PublicPaths    []string
	PublicPrefixes []string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BIZDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("pg_dsn", "")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "bizdesk")
	v.SetDefault("auth.audience", "bizdesk-api")
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("auth.access_cookie", "bizdesk_access_token")
	v.SetDefault("auth.refresh_cookie", "bizdesk_refresh_token")

	v.SetDefault("cache.user_ttl", 300*time.Second)
	v.SetDefault("cache.permission_ttl", 300*time.Second)
	v.SetDefault("cache.size", 8192)

	v.SetDefault("rate.validate_window", 10*time.Second)
	v.SetDefault("rate.validate_max", 10)

	v.SetDefault("directory.base_url", "")
	v.SetDefault("directory.timeout", 3*time.Second)

	v.SetDefault("public_paths", defaultPublicPaths)
	v.SetDefault("public_prefixes", defaultPublicPrefixes)

	cfg := &Config{
		ListenAddr: v.GetString("listen_addr"),
		PGDSN:      v.GetString("pg_dsn"),
		Auth: Auth{
			Secret:        v.GetString("auth.secret"),
			Issuer:        v.GetString("auth.issuer"),
			Audience:      v.GetString("auth.audience"),
			AccessTTL:     v.GetDuration("auth.access_ttl"),
			RefreshTTL:    v.GetDuration("auth.refresh_ttl"),
			AccessCookie:  v.GetString("auth.access_cookie"),
			RefreshCookie: v.GetString("auth.refresh_cookie"),
		},
		Cache: Cache{
			UserTTL:       v.GetDuration("cache.user_ttl"),
			PermissionTTL: v.GetDuration("cache.permission_ttl"),
			Size:          v.GetInt("cache.size"),
		},
		Rate: Rate{
			ValidateWindow: v.GetDuration("rate.validate_window"),
			ValidateMax:    v.GetInt("rate.validate_max"),
		},
		Directory: Directory{
			BaseURL: v.GetString("directory.base_url"),
			Timeout: v.GetDuration("directory.timeout"),
		},
		PublicPaths:    v.GetStringSlice("public_paths"),
		PublicPrefixes: v.GetStringSlice("public_prefixes"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var defaultPublicPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/recover",
	"/v1/auth/login",
	"/v1/auth/logout",
	"/v1/auth/validate",
	"/v1/requests/public",
	"/v1/info",
	"/healthz",
	"/readyz",
	"/metrics",
}

var defaultPublicPrefixes = []string{
	"/assets/",
	"/static/",
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("config: auth secret is required (BIZDESK_AUTH_SECRET)")
	}
	if c.Auth.AccessTTL <= 0 {
		return fmt.Errorf("config: access ttl must be positive, got %s", c.Auth.AccessTTL)
	}
	if c.Rate.ValidateMax <= 0 || c.Rate.ValidateWindow <= 0 {
		return errors.New("config: validate rate limit must be positive")
	}
	return nil
}
