package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway configuration loaded from YAML.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	PublicURL  string `yaml:"public_url"`

	// Upstream is the protected application the gateway proxies to.
	Upstream string `yaml:"upstream"`

	DefaultURL       string `yaml:"default_url"`
	LogoutURLPattern string `yaml:"logout_url_pattern"`

	Sessions SessionConfig `yaml:"sessions"`
	Cookies  CookieConfig  `yaml:"cookies"`

	OIDC   *OIDCClientConfig   `yaml:"oidc,omitempty"`
	Bearer *BearerClientConfig `yaml:"bearer,omitempty"`
	Form   *FormClientConfig   `yaml:"form,omitempty"`

	// Authorizers maps authorizer names to a required role.
	RequiredRoles map[string]string `yaml:"required_roles,omitempty"`
}

// SessionConfig selects and tunes the session backend.
type SessionConfig struct {
	Backend   string        `yaml:"backend"`
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"`
}

// CookieConfig tunes the session cookie.
type CookieConfig struct {
	Domain string `yaml:"domain"`
	Secure bool   `yaml:"secure"`
}

// OIDCClientConfig configures the OIDC login client.
type OIDCClientConfig struct {
	Issuer       string        `yaml:"issuer"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Scopes       []string      `yaml:"scopes,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// BearerClientConfig configures the JWT bearer client.
type BearerClientConfig struct {
	Issuer     string   `yaml:"issuer"`
	JWKSURL    string   `yaml:"jwks_url,omitempty"`
	HMACSecret string   `yaml:"hmac_secret,omitempty"`
	Audiences  []string `yaml:"audiences,omitempty"`
}

// FormClientConfig configures the form login client with a static bcrypt
// user table.
type FormClientConfig struct {
	LoginURL string            `yaml:"login_url"`
	Users    map[string]string `yaml:"users"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		PublicURL:  "http://127.0.0.1:8080",
		DefaultURL: "/",
		Sessions: SessionConfig{
			Backend: "memory",
			TTL:     24 * time.Hour,
		},
	}
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects unusable configurations before anything starts.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr required")
	}
	if c.PublicURL == "" {
		return fmt.Errorf("public_url required")
	}
	if c.OIDC == nil && c.Bearer == nil && c.Form == nil {
		return fmt.Errorf("at least one client must be configured")
	}
	if c.Sessions.Backend != "memory" && c.Sessions.Backend != "redis" {
		return fmt.Errorf("sessions.backend must be memory or redis")
	}
	if c.Sessions.Backend == "redis" && c.Sessions.RedisAddr == "" {
		return fmt.Errorf("sessions.redis_addr required for the redis backend")
	}
	if c.OIDC != nil && (c.OIDC.Issuer == "" || c.OIDC.ClientID == "") {
		return fmt.Errorf("oidc.issuer and oidc.client_id required")
	}
	if c.Bearer != nil && c.Bearer.JWKSURL == "" && c.Bearer.HMACSecret == "" {
		return fmt.Errorf("bearer.jwks_url or bearer.hmac_secret required")
	}
	if c.Form != nil && c.Form.LoginURL == "" {
		return fmt.Errorf("form.login_url required")
	}
	return nil
}
