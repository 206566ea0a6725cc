// Package config loads casfad's runtime configuration from the
// environment. Every setting has an env var; flags only cover debug
// toggles on the CLI side.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/casfa/casfa/pkg/authserver"
)

// Defaults for optional settings.
const (
	DefaultListenAddr       = ":8080"
	DefaultAccessTokenTTL   = time.Hour
	DefaultAuthCodeTTL      = 10 * time.Minute
	DefaultMaxDelegateDepth = 32
)

// Config is the assembled runtime configuration.
type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string

	// IssuerURL is the public base URL of this server, used in OAuth
	// discovery metadata. Defaults to http://localhost + ListenAddr.
	IssuerURL string

	// AccessTokenTTL bounds minted access tokens.
	AccessTokenTTL time.Duration

	// AuthCodeTTL bounds the OAuth authorize-to-exchange window.
	AuthCodeTTL time.Duration

	// MaxDelegateDepth caps the delegation tree depth. Zero disables
	// the cap.
	MaxDelegateDepth int

	// RedisURL enables the Redis-backed delegate cache and auth-code
	// store when set. Empty keeps everything in memory.
	RedisURL string

	// KnownClients are the statically registered OAuth clients.
	KnownClients []authserver.Client

	// JWT validation settings for user credentials.
	JWTIssuer     string
	JWTAudience   string
	JWTJWKSURL    string
	JWTHMACSecret string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("at_ttl_seconds", int64(DefaultAccessTokenTTL/time.Second))
	v.SetDefault("auth_code_ttl_ms", int64(DefaultAuthCodeTTL/time.Millisecond))
	v.SetDefault("max_delegate_depth", DefaultMaxDelegateDepth)

	cfg := &Config{
		ListenAddr:       v.GetString("listen_addr"),
		IssuerURL:        v.GetString("issuer_url"),
		AccessTokenTTL:   time.Duration(v.GetInt64("at_ttl_seconds")) * time.Second,
		AuthCodeTTL:      time.Duration(v.GetInt64("auth_code_ttl_ms")) * time.Millisecond,
		MaxDelegateDepth: v.GetInt("max_delegate_depth"),
		RedisURL:         v.GetString("redis_url"),
		JWTIssuer:        v.GetString("jwt_issuer"),
		JWTAudience:      v.GetString("jwt_audience"),
		JWTJWKSURL:       v.GetString("jwt_jwks_url"),
		JWTHMACSecret:    v.GetString("jwt_hmac_secret"),
	}

	if raw := v.GetString("known_clients"); raw != "" {
		clients, err := authserver.ParseClients(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid KNOWN_CLIENTS: %w", err)
		}
		cfg.KnownClients = clients
	}

	if cfg.IssuerURL == "" {
		cfg.IssuerURL = "http://localhost" + cfg.ListenAddr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("AT_TTL_SECONDS must be positive")
	}
	if c.AuthCodeTTL <= 0 {
		return fmt.Errorf("AUTH_CODE_TTL_MS must be positive")
	}
	if c.MaxDelegateDepth < 0 {
		return fmt.Errorf("MAX_DELEGATE_DEPTH must not be negative")
	}
	if c.JWTJWKSURL == "" && c.JWTHMACSecret == "" {
		return fmt.Errorf("one of JWT_JWKS_URL or JWT_HMAC_SECRET is required")
	}
	if c.JWTJWKSURL != "" {
		if _, err := url.Parse(c.JWTJWKSURL); err != nil {
			return fmt.Errorf("invalid JWT_JWKS_URL: %w", err)
		}
	}
	return nil
}
