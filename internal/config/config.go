// Package config loads the service configuration from YAML with
// environment overrides for secrets and deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int32  `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	JWT struct {
		Issuer      string `yaml:"issuer"`
		SigningSeed string `yaml:"signing_seed"` // base64url, 32 bytes
		AccessTTL   string `yaml:"access_ttl"`
		RefreshTTL  string `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	Auth struct {
		Cookie struct {
			Name     string `yaml:"name"`
			Domain   string `yaml:"domain"`
			SameSite string `yaml:"samesite"`
			Secure   bool   `yaml:"secure"`
		} `yaml:"cookie"`
		Verify struct {
			TTL time.Duration `yaml:"ttl"`
		} `yaml:"verify"`
		Reset struct {
			TTL time.Duration `yaml:"ttl"`
		} `yaml:"reset"`
		DefaultOrgName string `yaml:"default_org_name"`
	} `yaml:"auth"`

	Security struct {
		PasswordPolicy struct {
			MinLength    int  `yaml:"min_length"`
			RequireUpper bool `yaml:"require_upper"`
			RequireLower bool `yaml:"require_lower"`
			RequireDigit bool `yaml:"require_digit"`
		} `yaml:"password_policy"`
		HashingConcurrency int64 `yaml:"hashing_concurrency"`
	} `yaml:"security"`

	Rate struct {
		Enabled   bool     `yaml:"enabled"`
		Allowlist []string `yaml:"allowlist"` // IPs and CIDR blocks exempt from limiting

		Login struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
		Forgot struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"forgot"`
		Refresh struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"refresh"`
		MFA struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"mfa"`
		OAuth struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"oauth"`
	} `yaml:"rate"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"` // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	} `yaml:"smtp"`

	Email struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"email"`

	Providers struct {
		Google struct {
			Enabled      bool   `yaml:"enabled"`
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			RedirectURL  string `yaml:"redirect_url"`
		} `yaml:"google"`
		GitHub struct {
			Enabled      bool   `yaml:"enabled"`
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			RedirectURL  string `yaml:"redirect_url"`
		} `yaml:"github"`
	} `yaml:"providers"`
}

// Load reads the YAML, applies defaults and env overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "authcore"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "720h" // 30d
	}
	if c.Auth.Cookie.Name == "" {
		c.Auth.Cookie.Name = "refresh_token"
	}
	if c.Auth.Cookie.SameSite == "" {
		c.Auth.Cookie.SameSite = "Lax"
	}
	if c.Auth.Verify.TTL == 0 {
		c.Auth.Verify.TTL = 24 * time.Hour
	}
	if c.Auth.Reset.TTL == 0 {
		c.Auth.Reset.TTL = time.Hour
	}
	if c.Auth.DefaultOrgName == "" {
		c.Auth.DefaultOrgName = "default"
	}
	if c.Security.PasswordPolicy.MinLength == 0 {
		c.Security.PasswordPolicy.MinLength = 8
		c.Security.PasswordPolicy.RequireUpper = true
		c.Security.PasswordPolicy.RequireLower = true
		c.Security.PasswordPolicy.RequireDigit = true
	}
	if c.Security.HashingConcurrency == 0 {
		c.Security.HashingConcurrency = 8
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 5
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "15m"
	}
	if c.Rate.Forgot.Limit == 0 {
		c.Rate.Forgot.Limit = 3
	}
	if c.Rate.Forgot.Window == "" {
		c.Rate.Forgot.Window = "1h"
	}
	if c.Rate.Refresh.Limit == 0 {
		c.Rate.Refresh.Limit = 30
	}
	if c.Rate.Refresh.Window == "" {
		c.Rate.Refresh.Window = "1m"
	}
	if c.Rate.MFA.Limit == 0 {
		c.Rate.MFA.Limit = 10
	}
	if c.Rate.MFA.Window == "" {
		c.Rate.MFA.Window = "5m"
	}
	if c.Rate.OAuth.Limit == 0 {
		c.Rate.OAuth.Limit = 20
	}
	if c.Rate.OAuth.Window == "" {
		c.Rate.OAuth.Window = "1m"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.Email.BaseURL == "" {
		c.Email.BaseURL = strings.TrimRight(c.JWT.Issuer, "/")
	}
}

// applyEnvOverrides lets deployment secrets stay out of the YAML.
func (c *Config) applyEnvOverrides() {
	if v, ok := envStr("DATABASE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := envStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
		c.Cache.Kind = "redis"
	}
	if v, ok := envStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := envStr("JWT_SIGNING_SEED"); ok {
		c.JWT.SigningSeed = v
	}
	if v, ok := envStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := envInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := envStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := envStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := envStr("GOOGLE_CLIENT_SECRET"); ok {
		c.Providers.Google.ClientSecret = v
	}
	if v, ok := envStr("GITHUB_CLIENT_SECRET"); ok {
		c.Providers.GitHub.ClientSecret = v
	}
}

func (c *Config) validate() error {
	if c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn is required")
	}
	if c.JWT.Issuer == "" {
		return fmt.Errorf("config: jwt.issuer is required")
	}
	if c.JWT.SigningSeed == "" {
		return fmt.Errorf("config: jwt.signing_seed is required")
	}
	if c.Cache.Kind != "memory" && c.Cache.Kind != "redis" {
		return fmt.Errorf("config: cache.kind must be memory or redis, got %q", c.Cache.Kind)
	}
	if c.Cache.Kind == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("config: cache.redis.addr is required for redis cache")
	}
	for name, s := range map[string]string{
		"jwt.access_ttl":                     c.JWT.AccessTTL,
		"jwt.refresh_ttl":                    c.JWT.RefreshTTL,
		"rate.login.window":                  c.Rate.Login.Window,
		"rate.forgot.window":                 c.Rate.Forgot.Window,
		"rate.refresh.window":                c.Rate.Refresh.Window,
		"rate.mfa.window":                    c.Rate.MFA.Window,
		"rate.oauth.window":                  c.Rate.OAuth.Window,
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
	} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// Duration parses a duration field already validated by Load.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// IsProd reports whether the service runs with production hardening.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

func envStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func envInt(key string) (int, bool) {
	if s, ok := envStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
