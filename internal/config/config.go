// Package config loads service configuration from a YAML file with
// environment-variable overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no -config flag is given.
const DefaultPath = "config.yaml"

// defaultMaxUploadBytes caps certificate file uploads at 50MB.
const defaultMaxUploadBytes = 50 * 1024 * 1024

// MinioConfig holds object-storage settings for file payload offload.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// Enabled reports whether object-storage offload is configured.
func (m MinioConfig) Enabled() bool {
	return strings.TrimSpace(m.Endpoint) != "" && strings.TrimSpace(m.Bucket) != ""
}

// Config represents the full service configuration.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseDSN string `yaml:"databaseDSN"`

	// CookieSecure marks the session cookie Secure; enable in production
	// behind TLS.
	CookieSecure bool `yaml:"cookieSecure"`

	// SessionTTL is a Go duration string; defaults to 168h (7 days).
	SessionTTL string `yaml:"sessionTTL"`

	// RedisAddr switches the session store to Redis when set.
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	Minio MinioConfig `yaml:"minio"`

	MaxUploadBytes int64 `yaml:"maxUploadBytes"`

	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`

	// TrustedProxies are CIDRs whose forwarded headers are honored for
	// client-IP resolution.
	TrustedProxies []string `yaml:"trustedProxies"`

	VisitorRetentionDays int `yaml:"visitorRetentionDays"`
}

// Load reads configuration from path, then applies environment overrides.
// A missing file is not an error; env-only deployments are supported.
func Load(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	data, errRead := os.ReadFile(path)
	if errRead == nil {
		if errParse := yaml.Unmarshal(data, &cfg); errParse != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, errParse)
		}
	} else if !os.IsNotExist(errRead) {
		return cfg, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return cfg, fmt.Errorf("config: databaseDSN is required (set CERTFOLIO_DSN or databaseDSN)")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CERTFOLIO_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("CERTFOLIO_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("CERTFOLIO_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CookieSecure = b
		}
	}
	if v := os.Getenv("CERTFOLIO_SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("CERTFOLIO_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("CERTFOLIO_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CERTFOLIO_MINIO_ENDPOINT"); v != "" {
		cfg.Minio.Endpoint = v
	}
	if v := os.Getenv("CERTFOLIO_MINIO_ACCESS_KEY"); v != "" {
		cfg.Minio.AccessKey = v
	}
	if v := os.Getenv("CERTFOLIO_MINIO_SECRET_KEY"); v != "" {
		cfg.Minio.SecretKey = v
	}
	if v := os.Getenv("CERTFOLIO_MINIO_BUCKET"); v != "" {
		cfg.Minio.Bucket = v
	}
	if v := os.Getenv("CERTFOLIO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CERTFOLIO_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "8080"
	}
	if strings.TrimSpace(cfg.SessionTTL) == "" {
		cfg.SessionTTL = "168h"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.VisitorRetentionDays <= 0 {
		cfg.VisitorRetentionDays = 365
	}
}

// SessionTTLDuration parses the configured session lifetime.
func (c Config) SessionTTLDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 0, fmt.Errorf("config: parse sessionTTL %q: %w", c.SessionTTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: sessionTTL must be positive")
	}
	return d, nil
}
