package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, loaded once at startup.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Encryption  EncryptionConfig
	Setup       SetupConfig
	Notifx      NotifxConfig
	TenantCache TenantCacheConfig
	Jobx        JobxConfig
}

type ServerConfig struct {
	Port        string
	CORSOrigins string
	Version     string
	Debug       bool
}

// DatabaseConfig may be empty before the setup wizard has run.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (d DatabaseConfig) IsConfigured() bool {
	return strings.TrimSpace(d.URL) != ""
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// RefreshTokenStore is one of postgres, redis, memory
	RefreshTokenStore string
	CleanupInterval   time.Duration
}

type EncryptionConfig struct {
	MasterKey string
	KeyID     string

	// PreviousKeys is a comma separated list of id:base64 pairs still accepted for decryption
	PreviousKeys string
}

type SetupConfig struct {
	// StateStore is file or postgres. postgres needs DATABASE_URL at boot.
	StateStore             string
	StateDir               string
	AdminBootstrapEmail    string
	AdminBootstrapPassword string
	ProbeTimeout           time.Duration
}

type TenantCacheConfig struct {
	TTL time.Duration
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnv("CORS_ORIGINS", "*"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Debug:       getEnvBool("DEBUG", false),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", "tenantauth"),
			Audience:          getEnv("JWT_AUDIENCE", "tenantauth-api"),
			AccessTokenTTL:    getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL:   getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			RefreshTokenStore: getEnv("REFRESH_TOKEN_STORE", "postgres"),
			CleanupInterval:   getEnvDuration("REFRESH_TOKEN_CLEANUP_INTERVAL", time.Hour),
		},
		Encryption: EncryptionConfig{
			MasterKey:    getEnv("ENCRYPTION_MASTER_KEY", ""),
			KeyID:        getEnv("ENCRYPTION_KEY_ID", "k1"),
			PreviousKeys: getEnv("ENCRYPTION_PREVIOUS_KEYS", ""),
		},
		Setup: SetupConfig{
			StateStore:             getEnv("SETUP_STATE_STORE", "file"),
			StateDir:               getEnv("SETUP_STATE_DIR", "./data"),
			AdminBootstrapEmail:    getEnv("ADMIN_BOOTSTRAP_EMAIL", ""),
			AdminBootstrapPassword: getEnv("ADMIN_BOOTSTRAP_PASSWORD", ""),
			ProbeTimeout:           getEnvDuration("SETUP_PROBE_TIMEOUT", 10*time.Second),
		},
		Notifx:      loadNotifxConfig(),
		TenantCache: TenantCacheConfig{TTL: getEnvDuration("TENANT_CACHE_TTL", time.Minute)},
		Jobx:        loadJobxConfig(),
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	switch c.Auth.RefreshTokenStore {
	case "postgres", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown REFRESH_TOKEN_STORE %q", c.Auth.RefreshTokenStore))
	}
	if c.Auth.RefreshTokenStore == "redis" && !c.Redis.Enabled {
		errs = append(errs, errors.New("REFRESH_TOKEN_STORE=redis requires REDIS_ENABLED=true"))
	}
	switch c.Setup.StateStore {
	case "file":
	case "postgres":
		if !c.Database.IsConfigured() {
			errs = append(errs, errors.New("SETUP_STATE_STORE=postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SETUP_STATE_STORE %q", c.Setup.StateStore))
	}
	if c.Jobx.Enabled && len(c.Jobx.Queues) == 0 {
		errs = append(errs, errors.New("JOBX_QUEUES must name at least one queue"))
	}
	if _, _, err := c.Encryption.Keys(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Keys decodes the primary key and any previous keys.
func (e EncryptionConfig) Keys() ([]byte, map[string][]byte, error) {
	if strings.TrimSpace(e.KeyID) == "" || strings.Contains(e.KeyID, ":") {
		return nil, nil, fmt.Errorf("ENCRYPTION_KEY_ID %q is invalid", e.KeyID)
	}

	primary, err := decodeKey(e.MasterKey)
	if err != nil {
		return nil, nil, fmt.Errorf("ENCRYPTION_MASTER_KEY: %w", err)
	}

	previous := make(map[string][]byte)
	for _, pair := range strings.Split(e.PreviousKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, raw, ok := strings.Cut(pair, ":")
		if !ok || id == "" {
			return nil, nil, fmt.Errorf("ENCRYPTION_PREVIOUS_KEYS: malformed entry %q", pair)
		}
		key, err := decodeKey(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("ENCRYPTION_PREVIOUS_KEYS[%s]: %w", id, err)
		}
		previous[id] = key
	}

	return primary, previous, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvStringSlice(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
