// Package config reads service configuration from the environment.
// A .env file, when present, is loaded first by the caller (see cmd/api).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	DefaultCookiePath = "/auth"
	DefaultBcryptCost = 12
)

type Config struct {
	Port string

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	RotateRefresh bool

	CookiePath   string
	CookieSecure bool
	CORSOrigin   string

	StoreDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	BcryptCost int
	// AutoMigrate runs the embedded migrations before serving (postgres only).
	AutoMigrate bool
}

// FromEnv reads config from environment variables, applying defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:          getenv("PORT", "3000"),
		AccessSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
		RefreshSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
		Issuer:        os.Getenv("TOKEN_ISSUER"),
		RotateRefresh: boolEnv("REFRESH_ROTATE", false),
		CookiePath:    getenv("COOKIE_PATH", DefaultCookiePath),
		CookieSecure:  boolEnv("COOKIE_SECURE", true),
		CORSOrigin:    getenv("CORS_ORIGIN", "http://localhost:5173"),
		StoreDriver:   strings.ToLower(getenv("STORE_DRIVER", StorePostgres)),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisPrefix:   getenv("REDIS_PREFIX", "auth"),
		AutoMigrate:   boolEnv("AUTO_MIGRATE", true),
	}

	var err error
	if cfg.AccessTTL, err = durationEnv("ACCESS_TOKEN_TTL", time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RefreshTTL, err = durationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", DefaultBcryptCost); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var (
	ErrMissingSecrets = errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	ErrSharedSecrets  = errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
)

// Validate reports configuration the service cannot start with.
func (c Config) Validate() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return ErrMissingSecrets
	}
	if c.AccessSecret == c.RefreshSecret {
		return ErrSharedSecrets
	}
	switch c.StoreDriver {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST %d outside %d..%d", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if !strings.HasPrefix(c.CookiePath, "/") {
		return fmt.Errorf("COOKIE_PATH %q must be an absolute path", c.CookiePath)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return "0.0.0.0:" + c.Port }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
