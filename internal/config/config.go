package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"authservice/internal/pkg/password"
)

const (
	defaultListenAddr     = ":8080"
	defaultAccessTTL      = "30m"
	defaultRefreshTTL     = "720h" // 30 days
	defaultResetTTL       = "1h"
	defaultHashAlgorithm  = "bcrypt"
	defaultBcryptCost     = "12"
	defaultMaxFailed      = "5"
	defaultIPMaxFailed    = "20"
	defaultThrottleWindow = "15m"
	defaultSecretKey      = "change-me-secret-key"
)

// Config is the process-wide runtime configuration, loaded from the
// environment once at startup.
type Config struct {
	AppEnv      string
	ListenAddr  string
	DatabaseURL string

	// One symmetric secret signs both access and reset tokens; rotating it
	// invalidates everything outstanding.
	SecretKey string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration

	HashAlgorithm password.Algorithm
	BcryptCost    int

	MaxFailedAttempts   int
	IPMaxFailedAttempts int
	ThrottleWindow      time.Duration

	EmailEnabled bool
}

func Load() (*Config, error) {
	cfg := &Config{}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.ListenAddr = strings.TrimSpace(getEnv("LISTEN_ADDR", defaultListenAddr))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.SecretKey = strings.TrimSpace(getEnv("SECRET_KEY", defaultSecretKey))

	var err error
	if cfg.AccessTokenTTL, err = parseDurationEnv("ACCESS_TOKEN_TTL", defaultAccessTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = parseDurationEnv("REFRESH_TOKEN_TTL", defaultRefreshTTL); err != nil {
		return nil, err
	}
	if cfg.ResetTokenTTL, err = parseDurationEnv("RESET_TOKEN_TTL", defaultResetTTL); err != nil {
		return nil, err
	}
	if cfg.ThrottleWindow, err = parseDurationEnv("THROTTLE_WINDOW", defaultThrottleWindow); err != nil {
		return nil, err
	}

	if cfg.HashAlgorithm, err = password.ParseAlgorithm(getEnv("PASSWORD_HASH_ALGORITHM", defaultHashAlgorithm)); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = parseIntEnv("BCRYPT_COST", defaultBcryptCost); err != nil {
		return nil, err
	}
	if cfg.MaxFailedAttempts, err = parseIntEnv("MAX_FAILED_ATTEMPTS", defaultMaxFailed); err != nil {
		return nil, err
	}
	if cfg.IPMaxFailedAttempts, err = parseIntEnv("IP_MAX_FAILED_ATTEMPTS", defaultIPMaxFailed); err != nil {
		return nil, err
	}

	cfg.EmailEnabled = parseBoolEnv("EMAILS_ENABLED", "true")

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be > 0")
	}
	if cfg.RefreshTokenTTL <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_TTL must be > 0")
	}
	if cfg.ResetTokenTTL <= 0 {
		return fmt.Errorf("RESET_TOKEN_TTL must be > 0")
	}
	if cfg.ThrottleWindow <= 0 {
		return fmt.Errorf("THROTTLE_WINDOW must be > 0")
	}
	if cfg.MaxFailedAttempts <= 0 {
		return fmt.Errorf("MAX_FAILED_ATTEMPTS must be > 0")
	}
	if cfg.IPMaxFailedAttempts <= 0 {
		return fmt.Errorf("IP_MAX_FAILED_ATTEMPTS must be > 0")
	}

	if isProdLike(cfg.AppEnv) {
		if cfg.SecretKey == "" || cfg.SecretKey == defaultSecretKey {
			return fmt.Errorf("in prod/release SECRET_KEY must be set and not default")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	return env == "prod" || env == "production" || env == "release"
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
