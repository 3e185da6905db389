// Package config loads application configuration from .env files and
// GTJ_* environment variables over typed defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Auth    AuthConfig
	AI      AIConfig
	Billing BillingConfig
	Mail    MailConfig
	Limits  LimitsConfig
}

type ServerConfig struct {
	Port    int
	BaseURL string // public base URL used in emailed links
}

type StorageConfig struct {
	DataDir string
}

type AuthConfig struct {
	SecretKey string // signs cookies and links; required
}

type AIConfig struct {
	APIKey string // optional; generation falls back to the template when unset
	Model  string
}

type BillingConfig struct {
	APIKey  string
	PriceID string
}

type MailConfig struct {
	APIKey string
	From   string
}

type LimitsConfig struct {
	FreeLimit      int           // free-tier generations per identity
	RateWindow     time.Duration // abuse-guard sliding window
	RateCeiling    int           // requests allowed per window
	CacheEvictAge  time.Duration // AI cache entries unused longer than this are swept
	AcceptTokenTTL time.Duration // lifetime of proposal acceptance links
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4000,
			BaseURL: "http://localhost:4000",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		AI: AIConfig{
			Model: "gpt-4.1-nano",
		},
		Mail: MailConfig{
			From: "proposals@gtj.io",
		},
		Limits: LimitsConfig{
			FreeLimit:      3,
			RateWindow:     60 * time.Second,
			RateCeiling:    10,
			CacheEvictAge:  30 * 24 * time.Hour,
			AcceptTokenTTL: 7 * 24 * time.Hour,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir + "/.gtj"
	}
	return ".gtj"
}

// Load reads configuration from an optional .env file and the process
// environment. Environment variables override .env values, which override
// defaults. The secret key is the only hard requirement.
func Load() (Config, error) {
	// .env is a development convenience; absence is not an error.
	godotenv.Load()

	cfg := defaults()
	applyEnv(&cfg)

	if cfg.Auth.SecretKey == "" {
		return Config{}, fmt.Errorf("missing required config: secret key. Set GTJ_SECRET_KEY")
	}
	if cfg.Limits.FreeLimit < 0 || cfg.Limits.RateCeiling <= 0 || cfg.Limits.RateWindow <= 0 {
		return Config{}, fmt.Errorf("invalid limits configuration")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.BaseURL, "GTJ_BASE_URL")
	setInt(&cfg.Server.Port, "GTJ_PORT")
	setString(&cfg.Storage.DataDir, "GTJ_DATA_DIR")
	setString(&cfg.Auth.SecretKey, "GTJ_SECRET_KEY")

	setString(&cfg.AI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.AI.Model, "GTJ_AI_MODEL")

	setString(&cfg.Billing.APIKey, "STRIPE_SECRET_KEY")
	setString(&cfg.Billing.PriceID, "GTJ_PRICE_ID")

	setString(&cfg.Mail.APIKey, "RESEND_API_KEY")
	setString(&cfg.Mail.From, "GTJ_MAIL_FROM")

	setInt(&cfg.Limits.FreeLimit, "GTJ_FREE_LIMIT")
	setInt(&cfg.Limits.RateCeiling, "GTJ_RATE_CEILING")
	setSeconds(&cfg.Limits.RateWindow, "GTJ_RATE_WINDOW_SECONDS")
	setDays(&cfg.Limits.CacheEvictAge, "GTJ_CACHE_EVICT_DAYS")
	setDays(&cfg.Limits.AcceptTokenTTL, "GTJ_ACCEPT_TTL_DAYS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func setDays(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * 24 * time.Hour
		}
	}
}
