package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"shopbot/pkg/errors"
)

type Config struct {
	App           AppConfig
	Telegram      TelegramConfig
	Redis         RedisConfig
	Session       SessionConfig
	Catalog       CatalogConfig
	HTTP          HTTPConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"shopbot"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// WebhookURL switches the bot from long polling to webhook delivery
	WebhookURL    string `envconfig:"TELEGRAM_WEBHOOK_URL"`
	WebhookSecret string `envconfig:"TELEGRAM_WEBHOOK_SECRET"`
	Debug         bool   `envconfig:"TELEGRAM_DEBUG" default:"false"`
	RateLimit     int    `envconfig:"TELEGRAM_RATE_LIMIT" default:"20"` // outgoing requests per second
	// UserTurnsPerMinute caps inbound events per user, 0 disables the limit
	UserTurnsPerMinute int `envconfig:"TELEGRAM_USER_TURNS_PER_MINUTE" default:"60"`
}

type RedisConfig struct {
	Host      string `envconfig:"REDIS_HOST" required:"true"`
	Port      int    `envconfig:"REDIS_PORT" default:"6379"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"shopbot:"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionConfig bounds a single turn and the lifetime of turn data
type SessionConfig struct {
	TurnDataTTL time.Duration `envconfig:"SESSION_TURN_TTL" default:"24h"`
	TurnTimeout time.Duration `envconfig:"TURN_TIMEOUT" default:"30s"`
}

type CatalogConfig struct {
	BaseURL         string        `envconfig:"CATALOG_BASE_URL" required:"true"`
	APIToken        string        `envconfig:"CATALOG_API_TOKEN"`
	Timeout         time.Duration `envconfig:"CATALOG_TIMEOUT" default:"10s"`
	OwnerField      string        `envconfig:"CATALOG_OWNER_FIELD" default:"tg_id"`
	BreakerFailures uint32        `envconfig:"CATALOG_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"CATALOG_BREAKER_COOLDOWN" default:"30s"`
}

type HTTPConfig struct {
	Addr string `envconfig:"HTTP_ADDR" default:":8080"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	// envconfig treats a set but empty variable as present
	for key, value := range map[string]string{
		"TELEGRAM_BOT_TOKEN": cfg.Telegram.BotToken,
		"REDIS_HOST":         cfg.Redis.Host,
		"CATALOG_BASE_URL":   cfg.Catalog.BaseURL,
	} {
		if strings.TrimSpace(value) == "" {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "%s must not be empty", key)
		}
	}

	if cfg.Telegram.WebhookURL == "" && cfg.Telegram.WebhookSecret != "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "TELEGRAM_WEBHOOK_SECRET requires TELEGRAM_WEBHOOK_URL")
	}

	return &cfg, nil
}
