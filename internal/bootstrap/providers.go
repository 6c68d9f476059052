package bootstrap

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"shopbot/internal/adapters/catalog"
	"shopbot/internal/adapters/config"
	errnoop "shopbot/internal/adapters/errors/noop"
	"shopbot/internal/adapters/errors/sentry"
	redisclient "shopbot/internal/adapters/redis"
	telegram "shopbot/internal/adapters/telegram"
	"shopbot/internal/api"
	"shopbot/internal/api/health"
	"shopbot/internal/metrics"
	"shopbot/internal/repository/redis"
	"shopbot/internal/services/conversation"
	"shopbot/internal/view"
	"shopbot/pkg/errors"
	"shopbot/pkg/logger"
	tg "shopbot/pkg/telegram"
	"shopbot/pkg/telegram/adapters/tgbotapi"
	"shopbot/pkg/templates"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// ========================================
// Phase 2: Infrastructure
// ========================================

// MustInitInfrastructure connects Redis and the catalog backend
func (c *Container) MustInitInfrastructure() {
	c.Log.Info("Connecting to Redis...")
	c.Redis = redisclient.NewClient(c.Config.Redis)
	if err := c.Redis.Health(c.Context); err != nil {
		c.Log.Fatalf("failed to connect redis: %v", err)
	}
	prometheus.MustRegister(metrics.NewRedisPoolCollector(c.Redis.Client()))
	c.Log.Info("Redis connected")

	var err error
	c.Catalog, err = catalog.New(catalog.Config{
		BaseURL:         c.Config.Catalog.BaseURL,
		APIToken:        c.Config.Catalog.APIToken,
		Timeout:         c.Config.Catalog.Timeout,
		OwnerField:      c.Config.Catalog.OwnerField,
		BreakerFailures: c.Config.Catalog.BreakerFailures,
		BreakerCooldown: c.Config.Catalog.BreakerCooldown,
	}, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to create catalog client: %v", err)
	}
	c.Log.Infow("Catalog client initialized", "base_url", c.Config.Catalog.BaseURL)
}

// ========================================
// Phase 3: Conversation
// ========================================

// MustInitConversation builds the session store and the state machine
func (c *Container) MustInitConversation() {
	c.Sessions = redis.NewSessionRepository(c.Redis.Client(), c.Config.Redis.KeyPrefix, c.Config.Session.TurnDataTTL)
	c.Views = view.NewBuilder(templates.Get())
	c.Machine = conversation.NewMachine(c.Sessions, c.Catalog, c.Views, c.Config.Session.TurnTimeout, c.Log)

	c.Log.Info("Conversation machine initialized")
}

// ========================================
// Phase 4: Application
// ========================================

// MustInitApplication wires the Telegram gateway and the HTTP server
func (c *Container) MustInitApplication() {
	bot := provideTelegramBot(c.Config, c.Log)
	c.Application.TelegramBot = bot

	c.Application.TelegramHandler = telegram.NewHandler(
		bot,
		c.Machine,
		c.Views,
		c.ErrorTracker,
		c.Log,
		telegram.RecoveryMiddleware(c.Log),
		telegram.MetricsMiddleware(),
		telegram.RateLimitMiddleware(c.Config.Telegram.UserTurnsPerMinute, c.Log),
		telegram.LoggingMiddleware(c.Log),
	)
	bot.SetHandler(c.Application.TelegramHandler.HandleUpdate)

	c.Application.HealthHandler = health.New(c.Log, c.Config.App.Name, c.Config.App.Version)
	c.Application.HealthHandler.Register("redis", c.Redis, true)
	c.Application.HealthHandler.Register("catalog", c.Catalog, false)

	c.Application.HTTPServer, c.Application.TelegramWebhook = provideHTTPServer(c.Config, c.Application.HealthHandler, c.Application.TelegramHandler, c.Log)
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

func provideTelegramBot(cfg *config.Config, log *logger.Logger) *tgbotapi.Bot {
	log.Info("Initializing Telegram bot...")

	webhookMode := cfg.Telegram.WebhookURL != ""
	bot, err := tgbotapi.NewBot(tgbotapi.Config{
		Token:         cfg.Telegram.BotToken,
		Debug:         cfg.Telegram.Debug,
		WebhookMode:   webhookMode,
		RateLimitRate: cfg.Telegram.RateLimit,
	}, log)
	if err != nil {
		log.Fatalf("Failed to create Telegram bot: %v", err)
	}

	if webhookMode {
		log.Infow("Configuring Telegram webhook...", "url", cfg.Telegram.WebhookURL)
		if err := bot.SetWebhook(cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			log.Fatalf("Failed to set Telegram webhook: %v", err)
		}
		if info, err := bot.GetWebhookInfo(); err == nil {
			log.Infow("Telegram webhook configured",
				"url", info.URL,
				"pending_updates", info.PendingUpdateCount,
				"last_error", info.LastErrorMessage,
			)
		}
	} else {
		// A leftover webhook makes getUpdates fail
		if err := bot.DeleteWebhook(false); err != nil {
			log.Fatalf("Failed to delete Telegram webhook: %v", err)
		}
	}

	log.Info("Telegram bot initialized")
	return bot
}

func provideHTTPServer(
	cfg *config.Config,
	healthHandler *health.Handler,
	telegramHandler *telegram.Handler,
	log *logger.Logger,
) (*api.Server, *tg.WebhookHandler) {
	var webhook http.Handler
	var webhookHandler *tg.WebhookHandler
	if cfg.Telegram.WebhookURL != "" {
		webhookHandler = tg.NewWebhookHandler(telegramHandler.HandleUpdate, cfg.Telegram.WebhookSecret, log)
		webhook = webhookHandler
		log.Infow("Telegram webhook mode enabled", "url", cfg.Telegram.WebhookURL, "path", api.WebhookPath)
	} else {
		log.Info("Telegram polling mode enabled")
	}

	server := api.NewServer(api.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		ServiceName:     cfg.App.Name,
		Version:         cfg.App.Version,
		TelegramWebhook: webhook,
	}, healthHandler, log)
	return server, webhookHandler
}
