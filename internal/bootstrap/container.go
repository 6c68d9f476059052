package bootstrap

import (
	"context"
	"sync"

	"shopbot/internal/adapters/catalog"
	"shopbot/internal/adapters/config"
	redisclient "shopbot/internal/adapters/redis"
	telegram "shopbot/internal/adapters/telegram"
	"shopbot/internal/api"
	"shopbot/internal/api/health"
	"shopbot/internal/repository/redis"
	"shopbot/internal/services/conversation"
	"shopbot/internal/view"
	"shopbot/pkg/errors"
	"shopbot/pkg/logger"
	tg "shopbot/pkg/telegram"
	"shopbot/pkg/telegram/adapters/tgbotapi"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure
	Redis   *redisclient.Client
	Catalog *catalog.Client

	// Conversation
	Sessions *redis.SessionRepository
	Views    *view.Builder
	Machine  *conversation.Machine

	// Application
	Application *Application

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Application groups application layer components
type Application struct {
	HTTPServer      *api.Server
	HealthHandler   *health.Handler
	TelegramBot     *tgbotapi.Bot
	TelegramHandler *telegram.Handler
	TelegramWebhook *tg.WebhookHandler // nil in polling mode
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Application: &Application{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitConversation()
	c.MustInitApplication()
}

// Start starts the bot and the HTTP server in the background
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.TelegramBot.Start(c.Context); err != nil && c.Context.Err() == nil {
			c.Log.Errorf("Telegram bot failed: %v", err)
			c.Cancel()
		}
	}()

	c.Log.Info("All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	c.Cancel()

	c.Lifecycle.Shutdown(
		c.WG,
		c.Application.HTTPServer,
		c.Application.TelegramBot,
		c.Application.TelegramWebhook,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}
