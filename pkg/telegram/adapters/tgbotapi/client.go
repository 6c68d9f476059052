package tgbotapi

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"shopbot/pkg/errors"
	"shopbot/pkg/logger"
	"shopbot/pkg/telegram"
)

// Bot implements telegram.Bot on top of go-telegram-bot-api
type Bot struct {
	api         *tgbotapi.BotAPI
	log         *logger.Logger
	mu          sync.RWMutex
	running     bool
	webhookMode bool
	timeout     int
	queue       *telegram.UpdateQueue
	rateLimiter *rate.Limiter
}

// Config contains Telegram bot configuration
type Config struct {
	Token          string
	Debug          bool
	Timeout        int  // Long-poll timeout in seconds
	WebhookMode    bool // If true, don't start polling (updates arrive via webhook)
	HTTPTimeout    time.Duration
	RateLimitBurst int
	RateLimitRate  int // Outgoing requests per second
	// Endpoint overrides the Bot API URL format, defaults to tgbotapi.APIEndpoint
	Endpoint string
}

// NewBot creates a new Telegram bot instance
func NewBot(cfg Config, log *logger.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 60
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 90 * time.Second
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	log.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:         api,
		webhookMode: cfg.WebhookMode,
		timeout:     cfg.Timeout,
		log:         log.With("component", "telegram_bot"),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
	}, nil
}

// Start polls for updates until ctx is cancelled. In webhook mode it only waits.
// Users are served concurrently, each user's updates in order.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.mu.Unlock()

	if b.webhookMode {
		b.log.Infow("Bot running in webhook mode, not starting polling")
		<-ctx.Done()
		return ctx.Err()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)

	b.log.Infow("Starting to poll for updates")

	for {
		select {
		case <-ctx.Done():
			b.log.Infow("Stopping bot due to context cancellation")
			b.Stop()
			return ctx.Err()

		case tgUpdate, ok := <-updates:
			if !ok {
				return nil
			}
			b.mu.RLock()
			queue := b.queue
			b.mu.RUnlock()
			if queue != nil {
				queue.Submit(convertUpdate(tgUpdate))
			}
		}
	}
}

// Stop stops the bot
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	if !b.webhookMode {
		b.api.StopReceivingUpdates()
	}
	b.running = false
	b.log.Infow("Bot stopped")
}

// SetHandler sets the update handler
func (b *Bot) SetHandler(handler func(telegram.Update)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = telegram.NewUpdateQueue(handler, b.log)
}

// Drain waits for polled updates that are still being handled
func (b *Bot) Drain(ctx context.Context) error {
	b.mu.RLock()
	queue := b.queue
	b.mu.RUnlock()
	if queue == nil {
		return nil
	}
	return queue.Drain(ctx)
}

// SendMessageWithOptions sends a text message with custom options
func (b *Bot) SendMessageWithOptions(chatID int64, text string, opts telegram.MessageOptions) (int, error) {
	if err := b.rateLimiter.Wait(context.Background()); err != nil {
		return 0, errors.Wrap(err, "rate limiter error")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = opts.ParseMode
	msg.DisableWebPagePreview = opts.DisableWebPagePreview
	if opts.Keyboard != nil && !opts.Keyboard.IsEmpty() {
		msg.ReplyMarkup = convertKeyboardToTgbotapi(*opts.Keyboard)
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		b.log.Errorw("Failed to send message", "chat_id", chatID, "error", err)
		return 0, errors.Wrap(err, "failed to send telegram message")
	}

	return sent.MessageID, nil
}

// SendPhoto uploads an image with caption and keyboard
func (b *Bot) SendPhoto(chatID int64, photo telegram.Photo, opts telegram.MessageOptions) (int, error) {
	if err := b.rateLimiter.Wait(context.Background()); err != nil {
		return 0, errors.Wrap(err, "rate limiter error")
	}

	name := photo.Name
	if name == "" {
		name = "photo.jpg"
	}

	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: photo.Bytes})
	msg.ParseMode = opts.ParseMode
	if opts.Keyboard != nil && !opts.Keyboard.IsEmpty() {
		msg.ReplyMarkup = convertKeyboardToTgbotapi(*opts.Keyboard)
	}

	// Captions are limited to 1024 characters
	msg.Caption = truncateRunes(photo.Caption, 1024)

	sent, err := b.api.Send(msg)
	if err != nil {
		b.log.Errorw("Failed to send photo", "chat_id", chatID, "error", err)
		return 0, errors.Wrap(err, "failed to send telegram photo")
	}

	return sent.MessageID, nil
}

// DeleteMessage deletes a message
func (b *Bot) DeleteMessage(chatID int64, messageID int) error {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.Debugw("Failed to delete message", "chat_id", chatID, "message_id", messageID, "error", err)
		return errors.Wrap(err, "failed to delete telegram message")
	}
	return nil
}

// AnswerCallback answers callback query
func (b *Bot) AnswerCallback(callbackQueryID string, text string, showAlert bool) error {
	callback := tgbotapi.NewCallback(callbackQueryID, text)
	callback.ShowAlert = showAlert

	if _, err := b.api.Request(callback); err != nil {
		b.log.Errorw("Failed to answer callback", "callback_id", callbackQueryID, "error", err)
		return errors.Wrap(err, "failed to answer callback query")
	}
	return nil
}

// SetWebhook points Telegram at webhookURL, optionally with a secret token.
// The library's WebhookConfig cannot carry secret_token, so the request is built by hand.
func (b *Bot) SetWebhook(webhookURL string, secretToken string) error {
	if _, err := url.ParseRequestURI(webhookURL); err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "webhook url %q", webhookURL)
	}

	params := tgbotapi.Params{"url": webhookURL}
	params.AddNonZero("max_connections", 40)
	if err := params.AddInterface("allowed_updates", []string{"message", "callback_query"}); err != nil {
		return errors.Wrap(err, "failed to encode allowed updates")
	}
	params.AddNonEmpty("secret_token", secretToken)

	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		return errors.Wrap(err, "failed to set webhook")
	}

	b.log.Infow("Webhook configured", "url", webhookURL)
	return nil
}

// DeleteWebhook removes the webhook so polling can be used
func (b *Bot) DeleteWebhook(dropPendingUpdates bool) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPendingUpdates}); err != nil {
		return errors.Wrap(err, "failed to delete webhook")
	}
	return nil
}

// GetWebhookInfo returns current webhook information
func (b *Bot) GetWebhookInfo() (telegram.WebhookInfo, error) {
	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return telegram.WebhookInfo{}, errors.Wrap(err, "failed to get webhook info")
	}

	return telegram.WebhookInfo{
		URL:                info.URL,
		PendingUpdateCount: info.PendingUpdateCount,
		LastErrorDate:      info.LastErrorDate,
		LastErrorMessage:   info.LastErrorMessage,
	}, nil
}

var _ telegram.Bot = (*Bot)(nil)

func convertUpdate(tgUpdate tgbotapi.Update) telegram.Update {
	update := telegram.Update{
		UpdateID: tgUpdate.UpdateID,
	}

	if tgUpdate.Message != nil {
		update.Message = convertMessage(tgUpdate.Message)
	}

	if tgUpdate.CallbackQuery != nil {
		update.CallbackQuery = convertCallbackQuery(tgUpdate.CallbackQuery)
	}

	return update
}

func convertMessage(tgMsg *tgbotapi.Message) *telegram.Message {
	msg := &telegram.Message{
		MessageID: tgMsg.MessageID,
		Text:      tgMsg.Text,
		IsCommand: tgMsg.IsCommand(),
	}

	if tgMsg.From != nil {
		msg.From = convertUser(tgMsg.From)
	}

	if tgMsg.Chat != nil {
		msg.Chat = &telegram.Chat{ID: tgMsg.Chat.ID, Type: tgMsg.Chat.Type}
	}

	if msg.IsCommand {
		msg.Command = tgMsg.Command()
		msg.Arguments = tgMsg.CommandArguments()
	}

	return msg
}

func convertCallbackQuery(tgCallback *tgbotapi.CallbackQuery) *telegram.CallbackQuery {
	callback := &telegram.CallbackQuery{
		ID:   tgCallback.ID,
		Data: tgCallback.Data,
	}

	if tgCallback.From != nil {
		callback.From = convertUser(tgCallback.From)
	}

	if tgCallback.Message != nil {
		callback.Message = convertMessage(tgCallback.Message)
	}

	return callback
}

func convertUser(tgUser *tgbotapi.User) *telegram.User {
	return &telegram.User{
		ID:        tgUser.ID,
		FirstName: tgUser.FirstName,
		LastName:  tgUser.LastName,
		Username:  tgUser.UserName,
		IsBot:     tgUser.IsBot,
	}
}

func convertKeyboardToTgbotapi(keyboard telegram.InlineKeyboardMarkup) tgbotapi.InlineKeyboardMarkup {
	tgRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard.InlineKeyboard))

	for _, row := range keyboard.InlineKeyboard {
		tgRow := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			tgButton := tgbotapi.InlineKeyboardButton{Text: button.Text}

			if button.CallbackData != "" {
				data := button.CallbackData
				tgButton.CallbackData = &data
			}
			if button.URL != "" {
				link := button.URL
				tgButton.URL = &link
			}

			tgRow = append(tgRow, tgButton)
		}
		tgRows = append(tgRows, tgRow)
	}

	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: tgRows}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
