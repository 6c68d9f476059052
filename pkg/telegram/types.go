package telegram

import (
	"context"
)

// Bot abstracts the Telegram API so handlers never import tgbotapi directly
type Bot interface {
	// Start polls for updates (or blocks in webhook mode) until ctx is done
	Start(ctx context.Context) error

	// Stop stops receiving updates
	Stop()

	// SetHandler sets the update handler
	SetHandler(handler func(Update))

	// SendMessageWithOptions sends a text message and returns its message ID
	SendMessageWithOptions(chatID int64, text string, opts MessageOptions) (int, error)

	// SendPhoto sends an image with caption and optional keyboard
	SendPhoto(chatID int64, photo Photo, opts MessageOptions) (int, error)

	// DeleteMessage deletes a message
	DeleteMessage(chatID int64, messageID int) error

	// AnswerCallback answers a callback query, text is shown as a toast when set
	AnswerCallback(callbackQueryID string, text string, showAlert bool) error
}

// MessageOptions defines options for sending messages
type MessageOptions struct {
	// Keyboard for inline buttons
	Keyboard *InlineKeyboardMarkup

	// ParseMode (Markdown, HTML, MarkdownV2); empty sends plain text
	ParseMode string

	// DisableWebPagePreview disables link previews
	DisableWebPagePreview bool
}

// Photo is an in-memory image upload
type Photo struct {
	Name    string
	Bytes   []byte
	Caption string
}

// WebhookInfo contains information about current webhook setup
type WebhookInfo struct {
	URL                string
	PendingUpdateCount int
	LastErrorDate      int
	LastErrorMessage   string
}
