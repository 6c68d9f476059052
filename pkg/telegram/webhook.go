package telegram

import (
	"context"
	"encoding/json"
	"net/http"

	"shopbot/pkg/logger"
)

// WebhookHandler receives Telegram webhook POSTs and hands updates to a handler
type WebhookHandler struct {
	queue       *UpdateQueue
	secretToken string
	log         *logger.Logger
}

// NewWebhookHandler creates a new webhook handler. When secretToken is set,
// requests must carry it in X-Telegram-Bot-Api-Secret-Token. Updates of one
// user reach updateHandler one at a time.
func NewWebhookHandler(updateHandler func(Update), secretToken string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		queue:       NewUpdateQueue(updateHandler, log),
		secretToken: secretToken,
		log:         log.With("component", "telegram_webhook"),
	}
}

// ServeHTTP implements http.Handler
func (wh *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wh.log.Warnw("Invalid webhook request method", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if wh.secretToken != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != wh.secretToken {
		wh.log.Warnw("Webhook request with wrong secret token")
		wh.sendErrorResponse(w, "Forbidden", http.StatusForbidden)
		return
	}

	var update Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		wh.log.Errorw("Failed to decode webhook update", "error", err)
		wh.sendErrorResponse(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if update.Message != nil {
		update.Message.ParseCommand()
	}

	wh.log.Debugw("Received webhook update",
		"update_id", update.UpdateID,
		"has_message", update.HasMessage(),
		"has_callback", update.HasCallback(),
	)

	// Acknowledge right away; Telegram retries anything that is not 200
	wh.queue.Submit(update)

	wh.sendSuccessResponse(w)
}

// Drain stops handing out updates and waits for accepted ones to finish
func (wh *WebhookHandler) Drain(ctx context.Context) error {
	return wh.queue.Drain(ctx)
}

func (wh *WebhookHandler) sendSuccessResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ok": true,
	})
}

func (wh *WebhookHandler) sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":          false,
		"description": message,
	})
}
