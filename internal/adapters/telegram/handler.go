package telegram

import (
	"context"
	"strconv"
	"strings"

	"shopbot/internal/domain/conversation"
	"shopbot/internal/metrics"
	convsvc "shopbot/internal/services/conversation"
	"shopbot/internal/view"
	"shopbot/pkg/errors"
	"shopbot/pkg/logger"
	"shopbot/pkg/telegram"
)

const resetCommand = "start"

// Dispatcher runs conversation turns
type Dispatcher interface {
	Dispatch(ctx context.Context, ev conversation.Event) (convsvc.Outcome, error)
}

// Handler turns Telegram updates into conversation events and relays the
// outcome back to the chat
type Handler struct {
	bot     telegram.Bot
	turn    TurnFunc
	views   *view.Builder
	tracker errors.Tracker
	log     *logger.Logger
}

// NewHandler creates a new telegram handler. Middlewares wrap every turn,
// the first one outermost.
func NewHandler(
	bot telegram.Bot,
	machine Dispatcher,
	views *view.Builder,
	tracker errors.Tracker,
	log *logger.Logger,
	middlewares ...Middleware,
) *Handler {
	return &Handler{
		bot:     bot,
		turn:    Chain(machine.Dispatch, middlewares...),
		views:   views,
		tracker: tracker,
		log:     log.With("component", "telegram_handler"),
	}
}

// inbound is a normalized update plus what is needed to answer it
type inbound struct {
	event      conversation.Event
	callbackID string
	// pressedMessageID is the message carrying the pressed keyboard
	pressedMessageID int
}

// HandleUpdate processes one update. It is the entry point for both polling
// and webhook delivery.
func (h *Handler) HandleUpdate(update telegram.Update) {
	in, ok := normalize(update)
	if !ok {
		metrics.TelegramUpdates.WithLabelValues("unsupported").Inc()
		h.log.Debugw("Ignoring unsupported update", "update_id", update.UpdateID)
		return
	}

	ctx := errors.WithTelegramID(context.Background(), in.event.UserID)
	h.handle(ctx, in)
}

func (h *Handler) handle(ctx context.Context, in inbound) {
	ev := in.event

	out, err := h.turn(ctx, ev)

	// Callback queries must be answered whatever happened, or the client
	// keeps showing a spinner on the button
	if in.callbackID != "" {
		if aerr := h.bot.AnswerCallback(in.callbackID, out.Toast, false); aerr != nil {
			metrics.TelegramSendErrors.WithLabelValues("answerCallbackQuery").Inc()
		}
	}

	if err != nil {
		h.reportFailure(ctx, ev, out, err)
		h.sendView(ev.ChatID, h.views.Failure())
		return
	}

	if len(out.Views) == 0 {
		return
	}

	// Replace the message with the pressed keyboard so stale buttons disappear
	if in.pressedMessageID != 0 {
		if derr := h.bot.DeleteMessage(ev.ChatID, in.pressedMessageID); derr != nil {
			metrics.TelegramSendErrors.WithLabelValues("deleteMessage").Inc()
		}
	}

	for _, v := range out.Views {
		if !h.sendView(ev.ChatID, v) {
			return
		}
	}
}

func (h *Handler) sendView(chatID int64, v view.View) bool {
	var opts telegram.MessageOptions
	if !v.Keyboard.IsEmpty() {
		kb := v.Keyboard
		opts.Keyboard = &kb
	}

	var err error
	method := "sendMessage"
	if v.HasImage() {
		method = "sendPhoto"
		_, err = h.bot.SendPhoto(chatID, telegram.Photo{Name: "product.jpg", Bytes: v.Image, Caption: v.Text}, opts)
	} else {
		_, err = h.bot.SendMessageWithOptions(chatID, v.Text, opts)
	}

	if err != nil {
		metrics.TelegramSendErrors.WithLabelValues(method).Inc()
		h.log.Errorw("Failed to send view", "chat_id", chatID, "method", method, "error", err)
		return false
	}
	return true
}

func (h *Handler) reportFailure(ctx context.Context, ev conversation.Event, out convsvc.Outcome, err error) {
	tags := map[string]string{
		"state":       out.StateLabel(),
		"event_kind":  string(ev.Kind),
		"turn_id":     ev.TurnID,
		"telegram_id": strconv.FormatInt(ev.UserID, 10),
	}
	if h.tracker != nil {
		if terr := h.tracker.CaptureError(ctx, err, tags); terr != nil {
			h.log.Warnw("Failed to report turn error", "turn_id", ev.TurnID, "error", terr)
		}
	}
}

// normalize maps the three inbound shapes (reset command, free text, button
// press) onto a conversation event
func normalize(update telegram.Update) (inbound, bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil {
			return inbound{}, false
		}
		in := inbound{callbackID: cb.ID}
		chatID := cb.From.ID
		if cb.Message != nil {
			in.pressedMessageID = cb.Message.MessageID
			if cb.Message.Chat != nil {
				chatID = cb.Message.Chat.ID
			}
		}
		in.event = conversation.NewEvent(cb.From.ID, chatID, conversation.EventCallback, cb.Data)
		return in, true
	}

	if msg := update.Message; msg != nil {
		if msg.From == nil || msg.Chat == nil || msg.Text == "" {
			return inbound{}, false
		}
		kind := conversation.EventText
		if isReset(msg) {
			kind = conversation.EventReset
		}
		return inbound{event: conversation.NewEvent(msg.From.ID, msg.Chat.ID, kind, msg.Text)}, true
	}

	return inbound{}, false
}

// isReset accepts the /start command, also when a client sends it as bare text
func isReset(msg *telegram.Message) bool {
	if msg.IsCommand {
		return msg.Command == resetCommand
	}
	return strings.TrimSpace(msg.Text) == "/"+resetCommand
}
