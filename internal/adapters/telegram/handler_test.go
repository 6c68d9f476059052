package telegram

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"shopbot/internal/adapters/errors/noop"
	"shopbot/internal/domain/conversation"
	convsvc "shopbot/internal/services/conversation"
	"shopbot/internal/view"
	"shopbot/pkg/errors"
	"shopbot/pkg/logger"
	"shopbot/pkg/telegram"
	"shopbot/pkg/templates"
)

type sent struct {
	chatID   int64
	text     string
	photo    bool
	keyboard *telegram.InlineKeyboardMarkup
}

type answer struct {
	id   string
	text string
}

type fakeBot struct {
	mu       sync.Mutex
	ops      []string
	sent     []sent
	answers  []answer
	deleted  []int
	failSend bool
}

func (b *fakeBot) Start(context.Context) error     { return nil }
func (b *fakeBot) Stop()                           {}
func (b *fakeBot) SetHandler(func(telegram.Update)) {}

func (b *fakeBot) SendMessageWithOptions(chatID int64, text string, opts telegram.MessageOptions) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSend {
		return 0, errors.New("telegram down")
	}
	b.ops = append(b.ops, "send")
	b.sent = append(b.sent, sent{chatID: chatID, text: text, keyboard: opts.Keyboard})
	return len(b.sent), nil
}

func (b *fakeBot) SendPhoto(chatID int64, photo telegram.Photo, opts telegram.MessageOptions) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, "photo")
	b.sent = append(b.sent, sent{chatID: chatID, text: photo.Caption, photo: true, keyboard: opts.Keyboard})
	return len(b.sent), nil
}

func (b *fakeBot) DeleteMessage(chatID int64, messageID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, "delete")
	b.deleted = append(b.deleted, messageID)
	return nil
}

func (b *fakeBot) AnswerCallback(id string, text string, showAlert bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, "answer")
	b.answers = append(b.answers, answer{id: id, text: text})
	return nil
}

type fakeMachine struct {
	events  []conversation.Event
	outcome convsvc.Outcome
	err     error
	panics  bool
}

func (m *fakeMachine) Dispatch(_ context.Context, ev conversation.Event) (convsvc.Outcome, error) {
	m.events = append(m.events, ev)
	if m.panics {
		panic("boom")
	}
	return m.outcome, m.err
}

type capturingTracker struct {
	noop.Tracker
	tags []map[string]string
	ids  []int64
	err  error
}

func (c *capturingTracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	c.tags = append(c.tags, tags)
	id, _ := errors.TelegramIDFrom(ctx)
	c.ids = append(c.ids, id)
	return c.err
}

func newTestHandler(m *fakeMachine, tracker errors.Tracker) (*Handler, *fakeBot) {
	bot := &fakeBot{}
	log := logger.Nop()
	h := NewHandler(bot, m, view.NewBuilder(templates.Get()), tracker, log,
		RecoveryMiddleware(log),
		LoggingMiddleware(log),
		MetricsMiddleware(),
	)
	return h, bot
}

func textUpdate(text string) telegram.Update {
	msg := &telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: 42},
		Chat:      &telegram.Chat{ID: 4242, Type: "private"},
		Text:      text,
	}
	msg.ParseCommand()
	return telegram.Update{UpdateID: 1, Message: msg}
}

func callbackUpdate(data string) telegram.Update {
	return telegram.Update{UpdateID: 2, CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb-1",
		From: &telegram.User{ID: 42},
		Message: &telegram.Message{
			MessageID: 77,
			Chat:      &telegram.Chat{ID: 4242},
		},
		Data: data,
	}}
}

func menuView() view.View {
	return view.View{
		Text:     "menu",
		Keyboard: telegram.NewInlineKeyboardMarkup(telegram.NewInlineKeyboardRow(telegram.NewInlineKeyboardButtonData("Cart", "mycart"))),
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		update telegram.Update
		ok     bool
		kind   conversation.EventKind
	}{
		{"start command", textUpdate("/start"), true, conversation.EventReset},
		{"start with bot name", textUpdate("/start@FishShopBot"), true, conversation.EventReset},
		{"other command", textUpdate("/help"), true, conversation.EventText},
		{"free text", textUpdate("buyer@example.com"), true, conversation.EventText},
		{"callback", callbackUpdate("prod-p1"), true, conversation.EventCallback},
		{"empty text", textUpdate(""), false, ""},
		{"empty update", telegram.Update{}, false, ""},
		{"callback without sender", telegram.Update{CallbackQuery: &telegram.CallbackQuery{ID: "x"}}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := normalize(tt.update)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.kind, in.event.Kind)
			assert.Equal(t, int64(42), in.event.UserID)
			assert.Equal(t, int64(4242), in.event.ChatID)
			assert.NotEmpty(t, in.event.TurnID)
		})
	}
}

func TestIsReset_PlainText(t *testing.T) {
	assert.True(t, isReset(&telegram.Message{Text: " /start "}))
	assert.False(t, isReset(&telegram.Message{Text: "start"}))
}

func TestHandleUpdate_TextSendsViews(t *testing.T) {
	m := &fakeMachine{outcome: convsvc.Outcome{Next: conversation.StateMenu, Views: []view.View{menuView()}}}
	h, bot := newTestHandler(m, nil)

	h.HandleUpdate(textUpdate("/start"))

	require.Len(t, m.events, 1)
	assert.Equal(t, conversation.EventReset, m.events[0].Kind)
	assert.Equal(t, []string{"send"}, bot.ops, "messages are neither answered nor deleted")
	assert.Equal(t, int64(4242), bot.sent[0].chatID)
	require.NotNil(t, bot.sent[0].keyboard)
}

func TestHandleUpdate_CallbackReplacesPressedMessage(t *testing.T) {
	productView := view.View{Text: "Fresh", Image: []byte{1}, Keyboard: menuView().Keyboard}
	m := &fakeMachine{outcome: convsvc.Outcome{Next: conversation.StateProduct, Views: []view.View{productView}}}
	h, bot := newTestHandler(m, nil)

	h.HandleUpdate(callbackUpdate("prod-p1"))

	assert.Equal(t, []string{"answer", "delete", "photo"}, bot.ops)
	assert.Equal(t, []int{77}, bot.deleted)
	assert.True(t, bot.sent[0].photo)
	assert.Equal(t, "Fresh", bot.sent[0].text)
}

func TestHandleUpdate_ToastOnly(t *testing.T) {
	m := &fakeMachine{outcome: convsvc.Outcome{Next: conversation.StateProduct, Toast: "10 kg"}}
	h, bot := newTestHandler(m, nil)

	h.HandleUpdate(callbackUpdate("quantity-10"))

	assert.Equal(t, []string{"answer"}, bot.ops, "nothing to replace without views")
	assert.Equal(t, []answer{{id: "cb-1", text: "10 kg"}}, bot.answers)
}

func TestHandleUpdate_FailureNotice(t *testing.T) {
	tracker := &capturingTracker{}
	m := &fakeMachine{
		outcome: convsvc.Outcome{From: conversation.StateCart, Next: conversation.StateCart, Loaded: true},
		err:     errors.New("backend down"),
	}
	h, bot := newTestHandler(m, tracker)

	h.HandleUpdate(callbackUpdate("del-li-1"))

	assert.Equal(t, []string{"answer", "send"}, bot.ops, "pressed message stays, failure notice is sent")
	assert.Empty(t, bot.answers[0].text)
	assert.Equal(t, view.NewBuilder(templates.Get()).Failure().Text, bot.sent[0].text)

	require.Len(t, tracker.tags, 1)
	assert.Equal(t, "HANDLE_CART", tracker.tags[0]["state"])
	assert.Equal(t, "callback", tracker.tags[0]["event_kind"])
	assert.Equal(t, []int64{42}, tracker.ids)
}

func TestHandleUpdate_SessionLoadFailureTaggedUnknown(t *testing.T) {
	tracker := &capturingTracker{}
	m := &fakeMachine{err: errors.Wrap(errors.ErrUnavailable, "redis down")}
	h, bot := newTestHandler(m, tracker)

	h.HandleUpdate(callbackUpdate("back"))

	assert.Equal(t, []string{"answer", "send"}, bot.ops)
	require.Len(t, tracker.tags, 1)
	assert.Equal(t, "unknown", tracker.tags[0]["state"])
}

func TestHandleUpdate_TrackerFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}
	tracker := &capturingTracker{err: errors.New("sentry unreachable")}
	m := &fakeMachine{err: errors.New("backend down")}
	h := NewHandler(&fakeBot{}, m, view.NewBuilder(templates.Get()), tracker, log)

	h.HandleUpdate(callbackUpdate("back"))

	entries := logs.FilterMessage("Failed to report turn error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sentry unreachable", entries[0].ContextMap()["error"])
}

func TestHandleUpdate_PanicIsRecovered(t *testing.T) {
	m := &fakeMachine{panics: true}
	h, bot := newTestHandler(m, nil)

	assert.NotPanics(t, func() { h.HandleUpdate(callbackUpdate("back")) })
	assert.Equal(t, []string{"answer", "send"}, bot.ops)
}

func TestHandleUpdate_StopsOnSendFailure(t *testing.T) {
	m := &fakeMachine{outcome: convsvc.Outcome{Views: []view.View{menuView(), menuView()}}}
	h, bot := newTestHandler(m, nil)
	bot.failSend = true

	h.HandleUpdate(textUpdate("buyer@example.com"))
	assert.Empty(t, bot.sent)
}

func TestHandleUpdate_Unsupported(t *testing.T) {
	m := &fakeMachine{}
	h, bot := newTestHandler(m, nil)

	h.HandleUpdate(telegram.Update{UpdateID: 5})

	assert.Empty(t, m.events)
	assert.Empty(t, bot.ops)
}

func TestRateLimitMiddleware(t *testing.T) {
	calls := 0
	turn := Chain(func(context.Context, conversation.Event) (convsvc.Outcome, error) {
		calls++
		return convsvc.Outcome{}, nil
	}, RateLimitMiddleware(2, logger.Nop()))

	ev := conversation.NewEvent(1, 1, conversation.EventText, "hi")
	other := conversation.NewEvent(2, 2, conversation.EventText, "hi")

	for i := 0; i < 3; i++ {
		_, err := turn(context.Background(), ev)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls, "third event within the burst window is dropped")

	_, err := turn(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "limits are per user")
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next TurnFunc) TurnFunc {
			return func(ctx context.Context, ev conversation.Event) (convsvc.Outcome, error) {
				order = append(order, name)
				return next(ctx, ev)
			}
		}
	}

	turn := Chain(func(context.Context, conversation.Event) (convsvc.Outcome, error) {
		order = append(order, "turn")
		return convsvc.Outcome{}, nil
	}, mw("outer"), mw("inner"))

	_, _ = turn(context.Background(), conversation.Event{})
	assert.Equal(t, []string{"outer", "inner", "turn"}, order)
}
