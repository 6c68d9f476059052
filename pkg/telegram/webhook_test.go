package telegram

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/pkg/logger"
)

func TestWebhookHandler_DeliversUpdate(t *testing.T) {
	received := make(chan Update, 1)
	h := NewWebhookHandler(func(u Update) { received <- u }, "", logger.Nop())

	body := `{"update_id":7,"message":{"message_id":3,"from":{"id":42,"first_name":"Ann"},"chat":{"id":42,"type":"private"},"text":"/start"}}`
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	select {
	case u := <-received:
		require.NotNil(t, u.Message)
		assert.Equal(t, 7, u.UpdateID)
		assert.Equal(t, int64(42), u.Message.From.ID)
		assert.True(t, u.Message.IsCommand)
		assert.Equal(t, "start", u.Message.Command)
	case <-time.After(time.Second):
		t.Fatal("update was not delivered")
	}
}

func TestWebhookHandler_CallbackQuery(t *testing.T) {
	received := make(chan Update, 1)
	h := NewWebhookHandler(func(u Update) { received <- u }, "", logger.Nop())

	body := `{"update_id":8,"callback_query":{"id":"cb1","from":{"id":42,"first_name":"Ann"},"message":{"message_id":10,"chat":{"id":42,"type":"private"}},"data":"prod-abc"}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case u := <-received:
		require.True(t, u.HasCallback())
		assert.False(t, u.HasMessage())
		assert.Equal(t, "prod-abc", u.CallbackQuery.Data)
		assert.Equal(t, 10, u.CallbackQuery.Message.MessageID)
	case <-time.After(time.Second):
		t.Fatal("update was not delivered")
	}
}

func TestWebhookHandler_Rejects(t *testing.T) {
	called := make(chan struct{}, 1)
	h := NewWebhookHandler(func(Update) { called <- struct{}{} }, "s3cret", logger.Nop())

	tests := []struct {
		name   string
		method string
		secret string
		body   string
		want   int
	}{
		{name: "wrong method", method: http.MethodGet, secret: "s3cret", want: http.StatusMethodNotAllowed},
		{name: "missing secret", method: http.MethodPost, body: `{"update_id":1}`, want: http.StatusForbidden},
		{name: "wrong secret", method: http.MethodPost, secret: "nope", body: `{"update_id":1}`, want: http.StatusForbidden},
		{name: "invalid json", method: http.MethodPost, secret: "s3cret", body: `{`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.secret != "" {
				req.Header.Set("X-Telegram-Bot-Api-Secret-Token", tt.secret)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	select {
	case <-called:
		t.Fatal("handler must not run for rejected requests")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhookHandler_RecoversFromPanic(t *testing.T) {
	done := make(chan struct{})
	h := NewWebhookHandler(func(Update) {
		defer close(done)
		panic("boom")
	}, "", logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"update_id":1}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}
}

func TestInlineKeyboardMarkup_Buttons(t *testing.T) {
	kb := NewInlineKeyboardMarkup(
		NewInlineKeyboardRow(NewInlineKeyboardButtonData("1 kg", "quantity-1"), NewInlineKeyboardButtonData("5 kg", "quantity-5")),
		NewInlineKeyboardRow(NewInlineKeyboardButtonData("Back", "back")),
	)

	buttons := kb.Buttons()
	require.Len(t, buttons, 3)
	assert.Equal(t, "quantity-1", buttons[0].CallbackData)
	assert.Equal(t, "back", buttons[2].CallbackData)
	assert.False(t, kb.IsEmpty())
	assert.True(t, NewInlineKeyboardMarkup().IsEmpty())
}
