package errors

import (
	"context"
)

// Tracker reports failures to an external service (Sentry or a no-op)
type Tracker interface {
	// CaptureError reports an error with tags
	CaptureError(ctx context.Context, err error, tags map[string]string) error

	// CaptureMessage reports a plain message at the given level
	CaptureMessage(ctx context.Context, message string, level Level, tags map[string]string) error

	// AddBreadcrumb records a step of the current turn
	AddBreadcrumb(ctx context.Context, message string, category string, level Level, data map[string]interface{})

	// Flush waits for pending events to be sent
	Flush(ctx context.Context) error
}

// Level is the severity of a tracked event
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

func (l Level) String() string {
	return string(l)
}

type contextKey string

const telegramIDKey contextKey = "telegram_id"

// WithTelegramID attaches the acting Telegram user to ctx for trackers
func WithTelegramID(ctx context.Context, telegramID int64) context.Context {
	return context.WithValue(ctx, telegramIDKey, telegramID)
}

// TelegramIDFrom returns the Telegram user attached by WithTelegramID
func TelegramIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(telegramIDKey).(int64)
	return id, ok
}
