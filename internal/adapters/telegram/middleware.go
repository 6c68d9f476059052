package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"shopbot/internal/domain/conversation"
	"shopbot/internal/metrics"
	convsvc "shopbot/internal/services/conversation"
	"shopbot/pkg/errors"
	"shopbot/pkg/logger"
)

// TurnFunc runs one conversation turn
type TurnFunc func(ctx context.Context, ev conversation.Event) (convsvc.Outcome, error)

// Middleware wraps a TurnFunc
type Middleware func(next TurnFunc) TurnFunc

// Chain applies middlewares so the first one is the outermost
func Chain(turn TurnFunc, middlewares ...Middleware) TurnFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		turn = middlewares[i](turn)
	}
	return turn
}

// LoggingMiddleware logs every turn with timing
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next TurnFunc) TurnFunc {
		return func(ctx context.Context, ev conversation.Event) (convsvc.Outcome, error) {
			start := time.Now()

			log.Debugw("Executing turn",
				"turn_id", ev.TurnID,
				"telegram_id", ev.UserID,
				"event_kind", ev.Kind,
			)

			out, err := next(ctx, ev)
			duration := time.Since(start)

			if err != nil {
				log.Errorw("Turn failed",
					"turn_id", ev.TurnID,
					"telegram_id", ev.UserID,
					"state", out.From.String(),
					"duration_ms", duration.Milliseconds(),
					"error", err,
				)
			} else {
				log.Infow("Turn completed",
					"turn_id", ev.TurnID,
					"telegram_id", ev.UserID,
					"from", out.From.String(),
					"to", out.Next.String(),
					"duration_ms", duration.Milliseconds(),
				)
			}

			return out, err
		}
	}
}

// RecoveryMiddleware turns a panic inside a turn into an error
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next TurnFunc) TurnFunc {
		return func(ctx context.Context, ev conversation.Event) (out convsvc.Outcome, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorw("Turn panicked",
						"turn_id", ev.TurnID,
						"telegram_id", ev.UserID,
						"panic", r,
					)
					err = errors.Newf("panic in turn: %v", r)
				}
			}()

			return next(ctx, ev)
		}
	}
}

// MetricsMiddleware counts inbound events by kind
func MetricsMiddleware() Middleware {
	return func(next TurnFunc) TurnFunc {
		return func(ctx context.Context, ev conversation.Event) (convsvc.Outcome, error) {
			metrics.TelegramUpdates.WithLabelValues(string(ev.Kind)).Inc()
			return next(ctx, ev)
		}
	}
}

// RateLimitMiddleware drops turns of a user who exceeds perMinute events.
// Dropped turns touch neither the session nor the backend.
func RateLimitMiddleware(perMinute int, log *logger.Logger) Middleware {
	if perMinute <= 0 {
		return func(next TurnFunc) TurnFunc { return next }
	}

	limiters := &userLimiters{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: map[int64]*userLimiter{},
	}

	return func(next TurnFunc) TurnFunc {
		return func(ctx context.Context, ev conversation.Event) (convsvc.Outcome, error) {
			if !limiters.allow(ev.UserID) {
				log.Warnw("Rate limit exceeded",
					"turn_id", ev.TurnID,
					"telegram_id", ev.UserID,
				)
				return convsvc.Outcome{Ignored: true}, nil
			}
			return next(ctx, ev)
		}
	}
}

const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type userLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	limiters  map[int64]*userLimiter
	lastSweep time.Time
}

func (u *userLimiters) allow(userID int64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := time.Now()
	if now.Sub(u.lastSweep) > limiterIdleTTL {
		for id, l := range u.limiters {
			if now.Sub(l.lastSeen) > limiterIdleTTL {
				delete(u.limiters, id)
			}
		}
		u.lastSweep = now
	}

	l, ok := u.limiters[userID]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(u.limit, u.burst)}
		u.limiters[userID] = l
	}
	l.lastSeen = now

	return l.limiter.AllowN(now, 1)
}
