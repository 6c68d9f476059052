package telegram

import (
	"context"
	"sync"

	"shopbot/pkg/errors"
	"shopbot/pkg/logger"
)

// UpdateQueue hands updates to a handler concurrently across users but
// strictly one at a time, in arrival order, for the same user.
type UpdateQueue struct {
	handler func(Update)
	log     *logger.Logger

	mu       sync.Mutex
	pending  map[int64][]Update // a key exists while the user's worker runs
	draining bool
	inflight sync.WaitGroup
}

// NewUpdateQueue creates a queue delivering to handler
func NewUpdateQueue(handler func(Update), log *logger.Logger) *UpdateQueue {
	return &UpdateQueue{
		handler: handler,
		log:     log.With("component", "telegram_queue"),
		pending: map[int64][]Update{},
	}
}

// Submit schedules update and returns immediately. Updates submitted after
// Drain has started are dropped.
func (q *UpdateQueue) Submit(update Update) {
	userID := update.SenderID()

	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		q.log.Warnw("Dropping update during shutdown", "update_id", update.UpdateID, "telegram_id", userID)
		return
	}

	q.inflight.Add(1)
	queued, running := q.pending[userID]
	q.pending[userID] = append(queued, update)
	q.mu.Unlock()

	if !running {
		go q.work(userID)
	}
}

func (q *UpdateQueue) work(userID int64) {
	for {
		q.mu.Lock()
		queued := q.pending[userID]
		if len(queued) == 0 {
			delete(q.pending, userID)
			q.mu.Unlock()
			return
		}
		update := queued[0]
		q.pending[userID] = queued[1:]
		q.mu.Unlock()

		q.deliver(update)
		q.inflight.Done()
	}
}

func (q *UpdateQueue) deliver(update Update) {
	defer func() {
		if rec := recover(); rec != nil {
			q.log.Errorw("Panic in update handler",
				"panic", rec,
				"update_id", update.UpdateID,
			)
		}
	}()

	q.handler(update)
}

// Drain stops accepting updates and waits for queued ones to finish
func (q *UpdateQueue) Drain(ctx context.Context) error {
	q.mu.Lock()
	q.draining = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrTimeout, "update queue drain")
	}
}
