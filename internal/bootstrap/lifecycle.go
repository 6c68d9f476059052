package bootstrap

import (
	"context"
	"sync"
	"time"

	redisclient "shopbot/internal/adapters/redis"
	"shopbot/internal/api"
	"shopbot/pkg/errors"
	"shopbot/pkg/logger"
	"shopbot/pkg/telegram"
	"shopbot/pkg/telegram/adapters/tgbotapi"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 30 * time.Second,
	}
}

// Shutdown performs coordinated cleanup of all components in order:
// stop intake, let running turns finish, flush telemetry, close Redis last
// because in-flight turns still save sessions to it.
func (l *Lifecycle) Shutdown(
	wg *sync.WaitGroup,
	httpServer *api.Server,
	bot *tgbotapi.Bot,
	webhook *telegram.WebhookHandler,
	redisClient *redisclient.Client,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// Step 1: stop receiving updates
	log.Info("[1/6] Stopping Telegram bot...")
	if bot != nil {
		bot.Stop()
	}

	log.Info("[2/6] Stopping HTTP server...")
	if httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := httpServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	// Queued turns still read and write sessions
	log.Info("[3/6] Draining queued updates...")
	if bot != nil {
		l.drainUpdates(shutdownCtx, "polling", bot.Drain, log)
	}
	if webhook != nil {
		l.drainUpdates(shutdownCtx, "webhook", webhook.Drain, log)
	}

	log.Info("[4/6] Waiting for goroutines...")
	l.waitForGoroutines(wg, 10*time.Second, log)

	log.Info("[5/6] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, errorTracker, log)

	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	// LAST - turns may still be saving sessions above
	log.Info("[6/6] Closing Redis...")
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Errorw("Redis close failed", "error", err)
		}
	}

	log.Info("Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// drainUpdates waits for a delivery path's queued turns with a timeout
func (l *Lifecycle) drainUpdates(ctx context.Context, source string, drain func(context.Context) error, log *logger.Logger) {
	drainCtx, drainCancel := context.WithTimeout(ctx, 10*time.Second)
	defer drainCancel()

	if err := drain(drainCtx); err != nil {
		log.Warnw("Queued updates did not finish", "source", source, "error", err)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	}
}
