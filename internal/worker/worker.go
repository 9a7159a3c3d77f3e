// Package worker runs queued background jobs.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"liveclass/internal/metrics"
	"liveclass/internal/queue"
)

// HandRaiseResolver resolves every pending hand raise of a session.
type HandRaiseResolver interface {
	ResolveAll(ctx context.Context, sessionID string) (int64, error)
}

// NewDispatcher registers the job handlers.
func NewDispatcher(raises HandRaiseResolver, logger *zap.Logger) *queue.Dispatcher {
	d := queue.NewDispatcher()
	d.Handle(queue.TypeSessionCompleted, func(ctx context.Context, msg queue.Message) error {
		sessionID := string(msg.Body)
		n, err := raises.ResolveAll(ctx, sessionID)
		if err != nil {
			return err
		}
		logger.Info("session cleanup done", zap.String("session_id", sessionID), zap.Int64("hand_raises_resolved", n))
		return nil
	})
	return d
}

// jobTimeout bounds a single handler run.
const jobTimeout = 30 * time.Second

// Run consumes q until ctx ends. Failed jobs are logged and dropped; nothing
// is retried.
func Run(ctx context.Context, q queue.Queue, d *queue.Dispatcher, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	logger.Info("worker started, waiting for jobs")
	for msg := range messages {
		process(ctx, d, msg, logger)
	}
	logger.Info("worker stopped")
	return nil
}

func process(ctx context.Context, d *queue.Dispatcher, msg queue.Message, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	err := d.Dispatch(ctx, msg)
	outcome := "ok"
	switch {
	case errors.Is(err, queue.ErrUnknownType):
		outcome = "unknown"
		logger.Warn("job skipped", zap.String("type", msg.Type), zap.Error(err))
	case err != nil:
		outcome = "error"
		logger.Error("job failed", zap.String("type", msg.Type), zap.Error(err))
	}
	metrics.JobsProcessed.WithLabelValues(msg.Type, outcome).Inc()
	logger.Debug("job processed", zap.String("type", msg.Type), zap.String("outcome", outcome), zap.Duration("took", time.Since(start)))
}
