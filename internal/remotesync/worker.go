package remotesync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Worker flushes the outbox on a fixed interval and whenever the bridge is
// notified of a new entry.
type Worker struct {
	bridge   *Bridge
	interval time.Duration
	logger   *zap.Logger
}

func NewWorker(bridge *Bridge, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{bridge: bridge, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if !w.bridge.Enabled() {
		w.logger.Info("remote sync disabled; worker not started")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.bridge.kick:
		}

		result, err := w.bridge.Flush(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("sync flush failed", zap.Error(err))
			continue
		}
		if result.Delivered > 0 || result.Failed > 0 {
			w.logger.Debug("sync flush",
				zap.Int("delivered", result.Delivered),
				zap.Int("failed", result.Failed),
				zap.Int("deferred", result.Deferred),
			)
		}
	}
}
