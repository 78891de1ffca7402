package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-settings/pkg/logger"
)

type Cleaner interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (int64, error)
}

// RetentionWorker deletes save records older than maxAge on every tick.
type RetentionWorker struct {
	cleaner  Cleaner
	maxAge   time.Duration
	interval time.Duration
	logger   *logger.Logger
}

func NewRetentionWorker(cleaner Cleaner, maxAge, interval time.Duration, log *logger.Logger) *RetentionWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &RetentionWorker{
		cleaner:  cleaner,
		maxAge:   maxAge,
		interval: interval,
		logger:   log,
	}
}

// Start runs one cleanup immediately, then one per interval until ctx is done.
func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error(err, "retention run failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *RetentionWorker) RunOnce(ctx context.Context) (int64, error) {
	n, err := w.cleaner.Cleanup(ctx, w.maxAge)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup save records: %w", err)
	}
	if n > 0 {
		w.logger.Info("purged save records", "count", n, "max_age", w.maxAge.String())
	}
	return n, nil
}
