package auditlog

import (
	"context"
	"log/slog"
	"time"
)

// RetentionWorker periodically purges audit entries past the retention
// window. Purges route through Logger.CleanupOldLogs so each one is itself
// audited.
type RetentionWorker struct {
	logger        *Logger
	retentionDays int
	interval      time.Duration
	log           *slog.Logger
}

// NewRetentionWorker creates a worker that runs daily.
func NewRetentionWorker(logger *Logger, retentionDays int, log *slog.Logger) *RetentionWorker {
	if log == nil {
		log = slog.Default()
	}
	return &RetentionWorker{
		logger:        logger,
		retentionDays: retentionDays,
		interval:      24 * time.Hour,
		log:           log,
	}
}

// Run starts the retention worker. It runs until the context is cancelled.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.logger == nil || w.retentionDays <= 0 {
		w.log.Info("audit retention worker disabled", "retentionDays", w.retentionDays)
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("audit retention worker started",
		"retentionDays", w.retentionDays,
		"interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.log.Info("audit retention worker stopped")
			return
		case <-ticker.C:
			w.cleanup()
		}
	}
}

// cleanup performs a single retention pass.
func (w *RetentionWorker) cleanup() {
	deleted, err := w.logger.CleanupOldLogs(w.retentionDays)
	if err != nil {
		w.log.Error("audit retention cleanup failed", "error", err)
	} else if deleted > 0 {
		w.log.Info("audit retention cleanup completed", "deleted", deleted)
	}
}
