package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ProcessFunc claims and handles at most one item. It reports whether an
// item was processed.
type ProcessFunc func(ctx context.Context) (bool, error)

// ReclaimFunc resets stale running items and reports how many were reset.
type ReclaimFunc func(ctx context.Context) (int64, error)

// WorkerConfig tunes a polling worker.
type WorkerConfig struct {
	Name         string
	Idle         time.Duration
	ErrorBackoff time.Duration
	Wake         <-chan struct{}
	Reclaim      ReclaimFunc
	ReclaimEvery time.Duration
}

// Worker repeatedly runs a ProcessFunc, sleeping when the queue is empty and
// backing off after errors.
type Worker struct {
	cfg     WorkerConfig
	process ProcessFunc
	logger  zerolog.Logger
}

// NewWorker constructs a polling worker.
func NewWorker(cfg WorkerConfig, process ProcessFunc, logger zerolog.Logger) *Worker {
	if cfg.Idle <= 0 {
		cfg.Idle = time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 2 * time.Second
	}
	if cfg.ReclaimEvery <= 0 {
		cfg.ReclaimEvery = time.Minute
	}
	return &Worker{
		cfg:     cfg,
		process: process,
		logger:  logger.With().Str("component", "queue_worker").Str("queue", cfg.Name).Logger(),
	}
}

// Run loops until ctx is cancelled. It always returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("queue worker started")
	defer w.logger.Info().Msg("queue worker stopped")

	var lastReclaim time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}

		if w.cfg.Reclaim != nil && time.Since(lastReclaim) >= w.cfg.ReclaimEvery {
			lastReclaim = time.Now()
			if reclaimed, err := w.cfg.Reclaim(ctx); err != nil {
				w.logger.Warn().Err(err).Msg("failed to reclaim stale items")
			} else if reclaimed > 0 {
				w.logger.Warn().Int64("reclaimed", reclaimed).Msg("reclaimed stale running items")
			}
		}

		processed, err := w.process(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error().Err(err).Msg("queue worker iteration failed")
			w.sleep(ctx, w.cfg.ErrorBackoff, nil)
		case processed:
			continue
		default:
			w.sleep(ctx, w.cfg.Idle, w.cfg.Wake)
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-wake:
	}
}
