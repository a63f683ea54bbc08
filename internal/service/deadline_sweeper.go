package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/observability"
	"github.com/noah-isme/skilltest-api/internal/repository"
)

const sweeperLockKey = "skilltest:sweeper:lock"

// SweeperConfig tunes the deadline sweeper.
type SweeperConfig struct {
	Interval      time.Duration
	IdleThreshold time.Duration
	WarningWindow time.Duration
	BatchSize     int
}

// SweepReport counts the rows one pass changed.
type SweepReport struct {
	Skipped  bool
	Warned   int
	TimedOut int
	Escaped  int
}

// DeadlineSweeper periodically warns about, times out and abandons attempts
// whose clock ran out or whose client went silent.
type DeadlineSweeper struct {
	attempts repository.AttemptRepository
	outbox   NotificationOutbox
	feed     AttemptFeed
	redis    *redis.Client
	cfg      SweeperConfig
	nodeID   string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDeadlineSweeper constructs a sweeper. Without redis every replica sweeps.
func NewDeadlineSweeper(attempts repository.AttemptRepository, outbox NotificationOutbox, feed AttemptFeed, redisClient *redis.Client, cfg SweeperConfig, logger zerolog.Logger) *DeadlineSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = 2 * time.Minute
	}
	if cfg.WarningWindow <= 0 {
		cfg.WarningWindow = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &DeadlineSweeper{
		attempts: attempts,
		outbox:   outbox,
		feed:     feed,
		redis:    redisClient,
		cfg:      cfg,
		nodeID:   uuid.NewString(),
		logger:   logger.With().Str("component", "deadline_sweeper").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *DeadlineSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("deadline sweeper started")
	defer s.logger.Info().Msg("deadline sweeper stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("deadline sweep failed")
			}
		}
	}
}

// SweepOnce performs one pass: deadline warnings, timeouts, then idle escapes.
func (s *DeadlineSweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	acquired, err := s.acquireLock(ctx)
	if err != nil {
		observability.SweeperRuns().WithLabelValues("error").Inc()
		return report, err
	}
	if !acquired {
		report.Skipped = true
		observability.SweeperRuns().WithLabelValues("skipped").Inc()
		return report, nil
	}

	now := s.now()
	var errs []error

	warned, err := s.sendDeadlineWarnings(ctx, now)
	report.Warned = warned
	errs = append(errs, err)

	timedOut, err := s.expireOverdue(ctx, now)
	report.TimedOut = timedOut
	errs = append(errs, err)

	escaped, err := s.escapeIdle(ctx, now)
	report.Escaped = escaped
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		observability.SweeperRuns().WithLabelValues("error").Inc()
		return report, err
	}

	observability.SweeperRuns().WithLabelValues("ok").Inc()
	if report.Warned+report.TimedOut+report.Escaped > 0 {
		s.logger.Info().
			Int("warned", report.Warned).
			Int("timed_out", report.TimedOut).
			Int("escaped", report.Escaped).
			Msg("deadline sweep applied")
	}
	return report, nil
}

// acquireLock takes the per-interval leader lock. The lock is never released
// early so at most one replica sweeps per interval.
func (s *DeadlineSweeper) acquireLock(ctx context.Context) (bool, error) {
	if s.redis == nil {
		return true, nil
	}
	ttl := s.cfg.Interval - s.cfg.Interval/10
	if ttl <= 0 {
		ttl = s.cfg.Interval
	}
	return s.redis.SetNX(ctx, sweeperLockKey, s.nodeID, ttl).Result()
}

func (s *DeadlineSweeper) sendDeadlineWarnings(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.attempts.ListDeadlineCandidates(ctx, now, s.cfg.WarningWindow, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	warned := 0
	enqueued := false
	for _, candidate := range candidates {
		flagged := false
		_, err := s.attempts.MutateByID(ctx, candidate.ID, func(tx *gorm.DB, a *models.Attempt) (map[string]interface{}, error) {
			if a.DeadlineNotified || a.Status != models.AttemptStatusInProgress {
				return nil, nil
			}
			entry, err := s.outbox.EnqueueTx(tx, models.EventDeadlineWarning, deadlineWarningData(*a, now))
			if err != nil {
				return nil, err
			}
			flagged = true
			enqueued = enqueued || entry != nil
			return map[string]interface{}{"deadline_notified": true}, nil
		})
		if err != nil {
			if errors.Is(err, repository.ErrAttemptChanged) || errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return warned, err
		}
		if flagged {
			warned++
			observability.SweeperTransitions().WithLabelValues("deadline_warning").Inc()
		}
	}

	if enqueued {
		s.outbox.Notify()
	}
	return warned, nil
}

// expireOverdue and escapeIdle drain their backlog in BatchSize pages. A page
// that changed nothing ends the pass so a stuck row cannot spin the loop.
func (s *DeadlineSweeper) expireOverdue(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		ids, err := s.attempts.ListOverdueIDs(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return total, err
		}

		count := 0
		for _, id := range ids {
			won, err := s.attempts.MarkTimedOut(ctx, id, now)
			if err != nil {
				return total + count, err
			}
			if !won {
				continue
			}
			count++
			observability.SweeperTransitions().WithLabelValues("timeout").Inc()
			observability.AttemptTransitions().WithLabelValues(string(models.AttemptStatusTimeout), "sweeper").Inc()
			s.announce(ctx, id, FeedAttemptTimedOut)
		}
		total += count

		if len(ids) < s.cfg.BatchSize || count == 0 || ctx.Err() != nil {
			return total, nil
		}
	}
}

func (s *DeadlineSweeper) escapeIdle(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.IdleThreshold)
	total := 0
	for {
		ids, err := s.attempts.ListIdleIDs(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return total, err
		}

		count := 0
		for _, id := range ids {
			won, err := s.attempts.MarkIdleEscaped(ctx, id, cutoff, now)
			if err != nil {
				return total + count, err
			}
			if !won {
				continue
			}
			count++
			observability.SweeperTransitions().WithLabelValues("idle_escape").Inc()
			observability.AttemptTransitions().WithLabelValues(string(models.AttemptStatusEscaped), "sweeper").Inc()
			s.announce(ctx, id, FeedAttemptEscaped)
		}
		total += count

		if len(ids) < s.cfg.BatchSize || count == 0 || ctx.Err() != nil {
			return total, nil
		}
	}
}

func (s *DeadlineSweeper) announce(ctx context.Context, id, eventType string) {
	if s.feed == nil {
		return
	}
	attempt, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("attempt_id", id).Msg("failed to load swept attempt")
		return
	}
	s.feed.Publish(eventType, attempt)
}

func deadlineWarningData(attempt models.Attempt, now time.Time) map[string]interface{} {
	data := attemptEventData(attempt)
	remaining := attempt.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	data["minutes_remaining"] = int(remaining / time.Minute)
	return data
}
