// Package queue implements durable, table-backed work queues with exclusive
// claiming. Any gorm model that embeds models.QueueFields, has a string "id"
// primary key and a "created_at" column can be queued.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/observability"
)

var (
	// ErrNotFound indicates the queue item does not exist.
	ErrNotFound = errors.New("queue item not found")
	// ErrNotClaimed indicates the item is not running, so the caller does not own it.
	ErrNotClaimed = errors.New("queue item is not claimed")
)

// Signal wakes idle workers after new work is written.
type Signal interface {
	Notify(queue string)
}

// BackoffFunc returns the delay before the given (1-based) retry attempt.
type BackoffFunc func(attempts int) time.Duration

// ExponentialBackoff doubles base on every attempt and caps the delay at ceiling.
func ExponentialBackoff(base, ceiling time.Duration) BackoffFunc {
	return func(attempts int) time.Duration {
		if attempts < 1 {
			attempts = 1
		}
		delay := base
		for i := 1; i < attempts; i++ {
			delay *= 2
			if delay >= ceiling {
				return ceiling
			}
		}
		if delay > ceiling {
			return ceiling
		}
		return delay
	}
}

// Options tunes a Store.
type Options struct {
	Signal  Signal
	Backoff BackoffFunc
	Now     func() time.Time
}

// FailOutcome describes what happened to an item after a failed run.
type FailOutcome struct {
	Attempts    int
	WillRetry   bool
	NextRetryAt *time.Time
}

// Store is a work queue backed by the table of T.
type Store[T any] struct {
	db      *gorm.DB
	name    string
	signal  Signal
	backoff BackoffFunc
	now     func() time.Time
}

// NewStore builds a queue over T's table. name labels metrics and wake-up signals.
func NewStore[T any](db *gorm.DB, name string, opts Options) *Store[T] {
	store := &Store[T]{
		db:      db,
		name:    name,
		signal:  opts.Signal,
		backoff: opts.Backoff,
		now:     opts.Now,
	}
	if store.backoff == nil {
		store.backoff = ExponentialBackoff(30*time.Second, time.Hour)
	}
	if store.now == nil {
		store.now = func() time.Time { return time.Now().UTC() }
	}
	return store
}

// Name returns the queue name.
func (s *Store[T]) Name() string {
	return s.name
}

// Enqueue persists a new item and wakes idle workers.
func (s *Store[T]) Enqueue(ctx context.Context, item *T) error {
	if err := s.EnqueueTx(s.db.WithContext(ctx), item); err != nil {
		return err
	}
	s.Notify()
	return nil
}

// EnqueueTx persists a new item inside the caller's transaction. The caller
// should Notify once the transaction commits.
func (s *Store[T]) EnqueueTx(tx *gorm.DB, item *T) error {
	if err := tx.Create(item).Error; err != nil {
		return fmt.Errorf("enqueue %s: %w", s.name, err)
	}
	observability.QueueEnqueued().WithLabelValues(s.name).Inc()
	return nil
}

// Notify publishes a wake-up signal for this queue.
func (s *Store[T]) Notify() {
	if s.signal != nil {
		s.signal.Notify(s.name)
	}
}

// ClaimOne atomically moves the oldest eligible item to running and returns
// it. It returns nil, nil when nothing is eligible. Rows locked by another
// claimer are skipped, and the conditional update guarantees a single winner
// even where row locks are unavailable.
func (s *Store[T]) ClaimOne(ctx context.Context) (*T, error) {
	now := s.now()
	var claimed *T

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(new(T)).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Scopes(eligible(now)).
			Order("created_at ASC").
			Limit(1).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		result := tx.Model(new(T)).
			Where("id = ?", ids[0]).
			Scopes(eligible(now)).
			Updates(map[string]interface{}{
				"status":     models.QueueStatusRunning,
				"claimed_at": now,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return nil
		}

		var item T
		if err := tx.Where("id = ?", ids[0]).Take(&item).Error; err != nil {
			return err
		}
		claimed = &item
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", s.name, err)
	}

	if claimed != nil {
		observability.QueueClaims().WithLabelValues(s.name).Inc()
	}
	return claimed, nil
}

// Complete marks a claimed item as succeeded, storing any extra columns.
func (s *Store[T]) Complete(ctx context.Context, id string, fields map[string]interface{}) error {
	now := s.now()
	updates := map[string]interface{}{
		"status":        models.QueueStatusSucceeded,
		"attempts":      gorm.Expr("attempts + 1"),
		"next_retry_at": nil,
		"last_error":    nil,
		"finished_at":   now,
		"updated_at":    now,
	}
	for key, value := range fields {
		updates[key] = value
	}

	result := s.db.WithContext(ctx).Model(new(T)).
		Where("id = ? AND status = ?", id, models.QueueStatusRunning).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("complete %s item %s: %w", s.name, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotClaimed
	}

	observability.QueueOutcomes().WithLabelValues(s.name, "succeeded").Inc()
	return nil
}

// Fail records a failed run. The item is scheduled for retry while attempts
// stay below max_attempts and becomes permanently failed otherwise.
func (s *Store[T]) Fail(ctx context.Context, id string, cause error, fields map[string]interface{}) (FailOutcome, error) {
	now := s.now()
	var outcome FailOutcome

	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counters retryCounters
		if err := tx.Model(new(T)).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("attempts", "max_attempts").
			Where("id = ? AND status = ?", id, models.QueueStatusRunning).
			Take(&counters).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotClaimed
			}
			return err
		}

		maxAttempts := counters.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 1
		}

		outcome.Attempts = counters.Attempts + 1
		outcome.WillRetry = outcome.Attempts < maxAttempts

		updates := map[string]interface{}{
			"status":        models.QueueStatusFailed,
			"attempts":      outcome.Attempts,
			"last_error":    message,
			"next_retry_at": nil,
			"updated_at":    now,
		}
		if outcome.WillRetry {
			next := now.Add(s.backoff(outcome.Attempts))
			outcome.NextRetryAt = &next
			updates["next_retry_at"] = next
		} else {
			updates["finished_at"] = now
		}
		for key, value := range fields {
			updates[key] = value
		}

		result := tx.Model(new(T)).
			Where("id = ? AND status = ?", id, models.QueueStatusRunning).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotClaimed
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotClaimed) {
			return FailOutcome{}, err
		}
		return FailOutcome{}, fmt.Errorf("fail %s item %s: %w", s.name, id, err)
	}

	label := "failed"
	if outcome.WillRetry {
		label = "retry_scheduled"
	}
	observability.QueueOutcomes().WithLabelValues(s.name, label).Inc()
	return outcome, nil
}

// Get loads one item by id.
func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var item T
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return item, ErrNotFound
		}
		return item, err
	}
	return item, nil
}

// ReclaimStale returns items stuck in running for longer than olderThan to
// pending, so work held by a crashed worker is picked up again.
func (s *Store[T]) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}

	now := s.now()
	result := s.db.WithContext(ctx).Model(new(T)).
		Where("status = ? AND claimed_at IS NOT NULL AND claimed_at < ?", models.QueueStatusRunning, now.Add(-olderThan)).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusPending,
			"claimed_at": nil,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("reclaim %s: %w", s.name, result.Error)
	}
	if result.RowsAffected > 0 {
		observability.QueueReclaimed().WithLabelValues(s.name).Add(float64(result.RowsAffected))
		s.Notify()
	}
	return result.RowsAffected, nil
}

type retryCounters struct {
	Attempts    int
	MaxAttempts int
}

func eligible(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			db.Session(&gorm.Session{NewDB: true}).
				Where("status = ?", models.QueueStatusPending).
				Or("status = ? AND attempts < max_attempts AND next_retry_at IS NOT NULL AND next_retry_at <= ?", models.QueueStatusFailed, now),
		)
	}
}
