package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/skilltest-api/internal/models"
)

// ErrAttemptChanged indicates the attempt left the state a mutation was computed against.
var ErrAttemptChanged = errors.New("attempt changed concurrently")

// AttemptFilter describes staff listing options.
type AttemptFilter struct {
	TestID   string
	Email    string
	Status   models.AttemptStatus
	Search   string
	Page     int
	PageSize int
}

// AttemptMutation inspects a locked attempt and returns the columns to change.
// Returning nil updates leaves the row untouched. tx may be used to write
// related rows in the same transaction.
type AttemptMutation func(tx *gorm.DB, attempt *models.Attempt) (map[string]interface{}, error)

// AttemptRepository defines persistence operations for attempts.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id string) (models.Attempt, error)
	GetByToken(ctx context.Context, token string) (models.Attempt, error)
	List(ctx context.Context, filter AttemptFilter) ([]models.Attempt, int64, error)
	StatusCounts(ctx context.Context, testID string) (map[models.AttemptStatus]int64, error)
	DeletePending(ctx context.Context, id string) (bool, error)
	MutateByToken(ctx context.Context, token string, fn AttemptMutation) (models.Attempt, error)
	MutateByID(ctx context.Context, id string, fn AttemptMutation) (models.Attempt, error)

	ListDeadlineCandidates(ctx context.Context, now time.Time, window time.Duration, limit int) ([]models.Attempt, error)
	ListOverdueIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
	MarkTimedOut(ctx context.Context, id string, now time.Time) (bool, error)
	ListIdleIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	MarkIdleEscaped(ctx context.Context, id string, cutoff, now time.Time) (bool, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository instantiates a GORM-backed repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

var openStatuses = []models.AttemptStatus{models.AttemptStatusPending, models.AttemptStatusInProgress}

func (r *attemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *attemptRepository) GetByID(ctx context.Context, id string) (models.Attempt, error) {
	var attempt models.Attempt
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&attempt).Error; err != nil {
		return models.Attempt{}, err
	}
	return attempt, nil
}

func (r *attemptRepository) GetByToken(ctx context.Context, token string) (models.Attempt, error) {
	var attempt models.Attempt
	if err := r.db.WithContext(ctx).Where("access_token = ?", token).Take(&attempt).Error; err != nil {
		return models.Attempt{}, err
	}
	return attempt, nil
}

func (r *attemptRepository) List(ctx context.Context, filter AttemptFilter) ([]models.Attempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Attempt{})

	if filter.TestID != "" {
		query = query.Where("test_id = ?", filter.TestID)
	}
	if filter.Email != "" {
		query = query.Where("LOWER(candidate_email) = ?", strings.ToLower(strings.TrimSpace(filter.Email)))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(candidate_name) LIKE ? OR LOWER(candidate_email) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var attempts []models.Attempt
	if err := query.Order("created_at DESC").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

type statusCount struct {
	Status models.AttemptStatus
	Total  int64
}

func (r *attemptRepository) StatusCounts(ctx context.Context, testID string) (map[models.AttemptStatus]int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Attempt{}).Select("status, COUNT(*) AS total")
	if testID != "" {
		query = query.Where("test_id = ?", testID)
	}

	var rows []statusCount
	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[models.AttemptStatus]int64, len(models.AttemptStatuses))
	for _, status := range models.AttemptStatuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *attemptRepository) DeletePending(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, models.AttemptStatusPending).
		Delete(&models.Attempt{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *attemptRepository) MutateByToken(ctx context.Context, token string, fn AttemptMutation) (models.Attempt, error) {
	return r.mutate(ctx, "access_token = ?", token, fn)
}

func (r *attemptRepository) MutateByID(ctx context.Context, id string, fn AttemptMutation) (models.Attempt, error) {
	return r.mutate(ctx, "id = ?", id, fn)
}

// mutate locks the row, lets fn decide the change and applies it guarded by
// the status fn observed, so a concurrent transition can never be overwritten.
func (r *attemptRepository) mutate(ctx context.Context, where string, value string, fn AttemptMutation) (models.Attempt, error) {
	var attempt models.Attempt

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(where, value).Take(&attempt).Error; err != nil {
			return err
		}

		observed := attempt.Status
		updates, err := fn(tx, &attempt)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}

		result := tx.Model(&models.Attempt{}).
			Where("id = ? AND status = ?", attempt.ID, observed).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAttemptChanged
		}

		return tx.Where("id = ?", attempt.ID).Take(&attempt).Error
	})
	if err != nil {
		return models.Attempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) ListDeadlineCandidates(ctx context.Context, now time.Time, window time.Duration, limit int) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := r.db.WithContext(ctx).
		Where("status = ? AND is_presentation = ? AND deadline_notified = ? AND expires_at > ? AND expires_at <= ?",
			models.AttemptStatusInProgress, true, false, now, now.Add(window)).
		Order("expires_at ASC").
		Limit(batchLimit(limit)).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *attemptRepository) ListOverdueIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("status IN ? AND expires_at <= ?", openStatuses, now).
		Order("expires_at ASC").
		Limit(batchLimit(limit)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkTimedOut closes an overdue attempt. completed_at is the deadline itself,
// missing scores become zero and the attempt does not pass.
func (r *attemptRepository) MarkTimedOut(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ? AND status IN ? AND expires_at <= ?", id, openStatuses, now).
		Updates(map[string]interface{}{
			"status":       models.AttemptStatusTimeout,
			"completed_at": gorm.Expr("expires_at"),
			"score":        gorm.Expr("COALESCE(score, 0)"),
			"max_score":    gorm.Expr("COALESCE(max_score, 0)"),
			"percentage":   gorm.Expr("COALESCE(percentage, 0)"),
			"passed":       false,
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Attempts that never sent a heartbeat are left to the deadline.
const idlePredicate = "status = ? AND is_presentation = ? AND last_heartbeat_at IS NOT NULL AND last_heartbeat_at < ?"

func (r *attemptRepository) ListIdleIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Attempt{}).
		Where(idlePredicate, models.AttemptStatusInProgress, false, cutoff).
		Order("last_heartbeat_at ASC").
		Limit(batchLimit(limit)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkIdleEscaped terminates an attempt whose client stopped sending heartbeats.
func (r *attemptRepository) MarkIdleEscaped(ctx context.Context, id string, cutoff, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ?", id).
		Where(idlePredicate, models.AttemptStatusInProgress, false, cutoff).
		Updates(map[string]interface{}{
			"status":       models.AttemptStatusEscaped,
			"completed_at": now,
			"score":        gorm.Expr("COALESCE(score, 0)"),
			"percentage":   gorm.Expr("COALESCE(percentage, 0)"),
			"passed":       false,
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func batchLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
