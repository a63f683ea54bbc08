package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/skilltest-api/internal/models"
)

// TestFilter describes pagination & search options for test definitions.
type TestFilter struct {
	Search     string
	TestType   models.TestType
	ActiveOnly bool
	Page       int
	PageSize   int
}

// TestRepository defines persistence operations for test definitions.
type TestRepository interface {
	Create(ctx context.Context, test *models.Test) error
	GetByID(ctx context.Context, id string) (models.Test, error)
	List(ctx context.Context, filter TestFilter) ([]models.Test, int64, error)
}

type testRepository struct {
	db *gorm.DB
}

// NewTestRepository instantiates a GORM-backed repository.
func NewTestRepository(db *gorm.DB) TestRepository {
	return &testRepository{db: db}
}

func (r *testRepository) Create(ctx context.Context, test *models.Test) error {
	return r.db.WithContext(ctx).Create(test).Error
}

func (r *testRepository) GetByID(ctx context.Context, id string) (models.Test, error) {
	var test models.Test
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&test).Error; err != nil {
		return models.Test{}, err
	}
	return test, nil
}

func (r *testRepository) List(ctx context.Context, filter TestFilter) ([]models.Test, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Test{})

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	if filter.TestType != "" {
		query = query.Where("test_type = ?", filter.TestType)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
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

	var tests []models.Test
	if err := query.Order("created_at DESC").Find(&tests).Error; err != nil {
		return nil, 0, err
	}

	return tests, total, nil
}
