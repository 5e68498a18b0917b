package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	domainerrors "royalty-reconciliation-backend/internal/errors"
	"royalty-reconciliation-backend/internal/models"
)

type WorkRepository struct {
	db *gorm.DB
}

func NewWorkRepository(db *gorm.DB) *WorkRepository {
	return &WorkRepository{db: db}
}

// ListWorks returns the whole catalog ordered by id, so duplicate keys resolve the
// same way on every load.
func (r *WorkRepository) ListWorks(ctx context.Context) ([]models.Work, error) {
	var works []models.Work
	err := r.db.WithContext(ctx).Order("id").Find(&works).Error
	return works, err
}

// GetByID fetch a single work by ID
func (r *WorkRepository) GetByID(ctx context.Context, id string) (*models.Work, error) {
	var work models.Work
	err := r.db.WithContext(ctx).First(&work, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.NotFoundf("work %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &work, nil
}

// SearchWorks is a case-insensitive LIKE over title and external id.
func (r *WorkRepository) SearchWorks(ctx context.Context, query string, limit int) ([]models.Work, error) {
	var works []models.Work

	q := r.db.WithContext(ctx).Model(&models.Work{})
	if query = strings.TrimSpace(query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(external_id) LIKE ?", like, like)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	err := q.Order("id").Find(&works).Error
	return works, err
}
