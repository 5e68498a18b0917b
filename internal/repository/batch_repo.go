package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domainerrors "royalty-reconciliation-backend/internal/errors"
	"royalty-reconciliation-backend/internal/models"
)

// BatchRepository is the ledger of committed reconciliation batches.
type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) DB() *gorm.DB {
	return r.db
}

func withLineItems(db *gorm.DB) *gorm.DB {
	return db.Preload("LineItems", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

// CreateBatch writes the batch, its line items and the commit log entry in one
// transaction. Nothing is written if any insert fails.
func (r *BatchRepository) CreateBatch(ctx context.Context, batch *models.ReconciliationBatch, entry *models.CommitLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		return tx.Create(entry).Error
	})
}

// FindByIdempotencyKey returns nil, nil when no batch carries key.
func (r *BatchRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.ReconciliationBatch, error) {
	var batch models.ReconciliationBatch
	err := withLineItems(r.db.WithContext(ctx)).
		Where("idempotency_key = ?", key).
		First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *BatchRepository) GetBatch(ctx context.Context, id uuid.UUID) (*models.ReconciliationBatch, error) {
	var batch models.ReconciliationBatch
	err := withLineItems(r.db.WithContext(ctx)).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainerrors.NotFoundf("batch %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *BatchRepository) LogCommit(ctx context.Context, entry *models.CommitLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// CommitHistory lists the audit entries for an idempotency key, oldest first.
func (r *BatchRepository) CommitHistory(ctx context.Context, key string) ([]models.CommitLog, error) {
	var logs []models.CommitLog
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Order("created_at").
		Find(&logs).Error
	return logs, err
}
