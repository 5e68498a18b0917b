package repository

import (
	"gorm.io/gorm"

	"royalty-reconciliation-backend/internal/models"
)

// AutoMigrate creates or updates the catalog and ledger tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Work{},
		&models.Client{},
		&models.ReconciliationBatch{},
		&models.BatchLineItem{},
		&models.CommitLog{},
	)
}
