package repository

import (
	"context"

	"gorm.io/gorm"

	"royalty-reconciliation-backend/internal/models"
)

type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) ListClients(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	err := r.db.WithContext(ctx).Order("id").Find(&clients).Error
	return clients, err
}

// Catalog is the read-only view the matcher loads its snapshot from.
type Catalog struct {
	*WorkRepository
	*ClientRepository
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{
		WorkRepository:   NewWorkRepository(db),
		ClientRepository: NewClientRepository(db),
	}
}
