package config

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNoDSN = errors.New("database.dsn is not set")

// InitDB opens the Postgres database holding the catalog and the batch ledger.
func InitDB(cfg DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, ErrNoDSN
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
