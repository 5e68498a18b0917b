package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	domainerrors "royalty-reconciliation-backend/internal/errors"
	"royalty-reconciliation-backend/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection would otherwise get its own empty in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func testBatch(key string, amounts ...string) (*models.ReconciliationBatch, *models.CommitLog) {
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	batch := &models.ReconciliationBatch{
		ID:               uuid.New(),
		IdempotencyKey:   key,
		Source:           "BMI",
		Filename:         "march.csv",
		PeriodStart:      "2024-03-01",
		PeriodEnd:        "2024-03-31",
		DateReceived:     now,
		TotalGrossAmount: decimal.Zero,
		Status:           models.BatchStatusImported,
		Provenance:       datatypes.JSON(`{"filename":"march.csv"}`),
		CreatedAt:        now,
	}
	for i, a := range amounts {
		amt := decimal.RequireFromString(a)
		batch.TotalGrossAmount = batch.TotalGrossAmount.Add(amt)
		batch.LineItems = append(batch.LineItems, models.BatchLineItem{
			ID:           uuid.New(),
			BatchID:      batch.ID,
			Position:     i,
			WorkID:       "w-1",
			GrossAmount:  amt,
			SharePercent: decimal.NewFromInt(100),
			MatchStatus:  models.MatchStatusMatched,
			MatchDetails: datatypes.JSON(`{"summary":"ok"}`),
			CreatedAt:    now,
		})
	}
	batch.RecordCount = len(amounts)

	entry := &models.CommitLog{
		ID:             uuid.New(),
		IdempotencyKey: key,
		BatchID:        &batch.ID,
		Action:         models.CommitActionCommitted,
		Filename:       batch.Filename,
		RecordCount:    batch.RecordCount,
		CreatedAt:      now,
	}
	return batch, entry
}

func TestCatalog(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&[]models.Work{
		{ID: "w-2", Title: "Midnight Train", ExternalID: "BMI002"},
		{ID: "w-1", Title: "Test Song 1", ExternalID: "BMI001", ISWC: "T-1"},
	}).Error)
	require.NoError(t, db.Create(&[]models.Client{{ID: "c-2", Name: "Zed"}, {ID: "c-1", Name: "Alice"}}).Error)

	catalog := NewCatalog(db)
	ctx := context.Background()

	works, err := catalog.ListWorks(ctx)
	require.NoError(t, err)
	require.Len(t, works, 2)
	assert.Equal(t, "w-1", works[0].ID)
	assert.Equal(t, "T-1", works[0].ISWC)

	clients, err := catalog.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "c-1", clients[0].ID)

	found, err := catalog.SearchWorks(ctx, "TRAIN", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "w-2", found[0].ID)

	found, err = catalog.SearchWorks(ctx, "bmi00", 1)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	w, err := catalog.GetByID(ctx, "w-2")
	require.NoError(t, err)
	assert.Equal(t, "Midnight Train", w.Title)

	_, err = catalog.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestBatchRepository_CreateAndRead(t *testing.T) {
	repo := NewBatchRepository(openTestDB(t))
	ctx := context.Background()

	batch, entry := testBatch("key-1", "12.5", "0.25", "7")
	require.NoError(t, repo.CreateBatch(ctx, batch, entry))

	got, err := repo.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "key-1", got.IdempotencyKey)
	assert.True(t, got.TotalGrossAmount.Equal(decimal.RequireFromString("19.75")))
	require.Len(t, got.LineItems, 3)
	for i, item := range got.LineItems {
		assert.Equal(t, i, item.Position)
	}
	assert.True(t, got.LineItems[1].GrossAmount.Equal(decimal.RequireFromString("0.25")))

	byKey, err := repo.FindByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, batch.ID, byKey.ID)

	missing, err := repo.FindByIdempotencyKey(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.GetBatch(ctx, uuid.New())
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	history, err := repo.CommitHistory(ctx, "key-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.CommitActionCommitted, history[0].Action)
}

func TestBatchRepository_DuplicateKeyRollsBack(t *testing.T) {
	db := openTestDB(t)
	repo := NewBatchRepository(db)
	ctx := context.Background()

	first, entry := testBatch("dup", "1")
	require.NoError(t, repo.CreateBatch(ctx, first, entry))

	second, entry2 := testBatch("dup", "2", "3")
	assert.Error(t, repo.CreateBatch(ctx, second, entry2))

	var items, logs int64
	require.NoError(t, db.Model(&models.BatchLineItem{}).Count(&items).Error)
	require.NoError(t, db.Model(&models.CommitLog{}).Count(&logs).Error)
	assert.Equal(t, int64(1), items)
	assert.Equal(t, int64(1), logs)
}

func TestBatchRepository_LogCommit(t *testing.T) {
	repo := NewBatchRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.LogCommit(ctx, &models.CommitLog{
		ID:             uuid.New(),
		IdempotencyKey: "k",
		Action:         models.CommitActionFailed,
		Reason:         "connection reset",
		CreatedAt:      time.Now(),
	}))

	history, err := repo.CommitHistory(ctx, "k")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].BatchID)
	assert.Equal(t, "connection reset", history[0].Reason)
}
