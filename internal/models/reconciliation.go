package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const BatchStatusImported = "imported"

// ReconciliationBatch is one committed selection of staged records. It is written once and never updated.
type ReconciliationBatch struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	IdempotencyKey   string          `gorm:"uniqueIndex;size:64" json:"idempotency_key"`
	Source           string          `json:"source"`
	Filename         string          `json:"filename"`
	PeriodStart      string          `gorm:"size:10" json:"period_start"`
	PeriodEnd        string          `gorm:"size:10" json:"period_end"`
	DateReceived     time.Time       `json:"date_received"`
	TotalGrossAmount decimal.Decimal `gorm:"type:numeric(18,6)" json:"total_gross_amount"`
	RecordCount      int             `json:"record_count"`
	MatchedCount     int             `json:"matched_count"`
	PartialCount     int             `json:"partial_count"`
	UnmatchedCount   int             `json:"unmatched_count"`
	Status           string          `gorm:"index" json:"status"`
	Notes            string          `json:"notes"`
	Provenance       datatypes.JSON  `json:"provenance"`
	CreatedAt        time.Time       `json:"created_at"`

	LineItems []BatchLineItem `gorm:"foreignKey:BatchID" json:"line_items,omitempty"`
}
