package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BatchLineItem archives one MappedRecord folded into a ReconciliationBatch.
type BatchLineItem struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID        uuid.UUID       `gorm:"type:uuid;index" json:"batch_id"`
	Position       int             `json:"position"`
	WorkID         string          `gorm:"index" json:"work_id"`
	ExternalWorkID string          `gorm:"index" json:"external_work_id"`
	Title          string          `json:"title"`
	ISWC           string          `gorm:"column:iswc" json:"iswc"`
	ClientID       string          `json:"client_id"`
	ClientName     string          `json:"client_name"`
	ClientRole     string          `json:"client_role"`
	SharePercent   decimal.Decimal `gorm:"type:numeric(9,4)" json:"share_percent"`
	Source         string          `json:"source"`
	RoyaltyType    string          `json:"royalty_type"`
	GrossAmount    decimal.Decimal `gorm:"type:numeric(18,6)" json:"gross_amount"`
	PeriodStart    string          `gorm:"size:10" json:"period_start"`
	PeriodEnd      string          `gorm:"size:10" json:"period_end"`
	PaymentDate    string          `gorm:"size:10" json:"payment_date"`
	MatchStatus    MatchStatus     `gorm:"index" json:"match_status"`
	MatchDetails   datatypes.JSON  `json:"match_details"`
	CreatedAt      time.Time       `json:"created_at"`
}
