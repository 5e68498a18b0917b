package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CommitActionCommitted = "committed"
	CommitActionReplayed  = "replayed"
	CommitActionFailed    = "failed"
)

// CommitLog records every commit attempt, including failures and idempotent replays.
type CommitLog struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	IdempotencyKey string     `gorm:"index;size:64" json:"idempotency_key"`
	BatchID        *uuid.UUID `gorm:"type:uuid" json:"batch_id,omitempty"`
	Action         string     `json:"action"`
	Filename       string     `json:"filename"`
	RecordCount    int        `json:"record_count"`
	PerformedBy    string     `json:"performed_by"`
	Reason         string     `json:"reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
