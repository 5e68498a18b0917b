package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	domainerrors "royalty-reconciliation-backend/internal/errors"
	"royalty-reconciliation-backend/internal/models"
)

// Ledger is the durable store of committed batches.
type Ledger interface {
	// FindByIdempotencyKey returns nil, nil when no batch carries key.
	FindByIdempotencyKey(ctx context.Context, key string) (*models.ReconciliationBatch, error)
	// CreateBatch writes the batch, its line items and entry atomically.
	CreateBatch(ctx context.Context, batch *models.ReconciliationBatch, entry *models.CommitLog) error
	LogCommit(ctx context.Context, entry *models.CommitLog) error
	GetBatch(ctx context.Context, id uuid.UUID) (*models.ReconciliationBatch, error)
}

type CommitRequest struct {
	// Indices defaults to the current selection when nil.
	Indices        []int  `json:"indices"`
	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=64"`
	Notes          string `json:"notes"`
	PerformedBy    string `json:"performed_by"`
}

type provenance struct {
	StagingID   uuid.UUID `json:"staging_id"`
	Filename    string    `json:"filename"`
	Indices     []int     `json:"indices"`
	Lines       []int     `json:"lines"`
	Matched     int       `json:"matched"`
	Partial     int       `json:"partial"`
	Unmatched   int       `json:"unmatched"`
	PerformedBy string    `json:"performed_by,omitempty"`
}

type lineDetails struct {
	Summary  string             `json:"summary"`
	Work     models.MatchResult `json:"work"`
	Client   models.MatchResult `json:"client"`
	Warnings []string           `json:"warnings,omitempty"`
	Line     int                `json:"line"`
}

// Committer turns selections into ledger batches.
type Committer struct {
	ledger Ledger
	now    func() time.Time
	logger *slog.Logger
}

func NewCommitter(ledger Ledger, now func() time.Time, logger *slog.Logger) *Committer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{ledger: ledger, now: now, logger: logger}
}

// Commit persists the records at req.Indices as one batch. Failures leave the
// staging unchanged. A request whose idempotency key is already in the ledger
// returns the stored batch without writing a new one, provided the batch was
// built from the same records of this staging.
func (c *Committer) Commit(ctx context.Context, s *Staging, req CommitRequest) (*models.ReconciliationBatch, error) {
	indices := req.Indices
	if indices == nil {
		indices = s.SelectedIndices()
	}
	indices = dedupe(indices)
	if len(indices) == 0 {
		return nil, domainerrors.NoSelection()
	}
	for _, i := range indices {
		if err := s.checkIndex(i); err != nil {
			return nil, err
		}
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	existing, err := c.ledger.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, domainerrors.ImportFailed(err)
	}
	if existing != nil {
		if !sameSelection(existing, s, indices) {
			return nil, domainerrors.KeyConflict(key)
		}
		s.markCommitted(indices)
		c.record(ctx, &models.CommitLog{
			IdempotencyKey: key,
			BatchID:        &existing.ID,
			Action:         models.CommitActionReplayed,
			Filename:       s.filename,
			RecordCount:    existing.RecordCount,
			PerformedBy:    req.PerformedBy,
		})
		c.logger.Info("commit replayed", "batch_id", existing.ID, "idempotency_key", key)
		return existing, nil
	}

	var already []int
	for _, i := range indices {
		if s.committed[i] {
			already = append(already, i)
		}
	}
	if len(already) > 0 {
		return nil, domainerrors.AlreadyCommittedf("%d selected records are already in a batch", len(already)).
			WithDetails(already)
	}

	batch, err := c.buildBatch(s, indices, key, req)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "build batch")
	}

	entry := &models.CommitLog{
		ID:             uuid.New(),
		IdempotencyKey: key,
		BatchID:        &batch.ID,
		Action:         models.CommitActionCommitted,
		Filename:       s.filename,
		RecordCount:    batch.RecordCount,
		PerformedBy:    req.PerformedBy,
		CreatedAt:      batch.CreatedAt,
	}
	if err := c.ledger.CreateBatch(ctx, batch, entry); err != nil {
		c.logger.Error("commit failed", "filename", s.filename, "records", len(indices), "error", err)
		c.record(ctx, &models.CommitLog{
			IdempotencyKey: key,
			Action:         models.CommitActionFailed,
			Filename:       s.filename,
			RecordCount:    len(indices),
			PerformedBy:    req.PerformedBy,
			Reason:         err.Error(),
		})
		return nil, domainerrors.ImportFailed(err)
	}

	s.markCommitted(indices)
	c.logger.Info("batch committed",
		"batch_id", batch.ID,
		"records", batch.RecordCount,
		"total_gross", batch.TotalGrossAmount.String(),
	)
	return batch, nil
}

// record appends an audit entry. A failing audit write never fails the commit.
func (c *Committer) record(ctx context.Context, entry *models.CommitLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now()
	}
	if err := c.ledger.LogCommit(ctx, entry); err != nil {
		c.logger.Warn("commit log write failed", "action", entry.Action, "error", err)
	}
}

func (c *Committer) buildBatch(s *Staging, indices []int, key string, req CommitRequest) (*models.ReconciliationBatch, error) {
	now := c.now()
	batch := &models.ReconciliationBatch{
		ID:               uuid.New(),
		IdempotencyKey:   key,
		Filename:         s.filename,
		DateReceived:     now,
		TotalGrossAmount: decimal.Zero,
		RecordCount:      len(indices),
		Status:           models.BatchStatusImported,
		CreatedAt:        now,
		LineItems:        make([]models.BatchLineItem, 0, len(indices)),
	}

	prov := provenance{StagingID: s.id, Filename: s.filename, Indices: indices, PerformedBy: req.PerformedBy}
	for pos, i := range indices {
		rec := s.records[i]

		if batch.Source == "" {
			batch.Source = rec.StatementSource
		}
		if batch.PeriodStart == "" || rec.PeriodStart < batch.PeriodStart {
			batch.PeriodStart = rec.PeriodStart
		}
		if rec.PeriodEnd > batch.PeriodEnd {
			batch.PeriodEnd = rec.PeriodEnd
		}
		batch.TotalGrossAmount = batch.TotalGrossAmount.Add(rec.GrossAmount)

		switch rec.MatchStatus {
		case models.MatchStatusMatched:
			batch.MatchedCount++
		case models.MatchStatusPartial:
			batch.PartialCount++
		case models.MatchStatusUnmatched:
			batch.UnmatchedCount++
		}
		prov.Lines = append(prov.Lines, rec.Line)

		details, err := json.Marshal(lineDetails{
			Summary:  rec.MatchDetails,
			Work:     rec.WorkMatch,
			Client:   rec.ClientMatch,
			Warnings: rec.Warnings,
			Line:     rec.Line,
		})
		if err != nil {
			return nil, err
		}
		batch.LineItems = append(batch.LineItems, models.BatchLineItem{
			ID:             uuid.New(),
			BatchID:        batch.ID,
			Position:       pos,
			WorkID:         rec.WorkID,
			ExternalWorkID: rec.ExternalWorkID,
			Title:          rec.Title,
			ISWC:           rec.ISWC,
			ClientID:       rec.ClientID,
			ClientName:     rec.ClientName,
			ClientRole:     rec.ClientRole,
			SharePercent:   rec.SharePercent,
			Source:         rec.Source,
			RoyaltyType:    rec.RoyaltyType,
			GrossAmount:    rec.GrossAmount,
			PeriodStart:    rec.PeriodStart,
			PeriodEnd:      rec.PeriodEnd,
			PaymentDate:    rec.PaymentDate,
			MatchStatus:    rec.MatchStatus,
			MatchDetails:   datatypes.JSON(details),
			CreatedAt:      now,
		})
	}

	prov.Matched, prov.Partial, prov.Unmatched = batch.MatchedCount, batch.PartialCount, batch.UnmatchedCount
	raw, err := json.Marshal(prov)
	if err != nil {
		return nil, err
	}
	batch.Provenance = datatypes.JSON(raw)
	batch.Notes = batchNotes(req.Notes, prov)
	return batch, nil
}

// sameSelection reports whether batch holds exactly the records at indices of s.
func sameSelection(batch *models.ReconciliationBatch, s *Staging, indices []int) bool {
	var prov provenance
	if err := json.Unmarshal(batch.Provenance, &prov); err != nil {
		return false
	}
	return prov.StagingID == s.id &&
		prov.Filename == s.filename &&
		batch.RecordCount == len(indices) &&
		slices.Equal(prov.Indices, indices)
}

func batchNotes(userNotes string, p provenance) string {
	auto := fmt.Sprintf("Imported from %s: %d matched, %d partial, %d unmatched",
		p.Filename, p.Matched, p.Partial, p.Unmatched)
	if n := strings.TrimSpace(userNotes); n != "" {
		return n + "\n" + auto
	}
	return auto
}

// dedupe sorts and removes repeated indices so a record is never counted twice.
func dedupe(indices []int) []int {
	if len(indices) == 0 {
		return nil
	}
	out := append([]int(nil), indices...)
	sort.Ints(out)
	n := 1
	for _, v := range out[1:] {
		if v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}
