// Package mapping composes matching, period parsing and code tables into one
// MappedRecord per validated statement line.
package mapping

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"royalty-reconciliation-backend/internal/models"
	"royalty-reconciliation-backend/internal/services/codetables"
	"royalty-reconciliation-backend/internal/services/period"
	"royalty-reconciliation-backend/internal/services/statement"
)

const (
	DefaultYieldEvery      = 500
	DefaultStatementSource = "BMI"
)

// Matcher resolves works and clients.
type Matcher interface {
	MatchWork(externalWorkID, title, iswc string) models.MatchResult
	MatchClient(rawName string) models.MatchResult
	ClientName(id string) (string, bool)
}

type Options struct {
	StatementSource string
	YieldEvery      int
	YieldPause      time.Duration
}

// Mapper is stateless apart from its collaborators and may be shared.
type Mapper struct {
	matcher Matcher
	periods *period.Normalizer
	tables  *codetables.Tables
	opts    Options
}

func New(matcher Matcher, periods *period.Normalizer, tables *codetables.Tables, opts Options) *Mapper {
	if periods == nil {
		periods = period.NewNormalizer()
	}
	if tables == nil {
		tables = codetables.Default()
	}
	if opts.YieldEvery <= 0 {
		opts.YieldEvery = DefaultYieldEvery
	}
	if opts.StatementSource == "" {
		opts.StatementSource = DefaultStatementSource
	}
	return &Mapper{matcher: matcher, periods: periods, tables: tables, opts: opts}
}

// Map never fails: every degradation resolves to a documented fallback and, where
// the operator should know, a warning on the record.
func (m *Mapper) Map(line statement.Line) models.MappedRecord {
	work := m.matcher.MatchWork(line.ExternalWorkID, line.Title, line.ISWC)
	client := m.matcher.MatchClient(line.PartyName)

	clientName := line.PartyName
	if client.Status == models.MatchStatusMatched {
		if name, ok := m.matcher.ClientName(client.TargetID); ok {
			clientName = name
		}
	}

	rec := models.MappedRecord{
		WorkID:          work.TargetID,
		Title:           line.Title,
		ISWC:            line.ISWC,
		ClientID:        client.TargetID,
		ClientName:      clientName,
		ClientRole:      m.tables.Role(line.Role),
		SharePercent:    line.SharePercent,
		Source:          m.tables.Source(line.SourceCode),
		RoyaltyType:     m.tables.RoyaltyType(line.UsageType),
		GrossAmount:     line.GrossAmount,
		StatementSource: m.opts.StatementSource,
		ExternalWorkID:  line.ExternalWorkID,
		MatchStatus:     models.DeriveMatchStatus(work.Status, client.Status),
		MatchDetails:    fmt.Sprintf("Work: %s; Client: %s", work.Explanation, client.Explanation),
		WorkMatch:       work,
		ClientMatch:     client,
		Line:            line.Number,
	}

	rng := m.periods.Normalize(line.Period)
	rec.PeriodStart, rec.PeriodEnd, rec.PeriodFallback = rng.Start, rng.End, rng.Fallback
	if rng.Fallback {
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("period %q not recognized, defaulted to %s through %s", line.Period, rng.Start, rng.End))
	}

	if line.PaymentDate != "" {
		if d, ok := period.ParseDate(line.PaymentDate); ok {
			rec.PaymentDate = d
		} else {
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("payment date %q not recognized", line.PaymentDate))
		}
	}

	return rec
}

// MapAll maps lines in order, pausing every YieldEvery rows so a long file does not
// monopolize the scheduler. It stops early only if ctx is cancelled.
func (m *Mapper) MapAll(ctx context.Context, lines []statement.Line) ([]models.MappedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.MappedRecord, 0, len(lines))
	for i, line := range lines {
		if i > 0 && i%m.opts.YieldEvery == 0 {
			if err := m.yield(ctx); err != nil {
				return nil, err
			}
		}
		out = append(out, m.Map(line))
	}
	return out, nil
}

func (m *Mapper) yield(ctx context.Context) error {
	if m.opts.YieldPause <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}

	t := time.NewTimer(m.opts.YieldPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
