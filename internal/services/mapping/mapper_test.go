package mapping

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royalty-reconciliation-backend/internal/models"
	"royalty-reconciliation-backend/internal/services/codetables"
	"royalty-reconciliation-backend/internal/services/matching"
	"royalty-reconciliation-backend/internal/services/period"
	"royalty-reconciliation-backend/internal/services/statement"
)

func newTestMapper(opts Options) *Mapper {
	engine := matching.NewEngine(
		[]models.Work{
			{ID: "w-1", Title: "Test Song 1", ExternalID: "BMI001"},
			{ID: "w-2", Title: "Known Title", ExternalID: "BMI002"},
		},
		[]models.Client{{ID: "c-1", Name: "John Doe Music"}},
	)
	periods := &period.Normalizer{Now: func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }}
	return New(engine, periods, codetables.Default(), opts)
}

func line(workID, title, party string) statement.Line {
	return statement.Line{
		Number:         2,
		Title:          title,
		ExternalWorkID: workID,
		PartyName:      party,
		SharePercent:   decimal.NewFromInt(50),
		Role:           "W",
		SourceCode:     "R",
		UsageType:      "PERF",
		Period:         "03/2024",
		GrossAmount:    decimal.RequireFromString("12.34"),
		PaymentDate:    "06/15/2024",
	}
}

func TestMap_FullyMatched(t *testing.T) {
	m := newTestMapper(Options{})

	rec := m.Map(line("BMI001", "Test Song 1", "john doe music"))

	assert.Equal(t, models.MatchStatusMatched, rec.MatchStatus)
	assert.Equal(t, "w-1", rec.WorkID)
	assert.Equal(t, "c-1", rec.ClientID)
	assert.Equal(t, "John Doe Music", rec.ClientName)
	assert.Equal(t, "writer", rec.ClientRole)
	assert.Equal(t, "Radio", rec.Source)
	assert.Equal(t, "performance", rec.RoyaltyType)
	assert.Equal(t, "2024-03-01", rec.PeriodStart)
	assert.Equal(t, "2024-03-31", rec.PeriodEnd)
	assert.False(t, rec.PeriodFallback)
	assert.Equal(t, "2024-06-15", rec.PaymentDate)
	assert.Equal(t, "BMI", rec.StatementSource)
	assert.Equal(t, "BMI001", rec.ExternalWorkID)
	assert.True(t, rec.GrossAmount.Equal(decimal.RequireFromString("12.34")))
	assert.Contains(t, rec.MatchDetails, "Work: matched by work ID BMI001")
	assert.Contains(t, rec.MatchDetails, "Client: matched client")
	assert.Empty(t, rec.Warnings)
}

func TestMap_TitleOnlyWithUnknownClientIsUnmatched(t *testing.T) {
	m := newTestMapper(Options{})

	rec := m.Map(line("ZZZ", "known title!", "Stranger"))

	assert.Equal(t, models.MatchStatusPartial, rec.WorkMatch.Status)
	assert.Equal(t, models.MatchStatusUnmatched, rec.ClientMatch.Status)
	assert.Equal(t, models.MatchStatusUnmatched, rec.MatchStatus)
	assert.Equal(t, "Stranger", rec.ClientName)
}

func TestMap_TitleOnlyWithKnownClientIsPartial(t *testing.T) {
	m := newTestMapper(Options{})

	rec := m.Map(line("ZZZ", "Known Title", "John Doe Music"))

	assert.Equal(t, models.MatchStatusPartial, rec.MatchStatus)
	assert.Equal(t, "w-2", rec.WorkID)
}

func TestMap_UnmatchedWorkGetsPlaceholder(t *testing.T) {
	m := newTestMapper(Options{})

	rec := m.Map(line("BMI777", "Brand New", "John Doe Music"))

	assert.Equal(t, "NEW-BMI777", rec.WorkID)
	assert.Equal(t, models.MatchStatusUnmatched, rec.MatchStatus)
}

func TestMap_Degradations(t *testing.T) {
	m := newTestMapper(Options{StatementSource: "ASCAP"})
	l := line("BMI001", "Test Song 1", "John Doe Music")
	l.Period = "garbage"
	l.PaymentDate = "someday"
	l.SourceCode = "ZZ"
	l.UsageType = "Ringtone"
	l.Role = "XX"

	rec := m.Map(l)

	assert.True(t, rec.PeriodFallback)
	assert.Equal(t, "2026-01-01", rec.PeriodStart)
	assert.Equal(t, "2026-12-31", rec.PeriodEnd)
	assert.Empty(t, rec.PaymentDate)
	assert.Equal(t, "ZZ", rec.Source)
	assert.Equal(t, "Ringtone", rec.RoyaltyType)
	assert.Equal(t, "XX", rec.ClientRole)
	assert.Equal(t, "ASCAP", rec.StatementSource)
	assert.Len(t, rec.Warnings, 2)
	assert.Equal(t, models.MatchStatusMatched, rec.MatchStatus)
}

func TestMapAll_PreservesOrderAcrossYields(t *testing.T) {
	m := newTestMapper(Options{YieldEvery: 3, YieldPause: time.Microsecond})

	var lines []statement.Line
	for i := range 10 {
		l := line(fmt.Sprintf("X%d", i), "t", "p")
		l.Number = i + 2
		lines = append(lines, l)
	}

	recs, err := m.MapAll(context.Background(), lines)
	require.NoError(t, err)
	require.Len(t, recs, 10)
	for i, rec := range recs {
		assert.Equal(t, i+2, rec.Line)
		assert.Equal(t, fmt.Sprintf("NEW-X%d", i), rec.WorkID)
	}
}

func TestMapAll_Cancelled(t *testing.T) {
	m := newTestMapper(Options{YieldEvery: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.MapAll(ctx, []statement.Line{line("a", "b", "c"), line("d", "e", "f")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapAll_Empty(t *testing.T) {
	recs, err := newTestMapper(Options{}).MapAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
