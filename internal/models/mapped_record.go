package models

import (
	"github.com/shopspring/decimal"
)

// MatchStatus is the confidence tier of entity resolution for a line item.
type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusPartial   MatchStatus = "partial"
	MatchStatusUnmatched MatchStatus = "unmatched"
)

// Valid reports whether s is one of the three known tiers.
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusMatched, MatchStatusPartial, MatchStatusUnmatched:
		return true
	}
	return false
}

// DeriveMatchStatus combines the work and client sub-matches.
// Either side unmatched wins; both matched is matched; anything else is partial.
func DeriveMatchStatus(work, client MatchStatus) MatchStatus {
	switch {
	case work == MatchStatusUnmatched || client == MatchStatusUnmatched:
		return MatchStatusUnmatched
	case work == MatchStatusMatched && client == MatchStatusMatched:
		return MatchStatusMatched
	default:
		return MatchStatusPartial
	}
}

// MappedRecord is the staged, canonical form of one statement line.
type MappedRecord struct {
	WorkID          string          `json:"work_id"`
	Title           string          `json:"title"`
	ISWC            string          `json:"iswc"`
	ClientID        string          `json:"client_id,omitempty"`
	ClientName      string          `json:"client_name"`
	ClientRole      string          `json:"client_role"`
	SharePercent    decimal.Decimal `json:"share_percent"`
	Source          string          `json:"source"`
	RoyaltyType     string          `json:"royalty_type"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	PeriodStart     string          `json:"period_start"`
	PeriodEnd       string          `json:"period_end"`
	PeriodFallback  bool            `json:"period_fallback"`
	StatementSource string          `json:"statement_source"`
	PaymentDate     string          `json:"payment_date"`
	ExternalWorkID  string          `json:"external_work_id"`
	MatchStatus     MatchStatus     `json:"match_status"`
	MatchDetails    string          `json:"match_details"`

	WorkMatch   MatchResult `json:"work_match"`
	ClientMatch MatchResult `json:"client_match"`
	Warnings    []string    `json:"warnings,omitempty"`
	// Line is the 1-based data row in the source file.
	Line int `json:"line"`
}

// MatchResult is the outcome of resolving one entity.
type MatchResult struct {
	TargetID    string       `json:"target_id"`
	Status      MatchStatus  `json:"status"`
	Explanation string       `json:"explanation"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Suggestion is a near-miss catalog entry offered for manual review.
type Suggestion struct {
	TargetID string  `json:"target_id"`
	Label    string  `json:"label"`
	Score    float64 `json:"score"`
}
