package reconciliation

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainerrors "royalty-reconciliation-backend/internal/errors"
	"royalty-reconciliation-backend/internal/models"
)

// Filter narrows the staged records. Zero fields match everything.
type Filter struct {
	// Query is a case-insensitive substring over title, client name and external work id.
	Query  string             `form:"q" json:"q"`
	Status models.MatchStatus `form:"status" json:"status"`
	Source string             `form:"source" json:"source"`
}

func (f Filter) matches(rec *models.MappedRecord) bool {
	if f.Status != "" && rec.MatchStatus != f.Status {
		return false
	}
	if f.Source != "" && !strings.EqualFold(rec.Source, f.Source) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(rec.Title), q) ||
			strings.Contains(strings.ToLower(rec.ClientName), q) ||
			strings.Contains(strings.ToLower(rec.ExternalWorkID), q)
	}
	return true
}

// Stats are the running aggregates shown above the staging table.
type Stats struct {
	Total           int             `json:"total"`
	Matched         int             `json:"matched"`
	Partial         int             `json:"partial"`
	Unmatched       int             `json:"unmatched"`
	TotalGross      decimal.Decimal `json:"total_gross"`
	Selected        int             `json:"selected"`
	SelectedGross   decimal.Decimal `json:"selected_gross"`
	Committed       int             `json:"committed"`
	PeriodFallbacks int             `json:"period_fallbacks"`
}

// StagedRecord is a record together with its position and review state.
type StagedRecord struct {
	Index     int  `json:"index"`
	Selected  bool `json:"selected"`
	Committed bool `json:"committed"`
	models.MappedRecord
}

// Staging holds the mapped records of one statement file. It assumes a single
// writer; Session serializes access for the HTTP layer.
type Staging struct {
	// id distinguishes stagings of the same file in batch provenance.
	id        uuid.UUID
	filename  string
	records   []models.MappedRecord
	selected  []bool
	committed []bool
}

func NewStaging(filename string, records []models.MappedRecord) *Staging {
	return &Staging{
		id:        uuid.New(),
		filename:  filename,
		records:   records,
		selected:  make([]bool, len(records)),
		committed: make([]bool, len(records)),
	}
}

func (s *Staging) Filename() string { return s.filename }

func (s *Staging) Len() int { return len(s.records) }

func (s *Staging) checkIndex(i int) error {
	if i < 0 || i >= len(s.records) {
		return domainerrors.Validationf("record index %d out of range [0, %d)", i, len(s.records))
	}
	return nil
}

// Record returns the record at i.
func (s *Staging) Record(i int) (StagedRecord, error) {
	if err := s.checkIndex(i); err != nil {
		return StagedRecord{}, err
	}
	return s.staged(i), nil
}

func (s *Staging) staged(i int) StagedRecord {
	return StagedRecord{Index: i, Selected: s.selected[i], Committed: s.committed[i], MappedRecord: s.records[i]}
}

// Filter returns the indices of matching records in file order.
func (s *Staging) Filter(f Filter) []int {
	var out []int
	for i := range s.records {
		if f.matches(&s.records[i]) {
			out = append(out, i)
		}
	}
	return out
}

// Page returns a window of the filtered records and the filtered total.
func (s *Staging) Page(f Filter, offset, limit int) ([]StagedRecord, int) {
	idx := s.Filter(f)
	total := len(idx)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	out := make([]StagedRecord, 0, end-offset)
	for _, i := range idx[offset:end] {
		out = append(out, s.staged(i))
	}
	return out, total
}

// Toggle flips the selection of one record and returns the new state.
func (s *Staging) Toggle(i int) (bool, error) {
	if err := s.checkIndex(i); err != nil {
		return false, err
	}
	s.selected[i] = !s.selected[i]
	return s.selected[i], nil
}

// SetSelected applies one selection state to every index. It is all-or-nothing:
// an out-of-range index leaves the selection unchanged.
func (s *Staging) SetSelected(indices []int, selected bool) error {
	for _, i := range indices {
		if err := s.checkIndex(i); err != nil {
			return err
		}
	}
	for _, i := range indices {
		s.selected[i] = selected
	}
	return nil
}

// SelectFiltered is select-all over the current filter. It returns how many records
// it touched.
func (s *Staging) SelectFiltered(f Filter, selected bool) int {
	idx := s.Filter(f)
	for _, i := range idx {
		s.selected[i] = selected
	}
	return len(idx)
}

// SelectedIndices returns the selected, not yet committed indices in order.
func (s *Staging) SelectedIndices() []int {
	var out []int
	for i, sel := range s.selected {
		if sel && !s.committed[i] {
			out = append(out, i)
		}
	}
	return out
}

// SelectedRecords returns the records behind SelectedIndices.
func (s *Staging) SelectedRecords() []models.MappedRecord {
	idx := s.SelectedIndices()
	out := make([]models.MappedRecord, len(idx))
	for n, i := range idx {
		out[n] = s.records[i]
	}
	return out
}

// Residue is everything not folded into a batch yet.
func (s *Staging) Residue() []StagedRecord {
	var out []StagedRecord
	for i := range s.records {
		if !s.committed[i] {
			out = append(out, s.staged(i))
		}
	}
	return out
}

func (s *Staging) Stats() Stats {
	st := Stats{Total: len(s.records), TotalGross: decimal.Zero, SelectedGross: decimal.Zero}
	for i := range s.records {
		rec := &s.records[i]
		switch rec.MatchStatus {
		case models.MatchStatusMatched:
			st.Matched++
		case models.MatchStatusPartial:
			st.Partial++
		case models.MatchStatusUnmatched:
			st.Unmatched++
		}
		st.TotalGross = st.TotalGross.Add(rec.GrossAmount)
		if rec.PeriodFallback {
			st.PeriodFallbacks++
		}
		if s.committed[i] {
			st.Committed++
			continue
		}
		if s.selected[i] {
			st.Selected++
			st.SelectedGross = st.SelectedGross.Add(rec.GrossAmount)
		}
	}
	return st
}

func (s *Staging) markCommitted(indices []int) {
	for _, i := range indices {
		s.committed[i] = true
		s.selected[i] = false
	}
}
