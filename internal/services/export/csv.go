// Package export writes staged records to the flat CSV layout operators hand to
// downstream tools, and reads that layout back.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	domainerrors "royalty-reconciliation-backend/internal/errors"
	"royalty-reconciliation-backend/internal/models"
)

type column struct {
	header  string
	numeric bool
	get     func(models.MappedRecord) string
	set     func(*models.MappedRecord, string) error
}

//nolint:gochecknoglobals // Static column layout
var columns = []column{
	{header: "Work ID", get: func(r models.MappedRecord) string { return r.WorkID },
		set: func(r *models.MappedRecord, v string) error { r.WorkID = v; return nil }},
	{header: "Song Title", get: func(r models.MappedRecord) string { return r.Title },
		set: func(r *models.MappedRecord, v string) error { r.Title = v; return nil }},
	{header: "ISWC", get: func(r models.MappedRecord) string { return r.ISWC },
		set: func(r *models.MappedRecord, v string) error { r.ISWC = v; return nil }},
	{header: "Client Name", get: func(r models.MappedRecord) string { return r.ClientName },
		set: func(r *models.MappedRecord, v string) error { r.ClientName = v; return nil }},
	{header: "Client Role", get: func(r models.MappedRecord) string { return r.ClientRole },
		set: func(r *models.MappedRecord, v string) error { r.ClientRole = v; return nil }},
	{header: "Share %", numeric: true, get: func(r models.MappedRecord) string { return r.SharePercent.String() },
		set: func(r *models.MappedRecord, v string) (err error) { r.SharePercent, err = parseNumber(v); return err }},
	{header: "Source", get: func(r models.MappedRecord) string { return r.Source },
		set: func(r *models.MappedRecord, v string) error { r.Source = v; return nil }},
	{header: "Royalty Type", get: func(r models.MappedRecord) string { return r.RoyaltyType },
		set: func(r *models.MappedRecord, v string) error { r.RoyaltyType = v; return nil }},
	{header: "Amount", numeric: true, get: func(r models.MappedRecord) string { return r.GrossAmount.String() },
		set: func(r *models.MappedRecord, v string) (err error) { r.GrossAmount, err = parseNumber(v); return err }},
	{header: "Period Start", get: func(r models.MappedRecord) string { return r.PeriodStart },
		set: func(r *models.MappedRecord, v string) error { r.PeriodStart = v; return nil }},
	{header: "Period End", get: func(r models.MappedRecord) string { return r.PeriodEnd },
		set: func(r *models.MappedRecord, v string) error { r.PeriodEnd = v; return nil }},
	{header: "Payment Date", get: func(r models.MappedRecord) string { return r.PaymentDate },
		set: func(r *models.MappedRecord, v string) error { r.PaymentDate = v; return nil }},
	{header: "Match Status", get: func(r models.MappedRecord) string { return string(r.MatchStatus) },
		set: func(r *models.MappedRecord, v string) error {
			s := models.MatchStatus(v)
			if !s.Valid() {
				return fmt.Errorf("unknown match status %q", v)
			}
			r.MatchStatus = s
			return nil
		}},
	{header: "Match Details", get: func(r models.MappedRecord) string { return r.MatchDetails },
		set: func(r *models.MappedRecord, v string) error { r.MatchDetails = v; return nil }},
}

// WriteCSV writes one row per record. Text cells are always double-quoted and numeric
// cells never are, which encoding/csv cannot express.
func WriteCSV(w io.Writer, records []models.MappedRecord) error {
	bw := bufio.NewWriter(w)

	cells := make([]string, len(columns))
	for i, c := range columns {
		cells[i] = quote(c.header)
	}
	if _, err := bw.WriteString(strings.Join(cells, ",") + "\n"); err != nil {
		return err
	}

	for _, rec := range records {
		for i, c := range columns {
			v := c.get(rec)
			if !c.numeric {
				v = quote(v)
			}
			cells[i] = v
		}
		if _, err := bw.WriteString(strings.Join(cells, ",") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadCSV parses a file produced by WriteCSV. Columns are located by header, so a
// reordered file still reads.
func ReadCSV(r io.Reader) ([]models.MappedRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, domainerrors.InvalidFile(err, "export file is empty")
	}
	if err != nil {
		return nil, domainerrors.InvalidFile(err, "read export header")
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, c := range columns {
		if _, ok := pos[c.header]; !ok {
			missing = append(missing, c.header)
		}
	}
	if len(missing) > 0 {
		return nil, domainerrors.InvalidFile(nil, "export header is missing columns").WithDetails(missing)
	}

	var out []models.MappedRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domainerrors.InvalidFile(err, fmt.Sprintf("read export line %d", line))
		}

		rec := models.MappedRecord{Line: line}
		for _, c := range columns {
			var v string
			if i := pos[c.header]; i < len(row) {
				v = row[i]
			}
			if err := c.set(&rec, v); err != nil {
				return nil, domainerrors.InvalidFile(err, fmt.Sprintf("line %d, column %q", line, c.header))
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
