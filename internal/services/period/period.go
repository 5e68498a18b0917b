// Package period turns free-form statement period text into a calendar date range.
package period

import (
	"regexp"
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

var monthYear = regexp.MustCompile(`\b(\d{1,2})\s*/\s*(\d{4})\b`)

// Range is an inclusive date range. Fallback is set when the input carried no
// recognizable month/year and the current calendar year was substituted.
type Range struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Fallback bool   `json:"fallback"`
}

// Normalizer parses period strings. Now supplies the clock for the fallback year.
type Normalizer struct {
	Now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Normalize extracts the first "MM/YYYY" in s and returns that whole month.
// Anything else yields Jan 1 to Dec 31 of the current year with Fallback set.
func (n *Normalizer) Normalize(s string) Range {
	if m := monthYear.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 {
			return MonthRange(year, time.Month(month))
		}
	}
	return n.fallback()
}

// MonthRange returns the first and last day of a month.
func MonthRange(year int, month time.Month) Range {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return Range{Start: first.Format(DateLayout), End: last.Format(DateLayout)}
}

func (n *Normalizer) fallback() Range {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	year := now().Year()
	return Range{
		Start:    time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Format(DateLayout),
		End:      time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).Format(DateLayout),
		Fallback: true,
	}
}

//nolint:gochecknoglobals // Static lookup table
var paymentLayouts = []string{
	DateLayout,
	"01/02/2006",
	"1/2/2006",
	"02-01-2006",
	"2006/01/02",
	"20060102",
}

// ParseDate normalizes a payment date to YYYY-MM-DD. US month/day order is tried before
// the day-first dashed form.
func ParseDate(s string) (string, bool) {
	for _, layout := range paymentLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), true
		}
	}
	return "", false
}
