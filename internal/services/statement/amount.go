package statement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a statement number. It accepts a leading currency symbol,
// thousands separators, a trailing percent sign and accounting-style parentheses
// for negatives: "$1,234.50", "50%", "(12.00)".
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	v := raw
	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = v[1 : len(v)-1]
	}
	v = strings.TrimSuffix(strings.TrimSpace(v), "%")
	v = strings.TrimLeft(v, "$€£ ")
	v = strings.ReplaceAll(v, ",", "")

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
