// Package statement reads third-party royalty statements into canonical rows and
// validates them before mapping.
package statement

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Field is a canonical statement column.
type Field string

const (
	FieldTitle          Field = "title"
	FieldExternalWorkID Field = "external_work_id"
	FieldISWC           Field = "iswc"
	FieldPartyName      Field = "party_name"
	FieldSharePercent   Field = "share_percent"
	FieldRole           Field = "role"
	FieldSourceCode     Field = "source_code"
	FieldUsageType      Field = "usage_type"
	FieldPeriod         Field = "period"
	FieldGrossAmount    Field = "gross_amount"
	FieldPaymentDate    Field = "payment_date"
)

// headerAliases maps normalized header text to a canonical field.
//
//nolint:gochecknoglobals // Static lookup table
var headerAliases = map[string]Field{
	"title":            FieldTitle,
	"songtitle":        FieldTitle,
	"worktitle":        FieldTitle,
	"song":             FieldTitle,
	"compositiontitle": FieldTitle,

	"workid":         FieldExternalWorkID,
	"worknumber":     FieldExternalWorkID,
	"workno":         FieldExternalWorkID,
	"externalworkid": FieldExternalWorkID,
	"bmiworkid":      FieldExternalWorkID,
	"songid":         FieldExternalWorkID,

	"iswc":     FieldISWC,
	"iswccode": FieldISWC,

	"participantname":     FieldPartyName,
	"participant":         FieldPartyName,
	"interestedparty":     FieldPartyName,
	"interestedpartyname": FieldPartyName,
	"ipname":              FieldPartyName,
	"partyname":           FieldPartyName,
	"payee":               FieldPartyName,
	"writerpublisher":     FieldPartyName,
	"clientname":          FieldPartyName,

	"share":            FieldSharePercent,
	"sharepercent":     FieldSharePercent,
	"sharepct":         FieldSharePercent,
	"participantshare": FieldSharePercent,
	"ownership":        FieldSharePercent,
	"ownershippercent": FieldSharePercent,

	"role":            FieldRole,
	"participantrole": FieldRole,
	"capacity":        FieldRole,
	"iprole":          FieldRole,
	"clientrole":      FieldRole,

	"source":            FieldSourceCode,
	"sourcecode":        FieldSourceCode,
	"performancesource": FieldSourceCode,
	"perfsource":        FieldSourceCode,

	"usage":       FieldUsageType,
	"usagetype":   FieldUsageType,
	"usetype":     FieldUsageType,
	"royaltytype": FieldUsageType,

	"period":             FieldPeriod,
	"performanceperiod":  FieldPeriod,
	"statementperiod":    FieldPeriod,
	"perfperiod":         FieldPeriod,
	"distributionperiod": FieldPeriod,

	"amount":                FieldGrossAmount,
	"grossamount":           FieldGrossAmount,
	"royaltyamount":         FieldGrossAmount,
	"earnings":              FieldGrossAmount,
	"currentactivityamount": FieldGrossAmount,

	"paymentdate":      FieldPaymentDate,
	"paiddate":         FieldPaymentDate,
	"paydate":          FieldPaymentDate,
	"distributiondate": FieldPaymentDate,
}

// FieldForHeader resolves a header cell to a canonical field.
func FieldForHeader(header string) (Field, bool) {
	f, ok := headerAliases[normalizeHeader(header)]
	return f, ok
}

func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RawRow is one data row keyed by canonical field. Columns that did not resolve
// to a field are dropped when the row is built.
type RawRow struct {
	Line   int
	Values map[Field]string
}

// Get returns the trimmed cell value for f, or "" when the column is absent.
func (r RawRow) Get(f Field) string {
	return strings.TrimSpace(r.Values[f])
}

// Line is a validated statement row with typed numeric columns.
type Line struct {
	Number         int
	Title          string
	ExternalWorkID string
	ISWC           string
	PartyName      string
	SharePercent   decimal.Decimal
	Role           string
	SourceCode     string
	UsageType      string
	Period         string
	GrossAmount    decimal.Decimal
	PaymentDate    string
}

// Extract reads the named fields out of a validated row. Numeric cells that fail to parse become zero.
func Extract(row RawRow) Line {
	share, _ := ParseAmount(row.Get(FieldSharePercent))
	amount, _ := ParseAmount(row.Get(FieldGrossAmount))
	return Line{
		Number:         row.Line,
		Title:          row.Get(FieldTitle),
		ExternalWorkID: row.Get(FieldExternalWorkID),
		ISWC:           row.Get(FieldISWC),
		PartyName:      row.Get(FieldPartyName),
		SharePercent:   share,
		Role:           row.Get(FieldRole),
		SourceCode:     row.Get(FieldSourceCode),
		UsageType:      row.Get(FieldUsageType),
		Period:         row.Get(FieldPeriod),
		GrossAmount:    amount,
		PaymentDate:    row.Get(FieldPaymentDate),
	}
}
