package statement

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Rules lists the fields a row must carry and the fields that must parse as numbers when present.
type Rules struct {
	Required []Field
	Numeric  []Field
}

// DefaultRules is the rule set for performance-rights bulk exports.
func DefaultRules() Rules {
	return Rules{
		Required: []Field{FieldTitle, FieldExternalWorkID, FieldPartyName, FieldGrossAmount},
		Numeric:  []Field{FieldGrossAmount, FieldSharePercent},
	}
}

// ValidationResult is the verdict for one row.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// RowError is an invalid row kept for the operator's validation report.
type RowError struct {
	Line   int      `json:"line"`
	Errors []string `json:"errors"`
}

// Validator checks raw rows against Rules. It has no side effects.
type Validator struct {
	v     *validator.Validate
	rules Rules
}

// NewValidator builds a validator with the "amount" tag registered.
func NewValidator(rules Rules) *Validator {
	v := validator.New()
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := ParseAmount(fl.Field().String())
		return err == nil
	})
	return &Validator{v: v, rules: rules}
}

// Rules returns the rule set the validator enforces.
func (val *Validator) Rules() Rules {
	return val.rules
}

// Validate reports every rule the row breaks. A required field that is missing is
// not also reported as non-numeric.
func (val *Validator) Validate(row RawRow) ValidationResult {
	var errs []string
	missing := make(map[Field]bool)

	for _, f := range val.rules.Required {
		if err := val.v.Var(row.Get(f), "required"); err != nil {
			missing[f] = true
			errs = append(errs, fmt.Sprintf("missing required field %q", f))
		}
	}

	for _, f := range val.rules.Numeric {
		value := row.Get(f)
		if value == "" || missing[f] {
			continue
		}
		if err := val.v.Var(value, "amount"); err != nil {
			errs = append(errs, fmt.Sprintf("field %q must be numeric, got %q", f, value))
		}
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// Partition splits rows into valid rows and a report of invalid ones, preserving order.
func (val *Validator) Partition(rows []RawRow) ([]RawRow, []RowError) {
	valid := make([]RawRow, 0, len(rows))
	var invalid []RowError
	for _, row := range rows {
		res := val.Validate(row)
		if res.IsValid {
			valid = append(valid, row)
			continue
		}
		invalid = append(invalid, RowError{Line: row.Line, Errors: res.Errors})
	}
	return valid, invalid
}
