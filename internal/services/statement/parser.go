package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	domainerrors "royalty-reconciliation-backend/internal/errors"
)

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte("PK\x03\x04")
)

// ParseResult is the outcome of one parse pass over a statement file.
type ParseResult struct {
	Filename  string     `json:"filename"`
	TotalRows int        `json:"total_rows"`
	Valid     []Line     `json:"-"`
	Invalid   []RowError `json:"invalid"`
}

// Parser reads statement files. Only the first worksheet of a workbook is read.
type Parser struct {
	validator *Validator
}

func NewParser(v *Validator) *Parser {
	if v == nil {
		v = NewValidator(DefaultRules())
	}
	return &Parser{validator: v}
}

// Parse reads, validates and extracts every row. File-level problems (unreadable
// container, empty file, missing required columns) abort the pass with ErrInvalidFile;
// row-level problems land in ParseResult.Invalid.
func (p *Parser) Parse(filename string, r io.Reader) (*ParseResult, error) {
	rows, err := p.ReadRows(filename, r)
	if err != nil {
		return nil, err
	}

	valid, invalid := p.validator.Partition(rows)
	lines := make([]Line, 0, len(valid))
	for _, row := range valid {
		lines = append(lines, Extract(row))
	}

	return &ParseResult{
		Filename:  filename,
		TotalRows: len(rows),
		Valid:     lines,
		Invalid:   invalid,
	}, nil
}

// ReadRows decodes the file into canonical raw rows without validating them.
func (p *Parser) ReadRows(filename string, r io.Reader) ([]RawRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domainerrors.InvalidFile(err, "cannot read statement file")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, domainerrors.InvalidFile(nil, "statement file is empty")
	}

	var records [][]string
	if isWorkbook(filename, data) {
		records, err = readWorkbook(data)
	} else {
		records, err = readDelimited(data)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domainerrors.InvalidFile(nil, "statement file has no header row")
	}

	columns, err := p.resolveHeader(records[0])
	if err != nil {
		return nil, err
	}

	rows := make([]RawRow, 0, len(records)-1)
	for i, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		values := make(map[Field]string, len(columns))
		for idx, field := range columns {
			if idx < len(record) {
				values[field] = record[idx]
			}
		}
		// header is line 1
		rows = append(rows, RawRow{Line: i + 2, Values: values})
	}
	return rows, nil
}

// resolveHeader maps column positions to fields. The first column claiming a field wins.
func (p *Parser) resolveHeader(header []string) (map[int]Field, error) {
	columns := make(map[int]Field)
	seen := make(map[Field]bool)
	for idx, cell := range header {
		field, ok := FieldForHeader(cell)
		if !ok || seen[field] {
			continue
		}
		seen[field] = true
		columns[idx] = field
	}

	var missing []string
	for _, f := range p.validator.Rules().Required {
		if !seen[f] {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, domainerrors.InvalidFile(nil, "header is missing required columns: "+strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing_columns": missing, "header": header})
	}
	return columns, nil
}

func isWorkbook(filename string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return bytes.HasPrefix(data, zipMagic)
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domainerrors.InvalidFile(err, "cannot open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domainerrors.InvalidFile(nil, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, domainerrors.InvalidFile(err, fmt.Sprintf("cannot read sheet %q", sheets[0]))
	}
	return rows, nil
}

func readDelimited(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		// Legacy PRO exports are commonly Windows-1252.
		src = transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder())
	}

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.Comma = sniffDelimiter(data)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, domainerrors.InvalidFile(err, "cannot parse delimited statement")
	}
	return records, nil
}

// sniffDelimiter picks the most frequent candidate delimiter on the header line.
func sniffDelimiter(data []byte) rune {
	header := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		header = data[:idx]
	}

	best, bestCount := ',', 0
	for _, candidate := range []rune{',', '\t', ';', '|'} {
		if n := bytes.Count(header, []byte(string(candidate))); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
