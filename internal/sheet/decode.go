// Package sheet decodes uploaded roster files into core tables.
//
// CSV and Excel workbooks are supported. Decoding is purely structural: it
// produces header text and row cells and leaves every semantic decision to
// the core package.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/modreview/internal/core"
)

var (
	// ErrUnsupportedFormat is returned for extensions other than .csv and .xlsx.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrSignatureMismatch is returned when file content contradicts its extension.
	ErrSignatureMismatch = errors.New("content does not match extension")
	// ErrMalformed wraps parse failures from the CSV and workbook readers.
	ErrMalformed = errors.New("malformed file")
)

// Format is a supported roster file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// zipMagic opens every xlsx file (an OOXML zip container).
var zipMagic = []byte("PK\x03\x04")

// FormatOf picks the format from a file name's extension.
func FormatOf(fileName string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		if ext == "" {
			ext = "(none)"
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// Sniff checks the first bytes of a file against its extension. Workbooks
// must be zip containers; CSV files must not be zip or contain NUL bytes.
func Sniff(head []byte, fileName string) error {
	format, err := FormatOf(fileName)
	if err != nil {
		return err
	}

	isZip := bytes.HasPrefix(head, zipMagic)
	switch format {
	case FormatXLSX:
		if !isZip {
			return fmt.Errorf("%w .xlsx", ErrSignatureMismatch)
		}
	case FormatCSV:
		if isZip || bytes.IndexByte(head, 0) >= 0 {
			return fmt.Errorf("%w .csv", ErrSignatureMismatch)
		}
	}
	return nil
}

// Decode reads a roster file. The first row is the header. Rows whose cells
// are all blank are dropped, and cells missing from short rows read as "".
func Decode(fileName string, r io.Reader) (*core.Table, error) {
	format, err := FormatOf(fileName)
	if err != nil {
		return nil, err
	}

	var records []record
	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatXLSX:
		records, err = readXLSX(r)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrEmptyRoster
	}
	return buildTable(fileName, records), nil
}

// record is one raw row and the spreadsheet line it started on.
type record struct {
	line   int
	fields []string
}

// NewCSVReader wraps r so a leading UTF-8 BOM is dropped and invalid UTF-8
// is replaced, then returns a lenient csv.Reader over it.
func NewCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(transform.NewReader(r, unicode.UTF8BOM.NewDecoder()))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return cr
}

func readCSV(r io.Reader) ([]record, error) {
	cr := NewCSVReader(r)

	var out []record
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid csv: %w", ErrMalformed, err)
		}
		line, _ := cr.FieldPos(0)
		out = append(out, record{line: line, fields: fields})
	}
	return out, nil
}

func readXLSX(r io.Reader) ([]record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid spreadsheet: %w", ErrMalformed, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: invalid spreadsheet: workbook has no sheets", ErrMalformed)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid spreadsheet: %w", ErrMalformed, err)
	}

	out := make([]record, 0, len(rows))
	for i, fields := range rows {
		out = append(out, record{line: i + 1, fields: fields})
	}
	// Leading blank rows carry no header.
	for len(out) > 0 && isBlank(out[0].fields) {
		out = out[1:]
	}
	return out, nil
}

func buildTable(fileName string, records []record) *core.Table {
	header := records[0].fields
	table := &core.Table{
		FileName: filepath.Base(fileName),
		Headers:  make([]string, len(header)),
	}
	for i, h := range header {
		table.Headers[i] = strings.TrimSpace(h)
	}

	for _, rec := range records[1:] {
		if isBlank(rec.fields) {
			continue
		}
		cells := make(map[string]string, len(table.Headers))
		for j, h := range table.Headers {
			if h == "" {
				continue
			}
			if _, dup := cells[h]; dup {
				continue
			}
			if j < len(rec.fields) {
				cells[h] = rec.fields[j]
			} else {
				cells[h] = ""
			}
		}
		table.Rows = append(table.Rows, core.ImportRow{Line: rec.line, Cells: cells})
	}
	return table
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
