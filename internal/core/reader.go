package core

// reader.go tokenizes import files into rows.
//
// Files exported from spreadsheets often carry a byte order mark or stray
// non-UTF-8 bytes. The input is decoded before CSV parsing:
//
//   - A UTF-8 or UTF-16 BOM selects the encoding and is dropped
//   - Without a BOM the input is read as UTF-8
//   - Invalid UTF-8 sequences become U+FFFD instead of failing the file
//
// Only structural CSV failures (unterminated quotes, stray quotes in bare
// fields) abort the import. Everything else is a row-level concern.

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("empty file")

// NewImportReader wraps r with BOM handling and UTF-8 repair.
func NewImportReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// ReadRows tokenizes CSV input. The first record is the header; each later
// record becomes a RawRow keyed by header name. Empty lines are skipped by
// the CSV reader; a record of blank cells is kept so row numbers follow the
// file and the row fails as missing fields. Short records simply lack the trailing fields; extra cells are ignored.
//
// A structural parse failure returns a *MalformedInputError, which matches
// ErrMalformedInput. An input without a header returns ErrEmptyFile, which
// also matches ErrMalformedInput.
func ReadRows(r io.Reader) ([]RawRow, error) {
	cr := csv.NewReader(NewImportReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &MalformedInputError{Err: ErrEmptyFile}
	}
	if err != nil {
		return nil, malformed(err)
	}
	header = normalizeHeader(header)

	var rows []RawRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(err)
		}
		rows = append(rows, toRawRow(header, record))
	}
	return rows, nil
}

// normalizeHeader trims header cells. Duplicate names keep the last column.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func toRawRow(header, record []string) RawRow {
	row := make(RawRow, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		if i < len(record) {
			row[name] = record[i]
		} else {
			row[name] = ""
		}
	}
	return row
}

func malformed(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &MalformedInputError{Line: pe.Line, Err: pe.Err}
	}
	return &MalformedInputError{Err: err}
}
