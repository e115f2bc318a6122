package roster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/domain/member"
)

// Column names of the roster header.
const (
	ColumnFirstName   = "first_name"
	ColumnLastName    = "last_name"
	ColumnEmail       = "email"
	ColumnTitle       = "title"
	ColumnPhone       = "phone"
	ColumnCompanyName = "company_name"
	ColumnLinkedInURL = "linkedin_url"
	ColumnTwitter     = "twitter_handle"
)

var (
	// errMissingColumn is returned when the header lacks a mandatory column.
	errMissingColumn = errors.New("roster header is missing a mandatory column")
	// errEmptyRoster is returned for a file without a header row.
	errEmptyRoster = errors.New("roster is empty")

	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

// RowError reports a row that was skipped.
type RowError struct {
	// Line is the 1-based line number in the file.
	Line int
	// Err wraps failure.ErrValidation.
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Result is the outcome of reading a roster.
type Result struct {
	// Members are the valid rows, normalized, in file order.
	Members []member.Record
	// Skipped are the rows that failed validation.
	Skipped []*RowError
}

// ReadFile reads the roster at path.
func ReadFile(path string) (*Result, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: read roster: %w", failure.ErrIO, err)
	}

	return Read(bytes.NewReader(contents))
}

// Read parses a roster. Column order is taken from the header; unknown columns
// are ignored. Invalid rows are reported in Result.Skipped and do not stop the read.
func Read(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", failure.ErrValidation, errEmptyRoster)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: read roster header: %w", failure.ErrValidation, err)
	}

	columns := indexHeader(header)

	for _, name := range []string{ColumnFirstName, ColumnLastName, ColumnEmail} {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s: %w", failure.ErrValidation, name, errMissingColumn)
		}
	}

	result := new(Result)

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, fmt.Errorf("%w: read roster: %w", failure.ErrIO, err)
			}

			result.Skipped = append(result.Skipped, &RowError{
				Line: parseErr.StartLine,
				Err:  fmt.Errorf("%w: %w", failure.ErrValidation, err),
			})

			continue
		}

		if isBlank(row) {
			continue
		}

		line, _ := reader.FieldPos(0)

		rec := columns.record(row).Normalize()
		if err = rec.Validate(); err != nil {
			result.Skipped = append(result.Skipped, &RowError{Line: line, Err: err})

			continue
		}

		result.Members = append(result.Members, rec)
	}

	return result, nil
}

// header maps normalized column names to their positions.
type header map[string]int

func indexHeader(names []string) header {
	columns := make(header, len(names))

	for i, name := range names {
		if i == 0 {
			name = string(bytes.TrimPrefix([]byte(name), utf8BOM))
		}

		name = strings.ToLower(strings.TrimSpace(name))
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}

	return columns
}

func (h header) value(row []string, column string) string {
	i, ok := h[column]
	if !ok || i >= len(row) {
		return ""
	}

	return row[i]
}

func (h header) record(row []string) member.Record {
	return member.Record{
		FirstName:     h.value(row, ColumnFirstName),
		LastName:      h.value(row, ColumnLastName),
		Email:         h.value(row, ColumnEmail),
		Title:         h.value(row, ColumnTitle),
		Phone:         h.value(row, ColumnPhone),
		CompanyName:   h.value(row, ColumnCompanyName),
		LinkedInURL:   h.value(row, ColumnLinkedInURL),
		TwitterHandle: h.value(row, ColumnTwitter),
	}
}

func isBlank(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}

	return true
}
