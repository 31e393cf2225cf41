package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"payflow/internal/model"
)

// File-level validation failures. These are fatal to the upload and are
// surfaced to the caller before anything is persisted.
var (
	ErrFileTooLarge        = errors.New("file size exceeds the maximum allowed size")
	ErrUnsupportedFileType = errors.New("only CSV files are allowed")
	ErrMalformedFile       = errors.New("failed to parse CSV file")
	ErrTooManyItems        = errors.New("too many items in batch")
	ErrEmptyOrInvalidFile  = errors.New("file is empty or contains no valid data")
)

// RawRow is one parsed CSV row keyed by header column.
type RawRow map[string]string

// RowResult is the outcome of row-level validation. Row failures are not
// fatal to the batch: a skipped row carries its reason and the coordinator
// logs and drops it.
type RowResult struct {
	Payable    model.Payable
	SkipReason string
}

// Skipped reports whether the row failed validation.
func (r RowResult) Skipped() bool {
	return r.SkipReason != ""
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
}

// ValidateSize fails when the upload exceeds the configured byte ceiling.
func ValidateSize(byteLength, maxBytes int) error {
	if byteLength > maxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, byteLength, maxBytes)
	}
	return nil
}

// ValidateExtension fails unless the file name ends in .csv.
func ValidateExtension(fileName string) error {
	idx := strings.LastIndex(fileName, ".")
	if idx < 0 || !strings.EqualFold(fileName[idx+1:], "csv") {
		return fmt.Errorf("%w: %q", ErrUnsupportedFileType, fileName)
	}
	return nil
}

// ValidateCount fails when the parsed row count exceeds the batch ceiling.
func ValidateCount(count, maxItems int) error {
	if count > maxItems {
		return fmt.Errorf("%w: %d rows (max %d)", ErrTooManyItems, count, maxItems)
	}
	return nil
}

// Parse reads the CSV bytes into raw header-keyed rows. The header row is
// required; a file that cannot be read as CSV is fatal, while field-level
// failures are left to row validation.
func Parse(data []byte) ([]RawRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w", ErrEmptyOrInvalidFile)
	}

	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	// ReadAll enforces a uniform field count, so every record is as wide as
	// the header
	rows := make([]RawRow, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(RawRow, len(header))
		for i, column := range header {
			row[column] = strings.TrimSpace(record[i])
		}

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w", ErrEmptyOrInvalidFile)
	}

	return rows, nil
}

// ValidateRow applies the field-level schema to a single row: numeric value,
// parseable emission date and a UUID assignor reference.
func ValidateRow(row RawRow, index int) RowResult {
	skip := func(format string, args ...interface{}) RowResult {
		return RowResult{SkipReason: fmt.Sprintf("row %d: %s", index+1, fmt.Sprintf(format, args...))}
	}

	rawValue, ok := row["value"]
	if !ok || rawValue == "" {
		return skip("value is required")
	}
	value, err := strconv.ParseFloat(rawValue, 64)
	if err != nil {
		return skip("value must be a number, got %q", rawValue)
	}
	if value <= 0 {
		return skip("value must be positive, got %v", value)
	}

	emissionDate, ok := row["emissionDate"]
	if !ok || emissionDate == "" {
		return skip("emissionDate is required")
	}
	if !validDate(emissionDate) {
		return skip("emissionDate %q is not a valid date", emissionDate)
	}

	assignorID, ok := row["assignorId"]
	if !ok || assignorID == "" {
		return skip("assignorId is required")
	}
	if _, err := uuid.Parse(assignorID); err != nil {
		return skip("assignorId %q is not a valid UUID", assignorID)
	}

	return RowResult{Payable: model.Payable{
		Value:        value,
		EmissionDate: emissionDate,
		AssignorID:   assignorID,
	}}
}

// ValidateRows runs row validation over every parsed row, collecting the
// valid payables and logging skipped rows. The caller decides whether an
// all-skipped outcome aborts the batch.
func ValidateRows(rows []RawRow) []model.Payable {
	payables := make([]model.Payable, 0, len(rows))
	for i, row := range rows {
		result := ValidateRow(row, i)
		if result.Skipped() {
			log.Warn().Str("reason", result.SkipReason).Msg("Skipping invalid row")
			continue
		}
		payables = append(payables, result.Payable)
	}
	return payables
}

func validDate(value string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}
