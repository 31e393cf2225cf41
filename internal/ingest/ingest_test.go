package ingest

import (
	"errors"
	"strings"
	"testing"
)

const validAssignor = "9f3c2c6e-4b1a-4f4e-9a4b-2b7f6d8e1a3c"

func validCSV() []byte {
	return []byte(strings.Join([]string{
		"value,emissionDate,assignorId",
		"100.50,2024-01-15," + validAssignor,
		"250.00,2024-02-20," + validAssignor,
		"75.25,2024-03-10," + validAssignor,
	}, "\n"))
}

func TestValidateSize(t *testing.T) {
	if err := ValidateSize(100, 1000); err != nil {
		t.Errorf("expected size 100 under limit 1000 to pass, got %v", err)
	}

	err := ValidateSize(1001, 1000)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestValidateExtension(t *testing.T) {
	tests := []struct {
		fileName string
		ok       bool
	}{
		{"payables.csv", true},
		{"PAYABLES.CSV", true},
		{"batch.2024.csv", true},
		{"payables.txt", false},
		{"payables", false},
		{"csv", false},
	}

	for _, tt := range tests {
		err := ValidateExtension(tt.fileName)
		if tt.ok && err != nil {
			t.Errorf("%s: expected ok, got %v", tt.fileName, err)
		}
		if !tt.ok && !errors.Is(err, ErrUnsupportedFileType) {
			t.Errorf("%s: expected ErrUnsupportedFileType, got %v", tt.fileName, err)
		}
	}
}

func TestValidateCount(t *testing.T) {
	if err := ValidateCount(10, 10); err != nil {
		t.Errorf("count at limit should pass, got %v", err)
	}

	err := ValidateCount(11, 10)
	if !errors.Is(err, ErrTooManyItems) {
		t.Errorf("expected ErrTooManyItems, got %v", err)
	}
}

func TestParse(t *testing.T) {
	rows, err := Parse(validCSV())
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	if rows[0]["value"] != "100.50" {
		t.Errorf("expected value 100.50, got %q", rows[0]["value"])
	}
	if rows[1]["emissionDate"] != "2024-02-20" {
		t.Errorf("expected emissionDate 2024-02-20, got %q", rows[1]["emissionDate"])
	}
	if rows[2]["assignorId"] != validAssignor {
		t.Errorf("expected assignorId %s, got %q", validAssignor, rows[2]["assignorId"])
	}
}

func TestParseEmptyFile(t *testing.T) {
	_, err := Parse([]byte(""))
	if !errors.Is(err, ErrEmptyOrInvalidFile) {
		t.Errorf("expected ErrEmptyOrInvalidFile for empty file, got %v", err)
	}
}

func TestParseHeaderOnly(t *testing.T) {
	_, err := Parse([]byte("value,emissionDate,assignorId\n"))
	if !errors.Is(err, ErrEmptyOrInvalidFile) {
		t.Errorf("expected ErrEmptyOrInvalidFile for header-only file, got %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	// ragged rows violate the CSV shape and are fatal to the whole file
	data := []byte("value,emissionDate,assignorId\n100.50,2024-01-15\n")

	_, err := Parse(data)
	if !errors.Is(err, ErrMalformedFile) {
		t.Errorf("expected ErrMalformedFile for ragged CSV, got %v", err)
	}
}

func TestValidateRow(t *testing.T) {
	tests := []struct {
		name string
		row  RawRow
		skip bool
	}{
		{
			name: "valid",
			row:  RawRow{"value": "100.50", "emissionDate": "2024-01-15", "assignorId": validAssignor},
			skip: false,
		},
		{
			name: "rfc3339 date",
			row:  RawRow{"value": "10", "emissionDate": "2024-01-15T10:30:00Z", "assignorId": validAssignor},
			skip: false,
		},
		{
			name: "missing value",
			row:  RawRow{"emissionDate": "2024-01-15", "assignorId": validAssignor},
			skip: true,
		},
		{
			name: "non-numeric value",
			row:  RawRow{"value": "abc", "emissionDate": "2024-01-15", "assignorId": validAssignor},
			skip: true,
		},
		{
			name: "negative value",
			row:  RawRow{"value": "-5", "emissionDate": "2024-01-15", "assignorId": validAssignor},
			skip: true,
		},
		{
			name: "bad date",
			row:  RawRow{"value": "10", "emissionDate": "not-a-date", "assignorId": validAssignor},
			skip: true,
		},
		{
			name: "bad assignor id",
			row:  RawRow{"value": "10", "emissionDate": "2024-01-15", "assignorId": "not-a-uuid"},
			skip: true,
		},
		{
			name: "missing assignor id",
			row:  RawRow{"value": "10", "emissionDate": "2024-01-15"},
			skip: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateRow(tt.row, 0)
			if result.Skipped() != tt.skip {
				t.Errorf("expected skipped=%v, got %v (reason %q)", tt.skip, result.Skipped(), result.SkipReason)
			}
			if !tt.skip && result.Payable.AssignorID != validAssignor {
				t.Errorf("expected payable to carry assignor id, got %q", result.Payable.AssignorID)
			}
		})
	}
}

func TestValidateRowsSkipsInvalid(t *testing.T) {
	// three valid rows plus one with a malformed value: the bad row is
	// skipped and the batch proceeds with the rest
	data := []byte(strings.Join([]string{
		"value,emissionDate,assignorId",
		"100.50,2024-01-15," + validAssignor,
		"not-a-number,2024-01-16," + validAssignor,
		"250.00,2024-02-20," + validAssignor,
		"75.25,2024-03-10," + validAssignor,
	}, "\n"))

	rows, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	payables := ValidateRows(rows)
	if len(payables) != 3 {
		t.Fatalf("expected 3 valid payables, got %d", len(payables))
	}
}

func TestValidateRowsAllInvalid(t *testing.T) {
	rows := []RawRow{
		{"value": "x", "emissionDate": "2024-01-15", "assignorId": validAssignor},
		{"value": "10", "emissionDate": "bad", "assignorId": validAssignor},
	}

	payables := ValidateRows(rows)
	if len(payables) != 0 {
		t.Fatalf("expected no valid payables, got %d", len(payables))
	}
}
