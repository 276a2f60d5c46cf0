package core

// coerce.go converts raw spreadsheet cell values into the pgtype values a
// column's kind family requires.
//
// Coercion is pure and total: every call returns a value or a typed error,
// and nothing is truncated or rounded silently. A decimal string going into
// an integer column fails unless its fractional part is exactly zero.
//
// Spreadsheet readers hand us strings, so date cells arrive either as
// ISO-8601 text or in one of the display layouts spreadsheet programs
// produce. Both are accepted; four-digit-year layouts are tried first since
// they are unambiguous.

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Dazzlm/excel-generation/internal/schema"
)

// numericPattern validates plain decimal notation, including scientific form.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1/2/06",
	"01/02/06",
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/06 15:04",
}

// Coerce converts one raw cell into the native value for col. A blank cell
// becomes a typed NULL when the column is nullable and a
// MissingRequiredValueError otherwise; bulk writes cannot fall back to a
// column default per row, so non-nullable columns always need a value once
// their header is present.
func Coerce(raw string, col schema.Column) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if col.Nullable {
			return nullFor(col.Kind), nil
		}
		return nil, &MissingRequiredValueError{Column: col.Name}
	}

	switch col.Kind {
	case schema.KindInteger:
		return coerceInteger(trimmed, col)
	case schema.KindNumeric:
		return coerceNumeric(trimmed, col)
	case schema.KindFloat:
		return coerceFloat(trimmed, col)
	case schema.KindBool:
		return coerceBool(trimmed, col)
	case schema.KindDate:
		return coerceDate(trimmed, col)
	case schema.KindTimestamp, schema.KindTimestampTZ:
		return coerceTimestamp(trimmed, col)
	default:
		return pgtype.Text{String: raw, Valid: true}, nil
	}
}

// nullFor returns the typed NULL for a kind family so chunk writes carry a
// correctly typed placeholder.
func nullFor(kind schema.Kind) any {
	switch kind {
	case schema.KindInteger:
		return pgtype.Int8{}
	case schema.KindNumeric:
		return pgtype.Numeric{}
	case schema.KindFloat:
		return pgtype.Float8{}
	case schema.KindBool:
		return pgtype.Bool{}
	case schema.KindDate:
		return pgtype.Date{}
	case schema.KindTimestamp:
		return pgtype.Timestamp{}
	case schema.KindTimestampTZ:
		return pgtype.Timestamptz{}
	default:
		return pgtype.Text{}
	}
}

func coercionError(raw string, col schema.Column) *TypeCoercionError {
	return &TypeCoercionError{Column: col.Name, RawValue: raw, Kind: col.Kind}
}

func coerceInteger(s string, col schema.Column) (any, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return pgtype.Int8{Int64: v, Valid: true}, nil
	}

	// Spreadsheets often render integers as "42.0". Accept the decimal form
	// only when the fractional part is exactly zero, handled textually so
	// values near the int64 boundary never round through float64.
	intPart, fracPart, found := strings.Cut(s, ".")
	if !found || strings.Trim(fracPart, "0") != "" {
		return nil, coercionError(s, col)
	}
	v, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return nil, coercionError(s, col)
	}
	return pgtype.Int8{Int64: v, Valid: true}, nil
}

func coerceNumeric(s string, col schema.Column) (any, error) {
	if !numericPattern.MatchString(s) {
		return nil, coercionError(s, col)
	}
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return nil, coercionError(s, col)
	}
	return n, nil
}

func coerceFloat(s string, col schema.Column) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, coercionError(s, col)
	}
	return pgtype.Float8{Float64: f, Valid: true}, nil
}

// coerceBool accepts exactly six tokens, case-insensitively: true/false,
// 1/0, yes/no. Anything else is ambiguous and fails.
func coerceBool(s string, col schema.Column) (any, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return pgtype.Bool{Bool: true, Valid: true}, nil
	case "false", "0", "no":
		return pgtype.Bool{Bool: false, Valid: true}, nil
	default:
		return nil, coercionError(s, col)
	}
}

func coerceDate(s string, col schema.Column) (any, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Date{Time: t, Valid: true}, nil
		}
	}
	// A datetime string targeting a date column is accepted only when its
	// time component is midnight; dropping a real time would be lossy.
	if t, ok := parseTimestamp(s); ok {
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return pgtype.Date{Time: t, Valid: true}, nil
		}
	}
	return nil, coercionError(s, col)
}

func coerceTimestamp(s string, col schema.Column) (any, error) {
	t, ok := parseTimestamp(s)
	if !ok {
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				t, ok = d, true
				break
			}
		}
	}
	if !ok {
		return nil, coercionError(s, col)
	}

	if col.Kind == schema.KindTimestampTZ {
		return pgtype.Timestamptz{Time: t.UTC(), Valid: true}, nil
	}
	return pgtype.Timestamp{Time: t, Valid: true}, nil
}

func parseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
