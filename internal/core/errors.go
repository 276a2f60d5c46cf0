package core

// errors.go defines the error taxonomy for both pipeline directions.
//
// Job-level errors (TableNotFoundError, ColumnMappingError, FileFormatError,
// InvalidFieldError) abort the whole job before any write. Row-level errors
// (TypeCoercionError, MissingRequiredValueError) are recorded in the
// BatchResult and never abort the job. Chunk-level DatabaseWriteError is
// attributed to every row of the failing chunk and the job continues.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Dazzlm/excel-generation/internal/schema"
)

// ErrNoPrimaryKey is returned when update_existing is requested for a table
// without a declared primary key. Only declared primary keys are used for
// upsert matching; there is no unique-index fallback.
var ErrNoPrimaryKey = errors.New("table has no declared primary key, cannot upsert")

// ErrConnectionLost marks a write failure caused by losing the database
// rather than by the data. The store wraps connection-class errors with it
// so the upload pipeline can stop instead of grinding through chunks that
// are all doomed to fail the same way.
var ErrConnectionLost = errors.New("database connection lost")

// TableNotFoundError indicates the target table does not exist in the
// database catalog.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %q not found", e.Table)
}

// FileFormatError indicates the uploaded spreadsheet could not be read.
type FileFormatError struct {
	Err error
}

func (e *FileFormatError) Error() string {
	return fmt.Sprintf("unreadable spreadsheet: %v", e.Err)
}

func (e *FileFormatError) Unwrap() error { return e.Err }

// InvalidFieldError reports export fields or filter columns that are not
// columns of the target table. Fields must match schema columns exactly;
// they are a known projection, not user-typed headers.
type InvalidFieldError struct {
	Table  string
	Fields []string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("unknown fields for table %q: %s", e.Table, strings.Join(e.Fields, ", "))
}

// ColumnMappingError reports an upload whose headers could not be reconciled
// with the table schema. It fails the whole job before any row is processed,
// since the mapping problem affects every row identically.
type ColumnMappingError struct {
	Table           string
	MissingRequired []string
	UnmappedHeaders []string
	// Suggestions maps an unmapped header to schema columns ranked by edit
	// distance. Informational only; never auto-applied.
	Suggestions map[string][]string
}

func (e *ColumnMappingError) Error() string {
	var parts []string
	if len(e.MissingRequired) > 0 {
		parts = append(parts, "missing required columns: "+strings.Join(e.MissingRequired, ", "))
	}
	for _, h := range e.UnmappedHeaders {
		msg := fmt.Sprintf("unknown column %q", h)
		if s := e.Suggestions[h]; len(s) > 0 {
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(s, " or "))
		}
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("column mapping failed for table %q", e.Table)
	}
	return fmt.Sprintf("column mapping failed for table %q: %s", e.Table, strings.Join(parts, "; "))
}

// TypeCoercionError reports a cell value that cannot be converted to its
// column's kind. Isolated to one row.
type TypeCoercionError struct {
	Column   string
	RawValue string
	Kind     schema.Kind
}

func (e *TypeCoercionError) Error() string {
	return fmt.Sprintf("cannot coerce %q to %s for column %q", e.RawValue, e.Kind, e.Column)
}

// MissingRequiredValueError reports an empty cell in a column that is not
// nullable and has no default. Isolated to one row.
type MissingRequiredValueError struct {
	Column string
}

func (e *MissingRequiredValueError) Error() string {
	return fmt.Sprintf("column %q requires a value", e.Column)
}

// DatabaseWriteError reports a failed chunk write. The upload pipeline
// attributes it to every row of the chunk and moves on to the next chunk.
type DatabaseWriteError struct {
	Table string
	Err   error
}

func (e *DatabaseWriteError) Error() string {
	return fmt.Sprintf("write to table %q failed: %v", e.Table, e.Err)
}

func (e *DatabaseWriteError) Unwrap() error { return e.Err }
