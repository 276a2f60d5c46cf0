// Package core implements the bidirectional data-mapping pipeline between
// spreadsheet files and PostgreSQL tables: header reconciliation, per-column
// type coercion, chunked uploads with per-row diagnostics, and streaming
// report generation. It has no HTTP dependencies and owns no global state;
// every job carries its own descriptor, mapping, and result.
package core

import (
	"context"

	"github.com/Dazzlm/excel-generation/internal/schema"
)

// Store is the database contract the pipelines run against. It is satisfied
// by the pgx-backed implementation in internal/database; tests substitute
// in-memory fakes.
//
// Write and stream methods acquire one pooled connection per call and release
// it on every exit path, so a job holds at most one connection at a time.
type Store interface {
	// Describe returns the table's column catalog in native column order.
	Describe(ctx context.Context, table string) (*schema.Table, error)

	// PrimaryKey returns the canonical column names of the table's declared
	// primary key, or an empty slice if it has none.
	PrimaryKey(ctx context.Context, table string) ([]string, error)

	// ListTables returns all public table names in the database.
	ListTables(ctx context.Context) ([]string, error)

	// Insert writes one chunk of coerced rows as a single bulk operation.
	Insert(ctx context.Context, table string, columns []string, rows [][]any) error

	// Upsert writes one chunk keyed on keyColumns, updating existing rows.
	Upsert(ctx context.Context, table string, columns, keyColumns []string, rows [][]any) error

	// Stream executes a query and invokes fn once per result row, without
	// buffering the full result set.
	Stream(ctx context.Context, query string, args []any, fn func(values []any) error) error
}

// DefaultBatchSize is the chunk size used when the caller does not set one.
const DefaultBatchSize = 1000

// MaxBatchSize caps batch_size so a multi-row upsert of 50-column rows stays
// under the Postgres 65535 bind-parameter limit.
const MaxBatchSize = 10000

// UploadOptions control one upload job.
type UploadOptions struct {
	// UpdateExisting switches the chunk write from plain insert to an upsert
	// keyed by the table's declared primary key.
	UpdateExisting bool

	// BatchSize is the number of rows per chunk. Zero means DefaultBatchSize.
	BatchSize int
}

func (o UploadOptions) batchSize() int {
	switch {
	case o.BatchSize <= 0:
		return DefaultBatchSize
	case o.BatchSize > MaxBatchSize:
		return MaxBatchSize
	default:
		return o.BatchSize
	}
}

// RowError is one per-row diagnostic in a BatchResult. RowIndex is the
// spreadsheet row number: the header is row 1, the first data row is row 2.
type RowError struct {
	RowIndex int    `json:"row_index"`
	Column   string `json:"column,omitempty"`
	Message  string `json:"message"`
}

// BatchResult is the aggregate outcome of one upload job. It is built
// incrementally chunk by chunk and immutable once returned.
type BatchResult struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	RowsProcessed int        `json:"rows_processed"`
	RowsFailed    int        `json:"rows_failed"`
	Errors        []RowError `json:"errors,omitempty"`

	// Incomplete is set when cancellation or connectivity loss aborted the
	// job before the input was exhausted; counts cover only the chunks that
	// ran.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Filter is one equality or range predicate on an export column. Exactly the
// set fields are applied, combined with AND. Arbitrary expressions are not
// representable, which keeps query building injection-free.
type Filter struct {
	Eq  any
	Gt  any
	Gte any
	Lt  any
	Lte any
}

// ParseFilterValue converts a decoded JSON filter value into a Filter. A
// scalar means equality; an object may carry eq/gt/gte/lt/lte keys. JSON null
// is rejected wherever it appears: a null operand has no predicate meaning
// and silently skipping it would return unfiltered data.
func ParseFilterValue(v any) (Filter, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		if v == nil {
			return Filter{}, false
		}
		return Filter{Eq: v}, true
	}
	var f Filter
	for key, val := range m {
		if val == nil {
			return Filter{}, false
		}
		switch key {
		case "eq":
			f.Eq = val
		case "gt":
			f.Gt = val
		case "gte":
			f.Gte = val
		case "lt":
			f.Lt = val
		case "lte":
			f.Lte = val
		default:
			return Filter{}, false
		}
	}
	return f, true
}

// ExportSpec describes one export job. Immutable once constructed.
type ExportSpec struct {
	Table   string
	Fields  []string          // empty means all columns in catalog order
	Filters map[string]Filter // column -> predicate
	// Template names the header layout to apply; empty means the default.
	Template string
}

// ColumnMapping is the result of reconciling spreadsheet headers against a
// schema descriptor. Built once per job before any row is processed and
// immutable thereafter.
type ColumnMapping struct {
	// ByHeader maps each header (as read from the file) to its canonical
	// schema column name. Injective: no two headers map to the same column.
	ByHeader map[string]string

	// MissingRequired lists required schema columns with no matching header.
	MissingRequired []string

	// UnmappedHeaders lists headers with no schema match, in file order.
	UnmappedHeaders []string

	// Suggestions ranks near-miss schema columns for each unmapped header.
	// Informational only; never auto-applied.
	Suggestions map[string][]string
}

// OK reports whether the mapping is complete enough for the upload pipeline,
// which treats any missing required column or unknown header as a hard
// validation failure before the first row is processed.
func (m *ColumnMapping) OK() bool {
	return len(m.MissingRequired) == 0 && len(m.UnmappedHeaders) == 0
}
