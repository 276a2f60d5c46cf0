// Package schema models a database table's column catalog as an immutable
// in-memory descriptor. A descriptor is fetched once per job from
// information_schema and is never cached across jobs, since the underlying
// table may change between calls.
package schema

import "strings"

// Kind is the coercion family a column belongs to. Concrete Postgres types
// are collapsed into families so the coercion engine stays a small table
// instead of a per-type switch.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindNumeric
	KindFloat
	KindBool
	KindDate
	KindTimestamp
	KindTimestampTZ
)

// String returns the family name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindNumeric:
		return "numeric"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindTimestampTZ:
		return "timestamptz"
	default:
		return "text"
	}
}

// KindFromDataType maps an information_schema data_type string to its kind
// family. Unrecognized types fall back to text, which stringifies on
// coercion and never fails.
func KindFromDataType(dataType string) Kind {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "smallint", "integer", "bigint", "int", "int2", "int4", "int8":
		return KindInteger
	case "numeric", "decimal":
		return KindNumeric
	case "real", "double precision", "float4", "float8":
		return KindFloat
	case "boolean", "bool":
		return KindBool
	case "date":
		return KindDate
	case "timestamp", "timestamp without time zone":
		return KindTimestamp
	case "timestamptz", "timestamp with time zone":
		return KindTimestampTZ
	default:
		return KindText
	}
}

// Column describes one column of a table.
type Column struct {
	Name     string // canonical (lowercased) identifier
	DataType string // raw data_type from the catalog
	Kind     Kind
	Nullable bool
	Default  *string // nil when the column has no default expression
}

// Required reports whether a value must be supplied for this column on
// insert: not nullable and no default expression.
func (c Column) Required() bool {
	return !c.Nullable && c.Default == nil
}

// Table is the descriptor for one table: its columns in the database's
// native order.
type Table struct {
	Name    string
	Columns []Column
}

// Column returns the column with the given canonical name.
func (t *Table) Column(name string) (Column, bool) {
	name = Canonical(name)
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the canonical column names in catalog order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Canonical normalizes an identifier or header for matching: trimmed and
// lowercased. All reconciliation happens over canonical names.
func Canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
