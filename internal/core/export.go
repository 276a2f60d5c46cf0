package core

// export.go is the table-to-spreadsheet pipeline: validate the projection,
// build one parameterized query, and stream the result set into a workbook
// without buffering it.
//
// Identifiers are quoted through pgx and values travel as bind parameters,
// so no request-supplied text is ever spliced into SQL.

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Dazzlm/excel-generation/internal/excel"
	"github.com/Dazzlm/excel-generation/internal/schema"
)

// exportWindow is how many result rows are handed to the stream writer at a
// time.
const exportWindow = 500

// Export generates a workbook for one table according to spec and writes it
// to w.
func (s *Service) Export(ctx context.Context, w io.Writer, spec ExportSpec) error {
	release, err := s.acquireSlot(ctx)
	if err != nil {
		return err
	}
	defer release()

	logger := s.jobLogger("export", spec.Table)

	wr, err := excel.NewWriter(s.templates.Resolve(spec.Template))
	if err != nil {
		return err
	}
	defer wr.Close()

	rows, err := s.exportSheet(ctx, wr, spec)
	if err != nil {
		return err
	}

	if _, err := wr.WriteTo(w); err != nil {
		return err
	}
	logger.Info("export finished", "rows", rows)
	return nil
}

// ExportTable exports every column of one table using the named template.
func (s *Service) ExportTable(ctx context.Context, w io.Writer, table, template string) error {
	return s.Export(ctx, w, ExportSpec{Table: table, Template: template})
}

// ExportDatabase generates one workbook with a sheet per table.
func (s *Service) ExportDatabase(ctx context.Context, w io.Writer, template string) error {
	release, err := s.acquireSlot(ctx)
	if err != nil {
		return err
	}
	defer release()

	logger := s.jobLogger("export", "*")

	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return err
	}

	wr, err := excel.NewWriter(s.templates.Resolve(template))
	if err != nil {
		return err
	}
	defer wr.Close()

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.exportSheet(ctx, wr, ExportSpec{Table: table}); err != nil {
			return err
		}
	}

	if _, err := wr.WriteTo(w); err != nil {
		return err
	}
	logger.Info("export finished", "tables", len(tables))
	return nil
}

// exportSheet streams one table into a new sheet of wr and returns the row
// count.
func (s *Service) exportSheet(ctx context.Context, wr *excel.Writer, spec ExportSpec) (int, error) {
	desc, err := s.store.Describe(ctx, spec.Table)
	if err != nil {
		return 0, err
	}

	fields, err := resolveFields(desc, spec)
	if err != nil {
		return 0, err
	}

	query, args := buildExportQuery(spec.Table, fields, spec.Filters)

	kinds := make([]schema.Kind, len(fields))
	for i, f := range fields {
		col, _ := desc.Column(f)
		kinds[i] = col.Kind
	}

	if err := wr.NewSheet(spec.Table, fields); err != nil {
		return 0, err
	}

	var window [][]any
	total := 0
	err = s.store.Stream(ctx, query, args, func(values []any) error {
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = formatCell(v, kinds[i])
		}
		window = append(window, row)
		total++
		if len(window) >= exportWindow {
			if err := wr.AppendRows(window); err != nil {
				return err
			}
			window = window[:0]
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(window) > 0 {
		if err := wr.AppendRows(window); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// resolveFields validates the projection and the filter columns against the
// descriptor. Fields are a known projection, so they must match canonical
// column names exactly; unknown names from either place fail the job.
func resolveFields(desc *schema.Table, spec ExportSpec) ([]string, error) {
	var invalid []string

	fields := spec.Fields
	if len(fields) == 0 {
		fields = desc.ColumnNames()
	} else {
		resolved := make([]string, len(fields))
		for i, f := range fields {
			canon := schema.Canonical(f)
			if _, ok := desc.Column(canon); !ok {
				invalid = append(invalid, f)
				continue
			}
			resolved[i] = canon
		}
		fields = resolved
	}

	for col := range spec.Filters {
		if _, ok := desc.Column(col); !ok {
			invalid = append(invalid, col)
		}
	}

	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, &InvalidFieldError{Table: desc.Name, Fields: invalid}
	}
	return fields, nil
}

// buildExportQuery assembles the parameterized SELECT. Filter predicates are
// ANDed in sorted column order so the statement is deterministic.
func buildExportQuery(table string, fields []string, filters map[string]Filter) (string, []any) {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = pgx.Identifier{f}.Sanitize()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(quoted, ", "), pgx.Identifier{table}.Sanitize())

	var args []any
	if len(filters) > 0 {
		cols := make([]string, 0, len(filters))
		for col := range filters {
			cols = append(cols, col)
		}
		sort.Strings(cols)

		var preds []string
		for _, col := range cols {
			f := filters[col]
			ident := pgx.Identifier{schema.Canonical(col)}.Sanitize()
			for _, p := range []struct {
				op  string
				val any
			}{
				{"=", f.Eq}, {">", f.Gt}, {">=", f.Gte}, {"<", f.Lt}, {"<=", f.Lte},
			} {
				if p.val == nil {
					continue
				}
				args = append(args, p.val)
				preds = append(preds, fmt.Sprintf("%s %s $%d", ident, p.op, len(args)))
			}
		}
		if len(preds) > 0 {
			b.WriteString(" WHERE ")
			b.WriteString(strings.Join(preds, " AND "))
		}
	}

	return b.String(), args
}

// formatCell renders one database value for its spreadsheet cell so a later
// upload of the same file coerces back to the same value.
func formatCell(v any, kind schema.Kind) any {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		switch kind {
		case schema.KindDate:
			return t.Format("2006-01-02")
		case schema.KindTimestampTZ:
			return t.UTC().Format(time.RFC3339)
		default:
			return t.Format("2006-01-02 15:04:05")
		}
	case pgtype.Numeric:
		if !t.Valid {
			return ""
		}
		if s, err := t.Value(); err == nil {
			return s
		}
		return ""
	default:
		return v
	}
}
