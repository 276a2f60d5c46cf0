// Package database implements the pgx-backed store the pipelines run
// against. Catalog reads go through information_schema so the descriptor
// reflects whatever the table looks like right now; bulk inserts use the
// COPY protocol and upserts a single multi-row INSERT.
package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/puddle/v2"

	"github.com/Dazzlm/excel-generation/internal/core"
	"github.com/Dazzlm/excel-generation/internal/schema"
)

// Postgres is the core.Store implementation over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const describeQuery = `
	SELECT column_name, data_type, is_nullable, column_default
	FROM information_schema.columns
	WHERE table_schema = 'public' AND table_name = $1
	ORDER BY ordinal_position`

// Describe builds the column descriptor for table from the catalog. A table
// with no catalog rows does not exist.
func (p *Postgres) Describe(ctx context.Context, table string) (*schema.Table, error) {
	rows, err := p.pool.Query(ctx, describeQuery, schema.Canonical(table))
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	desc := &schema.Table{Name: schema.Canonical(table)}
	for rows.Next() {
		var name, dataType, nullable string
		var colDefault *string
		if err := rows.Scan(&name, &dataType, &nullable, &colDefault); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		desc.Columns = append(desc.Columns, schema.Column{
			Name:     schema.Canonical(name),
			DataType: dataType,
			Kind:     schema.KindFromDataType(dataType),
			Nullable: nullable == "YES",
			Default:  colDefault,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog rows: %w", err)
	}

	if len(desc.Columns) == 0 {
		return nil, &core.TableNotFoundError{Table: table}
	}
	return desc, nil
}

const primaryKeyQuery = `
	SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON tc.constraint_name = kcu.constraint_name
	 AND tc.table_schema = kcu.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY'
	  AND tc.table_schema = 'public'
	  AND tc.table_name = $1
	ORDER BY kcu.ordinal_position`

// PrimaryKey returns the declared primary key columns in key order, or an
// empty slice when the table has none.
func (p *Postgres) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	rows, err := p.pool.Query(ctx, primaryKeyQuery, schema.Canonical(table))
	if err != nil {
		return nil, fmt.Errorf("query primary key: %w", err)
	}
	defer rows.Close()

	var key []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan key column: %w", err)
		}
		key = append(key, schema.Canonical(name))
	}
	return key, rows.Err()
}

const listTablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
	ORDER BY table_name`

// ListTables returns all public base tables.
func (p *Postgres) ListTables(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, listTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Insert writes one chunk through the COPY protocol inside a transaction, so
// the chunk lands or fails as a unit.
func (p *Postgres) Insert(ctx context.Context, table string, columns []string, rows [][]any) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", connAware(err))
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", connAware(err))
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", table, connAware(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", connAware(err))
	}
	return nil
}

// Upsert writes one chunk as a single multi-row INSERT keyed on keyColumns.
func (p *Postgres) Upsert(ctx context.Context, table string, columns, keyColumns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	sql := buildUpsertSQL(table, columns, keyColumns, len(rows))

	args := make([]any, 0, len(rows)*len(columns))
	for _, row := range rows {
		args = append(args, row...)
	}

	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert into %s: %w", table, connAware(err))
	}
	return nil
}

// connAware tags connection-class failures with core.ErrConnectionLost so
// the upload pipeline can distinguish "the database went away" from "this
// chunk's data was rejected".
func connAware(err error) error {
	if isConnectivityError(err) {
		return errors.Join(core.ErrConnectionLost, err)
	}
	return err
}

func isConnectivityError(err error) bool {
	if errors.Is(err, puddle.ErrClosedPool) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.Timeout(err)
}

// buildUpsertSQL assembles INSERT ... ON CONFLICT for rowCount rows. When
// every column is part of the key there is nothing to update, so conflicts
// are ignored instead.
func buildUpsertSQL(table string, columns, keyColumns []string, rowCount int) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ",
		pgx.Identifier{table}.Sanitize(), strings.Join(quoted, ", "))

	arg := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", arg)
			arg++
		}
		b.WriteByte(')')
	}

	quotedKeys := make([]string, len(keyColumns))
	key := make(map[string]bool, len(keyColumns))
	for i, k := range keyColumns {
		quotedKeys[i] = pgx.Identifier{k}.Sanitize()
		key[k] = true
	}
	fmt.Fprintf(&b, " ON CONFLICT (%s)", strings.Join(quotedKeys, ", "))

	var updates []string
	for i, c := range columns {
		if key[c] {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
	}
	if len(updates) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET ")
		b.WriteString(strings.Join(updates, ", "))
	}
	return b.String()
}

// Stream runs query and hands each result row to fn without buffering the
// result set.
func (p *Postgres) Stream(ctx context.Context, query string, args []any, fn func(values []any) error) error {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	return rows.Err()
}
