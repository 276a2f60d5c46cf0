package database

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/puddle/v2"

	"github.com/Dazzlm/excel-generation/internal/core"
)

func TestBuildUpsertSQL(t *testing.T) {
	got := buildUpsertSQL("clientes", []string{"id", "nombre"}, []string{"id"}, 2)
	want := `INSERT INTO "clientes" ("id", "nombre") VALUES ($1, $2), ($3, $4)` +
		` ON CONFLICT ("id") DO UPDATE SET "nombre" = EXCLUDED."nombre"`
	if got != want {
		t.Errorf("sql = %q\nwant %q", got, want)
	}
}

func TestBuildUpsertSQLAllColumnsKeyed(t *testing.T) {
	got := buildUpsertSQL("enlaces", []string{"a", "b"}, []string{"a", "b"}, 1)
	want := `INSERT INTO "enlaces" ("a", "b") VALUES ($1, $2) ON CONFLICT ("a", "b") DO NOTHING`
	if got != want {
		t.Errorf("sql = %q\nwant %q", got, want)
	}
}

func TestConnAwareTagsConnectivityErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "closed pool", err: puddle.ErrClosedPool, want: true},
		{name: "wrapped closed pool", err: fmt.Errorf("acquire: %w", puddle.ErrClosedPool), want: true},
		{name: "net error", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, want: true},
		{name: "data rejection", err: errors.New("duplicate key value violates unique constraint"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(connAware(tt.err), core.ErrConnectionLost)
			if got != tt.want {
				t.Errorf("connAware(%v) tagged=%v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBuildUpsertSQLQuotesIdentifiers(t *testing.T) {
	got := buildUpsertSQL(`weird"name`, []string{"col"}, []string{"col"}, 1)
	want := `INSERT INTO "weird""name" ("col") VALUES ($1) ON CONFLICT ("col") DO NOTHING`
	if got != want {
		t.Errorf("sql = %q\nwant %q", got, want)
	}
}
