package core

import (
	"reflect"
	"strings"
	"testing"

	"github.com/Dazzlm/excel-generation/internal/schema"
)

func testTable() *schema.Table {
	def := "nextval('seq')"
	return &schema.Table{
		Name: "clientes",
		Columns: []schema.Column{
			{Name: "id", Kind: schema.KindInteger, Default: &def},
			{Name: "nombre", Kind: schema.KindText},
			{Name: "email", Kind: schema.KindText},
			{Name: "edad", Kind: schema.KindInteger, Nullable: true},
		},
	}
}

func TestReconcileCaseInsensitive(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
	}{
		{name: "lowercase", headers: []string{"nombre", "email"}},
		{name: "uppercase", headers: []string{"NOMBRE", "EMAIL"}},
		{name: "mixed case", headers: []string{"Nombre", "Email"}},
		{name: "padded", headers: []string{" nombre ", "email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Reconcile(testTable(), tt.headers)

			if !m.OK() {
				t.Fatalf("mapping should succeed, got missing=%v unmapped=%v",
					m.MissingRequired, m.UnmappedHeaders)
			}
			if got := m.ByHeader[tt.headers[0]]; got != "nombre" {
				t.Errorf("header %q mapped to %q, want nombre", tt.headers[0], got)
			}
		})
	}
}

func TestReconcileMissingRequired(t *testing.T) {
	// email is required (not nullable, no default); id has a default and
	// edad is nullable, so neither is required.
	m := Reconcile(testTable(), []string{"nombre"})

	if !reflect.DeepEqual(m.MissingRequired, []string{"email"}) {
		t.Errorf("MissingRequired = %v, want [email]", m.MissingRequired)
	}
	if m.OK() {
		t.Error("mapping with missing required column should not be OK")
	}
}

func TestReconcileUnmappedHeaderSuggestions(t *testing.T) {
	m := Reconcile(testTable(), []string{"nombre", "email", "emial_address", "emai"})

	if len(m.UnmappedHeaders) != 2 {
		t.Fatalf("UnmappedHeaders = %v, want 2 entries", m.UnmappedHeaders)
	}
	// Suggestions are drawn from unclaimed columns only (id, edad here);
	// "emai" is within edit distance of both.
	if s := m.Suggestions["emai"]; len(s) == 0 {
		t.Errorf("expected suggestions for near-miss header %q", "emai")
	}
	// Suggestions never consume the header: it stays unmapped.
	if _, ok := m.ByHeader["emai"]; ok {
		t.Error("suggestions must not auto-apply")
	}
}

func TestReconcileInjective(t *testing.T) {
	m := Reconcile(testTable(), []string{"Nombre", "NOMBRE", "email"})

	if got := m.ByHeader["Nombre"]; got != "nombre" {
		t.Errorf("first header mapped to %q, want nombre", got)
	}
	if _, ok := m.ByHeader["NOMBRE"]; ok {
		t.Error("duplicate header must not map to an already-claimed column")
	}
	if !reflect.DeepEqual(m.UnmappedHeaders, []string{"NOMBRE"}) {
		t.Errorf("UnmappedHeaders = %v, want [NOMBRE]", m.UnmappedHeaders)
	}
}

func TestReconcileNeverFails(t *testing.T) {
	m := Reconcile(testTable(), []string{"totally", "unrelated", "headers"})

	if m == nil {
		t.Fatal("Reconcile must always return a mapping")
	}
	if len(m.ByHeader) != 0 {
		t.Errorf("ByHeader = %v, want empty", m.ByHeader)
	}
	if len(m.UnmappedHeaders) != 3 {
		t.Errorf("UnmappedHeaders = %v, want 3 entries", m.UnmappedHeaders)
	}
}

func TestMappingErrorMessage(t *testing.T) {
	m := Reconcile(testTable(), []string{"nombre", "emial"})
	err := m.MappingError("clientes")

	msg := err.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	for _, want := range []string{"clientes", "email", "emial"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q should mention %q", msg, want)
		}
	}
}
