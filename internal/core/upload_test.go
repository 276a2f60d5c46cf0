package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Dazzlm/excel-generation/internal/excel"
	"github.com/Dazzlm/excel-generation/internal/schema"
)

// fakeStore records writes and serves canned catalog data.
type fakeStore struct {
	table  *schema.Table
	pk     []string
	tables []string

	// failChunks maps a 1-based write call number to the error it returns.
	failChunks map[int]error

	writeCalls int
	columns    []string
	keyColumns []string
	chunkSizes []int
	rows       [][]any

	streamQuery string
	streamArgs  []any
	streamRows  [][]any
}

func (f *fakeStore) Describe(_ context.Context, table string) (*schema.Table, error) {
	if f.table == nil || f.table.Name != table {
		return nil, &TableNotFoundError{Table: table}
	}
	return f.table, nil
}

func (f *fakeStore) PrimaryKey(_ context.Context, _ string) ([]string, error) {
	return f.pk, nil
}

func (f *fakeStore) ListTables(_ context.Context) ([]string, error) {
	return f.tables, nil
}

func (f *fakeStore) Insert(_ context.Context, _ string, columns []string, rows [][]any) error {
	return f.record(columns, nil, rows)
}

func (f *fakeStore) Upsert(_ context.Context, _ string, columns, keyColumns []string, rows [][]any) error {
	return f.record(columns, keyColumns, rows)
}

func (f *fakeStore) record(columns, keyColumns []string, rows [][]any) error {
	f.writeCalls++
	if err := f.failChunks[f.writeCalls]; err != nil {
		return err
	}
	f.columns = columns
	f.keyColumns = keyColumns
	f.chunkSizes = append(f.chunkSizes, len(rows))
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeStore) Stream(_ context.Context, query string, args []any, fn func([]any) error) error {
	f.streamQuery = query
	f.streamArgs = args
	for _, row := range f.streamRows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func newTestService(store Store) *Service {
	return NewService(store, nil, nil, nil)
}

// workbook builds an in-memory xlsx with one sheet.
func workbook(t *testing.T, header []string, rows [][]any) *bytes.Reader {
	t.Helper()

	w, err := excel.NewWriter(excel.NewTemplateStore("").Resolve(""))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.NewSheet("datos", header); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	if err := w.AppendRows(rows); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestUploadAllRowsValid(t *testing.T) {
	store := &fakeStore{table: testTable()}
	svc := newTestService(store)

	file := workbook(t, []string{"Email", "Nombre", "edad"}, [][]any{
		{"ana@example.com", "Ana", "34"},
		{"luis@example.com", "Luis", ""},
		{"carla@example.com", "Carla", "28"},
	})

	res, err := svc.Upload(context.Background(), file, "clientes", UploadOptions{})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if !res.Success || res.RowsProcessed != 3 || res.RowsFailed != 0 {
		t.Errorf("result = %+v, want success with 3 rows", res)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}

	// Columns arrive in catalog order regardless of header order.
	if want := []string{"nombre", "email", "edad"}; !equalStrings(store.columns, want) {
		t.Errorf("columns = %v, want %v", store.columns, want)
	}
	if len(store.rows) != 3 {
		t.Fatalf("stored %d rows, want 3", len(store.rows))
	}
	// Row values follow the column order: nombre, email, edad.
	if v := store.rows[0][0].(pgtype.Text); v.String != "Ana" {
		t.Errorf("first row nombre = %#v", store.rows[0][0])
	}
	// Blank nullable cell travels as a typed NULL.
	if v := store.rows[1][2].(pgtype.Int8); v.Valid {
		t.Errorf("blank edad = %#v, want NULL", store.rows[1][2])
	}
}

func TestUploadIsolatesBadRow(t *testing.T) {
	store := &fakeStore{table: testTable()}
	svc := newTestService(store)

	file := workbook(t, []string{"nombre", "email", "edad"}, [][]any{
		{"Ana", "ana@example.com", "34"},
		{"Luis", "luis@example.com", "treinta"},
		{"Carla", "carla@example.com", "28"},
	})

	res, err := svc.Upload(context.Background(), file, "clientes", UploadOptions{})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if res.Success {
		t.Error("result with failed rows must not be Success")
	}
	if res.RowsProcessed != 2 || res.RowsFailed != 1 {
		t.Errorf("processed=%d failed=%d, want 2/1", res.RowsProcessed, res.RowsFailed)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly one", res.Errors)
	}
	// Header is sheet row 1, so the second data row is sheet row 3.
	e := res.Errors[0]
	if e.RowIndex != 3 || e.Column != "edad" {
		t.Errorf("error = %+v, want row 3 column edad", e)
	}
	if len(store.rows) != 2 {
		t.Errorf("stored %d rows, want 2", len(store.rows))
	}
}

func TestUploadMappingFailureWritesNothing(t *testing.T) {
	store := &fakeStore{table: testTable()}
	svc := newTestService(store)

	file := workbook(t, []string{"nombre", "emial"}, [][]any{
		{"Ana", "ana@example.com"},
	})

	_, err := svc.Upload(context.Background(), file, "clientes", UploadOptions{})
	var me *ColumnMappingError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want ColumnMappingError", err)
	}
	if !strings.Contains(me.Error(), "emial") || !strings.Contains(me.Error(), "email") {
		t.Errorf("error %q should name the typo and the suggestion", me.Error())
	}
	if store.writeCalls != 0 {
		t.Errorf("writeCalls = %d, want 0", store.writeCalls)
	}
}

func TestUploadUnknownTable(t *testing.T) {
	svc := newTestService(&fakeStore{table: testTable()})

	file := workbook(t, []string{"nombre"}, nil)
	_, err := svc.Upload(context.Background(), file, "no_such_table", UploadOptions{})
	var te *TableNotFoundError
	if !errors.As(err, &te) || te.Table != "no_such_table" {
		t.Fatalf("err = %v, want TableNotFoundError for no_such_table", err)
	}
}

func TestUploadUnreadableFile(t *testing.T) {
	svc := newTestService(&fakeStore{table: testTable()})

	_, err := svc.Upload(context.Background(), strings.NewReader("not a workbook"), "clientes", UploadOptions{})
	var fe *FileFormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FileFormatError", err)
	}
}

func TestUploadChunking(t *testing.T) {
	store := &fakeStore{table: testTable()}
	svc := newTestService(store)

	var rows [][]any
	for i := 0; i < 25; i++ {
		rows = append(rows, []any{fmt.Sprintf("P%d", i), fmt.Sprintf("p%d@example.com", i)})
	}
	file := workbook(t, []string{"nombre", "email"}, rows)

	res, err := svc.Upload(context.Background(), file, "clientes", UploadOptions{BatchSize: 10})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if res.RowsProcessed != 25 {
		t.Errorf("RowsProcessed = %d, want 25", res.RowsProcessed)
	}
	if want := []int{10, 10, 5}; !equalInts(store.chunkSizes, want) {
		t.Errorf("chunk sizes = %v, want %v", store.chunkSizes, want)
	}
}

func TestUploadChunkWriteErrorIsolated(t *testing.T) {
	store := &fakeStore{
		table:      testTable(),
		failChunks: map[int]error{1: errors.New("deadlock detected")},
	}
	svc := newTestService(store)

	var rows [][]any
	for i := 0; i < 15; i++ {
		rows = append(rows, []any{fmt.Sprintf("P%d", i), fmt.Sprintf("p%d@example.com", i)})
	}
	file := workbook(t, []string{"nombre", "email"}, rows)

	res, err := svc.Upload(context.Background(), file, "clientes", UploadOptions{BatchSize: 10})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// First chunk of 10 fails as a unit, second chunk of 5 lands.
	if res.RowsProcessed != 5 || res.RowsFailed != 10 {
		t.Errorf("processed=%d failed=%d, want 5/10", res.RowsProcessed, res.RowsFailed)
	}
	if len(res.Errors) != 10 {
		t.Fatalf("Errors = %d entries, want 10", len(res.Errors))
	}
	if !strings.Contains(res.Errors[0].Message, "deadlock detected") {
		t.Errorf("error message %q should carry the write failure", res.Errors[0].Message)
	}
	// Failed rows keep their sheet numbers: data starts at row 2.
	if res.Errors[0].RowIndex != 2 || res.Errors[9].RowIndex != 11 {
		t.Errorf("failed rows span %d..%d, want 2..11",
			res.Errors[0].RowIndex, res.Errors[9].RowIndex)
	}
	if res.Incomplete {
		t.Error("a chunk failure alone must not mark the result incomplete")
	}
}

func TestUploadAbortsWhenConnectionLost(t *testing.T) {
	store := &fakeStore{
		table:      testTable(),
		failChunks: map[int]error{1: fmt.Errorf("acquire connection: %w", ErrConnectionLost)},
	}
	svc := newTestService(store)

	var rows [][]any
	for i := 0; i < 15; i++ {
		rows = append(rows, []any{fmt.Sprintf("P%d", i), fmt.Sprintf("p%d@example.com", i)})
	}
	file := workbook(t, []string{"nombre", "email"}, rows)

	res, err := svc.Upload(context.Background(), file, "clientes", UploadOptions{BatchSize: 10})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// Losing the database dooms every remaining chunk, so the loop must stop
	// after the first failure instead of attempting the rest.
	if store.writeCalls != 1 {
		t.Errorf("writeCalls = %d, want 1", store.writeCalls)
	}
	if !res.Incomplete {
		t.Error("connectivity loss must mark the result incomplete")
	}
	if res.Success {
		t.Error("an incomplete result must not be Success")
	}
	if res.RowsProcessed != 0 || res.RowsFailed != 10 {
		t.Errorf("processed=%d failed=%d, want 0/10", res.RowsProcessed, res.RowsFailed)
	}
	if !strings.Contains(res.Message, "interrupted") {
		t.Errorf("message = %q, want an interruption notice", res.Message)
	}
}

func TestUploadUpsert(t *testing.T) {
	store := &fakeStore{table: testTable(), pk: []string{"id"}}
	svc := newTestService(store)

	file := workbook(t, []string{"id", "nombre", "email"}, [][]any{
		{"1", "Ana", "ana@example.com"},
	})

	res, err := svc.Upload(context.Background(), file, "clientes", UploadOptions{UpdateExisting: true})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !res.Success {
		t.Errorf("result = %+v", res)
	}
	if !equalStrings(store.keyColumns, []string{"id"}) {
		t.Errorf("keyColumns = %v, want [id]", store.keyColumns)
	}
}

func TestUploadUpsertWithoutPrimaryKey(t *testing.T) {
	svc := newTestService(&fakeStore{table: testTable()})

	file := workbook(t, []string{"nombre", "email"}, [][]any{
		{"Ana", "ana@example.com"},
	})

	_, err := svc.Upload(context.Background(), file, "clientes", UploadOptions{UpdateExisting: true})
	if !errors.Is(err, ErrNoPrimaryKey) {
		t.Fatalf("err = %v, want ErrNoPrimaryKey", err)
	}
}

func TestUploadUpsertRequiresKeyColumnInFile(t *testing.T) {
	store := &fakeStore{table: testTable(), pk: []string{"id"}}
	svc := newTestService(store)

	// id is not among the headers, so rows cannot be matched for update.
	file := workbook(t, []string{"nombre", "email"}, [][]any{
		{"Ana", "ana@example.com"},
	})

	_, err := svc.Upload(context.Background(), file, "clientes", UploadOptions{UpdateExisting: true})
	var me *ColumnMappingError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want ColumnMappingError", err)
	}
	if !equalStrings(me.MissingRequired, []string{"id"}) {
		t.Errorf("MissingRequired = %v, want [id]", me.MissingRequired)
	}
	if store.writeCalls != 0 {
		t.Errorf("writeCalls = %d, want 0", store.writeCalls)
	}
}

func TestUploadCancelledContext(t *testing.T) {
	store := &fakeStore{table: testTable()}
	svc := newTestService(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	file := workbook(t, []string{"nombre", "email"}, [][]any{
		{"Ana", "ana@example.com"},
	})

	_, err := svc.Upload(ctx, file, "clientes", UploadOptions{})
	if err == nil {
		t.Fatal("cancelled context should fail the job")
	}
}

func equalStrings(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func equalInts(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
