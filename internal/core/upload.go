package core

// upload.go is the spreadsheet-to-table pipeline: read, reconcile, coerce,
// write in chunks.
//
// Validation failures that affect every row identically (unknown table,
// unreadable file, bad header mapping) abort the job as typed errors before
// any write. Everything after that point degrades per row or per chunk: a bad
// cell fails its row, a failed chunk write fails its rows, and the job keeps
// going. Context cancellation and loss of database connectivity stop the
// loop early, and then the partial result is returned with Incomplete set.

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Dazzlm/excel-generation/internal/excel"
	"github.com/Dazzlm/excel-generation/internal/schema"
)

// uploadJob carries the per-job state of one upload.
type uploadJob struct {
	table   string
	columns []schema.Column // mapped columns in catalog order
	cells   []int           // header cell index per column, parallel to columns
	keys    []string        // upsert key columns, empty for plain insert
	opts    UploadOptions

	rows    [][]any // current chunk of coerced rows
	rowNums []int   // sheet row number per chunk row
	result  BatchResult
}

// Upload runs one upload job: the spreadsheet read from r is written into
// table. The returned BatchResult carries per-row diagnostics; a non-nil
// error means the job failed as a whole and nothing was written.
func (s *Service) Upload(ctx context.Context, r io.Reader, table string, opts UploadOptions) (*BatchResult, error) {
	release, err := s.acquireSlot(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	logger := s.jobLogger("upload", table)

	rd, err := excel.NewReader(r)
	if err != nil {
		return nil, &FileFormatError{Err: err}
	}
	defer rd.Close()

	desc, err := s.store.Describe(ctx, table)
	if err != nil {
		return nil, err
	}

	mapping := Reconcile(desc, rd.Header())
	if !mapping.OK() {
		return nil, mapping.MappingError(table)
	}

	job := &uploadJob{table: table, opts: opts}
	job.bindColumns(desc, rd.Header(), mapping)

	if opts.UpdateExisting {
		if err := s.bindUpsertKeys(ctx, job, desc); err != nil {
			return nil, err
		}
	}

	logger.Info("upload started",
		"columns", len(job.columns),
		"batch_size", opts.batchSize(),
		"update_existing", opts.UpdateExisting,
	)

	if err := s.processRows(ctx, rd, job); err != nil {
		return nil, err
	}

	job.finish()
	logger.Info("upload finished",
		"rows_processed", job.result.RowsProcessed,
		"rows_failed", job.result.RowsFailed,
		"incomplete", job.result.Incomplete,
	)
	return &job.result, nil
}

// bindColumns resolves the mapped columns into catalog order and records
// which header cell feeds each one.
func (j *uploadJob) bindColumns(desc *schema.Table, headers []string, mapping *ColumnMapping) {
	cellFor := make(map[string]int, len(headers))
	for i, h := range headers {
		canon, ok := mapping.ByHeader[h]
		if !ok {
			continue
		}
		if _, dup := cellFor[canon]; !dup {
			cellFor[canon] = i
		}
	}

	for _, col := range desc.Columns {
		if idx, ok := cellFor[col.Name]; ok {
			j.columns = append(j.columns, col)
			j.cells = append(j.cells, idx)
		}
	}
}

// bindUpsertKeys loads the table's declared primary key and verifies every
// key column is present in the file. There is no unique-index fallback.
func (s *Service) bindUpsertKeys(ctx context.Context, job *uploadJob, desc *schema.Table) error {
	pk, err := s.store.PrimaryKey(ctx, job.table)
	if err != nil {
		return err
	}
	if len(pk) == 0 {
		return ErrNoPrimaryKey
	}

	mapped := make(map[string]bool, len(job.columns))
	for _, col := range job.columns {
		mapped[col.Name] = true
	}
	var missing []string
	for _, key := range pk {
		if !mapped[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		// Matching existing rows needs every key column present in the file.
		return &ColumnMappingError{Table: job.table, MissingRequired: missing}
	}

	job.keys = pk
	return nil
}

// processRows drives the chunk loop. Returns an error only for context
// cancellation before the first chunk; later cancellation surfaces as a
// partial result with Incomplete set.
func (s *Service) processRows(ctx context.Context, rd *excel.Reader, job *uploadJob) error {
	batch := job.opts.batchSize()

	for {
		if err := ctx.Err(); err != nil {
			if job.result.RowsProcessed == 0 && job.result.RowsFailed == 0 {
				return err
			}
			job.result.Incomplete = true
			return nil
		}

		cells, rowNum, ok, err := rd.Next()
		if err != nil {
			return &FileFormatError{Err: err}
		}
		if !ok {
			break
		}

		if row, ok := job.coerceRow(cells, rowNum); ok {
			job.rows = append(job.rows, row)
			job.rowNums = append(job.rowNums, rowNum)
		}

		if len(job.rows) >= batch {
			if done := s.flushChunk(ctx, job); done {
				return nil
			}
		}
	}

	s.flushChunk(ctx, job)
	return nil
}

// coerceRow converts one row of raw cells. Every failing cell is reported,
// but the row counts as one failure.
func (j *uploadJob) coerceRow(cells []string, rowNum int) ([]any, bool) {
	row := make([]any, len(j.columns))
	ok := true
	for i, col := range j.columns {
		raw := ""
		if j.cells[i] < len(cells) {
			raw = cells[j.cells[i]]
		}
		v, err := Coerce(raw, col)
		if err != nil {
			j.result.Errors = append(j.result.Errors, RowError{
				RowIndex: rowNum,
				Column:   col.Name,
				Message:  err.Error(),
			})
			ok = false
			continue
		}
		row[i] = v
	}
	if !ok {
		j.result.RowsFailed++
		return nil, false
	}
	return row, true
}

// flushChunk writes the buffered chunk. A write failure is attributed to
// every row of the chunk and the job continues; cancellation and
// connectivity loss mark the result incomplete and report done, since every
// remaining chunk would fail identically.
func (s *Service) flushChunk(ctx context.Context, job *uploadJob) (done bool) {
	if len(job.rows) == 0 {
		return false
	}

	names := make([]string, len(job.columns))
	for i, col := range job.columns {
		names[i] = col.Name
	}

	var err error
	if job.opts.UpdateExisting {
		err = s.store.Upsert(ctx, job.table, names, job.keys, job.rows)
	} else {
		err = s.store.Insert(ctx, job.table, names, job.rows)
	}

	if err != nil {
		werr := &DatabaseWriteError{Table: job.table, Err: err}
		for _, n := range job.rowNums {
			job.result.Errors = append(job.result.Errors, RowError{
				RowIndex: n,
				Message:  werr.Error(),
			})
		}
		job.result.RowsFailed += len(job.rows)

		if ctx.Err() != nil || errors.Is(err, ErrConnectionLost) {
			job.result.Incomplete = true
			done = true
		}
	} else {
		job.result.RowsProcessed += len(job.rows)
	}

	job.rows = job.rows[:0]
	job.rowNums = job.rowNums[:0]
	return done
}

// finish settles the aggregate fields once the chunk loop ends.
func (j *uploadJob) finish() {
	r := &j.result
	r.Success = r.RowsFailed == 0 && !r.Incomplete

	switch {
	case r.Incomplete:
		r.Message = fmt.Sprintf("upload interrupted after %d rows", r.RowsProcessed)
	case r.RowsFailed > 0:
		r.Message = fmt.Sprintf("processed %d rows, %d failed", r.RowsProcessed, r.RowsFailed)
	default:
		r.Message = fmt.Sprintf("processed %d rows", r.RowsProcessed)
	}
}
