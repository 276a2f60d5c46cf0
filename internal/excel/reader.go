// Package excel wraps excelize with the small streaming surface the
// pipelines need: a forward-only row reader over the first sheet, a
// stream writer for incremental workbook output, and named header
// templates.
package excel

import (
	"errors"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoSheets indicates a workbook without any worksheet.
var ErrNoSheets = errors.New("workbook has no sheets")

// ErrNoHeader indicates a sheet with no non-empty header row.
var ErrNoHeader = errors.New("sheet has no header row")

// Reader iterates the rows of a workbook's first sheet without materializing
// the sheet in memory. The first non-empty row is the header; Next then
// yields data rows one at a time together with their sheet row number.
type Reader struct {
	file   *excelize.File
	rows   *excelize.Rows
	header []string
	rowNum int
}

// NewReader opens a workbook from r and positions the reader on the first
// sheet's header row.
func NewReader(r io.Reader) (*Reader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, ErrNoSheets
	}

	iter, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	rd := &Reader{file: f, rows: iter}
	if err := rd.readHeader(); err != nil {
		_ = iter.Close()
		_ = f.Close()
		return nil, err
	}
	return rd, nil
}

// readHeader advances to the first non-empty row and records it.
func (r *Reader) readHeader() error {
	for r.rows.Next() {
		r.rowNum++
		row, err := r.rows.Columns()
		if err != nil {
			return err
		}
		if isEmptyRow(row) {
			continue
		}
		r.header = trimTrailingEmpty(row)
		return nil
	}
	if err := r.rows.Error(); err != nil {
		return err
	}
	return ErrNoHeader
}

// Header returns the header row as read from the file.
func (r *Reader) Header() []string {
	return r.header
}

// Next returns the next data row and its 1-based sheet row number. Fully
// empty rows are skipped. ok is false once the sheet is exhausted.
func (r *Reader) Next() (row []string, rowNum int, ok bool, err error) {
	for r.rows.Next() {
		r.rowNum++
		row, err := r.rows.Columns()
		if err != nil {
			return nil, r.rowNum, false, err
		}
		if isEmptyRow(row) {
			continue
		}
		return row, r.rowNum, true, nil
	}
	return nil, r.rowNum, false, r.rows.Error()
}

// Close releases the row iterator and the underlying workbook.
func (r *Reader) Close() error {
	err := r.rows.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}
