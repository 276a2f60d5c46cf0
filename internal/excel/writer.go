package excel

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Writer produces a workbook incrementally through excelize's stream writer,
// so a sheet never has to exist fully in memory. Sheets are written one at a
// time: starting a new sheet flushes the previous one.
type Writer struct {
	file    *excelize.File
	sw      *excelize.StreamWriter
	styleID int
	style   HeaderStyle
	row     int
	sheets  int
}

// NewWriter creates a workbook writer applying style to every header row.
func NewWriter(style HeaderStyle) (*Writer, error) {
	f := excelize.NewFile()

	styleID, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   style.Bold,
			Family: style.FontName,
			Size:   style.FontSize,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{style.FillColor},
		},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Writer{file: f, styleID: styleID, style: style}, nil
}

// NewSheet starts a sheet with a styled header row. The previous sheet, if
// any, is flushed first.
func (w *Writer) NewSheet(name string, header []string) error {
	if err := w.flush(); err != nil {
		return err
	}

	name = sanitizeSheetName(name)
	if w.sheets == 0 {
		// Rename the default sheet instead of leaving an empty Sheet1 behind.
		if err := w.file.SetSheetName(w.file.GetSheetName(0), name); err != nil {
			return err
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return err
	}
	w.sheets++

	sw, err := w.file.NewStreamWriter(name)
	if err != nil {
		return err
	}
	w.sw = sw
	w.row = 0

	if w.style.ColWidth > 0 && len(header) > 0 {
		if err := sw.SetColWidth(1, len(header), w.style.ColWidth); err != nil {
			return err
		}
	}

	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = excelize.Cell{StyleID: w.styleID, Value: h}
	}
	return w.writeRow(cells)
}

// AppendRows appends one window of data rows to the current sheet.
func (w *Writer) AppendRows(rows [][]any) error {
	if w.sw == nil {
		return fmt.Errorf("no sheet started")
	}
	for _, row := range rows {
		if err := w.writeRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeRow(values []any) error {
	w.row++
	ref, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	return w.sw.SetRow(ref, values)
}

func (w *Writer) flush() error {
	if w.sw == nil {
		return nil
	}
	err := w.sw.Flush()
	w.sw = nil
	return err
}

// WriteTo flushes the current sheet and writes the workbook to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	if err := w.flush(); err != nil {
		return 0, err
	}
	return w.file.WriteTo(dst)
}

// Close releases the underlying workbook resources.
func (w *Writer) Close() error {
	return w.file.Close()
}

// sanitizeSheetName keeps sheet names within Excel's 31-character limit and
// strips characters Excel forbids.
func sanitizeSheetName(name string) string {
	replacer := strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")
	name = replacer.Replace(strings.TrimSpace(name))
	if name == "" {
		name = "Data"
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
