package formulafmt

import (
	"fmt"

	"github.com/wilson-anysphere/formula-sub015/ingest"
	"github.com/wilson-anysphere/formula-sub015/worksheet"
)

// csvWorkbook presents a single ingested delimiter-separated text file as a
// one-sheet Workbook, so OpenAny/OpenAnyReader can hand callers the same
// interface regardless of whether the source was a spreadsheet container or
// plain text.
type csvWorkbook struct {
	sheet *csvSheet
}

func newCSVWorkbook(s *ingest.Sheet) *csvWorkbook {
	return &csvWorkbook{sheet: &csvSheet{s}}
}

func (w *csvWorkbook) Sheets() []string { return []string{w.sheet.src.Name} }

func (w *csvWorkbook) Sheet(idx int) (Sheet, error) {
	if idx != 1 {
		return nil, fmt.Errorf("formulafmt: sheet index %d out of range [1, 1]", idx)
	}
	return w.sheet, nil
}

func (w *csvWorkbook) SheetByName(name string) (Sheet, error) {
	if name != w.sheet.src.Name {
		return nil, fmt.Errorf("formulafmt: sheet %q not found", name)
	}
	return w.sheet, nil
}

// FormatCell renders v the way a General-format cell would: CSV carries no
// style information, so every value uses its natural Go string form.
func (w *csvWorkbook) FormatCell(v any, _ int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (w *csvWorkbook) Close() error { return nil }

// csvSheet adapts ingest.Sheet's dense [][]worksheet.Cell to the Sheet
// interface's iterator shape.
type csvSheet struct {
	src *ingest.Sheet
}

func (s *csvSheet) Rows(sparse bool) func(yield func([]worksheet.Cell) bool) {
	rows := s.src.Rows()
	return func(yield func([]worksheet.Cell) bool) {
		for _, row := range rows {
			if !sparse && len(row) == 0 {
				continue
			}
			if !yield(row) {
				return
			}
		}
	}
}

func (s *csvSheet) FormatCell(cell worksheet.Cell) string {
	if cell.V == nil {
		return ""
	}
	return fmt.Sprint(cell.V)
}
