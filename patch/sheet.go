package patch

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wilson-anysphere/formula-sub015/biff"
)

// PatchSheet rewrites the cell records a patch set targets within a single
// worksheet's raw BIFF12 byte stream (xl/worksheets/sheetN.bin), copying
// every other record — ROW attributes, DIMENSION, COL, MERGE_CELL,
// HYPERLINK, conditional formatting, and every untouched cell — through
// byte-for-byte. This is the mechanism behind the invariant that row/col
// attributes survive cell edits: ROW records are never
// reconstructed, only read far enough to track the current row index.
//
// edits is keyed by CellRef; intern is consulted when a patch's NewValue is
// a string without an explicit SharedStringIndex. It returns the patched
// bytes and whether anything actually changed (false lets a caller skip
// rewriting the part and its content-types/rels entries).
func PatchSheet(original []byte, edits map[CellRef]CellPatch, intern internFunc) ([]byte, bool, error) {
	if len(edits) == 0 {
		return original, false, nil
	}
	// Index remaining edits by row, then by column, so each cell record is
	// looked up in O(1) and we can tell at the end which refs were never
	// found (an edit targeting a cell that doesn't exist in the stream).
	pending := make(map[int]map[int]CellPatch, len(edits))
	for ref, p := range edits {
		row := pending[ref.Row]
		if row == nil {
			row = make(map[int]CellPatch)
			pending[ref.Row] = row
		}
		row[ref.Col] = p
	}

	var out bytes.Buffer
	rdr := biff.NewBiff12Reader(bytes.NewReader(original))
	currentRow := -1
	changed := false

	for {
		recID, data, err := rdr.Next()
		if err != nil {
			break // io.EOF or a truncated stream; either way, stop copying
		}

		if recID == biff.Row {
			if r, ok := peekRowIndex(data); ok {
				currentRow = r
			}
			writeRecord(&out, recID, data)
			continue
		}

		if recID >= biff.Blank && recID <= biff.FormulaBoolErr {
			if rowEdits := pending[currentRow]; rowEdits != nil {
				if col, ok := peekCol(data); ok {
					if p, ok := rowEdits[col]; ok {
						newRecID, payload, err := applyCellPatch(data, recID, p, intern)
						if err != nil {
							return nil, false, fmt.Errorf("patch: sheet row %d col %d: %w", currentRow, col, err)
						}
						writeRecord(&out, newRecID, payload)
						delete(rowEdits, col)
						changed = true
						continue
					}
				}
			}
		}

		writeRecord(&out, recID, data)
	}

	var missing []CellRef
	for row, cols := range pending {
		for col := range cols {
			missing = append(missing, CellRef{Row: row, Col: col})
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool {
			if missing[i].Row != missing[j].Row {
				return missing[i].Row < missing[j].Row
			}
			return missing[i].Col < missing[j].Col
		})
		return nil, false, fmt.Errorf("patch: %d target cell(s) not found in sheet (inserting new cells is not supported): %v", len(missing), missing)
	}

	return out.Bytes(), changed, nil
}

func peekRowIndex(data []byte) (int, bool) {
	if len(data) < 4 {
		return 0, false
	}
	rr := biff.NewRecordReader(data)
	v, err := rr.ReadUint32()
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func peekCol(data []byte) (int, bool) {
	if len(data) < 4 {
		return 0, false
	}
	rr := biff.NewRecordReader(data)
	v, err := rr.ReadUint32()
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func writeRecord(buf *bytes.Buffer, recID int, payload []byte) {
	biff.WriteRecordID(buf, recID)
	biff.WriteRecordLen(buf, len(payload))
	buf.Write(payload)
}
