package xls

import (
	"fmt"
	"math"
	"sort"

	"github.com/wilson-anysphere/formula-sub015/biff"
	"github.com/wilson-anysphere/formula-sub015/styles"
	"github.com/wilson-anysphere/formula-sub015/worksheet"
	"github.com/wilson-anysphere/formula-sub015/xlerr"
)

// Worksheet holds the parsed contents of one BIFF8 worksheet substream.
// Unlike package worksheet's BIFF12 Worksheet (which re-seeks into a
// retained byte slice on every Rows call), this reader consumes its
// biff.Biff8LogicalIter exactly once at open time, since BIFF8 worksheet
// streams have no SHEETDATA marker to seek back to.
type Worksheet struct {
	Name       string
	Dimension  *worksheet.Dimension
	Cols       []worksheet.Col
	MergeCells []worksheet.MergeArea

	rows     map[int][]worksheet.Cell
	maxRow   int
	minRow   int
	haveData bool

	styleTable styles.StyleTable
	formatFn   worksheet.FormatFunc
}

// newWorksheet drains it (already positioned at the sheet's BOF) through
// its matching EOF, building the cell grid.
func newWorksheet(name string, it *biff.Biff8LogicalIter, sharedStrs []string, styleTable styles.StyleTable, formatFn worksheet.FormatFunc, warnings *xlerr.Warnings) (*Worksheet, error) {
	ws := &Worksheet{
		Name:       name,
		rows:       make(map[int][]worksheet.Cell),
		minRow:     -1,
		styleTable: styleTable,
		formatFn:   formatFn,
	}

	var pendingFormulaRow, pendingFormulaCol, pendingFormulaStyle int
	havePendingFormulaString := false

	for {
		rec, err := it.Next()
		if err != nil {
			break // EOF or truncated stream: return what was successfully parsed
		}

		switch rec.ID {
		case biff.Biff8Bof:
			if len(rec.Data) >= 4 {
				dt := uint16(rec.Data[2]) | uint16(rec.Data[3])<<8
				if dt != bofTypeWorksheet && warnings != nil {
					warnings.Add("xls", "sheet %q: unexpected BOF substream type 0x%04X", name, dt)
				}
			}

		case recDimensions:
			dim, err := parseDimensions(rec.Data)
			if err == nil {
				ws.Dimension = &dim
			}

		case recColInfo:
			col, err := parseColInfo(rec.Data)
			if err == nil {
				ws.Cols = append(ws.Cols, col)
			}

		case recMergeCells:
			areas, err := parseMergeCells(rec.Data)
			if err == nil {
				ws.MergeCells = append(ws.MergeCells, areas...)
			}

		case recBlank:
			if len(rec.Data) >= 6 {
				row := int(le16(rec.Data[0:2]))
				col := int(le16(rec.Data[2:4]))
				style := int(le16(rec.Data[4:6]))
				ws.putCell(row, worksheet.Cell{R: row, C: col, Style: style})
			}

		case recMulBlank:
			ws.parseMulBlank(rec.Data)

		case recNumber:
			if len(rec.Data) >= 14 {
				row := int(le16(rec.Data[0:2]))
				col := int(le16(rec.Data[2:4]))
				style := int(le16(rec.Data[4:6]))
				val := math.Float64frombits(leU64(rec.Data[6:14]))
				ws.putCell(row, worksheet.Cell{R: row, C: col, V: val, Style: style})
			}

		case recRK:
			if len(rec.Data) >= 10 {
				row := int(le16(rec.Data[0:2]))
				col := int(le16(rec.Data[2:4]))
				style := int(le16(rec.Data[4:6]))
				rr := biff.NewRecordReader(rec.Data[6:10])
				val, _ := rr.ReadFloat()
				ws.putCell(row, worksheet.Cell{R: row, C: col, V: val, Style: style})
			}

		case recMulRK:
			ws.parseMulRK(rec.Data)

		case recLabel:
			if len(rec.Data) >= 6 {
				row := int(le16(rec.Data[0:2]))
				col := int(le16(rec.Data[2:4]))
				style := int(le16(rec.Data[4:6]))
				rr := biff.NewRecordReader(rec.Data[6:])
				text, err := readUnicodeString(rr)
				if err == nil {
					ws.putCell(row, worksheet.Cell{R: row, C: col, V: text, Style: style})
				}
			}

		case recLabelSST:
			if len(rec.Data) >= 10 {
				row := int(le16(rec.Data[0:2]))
				col := int(le16(rec.Data[2:4]))
				style := int(le16(rec.Data[4:6]))
				idx := int(leU32(rec.Data[6:10]))
				var text any
				if idx >= 0 && idx < len(sharedStrs) {
					text = sharedStrs[idx]
				}
				ws.putCell(row, worksheet.Cell{R: row, C: col, V: text, Style: style})
			}

		case recBoolErr:
			if len(rec.Data) >= 8 {
				row := int(le16(rec.Data[0:2]))
				col := int(le16(rec.Data[2:4]))
				style := int(le16(rec.Data[4:6]))
				val := rec.Data[6]
				isErr := rec.Data[7] != 0
				var v any
				if isErr {
					v = errString(val)
				} else {
					v = val != 0
				}
				ws.putCell(row, worksheet.Cell{R: row, C: col, V: v, Style: style})
			}

		case recFormula:
			if len(rec.Data) >= 14 {
				row := int(le16(rec.Data[0:2]))
				col := int(le16(rec.Data[2:4]))
				style := int(le16(rec.Data[4:6]))
				val := rec.Data[6:14]
				havePendingFormulaString = false
				if val[6] == 0xFF && val[7] == 0xFF {
					switch val[0] {
					case 1: // boolean
						ws.putCell(row, worksheet.Cell{R: row, C: col, V: val[2] != 0, Style: style})
					case 2: // error code
						ws.putCell(row, worksheet.Cell{R: row, C: col, V: errString(val[2]), Style: style})
					case 3: // blank string result
						ws.putCell(row, worksheet.Cell{R: row, C: col, V: "", Style: style})
					default: // 0: string result follows in the next STRING record
						pendingFormulaRow, pendingFormulaCol, pendingFormulaStyle = row, col, style
						havePendingFormulaString = true
					}
				} else {
					f := math.Float64frombits(leU64(val))
					ws.putCell(row, worksheet.Cell{R: row, C: col, V: f, Style: style})
				}
			}

		case recStringRes:
			if havePendingFormulaString {
				havePendingFormulaString = false
				rr := biff.NewRecordReader(rec.Data)
				text, err := readUnicodeString(rr)
				if err == nil {
					ws.putCell(pendingFormulaRow, worksheet.Cell{R: pendingFormulaRow, C: pendingFormulaCol, V: text, Style: pendingFormulaStyle})
				}
			}

		case biff.Biff8Eof:
			ws.haveData = ws.haveData || len(ws.rows) > 0
			return ws, nil
		}
	}

	return ws, nil
}

func (ws *Worksheet) putCell(row int, c worksheet.Cell) {
	ws.haveData = true
	if ws.minRow == -1 || row < ws.minRow {
		ws.minRow = row
	}
	if row > ws.maxRow {
		ws.maxRow = row
	}
	ws.rows[row] = append(ws.rows[row], c)
}

func (ws *Worksheet) parseMulBlank(data []byte) {
	if len(data) < 6 {
		return
	}
	row := int(le16(data[0:2]))
	colFirst := int(le16(data[2:4]))
	body := data[4:]
	if len(body) < 2 {
		return
	}
	colLast := int(le16(body[len(body)-2:]))
	runs := body[:len(body)-2]
	n := colLast - colFirst + 1
	if n <= 0 || len(runs) < n*2 {
		return
	}
	for i := 0; i < n; i++ {
		style := int(le16(runs[i*2 : i*2+2]))
		ws.putCell(row, worksheet.Cell{R: row, C: colFirst + i, Style: style})
	}
}

func (ws *Worksheet) parseMulRK(data []byte) {
	if len(data) < 6 {
		return
	}
	row := int(le16(data[0:2]))
	colFirst := int(le16(data[2:4]))
	body := data[4:]
	if len(body) < 2 {
		return
	}
	colLast := int(le16(body[len(body)-2:]))
	runs := body[:len(body)-2]
	n := colLast - colFirst + 1
	if n <= 0 || len(runs) < n*6 {
		return
	}
	for i := 0; i < n; i++ {
		entry := runs[i*6 : i*6+6]
		style := int(le16(entry[0:2]))
		rr := biff.NewRecordReader(entry[2:6])
		val, err := rr.ReadFloat()
		if err != nil {
			continue
		}
		ws.putCell(row, worksheet.Cell{R: row, C: colFirst + i, V: val, Style: style})
	}
}

// Rows iterates worksheet rows in order. When sparse is false, empty rows
// between the first and last populated row are emitted as nil-cell slices
// padded across Dimension's column range, matching package worksheet's
// dense-mode contract.
func (ws *Worksheet) Rows(sparse bool) func(yield func([]worksheet.Cell) bool) {
	return func(yield func([]worksheet.Cell) bool) {
		if !ws.haveData && ws.Dimension == nil {
			return
		}
		lo, hi := ws.minRow, ws.maxRow
		if ws.Dimension != nil {
			if ws.Dimension.R < lo || lo == -1 {
				lo = ws.Dimension.R
			}
			if d := ws.Dimension.R + ws.Dimension.H - 1; d > hi {
				hi = d
			}
		}
		if lo == -1 {
			return
		}
		for r := lo; r <= hi; r++ {
			row, ok := ws.rows[r]
			if !ok {
				if sparse {
					continue
				}
				if !yield(ws.emptyRow(r)) {
					return
				}
				continue
			}
			sort.Slice(row, func(i, j int) bool { return row[i].C < row[j].C })
			if !yield(row) {
				return
			}
		}
	}
}

func (ws *Worksheet) emptyRow(r int) []worksheet.Cell {
	if ws.Dimension == nil || ws.Dimension.W <= 0 {
		return nil
	}
	cells := make([]worksheet.Cell, ws.Dimension.W)
	for c := range cells {
		cells[c] = worksheet.Cell{R: r, C: ws.Dimension.C + c}
	}
	return cells
}

// IsDateCell reports whether the XF style index maps to a date/datetime
// number format, mirroring worksheet.Worksheet.IsDateCell.
func (ws *Worksheet) IsDateCell(style int) bool {
	return ws.styleTable.IsDate(style)
}

// FormatCell renders cell's value through the owning workbook's number
// format engine.
func (ws *Worksheet) FormatCell(cell worksheet.Cell) string {
	if ws.formatFn == nil {
		if cell.V == nil {
			return ""
		}
		return fmt.Sprint(cell.V)
	}
	return ws.formatFn(cell.V, cell.Style)
}

// parseDimensions decodes a DIMENSIONS record (MS-XLS 2.4.83, BIFF8 form):
// rwMic(4) rwMac(4) colMic(2) colMac(2) reserved(2).
func parseDimensions(data []byte) (worksheet.Dimension, error) {
	if len(data) < 12 {
		return worksheet.Dimension{}, fmt.Errorf("xls: DIMENSIONS too short")
	}
	rwFirst := int(leU32(data[0:4]))
	rwLast := int(leU32(data[4:8])) // exclusive, per the MS-XLS field semantics
	colFirst := int(le16(data[8:10]))
	colLast := int(le16(data[10:12])) // exclusive
	h := rwLast - rwFirst
	w := colLast - colFirst
	if h < 0 {
		h = 0
	}
	if w < 0 {
		w = 0
	}
	return worksheet.Dimension{R: rwFirst, C: colFirst, H: h, W: w}, nil
}

// parseColInfo decodes a COLINFO record (MS-XLS 2.4.64):
// colFirst(2) colLast(2) coldx(2, 1/256th-character width units) ixfe(2) ...
func parseColInfo(data []byte) (worksheet.Col, error) {
	if len(data) < 8 {
		return worksheet.Col{}, fmt.Errorf("xls: COLINFO too short")
	}
	c1 := int(le16(data[0:2]))
	c2 := int(le16(data[2:4]))
	widthUnits := le16(data[4:6])
	style := int(le16(data[6:8]))
	return worksheet.Col{C1: c1, C2: c2, Width: float64(widthUnits) / 256.0, Style: style}, nil
}

// parseMergeCells decodes a MERGECELLS record (MS-XLS 2.4.193): cmcs(2)
// repeated {rwFirst(2) rwLast(2) colFirst(2) colLast(2)} (all inclusive).
func parseMergeCells(data []byte) ([]worksheet.MergeArea, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("xls: MERGECELLS too short")
	}
	n := int(le16(data[0:2]))
	out := make([]worksheet.MergeArea, 0, n)
	body := data[2:]
	for i := 0; i < n; i++ {
		off := i * 8
		if off+8 > len(body) {
			break
		}
		rwFirst := int(le16(body[off : off+2]))
		rwLast := int(le16(body[off+2 : off+4]))
		colFirst := int(le16(body[off+4 : off+6]))
		colLast := int(le16(body[off+6 : off+8]))
		out = append(out, worksheet.MergeArea{
			R: rwFirst, C: colFirst,
			H: rwLast - rwFirst + 1,
			W: colLast - colFirst + 1,
		})
	}
	return out, nil
}

// errString maps a BIFF8 error-code byte (MS-XLS 2.5.97) to its textual form.
func errString(code byte) string {
	switch code {
	case 0x00:
		return "#NULL!"
	case 0x07:
		return "#DIV/0!"
	case 0x0F:
		return "#VALUE!"
	case 0x17:
		return "#REF!"
	case 0x1D:
		return "#NAME?"
	case 0x24:
		return "#NUM!"
	case 0x2A:
		return "#N/A"
	default:
		return fmt.Sprintf("#ERR%d!", code)
	}
}

func le16(b []byte) uint16  { return uint16(b[0]) | uint16(b[1])<<8 }
func leU32(b []byte) uint32 { return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24 }
func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
