package patch

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wilson-anysphere/formula-sub015/biff"
)

// errCodes is the reverse of worksheet's errStrings map (MS-XLSB §2.5.97.2):
// spreadsheet error text -> BErr byte code. Kept independent from the
// worksheet package (whose table is unexported) since these codes are a
// published part of the file format, not an implementation detail.
var errCodes = map[string]byte{
	"#NULL!":         0x00,
	"#DIV/0!":        0x07,
	"#VALUE!":        0x0F,
	"#REF!":          0x17,
	"#NAME?":         0x1D,
	"#NUM!":          0x24,
	"#N/A":           0x2A,
	"#GETTING_DATA":  0x2B,
}

// cellValue holds a decoded cell record split into its addressing header,
// cached value, and (for formula records) the trailing rgce/rgcb bytes this
// package does not otherwise interpret.
type cellValue struct {
	col, style uint32
	tail       []byte // bytes after the cached value; non-empty only for FMLA* records
}

// valueWidth returns the byte width of recID's cached-value field within the
// record payload, starting right after the 8-byte col+style header. A
// negative width (-1) signals a variable-width field (FormulaString) whose
// length must be read from the payload itself.
func valueWidth(recID int) (width int, variable bool, ok bool) {
	switch recID {
	case biff.Blank:
		return 0, false, true
	case biff.Num:
		return 4, false, true
	case biff.BoolErr, biff.FormulaBoolErr:
		return 1, false, true
	case biff.Bool, biff.FormulaBool:
		return 1, false, true
	case biff.Float, biff.FormulaFloat:
		return 8, false, true
	case biff.String:
		return 4, false, true
	case biff.FormulaString:
		return 0, true, true
	}
	return 0, false, false
}

// splitCellRecord decodes the col/style header and locates the boundary
// between a cell record's cached value and any trailing formula bytes,
// without interpreting the value itself.
func splitCellRecord(data []byte, recID int) (col, style uint32, valueEnd int, err error) {
	if len(data) < 8 {
		return 0, 0, 0, fmt.Errorf("patch: cell record too short (%d bytes)", len(data))
	}
	col = binary.LittleEndian.Uint32(data[0:4])
	style = binary.LittleEndian.Uint32(data[4:8])

	w, variable, ok := valueWidth(recID)
	if !ok {
		return 0, 0, 0, fmt.Errorf("patch: record id 0x%04X is not a cell-value record", recID)
	}
	if !variable {
		if len(data) < 8+w {
			return 0, 0, 0, fmt.Errorf("patch: cell record truncated (want %d value bytes)", w)
		}
		return col, style, 8 + w, nil
	}
	// FormulaString: 4-byte char count followed by that many UTF-16LE units.
	if len(data) < 12 {
		return 0, 0, 0, fmt.Errorf("patch: FormulaString record truncated")
	}
	cch := binary.LittleEndian.Uint32(data[8:12])
	end := 12 + int(cch)*2
	if len(data) < end {
		return 0, 0, 0, fmt.Errorf("patch: FormulaString record truncated (cch=%d)", cch)
	}
	return col, style, end, nil
}

func isFormulaRecID(recID int) bool {
	switch recID {
	case biff.FormulaString, biff.FormulaFloat, biff.FormulaBool, biff.FormulaBoolErr:
		return true
	}
	return false
}

// plainRecIDFor returns the plain-value record id matching a formula
// record's cached-value layout, used when converting a FMLA* cell back to a
// value cell.
func plainRecIDFor(recID int) (int, bool) {
	switch recID {
	case biff.FormulaFloat:
		return biff.Float, true
	case biff.FormulaBool:
		return biff.Bool, true
	case biff.FormulaBoolErr:
		return biff.BoolErr, true
	}
	return 0, false // FormulaString has no layout-compatible plain equivalent
}

// encodeValue builds the cached-value bytes and record id for v, interning
// string values through intern unless explicit is supplied.
func encodeValue(v any, explicit *int, forFormula bool, intern internFunc) (recID int, value []byte, err error) {
	switch x := v.(type) {
	case nil:
		if forFormula {
			return 0, nil, errBlankFormulaEdit
		}
		return biff.Blank, nil, nil
	case float64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(x))
		if forFormula {
			return biff.FormulaFloat, buf, nil
		}
		return biff.Float, buf, nil
	case bool:
		b := byte(0)
		if x {
			b = 1
		}
		if forFormula {
			return biff.FormulaBool, []byte{b}, nil
		}
		return biff.Bool, []byte{b}, nil
	case string:
		if code, ok := errCodes[x]; ok {
			if forFormula {
				return biff.FormulaBoolErr, []byte{code}, nil
			}
			return biff.BoolErr, []byte{code}, nil
		}
		if forFormula {
			// Formula cached strings are stored inline (FormulaString), not
			// SST-indexed.
			units := utf16Units(x)
			buf := make([]byte, 4+len(units)*2)
			binary.LittleEndian.PutUint32(buf[0:4], uint32(len(units)))
			for i, u := range units {
				binary.LittleEndian.PutUint16(buf[4+i*2:], u)
			}
			return biff.FormulaString, buf, nil
		}
		var idx uint32
		if explicit != nil {
			idx = uint32(*explicit)
		} else {
			if intern == nil {
				return 0, nil, fmt.Errorf("patch: string value requires an SST writer or an explicit SharedStringIndex")
			}
			idx, err = intern(x)
			if err != nil {
				return 0, nil, fmt.Errorf("patch: interning string: %w", err)
			}
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, idx)
		return biff.String, buf, nil
	default:
		return 0, nil, fmt.Errorf("patch: unsupported cell value type %T", v)
	}
}

func utf16Units(s string) []uint16 {
	var units []uint16
	for _, r := range s {
		if r <= 0xFFFF {
			units = append(units, uint16(r))
			continue
		}
		r -= 0x10000
		units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return units
}

// applyCellPatch rewrites one cell record's bytes per patch and returns the
// new record id and payload (col + style + value [+ formula tail]).
func applyCellPatch(data []byte, recID int, p CellPatch, intern internFunc) (newRecID int, payload []byte, err error) {
	col, style, valueEnd, err := splitCellRecord(data, recID)
	if err != nil {
		return 0, nil, err
	}
	tail := data[valueEnd:]

	outStyle := style
	if p.NewStyle != nil {
		outStyle = uint32(*p.NewStyle)
	}

	switch {
	case p.ClearFormula:
		if !isFormulaRecID(recID) {
			return 0, nil, fmt.Errorf("patch: ClearFormula set on a non-formula cell (record 0x%04X)", recID)
		}
		if recID == biff.FormulaString {
			if p.SharedStringIndex == nil {
				return 0, nil, fmt.Errorf("patch: clearing a FormulaString cell requires SharedStringIndex (cached string is not SST-indexed)")
			}
			idx := make([]byte, 4)
			binary.LittleEndian.PutUint32(idx, uint32(*p.SharedStringIndex))
			return biff.String, buildValuePayload(col, outStyle, idx, nil), nil
		}
		plainID, ok := plainRecIDFor(recID)
		if !ok {
			return 0, nil, fmt.Errorf("patch: no plain-value equivalent for record 0x%04X", recID)
		}
		value := data[8:valueEnd]
		return plainID, buildValuePayload(col, outStyle, value, nil), nil

	case p.NewFormula != nil:
		valRecID, value, err := encodeValue(p.NewValue, nil, true, intern)
		if err != nil {
			return 0, nil, err
		}
		var newTail []byte
		grbit := make([]byte, 2)
		binary.LittleEndian.PutUint16(grbit, uint16(p.NewFormulaFlags))
		newTail = append(newTail, grbit...)
		cce := make([]byte, 4)
		binary.LittleEndian.PutUint32(cce, uint32(len(p.NewFormula)))
		newTail = append(newTail, cce...)
		newTail = append(newTail, p.NewFormula...)
		if len(p.NewRgcb) > 0 {
			cb := make([]byte, 4)
			binary.LittleEndian.PutUint32(cb, uint32(len(p.NewRgcb)))
			newTail = append(newTail, cb...)
			newTail = append(newTail, p.NewRgcb...)
		}
		return valRecID, buildValuePayload(col, outStyle, value, newTail), nil

	case p.NewValue != nil:
		if isFormulaRecID(recID) {
			// Value-only edit on an existing formula cell: replace the
			// cached result, keep the formula (tail) untouched.
			valRecID, value, err := encodeValue(p.NewValue, p.SharedStringIndex, true, intern)
			if err != nil {
				return 0, nil, err
			}
			return valRecID, buildValuePayload(col, outStyle, value, tail), nil
		}
		valRecID, value, err := encodeValue(p.NewValue, p.SharedStringIndex, false, intern)
		if err != nil {
			return 0, nil, err
		}
		return valRecID, buildValuePayload(col, outStyle, value, nil), nil

	default:
		// Style-only edit (or a no-op patch): preserve everything else.
		return recID, buildValuePayload(col, outStyle, data[8:valueEnd], tail), nil
	}
}

func buildValuePayload(col, style uint32, value, tail []byte) []byte {
	out := make([]byte, 8, 8+len(value)+len(tail))
	binary.LittleEndian.PutUint32(out[0:4], col)
	binary.LittleEndian.PutUint32(out[4:8], style)
	out = append(out, value...)
	out = append(out, tail...)
	return out
}
