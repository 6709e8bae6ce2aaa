package xls

import (
	"fmt"

	"github.com/wilson-anysphere/formula-sub015/biff"
	"github.com/wilson-anysphere/formula-sub015/styles"
)

// parseXF decodes the numFmtId field out of a 20-byte BIFF8 XF record
// (MS-XLS 2.4.353): ifnt(2) ifmt(2) flags(2) ... — only the first four
// bytes matter here, the rest (alignment, borders, fill, protection) are
// not part of this module's style model.
func parseXF(data []byte) (numFmtID int, err error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("xls: XF record too short (%d bytes)", len(data))
	}
	rr := biff.NewRecordReader(data)
	if _, err := rr.ReadUint16(); err != nil { // ifnt, unused
		return 0, err
	}
	ifmt, err := rr.ReadUint16()
	if err != nil {
		return 0, err
	}
	return int(ifmt), nil
}

// parseFormat decodes a FORMAT record (MS-XLS 2.4.152): ifmt(2) followed by
// an XLUnicodeString holding the format code.
func parseFormat(data []byte) (ifmt int, code string, err error) {
	rr := biff.NewRecordReader(data)
	id, err := rr.ReadUint16()
	if err != nil {
		return 0, "", fmt.Errorf("xls: FORMAT: ifmt: %w", err)
	}
	code, err = readUnicodeString(rr)
	if err != nil {
		return 0, "", fmt.Errorf("xls: FORMAT: %w", err)
	}
	return int(id), code, nil
}

// buildStyleTable turns the accumulated XF numFmtIds and custom format
// strings (keyed by ifmt) into a styles.StyleTable indexed the same way
// cell records reference it (Cell.Style is a 0-based index into the cell
// XF subset, i.e. the order XF records appear after the 16 built-in style
// XFs that precede them in a well-formed file — see parseGlobals).
func buildStyleTable(xfNumFmtIDs []int, customFormats map[int]string) styles.StyleTable {
	table := make(styles.StyleTable, len(xfNumFmtIDs))
	for i, id := range xfNumFmtIDs {
		table[i] = styles.XFStyle{NumFmtID: id, FormatStr: customFormats[id]}
	}
	return table
}
