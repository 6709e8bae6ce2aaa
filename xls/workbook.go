package xls

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wilson-anysphere/formula-sub015/biff"
	"github.com/wilson-anysphere/formula-sub015/cfb"
	"github.com/wilson-anysphere/formula-sub015/numfmt"
	"github.com/wilson-anysphere/formula-sub015/styles"
	"github.com/wilson-anysphere/formula-sub015/xlerr"
)

// sheetEntry holds one BoundSheet8 entry: display name, the byte offset
// (within the Workbook stream) of the sheet's own BOF record, and its
// visibility.
type sheetEntry struct {
	name       string
	bofOffset  int64
	visibility int
}

// Workbook represents an open legacy BIFF8 .xls workbook.
type Workbook struct {
	data        []byte // the raw "Workbook" (or "Book") CFB stream
	sheets      []sheetEntry
	sharedStrs  []string
	Styles      styles.StyleTable
	Date1904    bool
	Warnings    xlerr.Warnings
}

// Open reads the named .xls file and parses its workbook metadata.
func Open(name string) (*Workbook, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("xls: open %q: %w", name, err)
	}
	return OpenReader(bytes.NewReader(raw))
}

// OpenReader parses a legacy .xls workbook from an in-memory CFB image.
func OpenReader(r io.Reader) (*Workbook, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("xls: read: %w", err)
	}
	cfr, err := cfb.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("xls: open %w: %v", xlerr.ErrInvalid, err)
	}

	var stream string
	switch {
	case cfr.HasStream("Workbook"):
		stream = "Workbook"
	case cfr.HasStream("Book"):
		stream = "Book" // BIFF5/BIFF7 legacy stream name, still seen in the wild
	default:
		return nil, fmt.Errorf("xls: %w: no Workbook/Book stream", xlerr.ErrMissingRequiredStream)
	}
	data, err := cfr.Stream(stream)
	if err != nil {
		return nil, fmt.Errorf("xls: reading %q stream: %w", stream, err)
	}

	wb := &Workbook{data: data}
	if err := wb.parseGlobals(); err != nil {
		return nil, err
	}
	return wb, nil
}

// Close is a no-op; Workbook holds no external resources once opened.
func (wb *Workbook) Close() error { return nil }

// Sheets returns the display names of all worksheets in order.
func (wb *Workbook) Sheets() []string {
	names := make([]string, len(wb.sheets))
	for i, s := range wb.sheets {
		names[i] = s.name
	}
	return names
}

// SheetVisibility returns SheetVisible/SheetHidden/SheetVeryHidden for the
// named sheet (case-insensitive), or -1 if no sheet with that name exists.
func (wb *Workbook) SheetVisibility(name string) int {
	lower := strings.ToLower(name)
	for _, s := range wb.sheets {
		if strings.ToLower(s.name) == lower {
			return s.visibility
		}
	}
	return -1
}

// Sheet returns the worksheet at the given 1-based index.
func (wb *Workbook) Sheet(idx int) (*Worksheet, error) {
	if idx < 1 || idx > len(wb.sheets) {
		return nil, fmt.Errorf("xls: sheet index %d out of range [1, %d]", idx, len(wb.sheets))
	}
	return wb.openSheet(wb.sheets[idx-1])
}

// SheetByName returns the worksheet with the given name (case-insensitive).
func (wb *Workbook) SheetByName(name string) (*Worksheet, error) {
	lower := strings.ToLower(name)
	for _, s := range wb.sheets {
		if strings.ToLower(s.name) == lower {
			return wb.openSheet(s)
		}
	}
	return nil, fmt.Errorf("xls: sheet %q not found", name)
}

// FormatCell renders v through the workbook's resolved number-format table,
// the same contract as workbook.Workbook.FormatCell.
func (wb *Workbook) FormatCell(v any, styleIdx int) string {
	if styleIdx < 0 || styleIdx >= len(wb.Styles) {
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
	s := wb.Styles[styleIdx]
	return numfmt.FormatValue(v, s.NumFmtID, s.FormatStr, wb.Date1904)
}

func (wb *Workbook) openSheet(entry sheetEntry) (*Worksheet, error) {
	r := bytes.NewReader(wb.data)
	if _, err := r.Seek(entry.bofOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("xls: seeking to sheet %q: %w", entry.name, err)
	}
	it := biff.NewBiff8LogicalIter(biff.NewBiff8Reader(r))
	return newWorksheet(entry.name, it, wb.sharedStrs, wb.Styles, wb.FormatCell, &wb.Warnings)
}

// parseGlobals walks the workbook-globals substream (the BOF at byte 0
// through its matching EOF), collecting BOUNDSHEET sheet entries, the XF
// table, custom FORMAT codes, the SST, and the 1904 date-system flag.
func (wb *Workbook) parseGlobals() error {
	it := biff.NewBiff8LogicalIter(biff.NewBiff8Reader(bytes.NewReader(wb.data)))

	var xfNumFmtIDs []int
	customFormats := make(map[int]string)

	for {
		rec, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("xls: reading workbook globals: %w", err)
		}

		switch rec.ID {
		case recFilePass:
			return fmt.Errorf("xls: workbook is password-protected (legacy BIFF8 encryption): %w", xlerr.ErrUnsupportedOoxmlEncryption)

		case biff.Biff8Bof:
			if len(rec.Data) >= 4 {
				dt := uint16(rec.Data[2]) | uint16(rec.Data[3])<<8
				if dt != bofTypeWorkbookGlobals {
					return fmt.Errorf("xls: %w: expected workbook-globals BOF, got substream type 0x%04X", xlerr.ErrInvalid, dt)
				}
			}

		case 0x0022: // Date1904: single uint16, nonzero means the 1904 date system
			if len(rec.Data) >= 2 && (rec.Data[0] != 0 || rec.Data[1] != 0) {
				wb.Date1904 = true
			}

		case recBoundSheet:
			entry, err := parseBoundSheet(rec.Data)
			if err != nil {
				return fmt.Errorf("xls: BOUNDSHEET: %w", err)
			}
			wb.sheets = append(wb.sheets, entry)

		case recFormat:
			ifmt, code, err := parseFormat(rec.Data)
			if err != nil {
				wb.Warnings.Add("xls", "skipping malformed FORMAT record: %v", err)
				continue
			}
			customFormats[ifmt] = code

		case recXF:
			numFmtID, err := parseXF(rec.Data)
			if err != nil {
				wb.Warnings.Add("xls", "skipping malformed XF record: %v", err)
				xfNumFmtIDs = append(xfNumFmtIDs, 0)
				continue
			}
			xfNumFmtIDs = append(xfNumFmtIDs, numFmtID)

		case biff.Biff8Sst:
			wb.sharedStrs = decodeSSTStrings(rec)

		case biff.Biff8Eof:
			wb.Styles = buildStyleTable(xfNumFmtIDs, customFormats)
			return nil
		}
	}

	wb.Styles = buildStyleTable(xfNumFmtIDs, customFormats)
	return nil
}

// parseBoundSheet decodes a BoundSheet8 record (MS-XLS 2.4.28):
//
//	lbPlyPos uint32   -- stream offset of this sheet's own BOF
//	hsState  uint8    -- 0 visible, 1 hidden, 2 very hidden
//	dt       uint8    -- sheet type; only 0x00 (worksheet) is modeled here
//	cch      uint8    -- name length
//	         ShortXLUnicodeString (grbit + cch characters)
func parseBoundSheet(data []byte) (sheetEntry, error) {
	rr := biff.NewRecordReader(data)
	lbPlyPos, err := rr.ReadUint32()
	if err != nil {
		return sheetEntry{}, fmt.Errorf("lbPlyPos: %w", err)
	}
	hsState, err := rr.ReadUint8()
	if err != nil {
		return sheetEntry{}, fmt.Errorf("hsState: %w", err)
	}
	if _, err := rr.ReadUint8(); err != nil { // dt, sheet type -- unused
		return sheetEntry{}, fmt.Errorf("dt: %w", err)
	}
	cch, err := rr.ReadUint8()
	if err != nil {
		return sheetEntry{}, fmt.Errorf("cch: %w", err)
	}
	name, err := readShortUnicodeString(rr, int(cch))
	if err != nil {
		return sheetEntry{}, fmt.Errorf("name: %w", err)
	}
	return sheetEntry{name: name, bofOffset: int64(lbPlyPos), visibility: int(hsState & 0x03)}, nil
}
