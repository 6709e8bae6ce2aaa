package formulafmt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wilson-anysphere/formula-sub015/cfb"
	"github.com/wilson-anysphere/formula-sub015/ingest"
	"github.com/wilson-anysphere/formula-sub015/offcrypto"
	"github.com/wilson-anysphere/formula-sub015/workbook"
	"github.com/wilson-anysphere/formula-sub015/worksheet"
	"github.com/wilson-anysphere/formula-sub015/xls"
)

// Workbook is the read surface common to every container format this
// package recognizes: an OPC/ZIP package (BIFF12 .xlsb or OOXML .xlsx),
// a legacy CFB .xls file, or a delimiter-separated text file ingested as a
// single-sheet workbook. [workbook.Workbook] and [xls.Workbook] already
// satisfy this interface; CSV input is wrapped in [csvWorkbook].
type Workbook interface {
	Sheets() []string
	Sheet(idx int) (Sheet, error)
	SheetByName(name string) (Sheet, error)
	FormatCell(v any, styleIdx int) string
	Close() error
}

// Sheet is the row-iteration surface common to every container format.
// [worksheet.Worksheet] and [xls.Worksheet] already satisfy this interface.
type Sheet interface {
	Rows(sparse bool) func(yield func([]worksheet.Cell) bool)
	FormatCell(cell worksheet.Cell) string
}

// ErrPasswordRequired is returned by OpenAny/OpenAnyReader when the container
// is an encrypted OOXML package (an MS-OFFCRYPTO EncryptionInfo/EncryptedPackage
// pair inside a CFB wrapper). Callers must retry with OpenEncrypted.
var ErrPasswordRequired = errors.New("formulafmt: workbook is password-protected")

var zipSignatures = [][]byte{
	{'P', 'K', 0x03, 0x04},
	{'P', 'K', 0x05, 0x06}, // empty archive
	{'P', 'K', 0x07, 0x08}, // spanned archive, first disk
}

var cfbSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// sniff classifies data by its leading magic bytes. It never inspects
// content beyond the first 8 bytes, so the caller can cheaply decide which
// full parser to invoke without materializing the whole file twice.
func sniff(data []byte) string {
	for _, sig := range zipSignatures {
		if bytes.HasPrefix(data, sig) {
			return "zip"
		}
	}
	if bytes.HasPrefix(data, cfbSignature) {
		return "cfb"
	}
	return "text"
}

// OpenAny opens the named workbook, recognizing its container by content
// rather than by file extension: an OPC/ZIP package (.xlsb/.xlsx), a legacy
// CFB .xls file, or delimiter-separated text (.csv/.tsv). Encrypted OOXML
// packages are recognized and rejected with [ErrPasswordRequired]; use
// OpenEncrypted to supply a password. The caller must call Close on the
// returned Workbook when done.
func OpenAny(name string) (Workbook, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("formulafmt: open %q: %w", name, err)
	}
	return openContainer(raw, name, "")
}

// OpenAnyReader reads a workbook from an arbitrary [io.ReaderAt], sniffing
// its container format the same way OpenAny does. size must equal the total
// byte length of the data.
func OpenAnyReader(r io.ReaderAt, size int64) (Workbook, error) {
	raw := make([]byte, size)
	if _, err := r.ReadAt(raw, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("formulafmt: read: %w", err)
	}
	return openContainer(raw, "workbook", "")
}

// OpenEncrypted opens a named, MS-OFFCRYPTO-encrypted OOXML package,
// decrypting it with password before parsing.
func OpenEncrypted(name, password string) (Workbook, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("formulafmt: open %q: %w", name, err)
	}
	return openContainer(raw, name, password)
}

// openContainer is the single container-sniffing entry point used by every
// exported Open variant.
func openContainer(raw []byte, name, password string) (Workbook, error) {
	switch sniff(raw) {
	case "zip":
		wb, err := workbook.OpenReader(bytes.NewReader(raw), int64(len(raw)))
		if err != nil {
			return nil, err
		}
		return workbookAdapter{wb}, nil
	case "cfb":
		return openCFBContainer(raw, password)
	default:
		stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		sheet, err := ingest.ReadCSV(raw, stem)
		if err != nil {
			return nil, err
		}
		return newCSVWorkbook(sheet), nil
	}
}

// openCFBContainer distinguishes an MS-OFFCRYPTO-encrypted OOXML package
// (a CFB wrapper holding "EncryptionInfo" and "EncryptedPackage" streams)
// from a legacy BIFF8 .xls workbook (a CFB wrapper holding a "Workbook" or
// "Book" stream), dispatching to offcrypto or xls accordingly.
func openCFBContainer(raw []byte, password string) (Workbook, error) {
	cfr, err := cfb.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("formulafmt: open: %w", err)
	}
	if cfr.HasStream("EncryptionInfo") && cfr.HasStream("EncryptedPackage") {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		encInfo, err := cfr.Stream("EncryptionInfo")
		if err != nil {
			return nil, fmt.Errorf("formulafmt: reading EncryptionInfo: %w", err)
		}
		encPkg, err := cfr.Stream("EncryptedPackage")
		if err != nil {
			return nil, fmt.Errorf("formulafmt: reading EncryptedPackage: %w", err)
		}
		decrypted, _, err := offcrypto.DecryptPackage(encInfo, encPkg, password)
		if err != nil {
			return nil, fmt.Errorf("formulafmt: decrypt: %w", err)
		}
		wb, err := workbook.OpenReader(bytes.NewReader(decrypted), int64(len(decrypted)))
		if err != nil {
			return nil, err
		}
		return workbookAdapter{wb}, nil
	}
	wb, err := xls.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return xlsAdapter{wb}, nil
}

// workbookAdapter widens *workbook.Workbook's *worksheet.Worksheet returns
// to the Sheet interface.
type workbookAdapter struct{ wb *workbook.Workbook }

func (a workbookAdapter) Sheets() []string { return a.wb.Sheets() }
func (a workbookAdapter) Sheet(idx int) (Sheet, error) {
	s, err := a.wb.Sheet(idx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
func (a workbookAdapter) SheetByName(name string) (Sheet, error) {
	s, err := a.wb.SheetByName(name)
	if err != nil {
		return nil, err
	}
	return s, nil
}
func (a workbookAdapter) FormatCell(v any, styleIdx int) string { return a.wb.FormatCell(v, styleIdx) }
func (a workbookAdapter) Close() error                          { return a.wb.Close() }

// xlsAdapter widens *xls.Workbook's *xls.Worksheet returns to the Sheet
// interface.
type xlsAdapter struct{ wb *xls.Workbook }

func (a xlsAdapter) Sheets() []string { return a.wb.Sheets() }
func (a xlsAdapter) Sheet(idx int) (Sheet, error) {
	s, err := a.wb.Sheet(idx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
func (a xlsAdapter) SheetByName(name string) (Sheet, error) {
	s, err := a.wb.SheetByName(name)
	if err != nil {
		return nil, err
	}
	return s, nil
}
func (a xlsAdapter) FormatCell(v any, styleIdx int) string { return a.wb.FormatCell(v, styleIdx) }
func (a xlsAdapter) Close() error                          { return a.wb.Close() }
