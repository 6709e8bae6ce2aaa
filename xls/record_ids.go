// Package xls reads legacy BIFF8 .xls workbooks: an OLE/CFB compound file
// (package cfb) whose "Workbook" stream holds a BIFF8 record stream
// (package biff) — a workbook-globals substream followed by one
// worksheet substream per sheet, each delimited by BOF/EOF.
package xls

// BIFF8 record type IDs this reader understands. biff.Biff8Continue,
// biff.Biff8Bof, biff.Biff8Eof, biff.Biff8Sst, and biff.Biff8ExtSst are
// already defined in package biff (shared with the CONTINUE-coalescing
// logic); the rest are specific to the legacy .xls reader.
const (
	recBoundSheet = 0x0085
	recFilePass   = 0x002F
	recFormat     = 0x041E
	recXF         = 0x00E0
	recDimensions = 0x0200
	recRow        = 0x0208
	recColInfo    = 0x007D
	recMergeCells = 0x00E5
	recBlank      = 0x0201
	recMulBlank   = 0x00BE
	recNumber     = 0x0203
	recRK         = 0x027E
	recMulRK      = 0x00BD
	recLabel      = 0x0204
	recLabelSST   = 0x00FD
	recBoolErr    = 0x0205
	recFormula    = 0x0006
	recStringRes  = 0x0007
)

// BOF substream type (offset 2 of a BOF payload), MS-XLS 2.4.21.
const (
	bofTypeWorkbookGlobals = 0x0005
	bofTypeWorksheet       = 0x0010
)

// BoundSheet8 hsState values, MS-XLS 2.4.28 — numerically identical to the
// BIFF12 BrtBundleSh visibility encoding in package workbook.
const (
	SheetVisible    = 0
	SheetHidden     = 1
	SheetVeryHidden = 2
)
