package worksheet

import (
	"fmt"

	"github.com/wilson-anysphere/formula-sub015/biff"
)

// PrintSettings groups a sheet's page-setup metadata. Each field is nil when
// its corresponding record was absent from the binary stream (most sheets
// carry PAGESETUP but omit the others).
type PrintSettings struct {
	Margins      *PageMargins
	Options      *PrintOptions
	Setup        *PageSetup
	HeaderFooter *HeaderFooterText
}

// PageMargins holds the six page-margin measurements, in inches, as stored
// in the PAGEMARGINS record.
type PageMargins struct {
	Left, Right, Top, Bottom, Header, Footer float64
}

// PrintOptions mirrors the PRINTOPTIONS record's boolean flags.
type PrintOptions struct {
	GridLines          bool
	Headings           bool
	HorizontalCentered bool
	VerticalCentered   bool
}

// PageSetup mirrors the subset of PAGESETUP fields callers most commonly
// need; black-and-white/draft/page-order flags are not modeled.
type PageSetup struct {
	PaperSize   int
	Scale       int
	FitToWidth  int
	FitToHeight int
	Landscape   bool
}

// HeaderFooterText holds the odd-page header/footer text. Even-page and
// first-page variants are not modeled.
type HeaderFooterText struct {
	Header string
	Footer string
}

// parsePageMarginsRecord decodes PAGEMARGINS: six IEEE-754 doubles in the
// order left, right, top, bottom, header, footer.
func parsePageMarginsRecord(data []byte) (PageMargins, error) {
	rr := biff.NewRecordReader(data)
	vals := make([]float64, 6)
	for i := range vals {
		v, err := rr.ReadDouble()
		if err != nil {
			return PageMargins{}, fmt.Errorf("pagemargins: field %d: %w", i, err)
		}
		vals[i] = v
	}
	return PageMargins{
		Left: vals[0], Right: vals[1], Top: vals[2],
		Bottom: vals[3], Header: vals[4], Footer: vals[5],
	}, nil
}

// parsePrintOptionsRecord decodes PRINTOPTIONS: a single uint16 flags field.
// bit 0: gridLines, bit 1: headings, bit 2: horizontalCentered,
// bit 3: verticalCentered.
func parsePrintOptionsRecord(data []byte) (PrintOptions, error) {
	rr := biff.NewRecordReader(data)
	flags, err := rr.ReadUint16()
	if err != nil {
		return PrintOptions{}, fmt.Errorf("printoptions: %w", err)
	}
	return PrintOptions{
		GridLines:          flags&0x01 != 0,
		Headings:           flags&0x02 != 0,
		HorizontalCentered: flags&0x04 != 0,
		VerticalCentered:   flags&0x08 != 0,
	}, nil
}

// parsePageSetupRecord decodes PAGESETUP:
//
//	paperSize   uint16
//	scale       uint16
//	firstPage   uint16 (ignored)
//	fitToWidth  uint16
//	fitToHeight uint16
//	flags       uint16  // bit 0: landscape
func parsePageSetupRecord(data []byte) (PageSetup, error) {
	rr := biff.NewRecordReader(data)
	paperSize, err := rr.ReadUint16()
	if err != nil {
		return PageSetup{}, fmt.Errorf("pagesetup: paperSize: %w", err)
	}
	scale, err := rr.ReadUint16()
	if err != nil {
		return PageSetup{}, fmt.Errorf("pagesetup: scale: %w", err)
	}
	if _, err := rr.ReadUint16(); err != nil { // firstPageNumber, unused
		return PageSetup{}, fmt.Errorf("pagesetup: firstPageNumber: %w", err)
	}
	fitW, err := rr.ReadUint16()
	if err != nil {
		return PageSetup{}, fmt.Errorf("pagesetup: fitToWidth: %w", err)
	}
	fitH, err := rr.ReadUint16()
	if err != nil {
		return PageSetup{}, fmt.Errorf("pagesetup: fitToHeight: %w", err)
	}
	flags, err := rr.ReadUint16()
	if err != nil {
		return PageSetup{}, fmt.Errorf("pagesetup: flags: %w", err)
	}
	return PageSetup{
		PaperSize:   int(paperSize),
		Scale:       int(scale),
		FitToWidth:  int(fitW),
		FitToHeight: int(fitH),
		Landscape:   flags&0x01 != 0,
	}, nil
}

// parseDrawingRecord decodes a DRAWING or LEGACYDRAWING record: a single
// XLWideString holding the worksheet relationship Id of the drawing part,
// the same rId-as-string convention parseHyperlinkRecord already uses.
func parseDrawingRecord(data []byte) (string, error) {
	rr := biff.NewRecordReader(data)
	rid, err := rr.ReadString()
	if err != nil {
		return "", fmt.Errorf("drawing: read rId: %w", err)
	}
	return rid, nil
}

// parseHeaderFooterRecord decodes HEADERFOOTER: two XLWideStrings (header
// text, footer text) for the odd/default page.
func parseHeaderFooterRecord(data []byte) (HeaderFooterText, error) {
	rr := biff.NewRecordReader(data)
	header, err := rr.ReadString()
	if err != nil {
		return HeaderFooterText{}, fmt.Errorf("headerfooter: header: %w", err)
	}
	footer, err := rr.ReadString()
	if err != nil {
		return HeaderFooterText{}, fmt.Errorf("headerfooter: footer: %w", err)
	}
	return HeaderFooterText{Header: header, Footer: footer}, nil
}
