package drawing

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// AnchorCell is one corner of a two-cell anchor: a 0-based column/row plus
// an EMU offset within that cell, mirroring DrawingML's <xdr:col>/
// <xdr:colOff>/<xdr:row>/<xdr:rowOff> quartet.
type AnchorCell struct {
	Col, ColOff int
	Row, RowOff int
}

// Anchor positions a drawing object on a sheet. OneCell anchors (a single
// corner plus an explicit extent) are represented with To left zero-valued;
// callers distinguish the two forms via Kind.
type Anchor struct {
	Kind string // "twoCell", "oneCell", or "absolute"
	From AnchorCell
	To   AnchorCell
}

// DrawingObject is one shape/picture/graphicFrame found in an
// xl/drawings/drawingN.xml part. Kind identifies the DrawingML element name
// ("pic", "graphicFrame", "sp", "cxnSp", "grpSp"); Name is its
// <xdr:cNvPr name="..."/> attribute.
type DrawingObject struct {
	Kind   string
	Name   string
	Anchor Anchor
}

// ParseDrawingXML extracts every anchored object from an
// xl/drawings/drawingN.xml part. Unrecognized anchor kinds and objects are
// skipped rather than erroring, since this package's job is preservation
// (the raw part bytes are always carried through unchanged by
// PreservedParts) — this object model exists for callers that want to
// inspect placement, not to round-trip the XML themselves.
func ParseDrawingXML(data []byte) ([]DrawingObject, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []DrawingObject

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "twoCellAnchor", "oneCellAnchor", "absoluteAnchor":
			obj, err := parseAnchorElement(dec, start)
			if err != nil {
				return nil, fmt.Errorf("drawing: parse %s: %w", start.Name.Local, err)
			}
			if obj != nil {
				out = append(out, *obj)
			}
		}
	}
	return out, nil
}

func parseAnchorElement(dec *xml.Decoder, start xml.StartElement) (*DrawingObject, error) {
	anchor := Anchor{Kind: anchorKind(start.Name.Local)}
	var obj *DrawingObject
	depth := 0
	var pendingCell *AnchorCell

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("unexpected EOF within %s: %w", start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case start.Name.Local:
				depth++
			case "from":
				pendingCell = &anchor.From
			case "to":
				pendingCell = &anchor.To
			case "pic", "graphicFrame", "sp", "cxnSp", "grpSp":
				if obj == nil {
					obj = &DrawingObject{Kind: t.Name.Local}
				}
			case "cNvPr":
				if obj != nil && obj.Name == "" {
					for _, a := range t.Attr {
						if a.Name.Local == "name" {
							obj.Name = a.Value
						}
					}
				}
			case "col", "colOff", "row", "rowOff":
				if pendingCell == nil {
					continue
				}
				var text string
				if txtTok, err := dec.Token(); err == nil {
					if cd, ok := txtTok.(xml.CharData); ok {
						text = string(cd)
					}
				}
				assignCellField(pendingCell, t.Name.Local, text)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				if depth == 0 {
					if obj != nil {
						obj.Anchor = anchor
						return obj, nil
					}
					return nil, nil
				}
				depth--
			}
			if t.Name.Local == "from" || t.Name.Local == "to" {
				pendingCell = nil
			}
		}
	}
}

func anchorKind(elemName string) string {
	switch elemName {
	case "twoCellAnchor":
		return "twoCell"
	case "oneCellAnchor":
		return "oneCell"
	default:
		return "absolute"
	}
}

func assignCellField(cell *AnchorCell, field, text string) {
	v := parseIntSafe(text)
	switch field {
	case "col":
		cell.Col = v
	case "colOff":
		cell.ColOff = v
	case "row":
		cell.Row = v
	case "rowOff":
		cell.RowOff = v
	}
}

func parseIntSafe(s string) int {
	n := 0
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		return -n
	}
	return n
}
