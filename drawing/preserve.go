// Package drawing preserves the DrawingML/chart/media parts of an .xlsb
// package across the one write path patch.ApplyPackage does not implement:
// a full sheet-XML regenerate that would otherwise have no reason to copy
// xl/drawings, xl/charts, xl/media, or xl/richData through unchanged.
package drawing

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/wilson-anysphere/formula-sub015/internal/rels"
	"github.com/wilson-anysphere/formula-sub015/opc"
	"github.com/wilson-anysphere/formula-sub015/workbook"
)

// drawingRelType is the OPC relationship Type value for a worksheet-to-drawing
// relationship.
const drawingRelType = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/drawing"

// SheetDrawingRelationship is the minimal metadata needed to re-attach an
// existing drawing part to a worksheet: the worksheet relationship Id the
// sheet's own DRAWING record already points at, and that relationship's
// target.
type SheetDrawingRelationship struct {
	RelID  string
	Target string
}

// PreservedParts is the slice of a package required to carry DrawingML
// objects (including charts and cell images) across a pipeline that
// otherwise regenerates worksheet parts independently.
type PreservedParts struct {
	ContentTypesXML []byte
	Parts           map[string][]byte // xl/drawings/, xl/charts/, xl/media/, xl/richData/
	SheetDrawings   map[string][]SheetDrawingRelationship
}

// IsEmpty reports whether there is nothing worth re-applying.
func (p *PreservedParts) IsEmpty() bool {
	if len(p.Parts) != 0 {
		return false
	}
	for _, v := range p.SheetDrawings {
		if len(v) != 0 {
			return false
		}
	}
	return true
}

// Preserve extracts every drawing/chart/media/rich-data part from original,
// plus each sheet's own drawing relationship (resolved from its DRAWING
// record and its sheet .rels), so ApplyPreserved can graft them onto a
// package whose sheet parts were rebuilt from scratch.
func Preserve(original []byte) (*PreservedParts, error) {
	pkg, err := opc.Open(original)
	if err != nil {
		return nil, fmt.Errorf("drawing: open package: %w", err)
	}
	wb, err := workbook.OpenReader(bytes.NewReader(original), int64(len(original)))
	if err != nil {
		return nil, fmt.Errorf("drawing: open workbook: %w", err)
	}
	defer wb.Close()

	ctXML, ok := pkg.Part("[Content_Types].xml")
	if !ok {
		return nil, fmt.Errorf("drawing: package has no [Content_Types].xml")
	}

	parts := make(map[string][]byte)
	for _, name := range pkg.Parts() {
		if strings.HasPrefix(name, "xl/drawings/") ||
			strings.HasPrefix(name, "xl/charts/") ||
			strings.HasPrefix(name, "xl/media/") ||
			strings.HasPrefix(name, "xl/richData/") {
			data, _ := pkg.Part(name)
			parts[name] = data
		}
	}

	sheetDrawings := make(map[string][]SheetDrawingRelationship)
	for _, name := range wb.Sheets() {
		sheetPath, err := wb.SheetPartPath(name)
		if err != nil {
			continue
		}
		ws, err := wb.SheetByName(name)
		if err != nil {
			continue
		}

		relIDs := make([]string, 0, 2)
		if ws.DrawingRelID != "" {
			relIDs = append(relIDs, ws.DrawingRelID)
		}
		if ws.LegacyDrawingRelID != "" {
			relIDs = append(relIDs, ws.LegacyDrawingRelID)
		}
		if len(relIDs) == 0 {
			continue
		}

		relsData, ok := pkg.Part(partRelsPath(sheetPath))
		if !ok {
			continue
		}
		relMap, err := rels.ParseRelsXML(relsData)
		if err != nil {
			continue
		}
		for _, rid := range relIDs {
			target, ok := relMap[rid]
			if !ok {
				continue
			}
			sheetDrawings[name] = append(sheetDrawings[name], SheetDrawingRelationship{
				RelID:  rid,
				Target: resolveRelativeTarget(sheetPath, target),
			})
		}
	}

	return &PreservedParts{ContentTypesXML: ctXML, Parts: parts, SheetDrawings: sheetDrawings}, nil
}

// ApplyPreserved grafts preserved parts onto target: it copies every part in
// preserved.Parts into the output verbatim and, for each sheet that had a
// drawing relationship before, ensures that sheet's own .rels file still
// carries it (the sheet's DRAWING record itself is assumed already present,
// since this package never rewrites worksheet binary records).
func ApplyPreserved(target []byte, preserved *PreservedParts) ([]byte, error) {
	pkg, err := opc.Open(target)
	if err != nil {
		return nil, fmt.Errorf("drawing: open package: %w", err)
	}
	wb, err := workbook.OpenReader(bytes.NewReader(target), int64(len(target)))
	if err != nil {
		return nil, fmt.Errorf("drawing: open workbook: %w", err)
	}
	defer wb.Close()

	parts := make(map[string][]byte, len(pkg.Parts()))
	for _, name := range pkg.Parts() {
		data, _ := pkg.Part(name)
		parts[name] = data
	}
	for name, data := range preserved.Parts {
		parts[name] = data
	}

	for sheetName, drawings := range preserved.SheetDrawings {
		sheetPath, err := wb.SheetPartPath(sheetName)
		if err != nil {
			continue
		}
		relsPath := partRelsPath(sheetPath)
		updated, err := ensureRelsHasDrawings(parts[relsPath], drawings)
		if err != nil {
			continue
		}
		parts[relsPath] = updated
	}

	return writeZip(parts)
}

// ensureRelsHasDrawings appends a Relationship element for each drawing not
// already present (matched by Id), creating a minimal empty .rels document
// if none existed.
func ensureRelsHasDrawings(relsXML []byte, drawings []SheetDrawingRelationship) ([]byte, error) {
	existing := map[string]bool{}
	if len(relsXML) > 0 {
		all, err := rels.ParseAll(relsXML)
		if err != nil {
			return nil, err
		}
		for _, r := range all.Relationships {
			existing[r.ID] = true
		}
	}

	var xml strings.Builder
	xml.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	xml.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` + "\n")
	if len(relsXML) > 0 {
		body := extractRelationshipElements(relsXML)
		xml.WriteString(body)
	}
	for _, d := range drawings {
		if existing[d.RelID] {
			continue
		}
		xml.WriteString(fmt.Sprintf("  <Relationship Id=%q Type=%q Target=%q/>\n", d.RelID, drawingRelType, d.Target))
	}
	xml.WriteString("</Relationships>\n")
	return []byte(xml.String()), nil
}

// extractRelationshipElements returns the inner "<Relationship .../>" lines
// of an existing .rels document (everything between the opening
// <Relationships ...> tag and </Relationships>), as a best-effort substring
// slice rather than a full re-marshal — this keeps attribute order and any
// TargetMode untouched for relationships we don't otherwise touch.
func extractRelationshipElements(relsXML []byte) string {
	s := string(relsXML)
	open := strings.Index(s, "<Relationships")
	if open < 0 {
		return ""
	}
	gt := strings.Index(s[open:], ">")
	if gt < 0 {
		return ""
	}
	start := open + gt + 1
	end := strings.LastIndex(s, "</Relationships>")
	if end < 0 || start > end {
		return ""
	}
	return s[start:end]
}

func partRelsPath(partPath string) string {
	idx := strings.LastIndex(partPath, "/")
	if idx < 0 {
		return "_rels/" + partPath + ".rels"
	}
	return partPath[:idx+1] + "_rels/" + partPath[idx+1:] + ".rels"
}

// resolveRelativeTarget resolves a relationship Target that is relative to
// sourcePart's directory (OPC's normal resolution rule); absolute targets
// (a leading "/") are returned with that slash stripped.
func resolveRelativeTarget(sourcePart, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	dir := path.Dir(sourcePart)
	if dir == "." {
		return path.Clean(target)
	}
	return path.Clean(dir + "/" + target)
}

// writeZip re-zips parts in sorted order, writing each part's bytes through
// unmodified — the same approach patch.ApplyPackage's writePackage uses, for
// the same reason: no example repo in the corpus reaches for a third-party
// ZIP library for this kind of structural part surgery.
func writeZip(parts map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("drawing: zip create %q: %w", name, err)
		}
		if _, err := f.Write(parts[name]); err != nil {
			return nil, fmt.Errorf("drawing: zip write %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("drawing: zip close: %w", err)
	}
	return buf.Bytes(), nil
}
