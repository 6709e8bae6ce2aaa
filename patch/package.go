package patch

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/wilson-anysphere/formula-sub015/opc"
	"github.com/wilson-anysphere/formula-sub015/sst"
	"github.com/wilson-anysphere/formula-sub015/workbook"
	"github.com/wilson-anysphere/formula-sub015/xlerr"
)

// Edits maps a sheet name to the cell patches targeting it.
type Edits map[string]map[CellRef]CellPatch

// calcChainPart is the conventional zip-internal path for the formula
// dependency cache. It is never itself round-tripped through a cell patch;
// a stale calc chain would feed Excel wrong cached dependency order, so it
// is only ever dropped.
const calcChainPart = "xl/calcChain.bin"

// ApplyPackage implements the "package patch" write path: it loads the
// workbook's parts into memory, rewrites only the worksheet parts named in
// edits (plus xl/sharedStrings.bin if a new string is interned), and copies
// every other part through unchanged. workbook.xml/rels/[Content_Types].xml
// are only touched to drop calcChain.xml when a formula edit may have
// invalidated it (invariant 7); no other structural rewrite (sheet
// add/rename/delete) is attempted by this path.
func ApplyPackage(original []byte, edits Edits) ([]byte, xlerr.Warnings, error) {
	var warnings xlerr.Warnings

	pkg, err := opc.Open(original)
	if err != nil {
		return nil, warnings, fmt.Errorf("patch: open package: %w", err)
	}

	wb, err := workbook.OpenReader(bytes.NewReader(original), int64(len(original)))
	if err != nil {
		return nil, warnings, fmt.Errorf("patch: open workbook: %w", err)
	}
	defer wb.Close()

	parts := make(map[string][]byte, len(pkg.Parts()))
	for _, name := range pkg.Parts() {
		data, _ := pkg.Part(name)
		parts[name] = data
	}

	var sstWriter *sst.Writer
	intern := func(s string) (uint32, error) {
		if sstWriter == nil {
			sstData, ok := pkg.Part("xl/sharedStrings.bin")
			if !ok {
				return 0, fmt.Errorf("patch: workbook has no xl/sharedStrings.bin to intern %q into", s)
			}
			w, err := sst.NewWriter(sstData)
			if err != nil {
				return 0, fmt.Errorf("patch: sst writer: %w", err)
			}
			sstWriter = w
		}
		return sstWriter.InternPlain(s)
	}

	formulaEdited := false
	sheetNames := make([]string, 0, len(edits))
	for name := range edits {
		sheetNames = append(sheetNames, name)
	}
	sort.Strings(sheetNames) // deterministic processing order across runs

	for _, name := range sheetNames {
		cellEdits := edits[name]
		if len(cellEdits) == 0 {
			continue
		}
		partPath, err := wb.SheetPartPath(name)
		if err != nil {
			return nil, warnings, fmt.Errorf("patch: %w", err)
		}
		sheetOriginal, ok := parts[partPath]
		if !ok {
			return nil, warnings, fmt.Errorf("patch: part %q for sheet %q not found in package", partPath, name)
		}
		patched, changed, err := PatchSheet(sheetOriginal, cellEdits, intern)
		if err != nil {
			return nil, warnings, fmt.Errorf("patch: sheet %q: %w", name, err)
		}
		if changed {
			parts[partPath] = patched
		}
		for _, p := range cellEdits {
			if p.NewFormula != nil || p.ClearFormula {
				formulaEdited = true
			}
		}
	}

	if sstWriter != nil {
		data, err := sstWriter.IntoBytes()
		if err != nil {
			return nil, warnings, fmt.Errorf("patch: sst writer: %w", err)
		}
		parts["xl/sharedStrings.bin"] = data
	}

	if formulaEdited {
		if _, ok := parts[calcChainPart]; ok {
			dropCalcChain(parts, &warnings)
		}
	}

	out, err := writePackage(parts)
	if err != nil {
		return nil, warnings, err
	}
	return out, warnings, nil
}

// dropCalcChain removes xl/calcChain.bin and strips its [Content_Types].xml
// override and its xl/_rels/workbook.bin.rels relationship, leaving every
// other part untouched — exactly invariant 7's "nothing else" clause.
func dropCalcChain(parts map[string][]byte, warnings *xlerr.Warnings) {
	delete(parts, calcChainPart)

	if ct, ok := parts["[Content_Types].xml"]; ok {
		updated, removed, err := removeContentTypeOverride(ct, "/"+calcChainPart)
		if err != nil {
			warnings.Add("patch", "could not rewrite [Content_Types].xml after dropping calcChain: %v", err)
		} else if removed {
			parts["[Content_Types].xml"] = updated
		}
	}

	const relsPart = "xl/_rels/workbook.bin.rels"
	if data, ok := parts[relsPart]; ok {
		updated, removed, err := removeRelationshipByTargetSuffix(data, "calcChain.bin")
		if err != nil {
			warnings.Add("patch", "could not rewrite %s after dropping calcChain: %v", relsPart, err)
		} else if removed {
			parts[relsPart] = updated
		}
	}
}

type contentTypesDoc struct {
	XMLName   xml.Name              `xml:"http://schemas.openxmlformats.org/package/2006/content-types Types"`
	Defaults  []contentTypeDefault  `xml:"Default"`
	Overrides []contentTypeOverride `xml:"Override"`
}
type contentTypeDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}
type contentTypeOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// removeContentTypeOverride drops the Override entry for partName (if
// present) and re-marshals the document, leaving every other entry
// untouched.
func removeContentTypeOverride(data []byte, partName string) ([]byte, bool, error) {
	var doc contentTypesDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, false, err
	}
	kept := doc.Overrides[:0]
	removed := false
	for _, o := range doc.Overrides {
		if o.PartName == partName {
			removed = true
			continue
		}
		kept = append(kept, o)
	}
	if !removed {
		return data, false, nil
	}
	doc.Overrides = kept
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, false, err
	}
	return append([]byte(xml.Header), body...), true, nil
}

type relsDoc struct {
	XMLName       xml.Name       `xml:"http://schemas.openxmlformats.org/package/2006/relationships Relationships"`
	Relationships []relationship `xml:"Relationship"`
}
type relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

// removeRelationshipByTargetSuffix drops the relationship whose Target ends
// with suffix, re-marshaling the document unchanged otherwise.
func removeRelationshipByTargetSuffix(data []byte, suffix string) ([]byte, bool, error) {
	var doc relsDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, false, err
	}
	kept := doc.Relationships[:0]
	removed := false
	for _, r := range doc.Relationships {
		if strings.HasSuffix(r.Target, suffix) {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	if !removed {
		return data, false, nil
	}
	doc.Relationships = kept
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, false, err
	}
	return append([]byte(xml.Header), body...), true, nil
}

// writePackage zips parts in sorted part-name order. Part content bytes are
// written exactly as given; only the zip container framing around them is
// newly generated, which is why byte-for-byte preservation of untouched
// parts' contents holds regardless of archive member order.
func writePackage(parts map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := zw.Create(path.Clean("/" + name)[1:])
		if err != nil {
			return nil, fmt.Errorf("patch: zip create %q: %w", name, err)
		}
		if _, err := f.Write(parts[name]); err != nil {
			return nil, fmt.Errorf("patch: zip write %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("patch: zip close: %w", err)
	}
	return buf.Bytes(), nil
}
