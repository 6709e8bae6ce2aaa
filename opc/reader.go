// Package opc implements the Open Packaging Conventions container used by
// .xlsx/.xlsm/.xlsb workbooks: ZIP-based part storage, [Content_Types].xml
// resolution, and the "_rels/*.rels" relationship graph, including target
// resolution relative to a source part.
package opc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/wilson-anysphere/formula-sub015/internal/rels"
)

// Package is a parsed, fully-buffered OPC container.
type Package struct {
	parts map[string][]byte // part name -> raw bytes, names normalized (no leading "/")

	defaults  map[string]string // extension (no dot) -> content type
	overrides map[string]string // part name -> content type

	relsCache map[string]rels.Relationships
}

type contentTypesXML struct {
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

// normalizePartName strips a leading "/" and cleans "." / ".." segments, the
// canonical form part names are compared and looked up in.
func normalizePartName(name string) string {
	name = strings.TrimPrefix(name, "/")
	return path.Clean(name)
}

// Open parses a ZIP archive held fully in memory as an OPC package.
func Open(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opc: open: %w", err)
	}

	p := &Package{
		parts:     make(map[string][]byte, len(zr.File)),
		defaults:  make(map[string]string),
		overrides: make(map[string]string),
		relsCache: make(map[string]rels.Relationships),
	}

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opc: open: part %q: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("opc: open: part %q: %w", f.Name, err)
		}
		p.parts[normalizePartName(f.Name)] = b
	}

	ct, ok := p.parts["[Content_Types].xml"]
	if ok {
		var doc contentTypesXML
		if err := xml.Unmarshal(ct, &doc); err != nil {
			return nil, fmt.Errorf("opc: open: [Content_Types].xml: %w", err)
		}
		for _, d := range doc.Defaults {
			p.defaults[strings.ToLower(d.Extension)] = d.ContentType
		}
		for _, o := range doc.Overrides {
			p.overrides[normalizePartName(o.PartName)] = o.ContentType
		}
	}

	return p, nil
}

// Part returns the raw bytes of the named part, if present.
func (p *Package) Part(name string) ([]byte, bool) {
	b, ok := p.parts[normalizePartName(name)]
	return b, ok
}

// Parts returns every part name in the package.
func (p *Package) Parts() []string {
	out := make([]string, 0, len(p.parts))
	for name := range p.parts {
		out = append(out, name)
	}
	return out
}

// ContentType resolves a part's content type: an Override for the exact
// part name wins, otherwise the Default registered for its file extension.
func (p *Package) ContentType(partName string) string {
	partName = normalizePartName(partName)
	if ct, ok := p.overrides[partName]; ok {
		return ct
	}
	ext := strings.TrimPrefix(path.Ext(partName), ".")
	return p.defaults[strings.ToLower(ext)]
}

// relsPartFor returns the "_rels/<dir>/<base>.rels" part name for a source
// part, per the OPC naming convention.
func relsPartFor(sourcePart string) string {
	sourcePart = normalizePartName(sourcePart)
	dir := path.Dir(sourcePart)
	base := path.Base(sourcePart)
	if dir == "." {
		return "_rels/" + base + ".rels"
	}
	return dir + "/_rels/" + base + ".rels"
}

// Relationships returns the parsed relationship graph for the given source
// part (pass "" for the package-level root relationships,
// "_rels/.rels").
func (p *Package) Relationships(sourcePart string) (rels.Relationships, error) {
	var relsPart string
	if sourcePart == "" {
		relsPart = "_rels/.rels"
	} else {
		relsPart = relsPartFor(sourcePart)
	}
	if cached, ok := p.relsCache[relsPart]; ok {
		return cached, nil
	}
	data, ok := p.parts[relsPart]
	if !ok {
		return rels.Relationships{}, nil
	}
	r, err := rels.ParseAll(data)
	if err != nil {
		return rels.Relationships{}, fmt.Errorf("opc: relationships for %q: %w", sourcePart, err)
	}
	p.relsCache[relsPart] = r
	return r, nil
}

// Resolve computes the target part name of a relationship found on
// sourcePart: package-absolute if the target starts with
// "/", otherwise resolved relative to the source part's own directory,
// falling back to resolving relative to the ".rels" directory, and finally
// to an "xl/"-rerooted path, returning the first candidate that exists in
// the package. External relationships (TargetMode == "External") are
// returned unresolved (the raw target, typically a URL).
func (p *Package) Resolve(sourcePart, target, targetMode string) string {
	if targetMode == "External" {
		return target
	}
	if strings.HasPrefix(target, "/") {
		return normalizePartName(target)
	}

	sourceDir := path.Dir(normalizePartName(sourcePart))
	if sourceDir == "." {
		sourceDir = ""
	}

	candidates := []string{
		path.Clean(path.Join(sourceDir, target)),
	}
	candidates = append(candidates, path.Clean(target))
	candidates = append(candidates, path.Clean(path.Join("xl", target)))

	for _, c := range candidates {
		if _, ok := p.parts[normalizePartName(c)]; ok {
			return normalizePartName(c)
		}
	}
	return normalizePartName(candidates[0])
}
