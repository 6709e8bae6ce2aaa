package drawing

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wilson-anysphere/formula-sub015/internal/rels"
	"github.com/wilson-anysphere/formula-sub015/opc"
	"github.com/wilson-anysphere/formula-sub015/xlerr"
)

// RichValueEntry is one parsed <rv> entry from an xl/richData/richValueN.xml
// part: the part it came from, and the first embedded-image relationship Id
// found within its subtree (best-effort; only <blip r:embed="rId*"> is
// recognized).
type RichValueEntry struct {
	SourcePart string
	EmbedRelID string // empty if the <rv> has no recognized image blip
}

// RichValueIndex maps a rich value's global index (the index cell metadata
// in xl/metadata.xml references) to the entry that defines it.
type RichValueIndex struct {
	Entries  map[uint32]RichValueEntry
	Warnings xlerr.Warnings
}

// ExtractedRichValueImages holds the raw image bytes behind each referenced
// rich-value cell (e.g. Excel's "Insert Data From Picture" / stocks-and-geo
// rich values that embed a thumbnail).
type ExtractedRichValueImages struct {
	Images   map[uint32][]byte
	Warnings xlerr.Warnings
}

// ExtractRichValueImages resolves every rich-value index xl/metadata.xml
// references to its source richValue part, follows that part's first image
// blip relationship, and returns the target part's raw bytes keyed by rich
// value index. Returns an empty result (no error) if the package has no
// xl/metadata.xml or it references no rich values.
func ExtractRichValueImages(pkg *opc.Package) (ExtractedRichValueImages, error) {
	metadata, ok := pkg.Part("xl/metadata.xml")
	if !ok {
		return ExtractedRichValueImages{}, nil
	}

	referenced, err := parseMetadataRichValueIndices(metadata)
	if err != nil {
		return ExtractedRichValueImages{}, fmt.Errorf("drawing: parse xl/metadata.xml: %w", err)
	}
	if len(referenced) == 0 {
		return ExtractedRichValueImages{}, nil
	}

	index, err := buildRichValueIndex(pkg)
	if err != nil {
		return ExtractedRichValueImages{}, fmt.Errorf("drawing: build rich value index: %w", err)
	}

	out := ExtractedRichValueImages{
		Images:   make(map[uint32][]byte),
		Warnings: index.Warnings,
	}

	for _, rvIndex := range referenced {
		entry, ok := index.Entries[rvIndex]
		if !ok {
			out.Warnings.Add("drawing", "xl/metadata.xml references missing rich value index %d", rvIndex)
			continue
		}
		if entry.EmbedRelID == "" {
			continue // not an image rich value, or we failed to parse one
		}

		target, err := resolveRelationshipTarget(pkg, entry.SourcePart, entry.EmbedRelID)
		if err != nil || target == "" {
			out.Warnings.Add("drawing", "rich value %d: part %s: relationship %s did not resolve", rvIndex, entry.SourcePart, entry.EmbedRelID)
			continue
		}
		data, ok := pkg.Part(target)
		if !ok {
			out.Warnings.Add("drawing", "rich value %d: target part %s missing from package", rvIndex, target)
			continue
		}
		out.Images[rvIndex] = data
	}

	return out, nil
}

func resolveRelationshipTarget(pkg *opc.Package, sourcePart, relID string) (string, error) {
	relsPart := partRelsPath(sourcePart)
	data, ok := pkg.Part(relsPart)
	if !ok {
		return "", nil
	}
	relMap, err := rels.ParseRelsXML(data)
	if err != nil {
		return "", err
	}
	target, ok := relMap[relID]
	if !ok {
		return "", nil
	}
	return resolveRelativeTarget(sourcePart, target), nil
}

func isRichValuePart(name string) bool {
	const prefix = "xl/richData/richValue"
	const suffix = ".xml"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return false
	}
	rest := name[len(prefix) : len(name)-len(suffix)]
	if rest == "" {
		return true
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type parsedRv struct {
	explicitIndex *uint32
	entry         RichValueEntry
}

func buildRichValueIndex(pkg *opc.Package) (RichValueIndex, error) {
	var names []string
	for _, n := range pkg.Parts() {
		if isRichValuePart(n) {
			names = append(names, n)
		}
	}
	sort.Strings(names) // deterministic processing order

	var parsed []parsedRv
	for _, name := range names {
		data, _ := pkg.Part(name)
		rvs, err := parseRichValuePart(name, data)
		if err != nil {
			return RichValueIndex{}, fmt.Errorf("%s: %w", name, err)
		}
		parsed = append(parsed, rvs...)
	}

	var warnings xlerr.Warnings
	entries := make(map[uint32]RichValueEntry)

	var maxExplicit uint32
	haveExplicit := false
	for _, rv := range parsed {
		if rv.explicitIndex == nil {
			continue
		}
		idx := *rv.explicitIndex
		if existing, ok := entries[idx]; ok {
			warnings.Add("drawing", "rich value index %d declared in both %s and %s; keeping the first", idx, existing.SourcePart, rv.entry.SourcePart)
			continue
		}
		if !haveExplicit || idx > maxExplicit {
			maxExplicit = idx
			haveExplicit = true
		}
		entries[idx] = rv.entry
	}

	next := uint32(0)
	if haveExplicit {
		next = maxExplicit + 1
	}
	for _, rv := range parsed {
		if rv.explicitIndex != nil {
			continue
		}
		for {
			if _, taken := entries[next]; !taken {
				break
			}
			next++
		}
		entries[next] = rv.entry
		next++
	}

	return RichValueIndex{Entries: entries, Warnings: warnings}, nil
}

// parseRichValuePart walks one xl/richData/richValueN.xml part's <rv>
// elements, token by token (mirroring the original quick_xml event-loop
// rather than unmarshaling into a DOM, since each <rv>'s only fields of
// interest are an optional index attribute and the first nested blip embed).
func parseRichValuePart(partName string, data []byte) ([]parsedRv, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []parsedRv

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "rv" {
			continue
		}
		idx := rvIndexAttr(start)
		embed, err := firstEmbedRelIDWithinRv(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, parsedRv{
			explicitIndex: idx,
			entry:         RichValueEntry{SourcePart: partName, EmbedRelID: embed},
		})
	}
	return out, nil
}

func rvIndexAttr(start xml.StartElement) *uint32 {
	for _, a := range start.Attr {
		switch strings.ToLower(a.Name.Local) {
		case "i", "id", "idx":
			if v, err := strconv.ParseUint(a.Value, 10, 32); err == nil {
				u := uint32(v)
				return &u
			}
		}
	}
	return nil
}

// firstEmbedRelIDWithinRv consumes tokens up through the matching </rv> end
// element, returning the first r:embed attribute found on any nested
// "blip"-named element.
func firstEmbedRelIDWithinRv(dec *xml.Decoder) (string, error) {
	depth := 0
	embed := ""
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("unexpected EOF while parsing <rv> subtree: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "rv" {
				depth++
				continue
			}
			if embed == "" && t.Name.Local == "blip" {
				for _, a := range t.Attr {
					if a.Name.Local == "embed" {
						embed = a.Value
						break
					}
				}
			}
		case xml.EndElement:
			if t.Name.Local == "rv" {
				if depth == 0 {
					return embed, nil
				}
				depth--
			}
		}
	}
}

func parseMetadataRichValueIndices(data []byte) ([]uint32, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []uint32
	seen := make(map[uint32]bool)

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || !strings.EqualFold(start.Name.Local, "rvb") {
			continue
		}
		for _, a := range start.Attr {
			if strings.EqualFold(a.Name.Local, "i") {
				if v, err := strconv.ParseUint(a.Value, 10, 32); err == nil {
					idx := uint32(v)
					if !seen[idx] {
						seen[idx] = true
						out = append(out, idx)
					}
				}
			}
		}
	}
	return out, nil
}
