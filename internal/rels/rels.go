// Package rels parses OOXML relationship XML files (.rels).
//
// It exists to eliminate duplicated parseRelsXML / xmlRelationships code from
// workbook/ and worksheet/, which cannot share the code directly due to the
// import graph.
package rels

import (
	"encoding/xml"
	"fmt"
)

// Relationships is the root element of a .rels XML document.
type Relationships struct {
	Relationships []Relationship `xml:"Relationship"`
}

// Relationship is one entry in a .rels XML document.
type Relationship struct {
	ID       string `xml:"Id,attr"`
	Type     string `xml:"Type,attr"`
	Target   string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"` // "Internal" (default) or "External"
}

// ParseRelsXML parses the raw bytes of a .rels XML file and returns a map of
// relationship ID → target string. Callers that also need the relationship
// Type (e.g. the package reader resolving the workbook part) should use
// ParseAll instead.
func ParseRelsXML(data []byte) (map[string]string, error) {
	r, err := ParseAll(data)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(r.Relationships))
	for _, rel := range r.Relationships {
		m[rel.ID] = rel.Target
	}
	return m, nil
}

// ParseAll parses the raw bytes of a .rels XML file and returns every
// relationship entry, including its Type and TargetMode.
func ParseAll(data []byte) (Relationships, error) {
	var r Relationships
	if err := xml.Unmarshal(data, &r); err != nil {
		return Relationships{}, fmt.Errorf("rels: parse: %w", err)
	}
	return r, nil
}

// ByID returns the relationship with the given Id, if present.
func (r Relationships) ByID(id string) (Relationship, bool) {
	for _, rel := range r.Relationships {
		if rel.ID == id {
			return rel, true
		}
	}
	return Relationship{}, false
}

// ByType returns every relationship whose Type matches exactly.
func (r Relationships) ByType(typ string) []Relationship {
	var out []Relationship
	for _, rel := range r.Relationships {
		if rel.Type == typ {
			out = append(out, rel)
		}
	}
	return out
}
