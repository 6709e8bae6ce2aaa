package worksheet

import (
	"fmt"

	"github.com/wilson-anysphere/formula-sub015/biff"
)

// Range is an inclusive 0-based rectangular cell range, the same RfX shape
// DIMENSION and MERGECELL already use.
type Range struct {
	R1, C1 int
	R2, C2 int
}

// CfStyleOverride is the subset of a differential-format (dxf) record this
// package resolves: the two properties a conditional-format rule most
// commonly overrides. Other dxf properties (borders, number format) are not
// modeled; FillARGB/FontColorARGB are nil when the rule's dxf record doesn't
// set that property.
type CfStyleOverride struct {
	FillARGB      *uint32
	FontColorARGB *uint32
}

// CfRule is one rule within a ConditionalFormatting block. Formula1/Formula2
// carry tokenized rgce bytes (as patch.CellPatch.NewFormula does), not
// formula text; a caller that needs the formula text calls package formula's
// Compile/Decompile against these bytes itself — this package stores and
// serves rgce bytes directly and does not depend on formula.
type CfRule struct {
	// Type is the raw cfType code (MS-XLSB BrtCFRule "cft" field): e.g.
	// cellIs, expression, colorScale, dataBar, iconSet, top10,
	// containsText, timePeriod. Left as a raw int rather than a named enum
	// since interpreting operand counts/semantics per type is the caller's
	// concern once Formula1/Formula2 are available.
	Type int
	// Priority orders rule evaluation; lower values are evaluated first.
	Priority int
	// StopIfTrue mirrors the dxf "stopIfTrue" flag: when true, rules with a
	// lower priority than this one are not evaluated for a cell this rule
	// matched.
	StopIfTrue bool
	// DxfID indexes the workbook's Dxfs table (xl/styles.bin); nil when the
	// rule carries no differential format.
	DxfID    *int
	Formula1 []byte
	Formula2 []byte
}

// ConditionalFormatting groups the rules that share one sqref (the set of
// ranges the rules apply to), mirroring the XLSX
// <conditionalFormatting sqref="..."><cfRule/>...</conditionalFormatting>
// nesting.
type ConditionalFormatting struct {
	AppliesTo []Range
	Rules     []CfRule
}

// parseRangeList decodes a cce-prefixed list of RfX ranges: the same
// 4×uint32 (r1, r2, c1, c2) shape DIMENSION and MERGECELL use, repeated cce
// times.
func parseRangeList(rr *biff.RecordReader) ([]Range, error) {
	cce, err := rr.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("cf: read sqref count: %w", err)
	}
	const maxRanges = 1 << 16 // generous cap; a real sqref is at most a few dozen ranges
	if cce > maxRanges {
		return nil, fmt.Errorf("cf: sqref count %d exceeds maximum %d", cce, maxRanges)
	}
	out := make([]Range, 0, cce)
	for i := uint32(0); i < cce; i++ {
		r1, err := rr.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("cf: read r1: %w", err)
		}
		r2, err := rr.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("cf: read r2: %w", err)
		}
		c1, err := rr.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("cf: read c1: %w", err)
		}
		c2, err := rr.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("cf: read c2: %w", err)
		}
		out = append(out, Range{R1: int(r1), C1: int(c1), R2: int(r2), C2: int(c2)})
	}
	return out, nil
}

// parseConditionalFormattingRecord decodes a CONDITIONALFORMATTING record's
// own payload: just its sqref range list. The nested CFRULE records that
// belong to it follow in the stream up to CONDITIONALFORMATTINGEND.
func parseConditionalFormattingRecord(data []byte) ([]Range, error) {
	rr := biff.NewRecordReader(data)
	return parseRangeList(rr)
}

// parseCfRuleRecord decodes a CFRULE record:
//
//	cfType     uint16
//	priority   uint32
//	flags      uint16  // bit 0: fStopIfTrue
//	hasDxf     uint8
//	dxfId      uint32  // present iff hasDxf != 0
//	cce1       uint32
//	rgce1      [cce1]byte
//	cce2       uint32  // 0 for single-formula rule types
//	rgce2      [cce2]byte
func parseCfRuleRecord(data []byte) (CfRule, error) {
	rr := biff.NewRecordReader(data)

	cfType, err := rr.ReadUint16()
	if err != nil {
		return CfRule{}, fmt.Errorf("cfrule: read cfType: %w", err)
	}
	priority, err := rr.ReadUint32()
	if err != nil {
		return CfRule{}, fmt.Errorf("cfrule: read priority: %w", err)
	}
	flags, err := rr.ReadUint16()
	if err != nil {
		return CfRule{}, fmt.Errorf("cfrule: read flags: %w", err)
	}
	hasDxf, err := rr.ReadUint8()
	if err != nil {
		return CfRule{}, fmt.Errorf("cfrule: read hasDxf: %w", err)
	}

	var dxfID *int
	if hasDxf != 0 {
		id, err := rr.ReadUint32()
		if err != nil {
			return CfRule{}, fmt.Errorf("cfrule: read dxfId: %w", err)
		}
		v := int(id)
		dxfID = &v
	}

	formula1, err := readRgce(rr)
	if err != nil {
		return CfRule{}, fmt.Errorf("cfrule: read formula1: %w", err)
	}
	formula2, err := readRgce(rr)
	if err != nil {
		// A rule with a single operand (e.g. "expression") has no second
		// rgce block to read; a short read here is expected, not an error.
		formula2 = nil
	}

	return CfRule{
		Type:       int(cfType),
		Priority:   int(priority),
		StopIfTrue: flags&0x01 != 0,
		DxfID:      dxfID,
		Formula1:   formula1,
		Formula2:   formula2,
	}, nil
}

// readRgce reads a cce-prefixed tokenized-formula byte block.
func readRgce(rr *biff.RecordReader) ([]byte, error) {
	cce, err := rr.ReadUint32()
	if err != nil {
		return nil, err
	}
	const maxRgce = 1 << 20 // 1 MiB, same order of magnitude as sst's ExtRst cap
	if cce > maxRgce {
		return nil, fmt.Errorf("rgce length %d exceeds maximum %d", cce, maxRgce)
	}
	buf := make([]byte, cce)
	if cce > 0 {
		if err := rr.Read(buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
