// Package patch implements in-place cell edits against a .xlsb workbook's
// raw BIFF12 byte streams.
//
// Three write paths share one patch description: full
// regenerate, package patch, and streaming patch. This package implements
// the "package patch" path — load the parts that might change into memory,
// rewrite only the cell records a patch actually targets, and copy every
// other part through byte-for-byte. Full regenerate and the single-pass
// streaming patch are not implemented; see DESIGN.md for why package patch
// was chosen first.
package patch

import (
	"fmt"
)

// CellRef addresses one cell by its zero-based row and column.
type CellRef struct {
	Row, Col int
}

// CellPatch describes an edit to a single cell's BIFF12 record.
//
// NewFormula carries already-tokenized rgce bytes, not formula text: this
// package patches the binary cell-record stream directly and has no
// text-to-rgce compiler of its own (that is package formula's job). A nil
// NewFormula together with ClearFormula == false leaves the cell's existing
// formula, if any, untouched — only NewValue and/or NewStyle apply.
type CellPatch struct {
	// NewValue is the cell's cached value after the edit: nil, float64,
	// bool, or string. Required whenever NewFormula is set (a formula cell
	// must carry a cached result) or when converting a non-formula cell to
	// a different value type.
	NewValue any

	// NewFormula is the tokenized rgce byte sequence for a formula cell.
	// Non-nil converts the target cell (of any existing record type) to a
	// formula cell, or updates an existing formula's tokens in place.
	NewFormula []byte

	// NewRgcb carries the BIFF12 FMLA record's trailing classified data
	// (array bounds, shared-formula group id, and similar). Only meaningful
	// alongside NewFormula; nil omits it.
	NewRgcb []byte

	// NewFormulaFlags is the FMLA record's grbit field (fAlwaysCalc,
	// fFill, ...). Only meaningful alongside NewFormula.
	NewFormulaFlags uint8

	// NewStyle is the XF style index to apply. nil preserves the cell's
	// existing style index.
	NewStyle *int

	// ClearFormula converts an existing FMLA* record back to its matching
	// plain-value record type, dropping the formula entirely. NewValue is
	// ignored; the existing cached value is kept (unless SharedStringIndex
	// is supplied for a FormulaString cell — see applyCellPatch).
	ClearFormula bool

	// SharedStringIndex, when set, is used verbatim as the isst index for
	// a string NewValue instead of interning it through the sheet's SST
	// writer. Needed to convert a FormulaString cell (whose cached value is
	// stored inline, not SST-indexed) back to a plain String cell via
	// ClearFormula.
	SharedStringIndex *int
}

// internFunc interns a plain string into a workbook's shared-string table
// and returns its isst index.
type internFunc func(s string) (uint32, error)

var errBlankFormulaEdit = fmt.Errorf("patch: cannot attach a formula to a cell with no cached value (blank)")
