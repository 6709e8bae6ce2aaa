// Package styles holds the resolved number-format metadata parsed from
// xl/styles.bin.  It is a deliberately small, import-cycle-free package so
// that both workbook/ and worksheet/ can depend on it without introducing
// circular imports.
package styles

import (
	"strconv"
	"strings"

	"github.com/wilson-anysphere/formula-sub015/internal/dateformat"
)

// XFStyle holds the resolved formatting information for one XF (cell-format)
// index as read from the CellXfs table in xl/styles.bin.
type XFStyle struct {
	// NumFmtID is the numFmtId stored in the BrtXF record.  Values 0–163 are
	// built-in Excel formats; values ≥ 164 are custom formats defined by a
	// BrtFmt record in the same file.
	NumFmtID int
	// FormatStr is the raw format string from the corresponding BrtFmt record.
	// It is empty for built-in IDs that have no custom override.
	FormatStr string
}

// StyleTable maps XF index → XFStyle.  The slice index is the 0-based XF
// index as stored in cell records (Cell.Style).
type StyleTable []XFStyle

// IsDate reports whether the XF at index s represents a date or datetime
// number format.  It returns false when s is out of range or when styles
// information is unavailable (nil / empty table).
func (st StyleTable) IsDate(s int) bool {
	if s < 0 || s >= len(st) {
		return false
	}
	return isDateFormatID(st[s].NumFmtID, st[s].FormatStr)
}

// FmtStr returns the raw format string for style index s, or an empty
// string when s is out of range.
func (st StyleTable) FmtStr(s int) string {
	if s < 0 || s >= len(st) {
		return ""
	}
	return st[s].FormatStr
}

// reservedBuiltinPlaceholderPrefix marks a reserved built-in numFmtId
// (1-163) with no known code in BuiltInNumFmt. Excel defines these ids
// locale-dependently; rather than guess a code (and corrupt round-trip by
// writing a wrong one back out), ResolvedFormat emits this placeholder so
// the id survives unchanged through a read/patch/write cycle.
const reservedBuiltinPlaceholderPrefix = "__builtin_numFmtId:"

// ResolvedFormat implements the style table's format-string resolution
// order: (a) a custom format string, when present; (b) the built-in code
// for NumFmtID, when its locale-independent text is known; (c) a
// reservedBuiltinPlaceholderPrefix placeholder for a reserved id (1-163)
// whose code isn't in BuiltInNumFmt; otherwise "General".
func (xf XFStyle) ResolvedFormat() string {
	if xf.FormatStr != "" {
		return xf.FormatStr
	}
	if s, ok := BuiltInNumFmt[xf.NumFmtID]; ok {
		return s
	}
	if xf.NumFmtID > 0 && xf.NumFmtID < 164 {
		return reservedBuiltinPlaceholderPrefix + strconv.Itoa(xf.NumFmtID)
	}
	return "General"
}

// IsReservedPlaceholder reports whether s is a ResolvedFormat round-trip
// placeholder rather than a real format code.
func IsReservedPlaceholder(s string) bool {
	return strings.HasPrefix(s, reservedBuiltinPlaceholderPrefix)
}

// ResolvedFormat returns the resolved format string for style index s (see
// XFStyle.ResolvedFormat), or "General" when s is out of range.
func (st StyleTable) ResolvedFormat(s int) string {
	if s < 0 || s >= len(st) {
		return "General"
	}
	return st[s].ResolvedFormat()
}

// BuiltInNumFmt maps built-in numFmtId values (0–49) to their canonical
// format strings as defined by ECMA-376 §18.8.30.  IDs not present in this
// map are built-in IDs whose format string is locale-dependent or otherwise
// not representable as a static string.
var BuiltInNumFmt = map[int]string{
	0:  "General",
	1:  "0",
	2:  "0.00",
	3:  "#,##0",
	4:  "#,##0.00",
	5:  `($#,##0_);($#,##0)`,
	6:  `($#,##0_);[Red]($#,##0)`,
	7:  `($#,##0.00_);($#,##0.00)`,
	8:  `($#,##0.00_);[Red]($#,##0.00)`,
	9:  "0%",
	10: "0.00%",
	11: "0.00E+00",
	12: "# ?/?",
	13: "# ??/??",
	14: "mm-dd-yy",
	15: "d-mmm-yy",
	16: "d-mmm",
	17: "mmm-yy",
	18: "h:mm AM/PM",
	19: "h:mm:ss AM/PM",
	20: "h:mm",
	21: "h:mm:ss",
	22: "m/d/yy h:mm",
	37: `(#,##0_);(#,##0)`,
	38: `(#,##0_);[Red](#,##0)`,
	39: `(#,##0.00_);(#,##0.00)`,
	40: `(#,##0.00_);[Red](#,##0.00)`,
	41: `_(* #,##0_);_(* (#,##0);_(* "-"_);_(@_)`,
	42: `_($* #,##0_);_($* (#,##0);_($* "-"_);_(@_)`,
	43: `_(* #,##0.00_);_(* (#,##0.00);_(* "-"??_);_(@_)`,
	44: `_($* #,##0.00_);_($* (#,##0.00);_($* "-"??_);_(@_)`,
	45: "mm:ss",
	46: "[h]:mm:ss",
	47: "mm:ss.0",
	48: "##0.0E+0",
	49: "@",
}

// ── date-format detection ─────────────────────────────────────────────────────

// isDateFormatID reports whether the given numFmtId (and optional custom
// format string) represents a date or datetime format. It defers to
// [internal/dateformat], the single shared date-token scanner used by
// every reader in this module.
func isDateFormatID(id int, formatStr string) bool {
	if dateformat.IsBuiltInDateID(id) {
		return true
	}
	if id < 164 {
		return false
	}
	return dateformat.ScanFormatStr(formatStr)
}
