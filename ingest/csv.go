// Package ingest turns plain-text tabular input (CSV and similar
// delimiter-separated formats) into the same row/cell shapes the rest of
// this module uses for spreadsheet containers, so a CSV file can be treated
// as a one-sheet workbook by callers that don't care about its origin.
package ingest

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/wilson-anysphere/formula-sub015/worksheet"
)

// candidateDelimiters lists the delimiters sniffed, in priority order:
// comma, semicolon, tab, pipe.
var candidateDelimiters = []byte{',', ';', '\t', '|'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText strips a leading UTF-8 BOM if present and returns data as a Go
// string. If data is not valid UTF-8 it is re-decoded as Windows-1252 (the
// common fallback encoding for CSV files produced by legacy Windows tools),
// since silently mangling non-UTF-8 bytes would corrupt every subsequent
// cell on the affected row.
func DecodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// SniffDelimiter inspects the first line of text (after stripping an Excel
// "sep=X" directive, if present) and returns the delimiter with the most
// occurrences among candidateDelimiters, defaulting to comma when the line
// contains none of them.
func SniffDelimiter(firstDataLine string) byte {
	best := byte(',')
	bestCount := -1
	for _, d := range candidateDelimiters {
		count := strings.Count(firstDataLine, string(d))
		if count > bestCount {
			best = d
			bestCount = count
		}
	}
	return best
}

// stripSepDirective recognizes a leading Excel "sep=X\n" directive line and
// returns the configured delimiter plus the remaining text with that line
// removed. ok is false when no directive is present.
func stripSepDirective(text string) (delim byte, rest string, ok bool) {
	if !strings.HasPrefix(text, "sep=") {
		return 0, text, false
	}
	line := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		line = text[:i]
	}
	body := strings.TrimPrefix(line, "sep=")
	if len(body) != 1 {
		return 0, text, false
	}
	rest = text[len(line):]
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")
	rest = strings.TrimPrefix(rest, "\r")
	return body[0], rest, true
}

// Sheet is the in-memory result of ingesting one delimiter-separated text
// file: a name (derived from the source file's stem, sanitized) and a dense
// grid of cells, reusing package worksheet's format-agnostic value types so
// downstream code can treat it like any other parsed worksheet.
type Sheet struct {
	Name      string
	Dimension worksheet.Dimension
	rows      [][]worksheet.Cell
}

// Rows returns the parsed rows in order, one []worksheet.Cell per record.
func (s *Sheet) Rows() [][]worksheet.Cell { return s.rows }

// ReadCSV parses data as delimiter-separated text and names the resulting
// sheet from fileStem (the source file's basename without extension, already
// sanitized by SanitizeSheetName). Every field is attempted as a float64
// first (so numeric CSV columns round-trip as numbers, matching how a
// spreadsheet would interpret them) and kept as a string otherwise.
func ReadCSV(data []byte, fileStem string) (*Sheet, error) {
	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}

	delim, body, hasSep := stripSepDirective(text)
	if !hasSep {
		firstLine := body
		if i := strings.IndexAny(body, "\r\n"); i >= 0 {
			firstLine = body[:i]
		}
		delim = SniffDelimiter(firstLine)
	}

	reader := bufio.NewScanner(strings.NewReader(body))
	reader.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var rows [][]worksheet.Cell
	maxCols := 0
	for reader.Scan() {
		line := strings.TrimSuffix(reader.Text(), "\r")
		if line == "" && len(rows) == 0 {
			continue // tolerate leading blank lines before the header
		}
		fields := strings.Split(line, string(delim))
		row := make([]worksheet.Cell, len(fields))
		for c, field := range fields {
			row[c] = worksheet.Cell{R: len(rows), C: c, V: parseField(field)}
		}
		if len(fields) > maxCols {
			maxCols = len(fields)
		}
		rows = append(rows, row)
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}

	name := SanitizeSheetName(fileStem)
	return &Sheet{
		Name:      name,
		Dimension: worksheet.Dimension{R: 0, C: 0, H: len(rows), W: maxCols},
		rows:      rows,
	}, nil
}

func parseField(field string) any {
	if field == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil {
		return f
	}
	return field
}

// invalidSheetNameChars are the characters Excel rejects in a worksheet
// name: \ / ? * [ ] :
const invalidSheetNameChars = `\/?*[]:`

// maxSheetNameLen is Excel's worksheet-name length limit.
const maxSheetNameLen = 31

// SanitizeSheetName turns an arbitrary file stem into a legal worksheet
// name: invalid characters are replaced with "_", leading/trailing
// apostrophes (which Excel also rejects at the name's edges) are trimmed,
// the result is capped to 31 characters, and "Sheet1" is substituted if
// nothing legal survives.
func SanitizeSheetName(stem string) string {
	var b, kept strings.Builder
	for _, r := range stem {
		if strings.ContainsRune(invalidSheetNameChars, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
		kept.WriteRune(r)
	}
	name := strings.Trim(b.String(), "'")
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > maxSheetNameLen {
		name = string(runes[:maxSheetNameLen])
	}
	if name == "" || strings.TrimSpace(strings.Trim(kept.String(), "'")) == "" {
		return "Sheet1"
	}
	return name
}
