package formula

import "strings"

// Locale carries everything Translate needs to read or write formula text in
// one language: separator characters, the canonical<->localized function
// name table, and the canonical<->localized boolean/error literal tables.
//
// Field shapes and separator values are grounded on
// original_source/crates/formula-format/src/locale/registry.rs's
// NumberLocale (decimal/thousands separators per BCP-47 tag) and
// original_source/crates/formula-engine/src/locale/translate.rs's
// LocaleConfig usage (decimal_separator, arg_separator, array_row_separator,
// array_col_separator). Function-name and literal tables beyond the
// separators are this package's own curation: the retrieved corpus has no
// complete localized-function-name table for any of these languages.
type Locale struct {
	ID string

	DecimalSeparator  rune
	ArgSeparator      rune
	ArrayRowSeparator rune
	ArrayColSeparator rune

	// trueLiteral/falseLiteral are this locale's spelling of TRUE/FALSE.
	trueLiteral, falseLiteral string

	// functionNames maps canonical (English) function name -> this locale's
	// spelling. Only functions with a locale-specific name need an entry;
	// canonicalFunctionName/localizedFunctionName fall back to the
	// unmodified name for anything absent from the table.
	functionNames map[string]string
	// errorLiterals maps canonical error text -> this locale's spelling.
	errorLiterals map[string]string
}

// EnUS is the canonical locale: identity separators and tables, used as
// both the parse locale and the render locale whenever no other locale is
// in play.
func EnUS() *Locale {
	return &Locale{
		ID:                "en-US",
		DecimalSeparator:  '.',
		ArgSeparator:      ',',
		ArrayRowSeparator: ';',
		ArrayColSeparator: ',',
		trueLiteral:       "TRUE",
		falseLiteral:      "FALSE",
	}
}

// DeDE is German (Germany): decimal comma, semicolon argument separator
// (since comma is the decimal point), German boolean keywords, and a small
// set of German function names that differ from their English spelling.
func DeDE() *Locale {
	return &Locale{
		ID:                "de-DE",
		DecimalSeparator:  ',',
		ArgSeparator:      ';',
		ArrayRowSeparator: ';',
		ArrayColSeparator: '\\',
		trueLiteral:       "WAHR",
		falseLiteral:      "FALSCH",
		functionNames: map[string]string{
			"SUM":     "SUMME",
			"AVERAGE": "MITTELWERT",
			"IF":      "WENN",
			"COUNT":   "ANZAHL",
			"ROUND":   "RUNDEN",
			"AND":     "UND",
			"OR":      "ODER",
			"NOT":     "NICHT",
			"VLOOKUP": "SVERWEIS",
			"ISERROR": "ISTFEHLER",
		},
		errorLiterals: map[string]string{
			"#NULL!":  "#NULL!",
			"#DIV/0!": "#DIV/0!",
			"#VALUE!": "#WERT!",
			"#REF!":   "#BEZUG!",
			"#NAME?":  "#NAME?",
			"#NUM!":   "#ZAHL!",
			"#N/A":    "#NV",
		},
	}
}

// FrFR is French (France): decimal comma, semicolon argument separator.
func FrFR() *Locale {
	return &Locale{
		ID:                "fr-FR",
		DecimalSeparator:  ',',
		ArgSeparator:      ';',
		ArrayRowSeparator: ';',
		ArrayColSeparator: '\\',
		trueLiteral:       "VRAI",
		falseLiteral:      "FAUX",
		functionNames: map[string]string{
			"SUM":     "SOMME",
			"AVERAGE": "MOYENNE",
			"IF":      "SI",
			"COUNT":   "NB",
			"ROUND":   "ARRONDI",
			"AND":     "ET",
			"OR":      "OU",
			"NOT":     "NON",
			"VLOOKUP": "RECHERCHEV",
		},
		errorLiterals: map[string]string{
			"#VALUE!": "#VALEUR!",
			"#REF!":   "#REF!",
			"#NAME?":  "#NOM?",
			"#NUM!":   "#NOMBRE!",
			"#N/A":    "#N/A",
		},
	}
}

// EsES is Spanish (Spain): decimal comma, semicolon argument separator.
func EsES() *Locale {
	return &Locale{
		ID:                "es-ES",
		DecimalSeparator:  ',',
		ArgSeparator:      ';',
		ArrayRowSeparator: ';',
		ArrayColSeparator: '\\',
		trueLiteral:       "VERDADERO",
		falseLiteral:      "FALSO",
		functionNames: map[string]string{
			"SUM":     "SUMA",
			"AVERAGE": "PROMEDIO",
			"IF":      "SI",
			"COUNT":   "CONTAR",
			"ROUND":   "REDONDEAR",
			"AND":     "Y",
			"OR":      "O",
			"NOT":     "NO",
			"VLOOKUP": "BUSCARV",
		},
		errorLiterals: map[string]string{
			"#VALUE!": "#¡VALOR!",
			"#REF!":   "#¡REF!",
			"#NAME?":  "#¿NOMBRE?",
			"#NUM!":   "#¡NUM!",
			"#N/A":    "#N/A",
		},
	}
}

func (l *Locale) booleanLiteral(text string) (value bool, ok bool) {
	switch strings.ToUpper(text) {
	case strings.ToUpper(l.trueLiteral):
		return true, true
	case strings.ToUpper(l.falseLiteral):
		return false, true
	default:
		return false, false
	}
}

func (l *Locale) localizedBooleanLiteral(value bool) string {
	if value {
		return l.trueLiteral
	}
	return l.falseLiteral
}

// canonicalBooleanLiteral reports whether raw is this locale's spelling of
// TRUE/FALSE, returning (value, true) if so.
func (l *Locale) canonicalBooleanLiteral(raw string) (bool, bool) {
	return l.booleanLiteral(raw)
}

func (l *Locale) canonicalFunctionName(raw string) string {
	upper := strings.ToUpper(raw)
	for canon, localized := range l.functionNames {
		if strings.ToUpper(localized) == upper {
			return canon
		}
	}
	return raw
}

func (l *Locale) localizedFunctionName(raw string) string {
	if localized, ok := l.functionNames[strings.ToUpper(raw)]; ok {
		return localized
	}
	return raw
}

func (l *Locale) canonicalErrorLiteral(raw string) (string, bool) {
	upper := strings.ToUpper(raw)
	for canon, localized := range l.errorLiterals {
		if strings.ToUpper(localized) == upper {
			return canon, true
		}
	}
	return "", false
}

func (l *Locale) localizedErrorLiteral(raw string) (string, bool) {
	if localized, ok := l.errorLiterals[strings.ToUpper(raw)]; ok {
		return localized, true
	}
	return "", false
}

// canonicalErrorLiteralSpellings is the fixed set of canonical (en-US)
// Excel error-value literals. #N/A deliberately has no "!"/"?" terminator,
// which is why the lexer matches literals by known spelling rather than by
// scanning for a punctuation delimiter.
var canonicalErrorLiteralSpellings = []string{
	"#DIV/0!", "#VALUE!", "#REF!", "#NAME?", "#NUM!", "#NULL!", "#N/A",
}

// matchErrorLiteral reports the longest known error literal (canonical or
// locale's own spelling) found at the start of runes, case-insensitively.
func matchErrorLiteral(runes []rune, locale *Locale) (string, bool) {
	candidates := append([]string{}, canonicalErrorLiteralSpellings...)
	for _, localized := range locale.errorLiterals {
		candidates = append(candidates, localized)
	}

	best := ""
	for _, cand := range candidates {
		candRunes := []rune(cand)
		if len(candRunes) > len(runes) || len(candRunes) <= len(best) {
			continue
		}
		if strings.EqualFold(string(runes[:len(candRunes)]), cand) {
			best = cand
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
