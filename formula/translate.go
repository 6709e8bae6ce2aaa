package formula

import "fmt"

// Canonicalize converts a locale-specific formula into its canonical
// (en-US) spelling: English function names, "," as argument/union
// separator, "." as decimal separator, and en-US array separators
// (";" rows, "," columns). An optional leading "=" is preserved.
//
// Ported from
// original_source/crates/formula-engine/src/locale/translate.rs's
// canonicalize_formula / translate_formula_with_style.
func Canonicalize(formula string, locale *Locale) (string, error) {
	return translate(formula, locale, toCanonical)
}

// Localize converts a canonical (English) formula into locale's
// locale-specific display form. An optional leading "=" is preserved.
//
// Ported from translate.rs's localize_formula / translate_formula_with_style.
func Localize(formula string, locale *Locale) (string, error) {
	return translate(formula, locale, toLocalized)
}

type direction int

const (
	toCanonical direction = iota
	toLocalized
)

func translate(formula string, locale *Locale, dir direction) (string, error) {
	hasEquals, exprSrc := trimLeadingEquals(formula)

	canonical := EnUS()
	var srcLocale, dstLocale *Locale
	switch dir {
	case toCanonical:
		srcLocale, dstLocale = locale, canonical
	case toLocalized:
		srcLocale, dstLocale = canonical, locale
	}

	tokens, err := Lex(exprSrc, srcLocale)
	if err != nil {
		return "", fmt.Errorf("formula: translate: %w", err)
	}

	var out []byte
	if hasEquals {
		out = append(out, '=')
	}

	bracketDepth := 0
	idx := 0
	for idx < len(tokens) {
		tok := tokens[idx]
		switch {
		case tok.Kind == TokEOF:
			idx = len(tokens)

		case tok.Kind == TokLBracket:
			bracketDepth++
			out = append(out, tok.Text(exprSrc)...)
			idx++

		case tok.Kind == TokRBracket:
			// Excel escapes "]" inside structured references as "]]"; at the
			// outermost bracket depth, treat a doubled "]]" as a literal "]"
			// and leave the bracket depth unchanged.
			if bracketDepth == 1 && idx+1 < len(tokens) && tokens[idx+1].Kind == TokRBracket {
				out = append(out, tok.Text(exprSrc)...)
				out = append(out, tokens[idx+1].Text(exprSrc)...)
				idx += 2
				continue
			}
			if bracketDepth > 0 {
				bracketDepth--
			}
			out = append(out, tok.Text(exprSrc)...)
			idx++

		case bracketDepth > 0:
			// Never translate anything inside workbook/structured-reference
			// brackets.
			out = append(out, tok.Text(exprSrc)...)
			idx++

		case tok.Kind == TokWhitespace || tok.Kind == TokIntersect:
			out = append(out, tok.Text(exprSrc)...)
			idx++

		case tok.Kind == TokString || tok.Kind == TokQuotedIdent:
			out = append(out, tok.Text(exprSrc)...)
			idx++

		case tok.Kind == TokBoolean:
			switch dir {
			case toCanonical:
				out = append(out, canonicalBoolLiteral(tok.BoolValue)...)
			case toLocalized:
				out = append(out, dstLocale.localizedBooleanLiteral(tok.BoolValue)...)
			}
			idx++

		case tok.Kind == TokError:
			raw := tok.Text(exprSrc)
			switch dir {
			case toCanonical:
				if canon, ok := srcLocale.canonicalErrorLiteral(raw); ok {
					out = append(out, canon...)
				} else {
					out = append(out, raw...)
				}
			case toLocalized:
				if loc, ok := dstLocale.localizedErrorLiteral(raw); ok {
					out = append(out, loc...)
				} else {
					out = append(out, raw...)
				}
			}
			idx++

		case tok.Kind == TokNumber:
			out = append(out, translateNumber(tok.Text(exprSrc), srcLocale.DecimalSeparator, dstLocale.DecimalSeparator)...)
			idx++

		case tok.Kind == TokIdent && isFunctionIdent(tokens, idx) && !isFieldAccessSelector(tokens, idx):
			raw := tok.Text(exprSrc)
			switch dir {
			case toCanonical:
				out = append(out, srcLocale.canonicalFunctionName(raw)...)
			case toLocalized:
				out = append(out, dstLocale.localizedFunctionName(raw)...)
			}
			idx++

		case tok.Kind == TokIdent && dir == toCanonical:
			// Boolean keywords are locale-specific (e.g. WAHR/FALSCH for
			// German), but the same spelling can also occur as an
			// identifier (sheet name, table name). Only translate it when
			// used as a standalone scalar literal.
			raw := tok.Text(exprSrc)
			if !isSheetPrefixIdent(tokens, idx) && !isTableNameIdent(tokens, idx) && !isFieldAccessSelector(tokens, idx) {
				if value, ok := srcLocale.canonicalBooleanLiteral(raw); ok {
					out = append(out, canonicalBoolLiteral(value)...)
				} else {
					out = append(out, raw...)
				}
			} else {
				out = append(out, raw...)
			}
			idx++

		case tok.Kind == TokComma:
			out = append(out, string(dstLocale.ArgSeparator)...)
			idx++

		case tok.Kind == TokSemicolon:
			out = append(out, string(dstLocale.ArrayRowSeparator)...)
			idx++

		case tok.Kind == TokBackslash:
			out = append(out, string(dstLocale.ArrayColSeparator)...)
			idx++

		default:
			out = append(out, tok.Text(exprSrc)...)
			idx++
		}
	}

	return string(out), nil
}

func canonicalBoolLiteral(value bool) string {
	if value {
		return "TRUE"
	}
	return "FALSE"
}

func translateNumber(raw string, decimalIn, decimalOut rune) string {
	if decimalIn == decimalOut {
		return raw
	}
	out := []rune(raw)
	for i, ch := range out {
		if ch == decimalIn {
			out[i] = decimalOut
		}
	}
	return string(out)
}
