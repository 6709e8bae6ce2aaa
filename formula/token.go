// Package formula transcodes between a worksheet cell's tokenized on-disk
// rgce form and the textual formula an end user types, and translates
// formula text between locale-specific and canonical (en-US) spellings of
// function names, boolean literals, error literals, and separators.
package formula

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenKind classifies one lexed span of formula source text.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokWhitespace
	TokIdent
	TokQuotedIdent // 'Sheet name with spaces'
	TokNumber
	TokString       // "..."
	TokBoolean      // TRUE/FALSE, or a locale's spelling of them
	TokError        // #DIV/0!, #N/A, ...
	TokLParen
	TokRParen
	TokLBracket
	TokRBracket
	TokComma     // argument separator / union operator (context dependent)
	TokSemicolon // array row separator (default locale)
	TokBackslash // array column separator in some locales
	TokBang      // sheet!ref separator
	TokColon     // range operator / sheet-span separator
	TokDot       // struct field access (Table[@Column] style is handled via brackets)
	TokPlus
	TokMinus
	TokMul
	TokDiv
	TokPower
	TokConcat // &
	TokEq
	TokNE // <>
	TokLT
	TokLE
	TokGT
	TokGE
	TokPercent
	TokIntersect // single space used as the intersection operator
)

// Token is one lexed span of formula source, with byte offsets into the
// original source string so translation can copy verbatim substrings
// instead of re-rendering them.
type Token struct {
	Kind       TokenKind
	Start, End int
	// BoolValue is valid when Kind == TokBoolean.
	BoolValue bool
}

// Text returns the token's source substring.
func (t Token) Text(src string) string { return src[t.Start:t.End] }

// Lex tokenizes formula source text (without a leading "=") into a Token
// slice terminated by a TokEOF token, using locale to recognize
// locale-spelled boolean literals and the locale's argument/array
// separators. Cell references, range operators, and structured references
// are not resolved into dedicated token kinds here: Ident/Colon/Bang/
// LBracket/RBracket let the caller (Translate) reconstruct them positionally
// ("." is kept inside Ident tokens, so TokDot is never produced),
// the same passthrough approach translate.rs takes for anything it doesn't
// need to rewrite.
func Lex(src string, locale *Locale) ([]Token, error) {
	var tokens []Token
	runes := []rune(src)
	n := len(runes)
	i := 0
	byteOffset := func(runeIdx int) int { return len(string(runes[:runeIdx])) }

	push := func(kind TokenKind, startRune, endRune int) {
		tokens = append(tokens, Token{Kind: kind, Start: byteOffset(startRune), End: byteOffset(endRune)})
	}

	for i < n {
		start := i
		ch := runes[i]

		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			for i < n && (runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n' || runes[i] == '\r') {
				i++
			}
			push(TokWhitespace, start, i)

		case ch == '"':
			i++
			for i < n {
				if runes[i] == '"' {
					if i+1 < n && runes[i+1] == '"' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			push(TokString, start, i)

		case ch == '\'':
			i++
			for i < n {
				if runes[i] == '\'' {
					if i+1 < n && runes[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			push(TokQuotedIdent, start, i)

		case ch == '#':
			// Error literals (#DIV/0!, #N/A, ...) aren't uniformly
			// terminated by "!" or "?" — #N/A has no terminator at all —
			// so match against the known set of canonical and this
			// locale's localized error spellings rather than scanning for
			// a punctuation delimiter.
			lit, ok := matchErrorLiteral(runes[i:], locale)
			if !ok {
				return nil, fmt.Errorf("formula: unrecognized error literal at %q", string(runes[i:min(i+12, n)]))
			}
			i += len([]rune(lit))
			push(TokError, start, i)

		case unicode.IsDigit(ch) || (ch == locale.DecimalSeparator && i+1 < n && unicode.IsDigit(runes[i+1])):
			i++
			for i < n && (unicode.IsDigit(runes[i]) || runes[i] == locale.DecimalSeparator ||
				runes[i] == 'e' || runes[i] == 'E' ||
				((runes[i] == '+' || runes[i] == '-') && i > start && (runes[i-1] == 'e' || runes[i-1] == 'E'))) {
				i++
			}
			push(TokNumber, start, i)

		case unicode.IsLetter(ch) || ch == '_' || ch == '$':
			i++
			for i < n && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '.' || runes[i] == '$') {
				i++
			}
			text := string(runes[start:i])
			if v, ok := locale.booleanLiteral(text); ok {
				tokens = append(tokens, Token{Kind: TokBoolean, Start: byteOffset(start), End: byteOffset(i), BoolValue: v})
			} else {
				push(TokIdent, start, i)
			}

		case ch == '(':
			i++
			push(TokLParen, start, i)
		case ch == ')':
			i++
			push(TokRParen, start, i)
		case ch == '[':
			i++
			push(TokLBracket, start, i)
		case ch == ']':
			i++
			push(TokRBracket, start, i)
		case ch == '!':
			i++
			push(TokBang, start, i)
		case ch == ':':
			i++
			push(TokColon, start, i)
		case ch == '+':
			i++
			push(TokPlus, start, i)
		case ch == '-':
			i++
			push(TokMinus, start, i)
		case ch == '*':
			i++
			push(TokMul, start, i)
		case ch == '/':
			i++
			push(TokDiv, start, i)
		case ch == '^':
			i++
			push(TokPower, start, i)
		case ch == '&':
			i++
			push(TokConcat, start, i)
		case ch == '%':
			i++
			push(TokPercent, start, i)
		case ch == '=':
			i++
			push(TokEq, start, i)
		case ch == '<':
			i++
			if i < n && runes[i] == '>' {
				i++
				push(TokNE, start, i)
			} else if i < n && runes[i] == '=' {
				i++
				push(TokLE, start, i)
			} else {
				push(TokLT, start, i)
			}
		case ch == '>':
			i++
			if i < n && runes[i] == '=' {
				i++
				push(TokGE, start, i)
			} else {
				push(TokGT, start, i)
			}
		case ch == locale.ArgSeparator:
			i++
			push(TokComma, start, i)
		case ch == locale.ArrayRowSeparator:
			i++
			push(TokSemicolon, start, i)
		case ch == locale.ArrayColSeparator:
			i++
			push(TokBackslash, start, i)
		default:
			return nil, fmt.Errorf("formula: unexpected character %q in %q", ch, src)
		}
	}

	tokens = append(tokens, Token{Kind: TokEOF, Start: len(string(runes)), End: len(string(runes))})
	return tokens, nil
}

// isFunctionIdent reports whether the Ident token at idx is immediately
// followed (modulo whitespace) by "(", the same lookahead translate.rs's
// is_function_ident performs.
func isFunctionIdent(tokens []Token, idx int) bool {
	if tokens[idx].Kind != TokIdent {
		return false
	}
	j := idx + 1
	for j < len(tokens) && tokens[j].Kind == TokWhitespace {
		j++
	}
	return j < len(tokens) && tokens[j].Kind == TokLParen
}

// isFieldAccessSelector reports whether the Ident token at idx is preceded
// (modulo whitespace) by a ".", i.e. it is a struct/member access selector
// rather than a standalone identifier that could be a boolean keyword.
func isFieldAccessSelector(tokens []Token, idx int) bool {
	if tokens[idx].Kind != TokIdent {
		return false
	}
	j := idx - 1
	for j >= 0 {
		switch tokens[j].Kind {
		case TokWhitespace:
			j--
			continue
		case TokDot:
			return true
		default:
			return false
		}
	}
	return false
}

func nextNonTrivia(tokens []Token, idx int) TokenKind {
	j := idx + 1
	for j < len(tokens) && tokens[j].Kind == TokWhitespace {
		j++
	}
	if j >= len(tokens) {
		return TokEOF
	}
	return tokens[j].Kind
}

// isSheetPrefixIdent reports whether the Ident at idx is a sheet-name
// prefix: immediately before "!" (Sheet1!A1) or part of a 3D sheet span
// (Sheet1:Sheet3!A1).
func isSheetPrefixIdent(tokens []Token, idx int) bool {
	switch nextNonTrivia(tokens, idx) {
	case TokBang:
		return true
	case TokColon:
		j := idx + 1
		for j < len(tokens) && tokens[j].Kind == TokWhitespace {
			j++
		}
		if j >= len(tokens) || tokens[j].Kind != TokColon {
			return false
		}
		j++
		for j < len(tokens) && tokens[j].Kind == TokWhitespace {
			j++
		}
		if j >= len(tokens) || (tokens[j].Kind != TokIdent && tokens[j].Kind != TokQuotedIdent) {
			return false
		}
		return nextNonTrivia(tokens, j) == TokBang
	default:
		return false
	}
}

// isTableNameIdent reports whether the Ident at idx is a structured-table
// reference name (immediately followed by "[").
func isTableNameIdent(tokens []Token, idx int) bool {
	return nextNonTrivia(tokens, idx) == TokLBracket
}

func trimLeadingEquals(formula string) (hasEquals bool, expr string) {
	trimmed := strings.TrimLeft(formula, " \t\r\n")
	if rest, ok := strings.CutPrefix(trimmed, "="); ok {
		return true, rest
	}
	return false, trimmed
}
