package query

import (
	"strings"
	"unicode"
)

// A token is either an identifier (a run of safe characters, possibly with
// backslash escapes) or one of the closed set of operators.
type token struct {
	op   bool
	text string
}

// Operator precedence bands, low to high. All operators are left
// associative; chains bind tightest so that a comparison applies to the
// whole chained lookup.
const (
	precReduce = 1 // %>
	precElt    = 2 // %
	precAt     = 3 // @
	precSep    = 4 // ; ,
	precComb   = 5 // & | ^
	precCmp    = 6 // < <= = != >= > ~ !~
	precChain  = 7 // : ?:
)

var opPrecedence = map[string]int{
	"%>": precReduce,
	"%":  precElt,
	"@":  precAt,
	";":  precSep,
	",":  precSep,
	"&":  precComb,
	"|":  precComb,
	"^":  precComb,
	"<":  precCmp,
	"<=": precCmp,
	"=":  precCmp,
	"!=": precCmp,
	">=": precCmp,
	">":  precCmp,
	"~":  precCmp,
	"!~": precCmp,
	":":  precChain,
	"?:": precChain,
}

// twoRuneOps are matched before single-rune operators.
var twoRuneOps = []string{"%>", "<=", ">=", "!=", "!~", "?:"}

// isSafeRune reports whether r may appear unescaped inside an identifier.
// Any non-ASCII rune is safe so entry names in any script work unescaped.
func isSafeRune(r rune) bool {
	if r > unicode.MaxASCII {
		return true
	}
	switch {
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return true
	case r == '_' || r == '+' || r == '-' || r == '.':
		return true
	}
	return false
}

// escapeToken re-escapes a token for canonical serialization, the inverse
// of the scanner's escape handling.
func escapeToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !isSafeRune(r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalize strips #-to-end-of-line comments (a \# survives as part of a
// token), collapses whitespace runs to single spaces, and trims.
func normalize(raw string) string {
	var b strings.Builder
	runes := []rune(raw)
	inComment := false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inComment {
			if r == '\n' {
				inComment = false
				b.WriteRune(' ')
			}
			continue
		}
		switch {
		case r == '\\' && i+1 < len(runes):
			b.WriteRune(r)
			b.WriteRune(runes[i+1])
			i++
		case r == '#':
			inComment = true
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// scan splits a normalized query into tokens. Escapes are resolved here:
// the returned identifier text holds the literal runes.
func scan(text string) ([]token, error) {
	var tokens []token
	runes := []rune(text)
	for i := 0; i < len(runes); {
		r := runes[i]
		if r == ' ' {
			i++
			continue
		}
		if isSafeRune(r) || r == '\\' {
			var b strings.Builder
			for i < len(runes) {
				r = runes[i]
				if r == '\\' {
					if i+1 >= len(runes) {
						return nil, syntaxError(text, "\\", "expected a character after escape")
					}
					b.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if !isSafeRune(r) {
					break
				}
				b.WriteRune(r)
				i++
			}
			tokens = append(tokens, token{text: b.String()})
			continue
		}
		if i+1 < len(runes) {
			two := string(runes[i : i+2])
			if containsOp(twoRuneOps, two) {
				tokens = append(tokens, token{op: true, text: two})
				i += 2
				continue
			}
		}
		one := string(r)
		if _, ok := opPrecedence[one]; ok {
			tokens = append(tokens, token{op: true, text: one})
			i++
			continue
		}
		return nil, syntaxError(text, one, "unexpected character")
	}
	return tokens, nil
}

func containsOp(ops []string, s string) bool {
	for _, op := range ops {
		if op == s {
			return true
		}
	}
	return false
}
