// Package sql provides static inspection and safety checks for SQL text.
package sql

import "strings"

// scanned holds the byproducts of one pass over a statement: comment
// detection, string literal extraction, and a masked text that is safe for
// keyword and identifier matching. The masked text keeps the input's shape
// but has comments and literal bodies replaced with spaces, so regexes never
// match inside strings or comments.
type scanned struct {
	masked       string
	literals     []string
	hasComment   bool
	unterminated bool // unclosed string literal or block comment
}

func scanStatement(sqlText string) scanned {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateLineComment
		stateBlockComment
	)

	var masked strings.Builder
	var literal strings.Builder
	var out scanned

	masked.Grow(len(sqlText))
	state := stateNormal
	runes := []rune(sqlText)

	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case ch == '-' && next == '-':
				out.hasComment = true
				state = stateLineComment
				masked.WriteString("  ")
				i++
			case ch == '/' && next == '*':
				out.hasComment = true
				state = stateBlockComment
				masked.WriteString("  ")
				i++
			case ch == '\'':
				state = stateSingleQuote
				literal.Reset()
				masked.WriteRune(ch)
			case ch == '"':
				state = stateDoubleQuote
				masked.WriteRune(ch)
			default:
				masked.WriteRune(ch)
			}

		case stateSingleQuote:
			switch {
			case ch == '\\' && next == '\'':
				// Backslash escape stays inside the literal.
				literal.WriteRune('\'')
				masked.WriteString("  ")
				i++
			case ch == '\'' && next == '\'':
				// SQL standard doubled quote stays inside the literal.
				literal.WriteRune('\'')
				masked.WriteString("  ")
				i++
			case ch == '\'':
				out.literals = append(out.literals, literal.String())
				state = stateNormal
				masked.WriteRune(ch)
			default:
				literal.WriteRune(ch)
				if ch == '\n' {
					masked.WriteRune('\n')
				} else {
					masked.WriteRune(' ')
				}
			}

		case stateDoubleQuote:
			// Quoted identifiers keep their text so parsing still sees them.
			masked.WriteRune(ch)
			if ch == '"' && next == '"' {
				masked.WriteRune(next)
				i++
			} else if ch == '"' {
				state = stateNormal
			}

		case stateLineComment:
			if ch == '\n' {
				state = stateNormal
				masked.WriteRune('\n')
			} else {
				masked.WriteRune(' ')
			}

		case stateBlockComment:
			switch {
			case ch == '*' && next == '/':
				state = stateNormal
				masked.WriteString("  ")
				i++
			case ch == '\n':
				masked.WriteRune('\n')
			default:
				masked.WriteRune(' ')
			}
		}
	}

	out.unterminated = state == stateSingleQuote || state == stateDoubleQuote || state == stateBlockComment
	out.masked = masked.String()
	return out
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace
// around it. A single trailing semicolon is harmless; anything after it is a
// second statement.
func stripTrailingSemicolon(sqlText string) string {
	sqlText = strings.TrimRight(sqlText, " \t\n\r")
	if strings.HasSuffix(sqlText, ";") {
		sqlText = strings.TrimRight(strings.TrimSuffix(sqlText, ";"), " \t\n\r")
	}
	return sqlText
}

// firstWord returns the first keyword-like token, lowercased. Leading
// parentheses are skipped so parenthesized set operations such as
// (SELECT ...) UNION (SELECT ...) report "select".
func firstWord(s string) string {
	s = strings.TrimLeft(s, " \t\r\n(")
	for i, r := range s {
		if !isWordRune(r) {
			return strings.ToLower(s[:i])
		}
	}
	return strings.ToLower(s)
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
