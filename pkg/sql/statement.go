package sql

import (
	"regexp"
	"strings"
	"unicode"
)

// StatementKind classifies a SQL statement by its leading keyword.
type StatementKind string

const (
	KindSelect  StatementKind = "SELECT"
	KindInsert  StatementKind = "INSERT"
	KindUpdate  StatementKind = "UPDATE"
	KindDelete  StatementKind = "DELETE"
	KindDDL     StatementKind = "DDL"     // CREATE, ALTER, DROP, TRUNCATE, GRANT, REVOKE
	KindUnknown StatementKind = "UNKNOWN" // unrecognized or blocked statement types
)

// IsReadOnly reports whether the statement kind cannot modify data.
func (k StatementKind) IsReadOnly() bool {
	return k == KindSelect
}

// modifyingCTEPattern matches CTEs that wrap data-modifying statements.
// Example: WITH gone AS (DELETE FROM orders RETURNING *) SELECT * FROM gone
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE|MERGE)\b`)

// DetectStatementKind classifies a statement by its first keyword, ignoring
// leading comments and parentheses. WITH statements are classified by the
// statement that follows the CTE list, and a CTE body that modifies data
// makes the whole statement KindUnknown.
func DetectStatementKind(sqlText string) StatementKind {
	return detectKind(scanStatement(sqlText).masked)
}

func detectKind(masked string) StatementKind {
	keyword := firstWord(masked)
	if keyword == "with" {
		if modifyingCTEPattern.MatchString(masked) {
			return KindUnknown
		}
		keyword = keywordAfterCTEs(masked)
	}

	switch keyword {
	case "select":
		return KindSelect
	case "insert":
		return KindInsert
	case "update":
		return KindUpdate
	case "delete":
		return KindDelete
	case "create", "alter", "drop", "truncate", "grant", "revoke":
		return KindDDL
	default:
		return KindUnknown
	}
}

// keywordAfterCTEs walks past the CTE list of a WITH statement and returns
// the keyword of the main statement, lowercased. It relies on CTE bodies
// being parenthesized: after each top-level close paren either a comma
// continues the list, AS introduces a body (the paren group was a column
// list), or the main statement begins.
func keywordAfterCTEs(masked string) string {
	lower := strings.ToLower(masked)
	depth := 0

	for i := 0; i < len(lower); i++ {
		switch lower[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth != 0 {
				continue
			}
			j := i + 1
			for j < len(lower) && unicode.IsSpace(rune(lower[j])) {
				j++
			}
			if j >= len(lower) {
				return ""
			}
			if lower[j] == ',' {
				i = j
				continue
			}
			word := firstWord(lower[j:])
			if word == "as" {
				continue
			}
			return word
		}
	}
	return "with"
}
