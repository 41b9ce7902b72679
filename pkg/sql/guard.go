package sql

import (
	"fmt"
	"regexp"
	"strings"
)

// adminFunctionPattern matches calls to functions that sleep, touch the
// filesystem, signal other backends, open remote connections, or change
// settings. None of them belong in generated analytics SQL.
var adminFunctionPattern = regexp.MustCompile(`(?i)\b(pg_sleep|pg_sleep_for|pg_sleep_until|pg_read_file|pg_read_binary_file|pg_ls_dir|pg_stat_file|pg_terminate_backend|pg_cancel_backend|pg_reload_conf|pg_rotate_logfile|lo_import|lo_export|dblink|dblink_exec|dblink_connect|set_config|pg_advisory_lock|pg_advisory_xact_lock)\s*\(`)

var emptySelectList = regexp.MustCompile(`(?i)\bselect\s+from\b`)

// A comma directly before a clause keyword means a list item went missing.
// These keywords are fully reserved, so no valid statement matches.
var danglingCommaPattern = regexp.MustCompile(`(?i),\s*(from|where|group|order|having|limit|offset)\b`)

// danglingWords are keywords that cannot legally end a statement. Words
// like END, DESC, or NULL are absent because they can.
var danglingWords = map[string]bool{
	"select": true, "from": true, "where": true, "and": true, "or": true,
	"not": true, "in": true, "is": true, "like": true, "ilike": true,
	"between": true, "as": true, "on": true, "by": true, "group": true,
	"order": true, "having": true, "limit": true, "offset": true,
	"join": true, "inner": true, "left": true, "right": true, "full": true,
	"outer": true, "cross": true, "natural": true, "using": true,
	"union": true, "intersect": true, "except": true, "when": true,
	"then": true, "else": true, "case": true, "with": true,
	"recursive": true, "distinct": true, "exists": true, "over": true,
	"partition": true, "filter": true, "within": true, "values": true,
	"set": true, "fetch": true, "escape": true, "collate": true,
	"interval": true, "cast": true, "extract": true,
}

// HasStackedStatements reports whether a semicolon separates the statement
// from further text. A single trailing semicolon does not count.
func (q *QueryInfo) HasStackedStatements() bool {
	return strings.Contains(stripTrailingSemicolon(q.masked), ";")
}

// DangerousFunction returns the lowercased name of the first administrative
// function call in the statement, or "" when there is none.
func (q *QueryInfo) DangerousFunction() string {
	m := adminFunctionPattern.FindStringSubmatch(q.masked)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// SyntaxIssue runs cheap structural checks that catch truncated or mangled
// statements: unterminated literals and comments, unbalanced parentheses,
// text that trails off after a keyword or operator, and empty select lists.
// It returns a short description of the first problem found, or "". Passing
// these checks does not guarantee the statement parses.
func (q *QueryInfo) SyntaxIssue() string {
	if q.Unterminated {
		return "unterminated string literal or comment"
	}
	if parenBalance(q.masked) != 0 {
		return "unbalanced parentheses"
	}
	trimmed := strings.TrimSpace(stripTrailingSemicolon(q.masked))
	if trimmed == "" {
		return "empty statement"
	}
	last := trimmed[len(trimmed)-1]
	if strings.ContainsRune("+-*/%<>=,.", rune(last)) {
		return fmt.Sprintf("statement ends with %q", last)
	}
	if word := trailingWord(trimmed); danglingWords[word] {
		return fmt.Sprintf("statement ends with %s", strings.ToUpper(word))
	}
	if emptySelectList.MatchString(q.masked) {
		return "SELECT with an empty column list"
	}
	if m := danglingCommaPattern.FindStringSubmatch(q.masked); m != nil {
		return fmt.Sprintf("dangling comma before %s", strings.ToUpper(m[1]))
	}
	return ""
}

func parenBalance(masked string) int {
	depth := 0
	for i := 0; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	return depth
}

// trailingWord returns the lowercased final identifier-like token, or ""
// when the statement ends with something else.
func trailingWord(s string) string {
	end := len(s)
	start := end
	for start > 0 && isWordByte(s[start-1]) {
		start--
	}
	if start == end {
		return ""
	}
	return strings.ToLower(s[start:end])
}
