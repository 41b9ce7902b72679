package sql

import (
	"regexp"
	"strings"
)

// ColumnRef is a statically visible column reference. Qualifier is the table
// name or alias as written, empty for bare references.
type ColumnRef struct {
	Qualifier string
	Column    string
}

var (
	qualifiedRefPattern = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\.([a-z_][a-z0-9_]*)\b`)
	identifierPattern   = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)
	explicitAliasRef    = regexp.MustCompile(`(?i)\bas\s+([a-z_][a-z0-9_]*)`)
)

// sqlKeywords are tokens that can never be column references: clause
// keywords, operators spelled as words, type names, and datetime field
// names. Skipping a real column named like one of these only means it goes
// unchecked, which is safe.
var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "group": true, "by": true,
	"order": true, "having": true, "limit": true, "offset": true, "as": true,
	"and": true, "or": true, "not": true, "in": true, "is": true, "null": true,
	"like": true, "ilike": true, "similar": true, "between": true,
	"exists": true, "any": true, "all": true, "some": true, "union": true,
	"intersect": true, "except": true, "distinct": true, "on": true,
	"join": true, "inner": true, "left": true, "right": true, "full": true,
	"outer": true, "cross": true, "natural": true, "using": true,
	"case": true, "when": true, "then": true, "else": true, "end": true,
	"true": true, "false": true, "unknown": true, "asc": true, "desc": true,
	"nulls": true, "first": true, "last": true, "with": true,
	"recursive": true, "over": true, "partition": true, "window": true,
	"rows": true, "range": true, "groups": true, "unbounded": true,
	"preceding": true, "following": true, "current": true, "row": true,
	"filter": true, "within": true, "lateral": true, "tablesample": true,
	"fetch": true, "next": true, "only": true, "ties": true, "for": true,
	"update": true, "share": true, "of": true, "nowait": true,
	"skip": true, "locked": true, "collate": true, "escape": true,
	"symmetric": true, "at": true, "time": true, "zone": true,
	"local": true, "interval": true, "cast": true, "array": true,
	"values": true, "returning": true, "materialized": true,
	"year": true, "month": true, "day": true, "hour": true, "minute": true,
	"second": true, "epoch": true, "dow": true, "doy": true, "isodow": true,
	"isoyear": true, "week": true, "quarter": true, "century": true,
	"decade": true, "millennium": true, "microseconds": true,
	"milliseconds": true, "timezone": true, "timezone_hour": true,
	"timezone_minute": true,
	"int": true, "integer": true, "bigint": true, "smallint": true,
	"serial": true, "bigserial": true, "numeric": true, "decimal": true,
	"real": true, "float": true, "double": true, "precision": true,
	"boolean": true, "bool": true, "text": true, "varchar": true,
	"char": true, "character": true, "varying": true, "date": true,
	"timestamp": true, "timestamptz": true, "timetz": true, "uuid": true,
	"json": true, "jsonb": true, "bytea": true, "money": true, "inet": true,
	"cidr": true, "xml": true, "oid": true, "regclass": true,
	"current_date": true, "current_time": true, "current_timestamp": true,
	"localtime": true, "localtimestamp": true, "current_user": true,
	"session_user": true, "current_catalog": true, "current_schema": true,
}

// ColumnRefs extracts every column reference that can be resolved without a
// full parser: qualified references anywhere in the statement, and bare
// identifiers that are not keywords, function calls, aliases, tables, or
// CTE names. Anything ambiguous is left out rather than guessed at.
func (q *QueryInfo) ColumnRefs() []ColumnRef {
	return q.refsWithin([][2]int{{0, len(q.masked)}})
}

// FilterColumnRefs extracts only the references inside filtering clauses:
// WHERE, JOIN ON/USING, HAVING, GROUP BY, and ORDER BY. These are the
// columns whose indexing matters for the statement.
func (q *QueryInfo) FilterColumnRefs() []ColumnRef {
	return q.refsWithin(filterSpans(q.masked))
}

// refsWithin collects column references whose match position falls inside
// one of the given spans.
func (q *QueryInfo) refsWithin(spans [][2]int) []ColumnRef {
	skip := q.knownIdentifiers()

	var refs []ColumnRef
	seen := make(map[string]bool)
	add := func(ref ColumnRef) {
		key := strings.ToLower(ref.Qualifier) + "." + strings.ToLower(ref.Column)
		if seen[key] {
			return
		}
		seen[key] = true
		refs = append(refs, ref)
	}

	for _, m := range qualifiedRefPattern.FindAllStringSubmatchIndex(q.masked, -1) {
		if !withinSpan(spans, m[0]) {
			continue
		}
		full := strings.ToLower(q.masked[m[0]:m[1]])
		if q.qualifiedTables[full] {
			continue // schema-qualified table in FROM/JOIN, not a column
		}
		if q.followedByCall(m[1]) {
			continue // schema-qualified function call
		}
		add(ColumnRef{
			Qualifier: q.masked[m[2]:m[3]],
			Column:    q.masked[m[4]:m[5]],
		})
	}

	for _, m := range identifierPattern.FindAllStringIndex(q.masked, -1) {
		if !withinSpan(spans, m[0]) {
			continue
		}
		token := q.masked[m[0]:m[1]]
		lower := strings.ToLower(token)
		switch {
		case sqlKeywords[lower], skip[lower]:
		case m[0] > 0 && q.masked[m[0]-1] == '.':
		case m[1] < len(q.masked) && q.masked[m[1]] == '.':
		case m[0] >= 2 && q.masked[m[0]-2:m[0]] == "::":
		case q.followedByCall(m[1]):
		default:
			add(ColumnRef{Column: token})
		}
	}

	return refs
}

var filterClausePattern = regexp.MustCompile(`(?i)\b(?:where|having|on|using|group\s+by|order\s+by)\b`)

// Keywords that end a filtering clause when they appear at the clause's own
// nesting depth.
var filterClauseTerminators = map[string]bool{
	"where": true, "group": true, "order": true, "having": true,
	"limit": true, "offset": true, "window": true, "union": true,
	"intersect": true, "except": true, "fetch": true, "for": true,
	"join": true, "inner": true, "left": true, "right": true, "full": true,
	"cross": true, "natural": true, "on": true, "using": true,
	"returning": true,
}

// filterSpans returns the [start, end) extent of every filtering clause. A
// clause runs until the next clause keyword at the same paren depth, or the
// closing paren of the subquery it lives in.
func filterSpans(masked string) [][2]int {
	var spans [][2]int
	for _, m := range filterClausePattern.FindAllStringIndex(masked, -1) {
		start := m[1]
		spans = append(spans, [2]int{start, clauseEnd(masked, start)})
	}
	return spans
}

func clauseEnd(masked string, start int) int {
	depth := 0
	for i := start; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return i
			}
		case ';':
			if depth == 0 {
				return i
			}
		default:
			if depth != 0 || !isWordByte(masked[i]) || (i > 0 && isWordByte(masked[i-1])) {
				continue
			}
			end := i
			for end < len(masked) && isWordByte(masked[end]) {
				end++
			}
			if filterClauseTerminators[strings.ToLower(masked[i:end])] {
				return i
			}
			i = end - 1
		}
	}
	return len(masked)
}

// followedByCall reports whether the next non-space character after pos is
// an opening parenthesis, i.e. the preceding identifier is a function name.
func (q *QueryInfo) followedByCall(pos int) bool {
	rest := strings.TrimLeft(q.masked[pos:], " \t\r\n")
	return strings.HasPrefix(rest, "(")
}

// knownIdentifiers collects every identifier that is introduced by the
// statement itself: table names and aliases, CTE names, and select-list
// aliases. References to them are not column references.
func (q *QueryInfo) knownIdentifiers() map[string]bool {
	skip := make(map[string]bool)
	for _, ref := range q.Tables {
		skip[strings.ToLower(ref.Name)] = true
		if ref.Alias != "" {
			skip[strings.ToLower(ref.Alias)] = true
		}
	}
	for _, name := range q.CTENames {
		skip[strings.ToLower(name)] = true
	}
	for _, alias := range q.selectListAliases() {
		skip[strings.ToLower(alias)] = true
	}
	for _, m := range explicitAliasRef.FindAllStringSubmatch(q.masked, -1) {
		skip[strings.ToLower(m[1])] = true
	}
	return skip
}

// selectListAliases finds implicit aliases, e.g. the "total" in
// "SELECT SUM(amount) total". Explicit AS aliases are handled separately.
func (q *QueryInfo) selectListAliases() []string {
	var aliases []string
	for _, span := range selectListSpans(q.masked) {
		list := stripSelectQuantifier(q.masked[span[0]:span[1]])
		for _, item := range splitTopLevelCommas(list) {
			if alias := implicitAlias(item); alias != "" {
				aliases = append(aliases, alias)
			}
		}
	}
	return aliases
}

// stripSelectQuantifier drops a leading DISTINCT, DISTINCT ON (...), or ALL
// so that "DISTINCT username" is a plain column, not an aliased expression.
func stripSelectQuantifier(list string) string {
	trimmed := strings.TrimLeft(list, " \t\r\n")
	lower := strings.ToLower(trimmed)
	for _, q := range []string{"distinct", "all"} {
		if !strings.HasPrefix(lower, q) || len(trimmed) <= len(q) || isWordByte(trimmed[len(q)]) {
			continue
		}
		rest := trimmed[len(q):]
		if q == "distinct" {
			rest = stripOnGroup(rest)
		}
		return rest
	}
	return list
}

// stripOnGroup removes the "ON (...)" clause of DISTINCT ON when present.
func stripOnGroup(rest string) string {
	trimmed := strings.TrimLeft(rest, " \t\r\n")
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "on") || len(trimmed) <= 2 || isWordByte(trimmed[2]) {
		return rest
	}
	after := strings.TrimLeft(trimmed[2:], " \t\r\n")
	if !strings.HasPrefix(after, "(") {
		return rest
	}
	depth := 0
	for i := 0; i < len(after); i++ {
		switch after[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return after[i+1:]
			}
		}
	}
	return rest
}

// selectListSpans returns the [start, end) extent of every SELECT list in
// the statement, including those of subqueries. The end is the matching FROM
// at the same nesting depth, or the paren/statement end for FROM-less
// selects.
func selectListSpans(masked string) [][2]int {
	lower := strings.ToLower(masked)
	var spans [][2]int

	for i := 0; i+len("select") <= len(lower); i++ {
		if !strings.HasPrefix(lower[i:], "select") {
			continue
		}
		if i > 0 && isWordByte(lower[i-1]) {
			continue
		}
		end := i + len("select")
		if end < len(lower) && isWordByte(lower[end]) {
			continue
		}

		depth := 0
		spanEnd := len(lower)
		for j := end; j < len(lower); j++ {
			switch lower[j] {
			case '(':
				depth++
			case ')':
				depth--
				if depth < 0 {
					spanEnd = j
					j = len(lower)
				}
			case 'f':
				if depth == 0 && strings.HasPrefix(lower[j:], "from") &&
					!isWordByte(lower[j-1]) &&
					(j+4 >= len(lower) || !isWordByte(lower[j+4])) {
					spanEnd = j
					j = len(lower)
				}
			}
		}
		spans = append(spans, [2]int{end, spanEnd})
	}
	return spans
}

// splitTopLevelCommas splits a select list on commas outside parentheses.
func splitTopLevelCommas(list string) []string {
	var items []string
	var current strings.Builder
	depth := 0

	for _, ch := range list {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				items = append(items, current.String())
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		items = append(items, current.String())
	}
	return items
}

// implicitAlias returns the trailing bare word of a select-list expression
// when it names the expression, e.g. "COUNT(*) total" yields "total".
// Single identifiers and keyword tails yield "".
func implicitAlias(item string) string {
	item = strings.TrimSpace(item)
	if strings.Count(item, "(") != strings.Count(item, ")") {
		return ""
	}

	parts := strings.Fields(item)
	if len(parts) < 2 {
		return ""
	}
	last := parts[len(parts)-1]
	if strings.ContainsAny(last, "()*.'\":") {
		return ""
	}
	if sqlKeywords[strings.ToLower(last)] {
		return ""
	}
	if !identifierPattern.MatchString(last) || identifierPattern.FindString(last) != last {
		return ""
	}
	// "a + b" style tails are operators away from being aliases; require the
	// part before the alias to end the expression cleanly.
	prev := parts[len(parts)-2]
	if strings.HasSuffix(prev, ",") || strings.ContainsAny(prev, "+-/%<>=") {
		return ""
	}
	return last
}
