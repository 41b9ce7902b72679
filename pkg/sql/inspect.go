package sql

import (
	"regexp"
	"strings"
)

// TableRef is a table referenced in a FROM or JOIN clause, with its alias
// when one is declared.
type TableRef struct {
	Name  string
	Alias string
}

// QueryInfo summarizes the statically visible shape of a statement. It is
// produced by a single scan plus a handful of regex passes and feeds both the
// safety checks and the complexity heuristics.
type QueryInfo struct {
	Tables         []TableRef
	CTENames       []string
	JoinCount      int
	SubqueryCount  int
	NestedSubquery bool
	AggregateCount int
	HasWindow      bool
	HasSelectStar  bool
	HasWhere       bool
	HasLimit       bool
	HasComment     bool
	Literals       []string
	Unterminated   bool

	masked          string
	qualifiedTables map[string]bool // schema-qualified names as written, lowercased
}

var (
	fromJoinPattern   = regexp.MustCompile(`(?i)\b(from|join)\s+([a-z_][a-z0-9_$]*(?:\.[a-z_][a-z0-9_$]*)?)`)
	tableListComma    = regexp.MustCompile(`(?i)^\s*,\s*([a-z_][a-z0-9_$]*(?:\.[a-z_][a-z0-9_$]*)?)`)
	aliasAfterTable   = regexp.MustCompile(`(?i)^\s+(?:as\s+)?([a-z_][a-z0-9_]*)`)
	cteNamePattern    = regexp.MustCompile(`(?i)(?:\bwith\s+(?:recursive\s+)?|\)\s*,\s*)([a-z_][a-z0-9_]*)\s*(?:\([^)]*\))?\s*as\s*(?:not\s+)?(?:materialized\s+)?\(`)
	joinPattern       = regexp.MustCompile(`(?i)\bjoin\b`)
	aggregatePattern  = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max|string_agg|array_agg|bool_and|bool_or)\s*\(`)
	windowPattern     = regexp.MustCompile(`(?i)\bover\s*\(`)
	selectStarPattern = regexp.MustCompile(`(?i)\bselect\s+(?:distinct\s+)?\*`)
	wherePattern      = regexp.MustCompile(`(?i)\bwhere\b`)
	limitPattern      = regexp.MustCompile(`(?i)\b(?:limit|fetch\s+(?:first|next))\s`)
)

// Keywords that can follow a table reference and therefore are never its
// alias.
var tableClauseKeywords = map[string]bool{
	"where": true, "group": true, "order": true, "limit": true, "offset": true,
	"having": true, "join": true, "left": true, "right": true, "inner": true,
	"outer": true, "full": true, "cross": true, "natural": true, "on": true,
	"using": true, "union": true, "intersect": true, "except": true,
	"window": true, "fetch": true, "for": true, "tablesample": true,
	"lateral": true, "as": true, "set": true, "returning": true, "values": true,
}

// InspectQuery statically inspects a statement: referenced tables with
// aliases, CTE names, join/subquery/aggregate counts, and the scan byproducts
// the safety checks need. It never fails; malformed SQL just yields a
// sparser summary.
func InspectQuery(sqlText string) *QueryInfo {
	s := scanStatement(sqlText)
	info := &QueryInfo{
		HasComment:      s.hasComment,
		Literals:        s.literals,
		Unterminated:    s.unterminated,
		masked:          s.masked,
		qualifiedTables: make(map[string]bool),
	}

	info.CTENames = extractCTENames(s.masked)
	info.extractTables()
	info.JoinCount = len(joinPattern.FindAllString(s.masked, -1))
	info.SubqueryCount, info.NestedSubquery = countSubqueries(s.masked)
	info.AggregateCount = len(aggregatePattern.FindAllString(s.masked, -1))
	info.HasWindow = windowPattern.MatchString(s.masked)
	info.HasSelectStar = selectStarPattern.MatchString(s.masked)
	info.HasWhere = wherePattern.MatchString(s.masked)
	info.HasLimit = limitPattern.MatchString(s.masked)
	return info
}

// TableNames returns the distinct referenced table names in first-seen order.
func (q *QueryInfo) TableNames() []string {
	seen := make(map[string]bool, len(q.Tables))
	var names []string
	for _, ref := range q.Tables {
		key := strings.ToLower(ref.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, ref.Name)
	}
	return names
}

func extractCTENames(masked string) []string {
	var names []string
	for _, m := range cteNamePattern.FindAllStringSubmatch(masked, -1) {
		names = append(names, m[1])
	}
	return names
}

func (q *QueryInfo) extractTables() {
	cte := make(map[string]bool, len(q.CTENames))
	for _, n := range q.CTENames {
		cte[strings.ToLower(n)] = true
	}

	argSpans := functionArgSpans(q.masked)

	for _, m := range fromJoinPattern.FindAllStringSubmatchIndex(q.masked, -1) {
		if withinSpan(argSpans, m[0]) {
			continue
		}
		keyword := strings.ToLower(q.masked[m[2]:m[3]])
		name := q.masked[m[4]:m[5]]
		rest := q.masked[m[5]:]

		consumed := q.addTableRef(name, rest, cte)

		// FROM accepts a comma-separated table list; JOIN takes one table.
		for keyword == "from" {
			cm := tableListComma.FindStringSubmatchIndex(rest[consumed:])
			if cm == nil {
				break
			}
			next := rest[consumed:][cm[2]:cm[3]]
			tail := rest[consumed:][cm[3]:]
			advanced := cm[3] + q.addTableRef(next, tail, cte)
			consumed += advanced
		}
	}
}

// addTableRef records one table reference and returns how many bytes of the
// following text (alias) were consumed. Function calls in FROM and CTE
// references are skipped but still have their alias consumed so list walking
// stays aligned.
func (q *QueryInfo) addTableRef(name, rest string, cte map[string]bool) int {
	// A parenthesis right after the name means a set-returning function,
	// e.g. generate_series(...).
	if strings.HasPrefix(strings.TrimLeft(rest, " \t\r\n"), "(") {
		return 0
	}

	ref := TableRef{Name: name}
	if idx := strings.LastIndex(name, "."); idx != -1 {
		ref.Name = name[idx+1:]
		q.qualifiedTables[strings.ToLower(name)] = true
	}

	consumed := 0
	if m := aliasAfterTable.FindStringSubmatch(rest); m != nil {
		if !tableClauseKeywords[strings.ToLower(m[1])] {
			ref.Alias = m[1]
			consumed = len(m[0])
		}
	}

	if cte[strings.ToLower(ref.Name)] {
		return consumed
	}

	q.Tables = append(q.Tables, ref)
	return consumed
}

// Functions whose argument list legally embeds a FROM keyword.
var fromArgFunctions = map[string]bool{
	"extract": true, "substring": true, "trim": true, "overlay": true,
}

// functionArgSpans returns the [start, end) extent of every fromArgFunctions
// argument list, so EXTRACT(YEAR FROM ts) never reads as a FROM clause.
func functionArgSpans(masked string) [][2]int {
	lower := strings.ToLower(masked)
	var spans [][2]int
	var stack []int // span starts; -1 for groups of other callers

	for i := 0; i < len(lower); i++ {
		switch lower[i] {
		case '(':
			start := -1
			if fromArgFunctions[wordBefore(lower, i)] {
				start = i
			}
			stack = append(stack, start)
		case ')':
			if n := len(stack); n > 0 {
				if start := stack[n-1]; start >= 0 {
					spans = append(spans, [2]int{start, i})
				}
				stack = stack[:n-1]
			}
		}
	}
	for _, start := range stack {
		if start >= 0 {
			spans = append(spans, [2]int{start, len(lower)})
		}
	}
	return spans
}

// wordBefore returns the identifier directly before pos, lowercased, skipping
// whitespace. Empty when pos follows anything other than an identifier.
func wordBefore(lower string, pos int) string {
	end := pos
	for end > 0 && (lower[end-1] == ' ' || lower[end-1] == '\t' || lower[end-1] == '\n' || lower[end-1] == '\r') {
		end--
	}
	start := end
	for start > 0 && isWordByte(lower[start-1]) {
		start--
	}
	return lower[start:end]
}

func withinSpan(spans [][2]int, pos int) bool {
	for _, span := range spans {
		if pos >= span[0] && pos < span[1] {
			return true
		}
	}
	return false
}

// countSubqueries counts parenthesized SELECT groups and reports whether any
// of them nests inside another.
func countSubqueries(masked string) (int, bool) {
	lower := strings.ToLower(masked)
	var (
		count    int
		nested   bool
		inSub    int
		subStack []bool
	)

	for i := 0; i < len(lower); i++ {
		switch lower[i] {
		case '(':
			body := strings.TrimLeft(lower[i+1:], " \t\r\n")
			isSub := strings.HasPrefix(body, "select") &&
				(len(body) == len("select") || !isWordByte(body[len("select")]))
			if isSub {
				count++
				if inSub > 0 {
					nested = true
				}
				inSub++
			}
			subStack = append(subStack, isSub)
		case ')':
			if n := len(subStack); n > 0 {
				if subStack[n-1] {
					inSub--
				}
				subStack = subStack[:n-1]
			}
		}
	}
	return count, nested
}
