package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionFinding reports a string literal whose content matches a known
// SQL injection pattern.
type InjectionFinding struct {
	Literal     string // literal content as written, without its quotes
	Fingerprint string // libinjection fingerprint of the matched pattern
}

// CheckLiteral runs libinjection over a single literal value. Returns nil
// when the value is clean.
func CheckLiteral(literal string) *InjectionFinding {
	isSQLi, fingerprint := libinjection.IsSQLi(literal)
	if !isSQLi {
		return nil
	}
	return &InjectionFinding{
		Literal:     literal,
		Fingerprint: string(fingerprint),
	}
}

// CheckLiterals scans every string literal in the statement. Generated SQL
// embeds caller values as literals, so a literal that itself scans as SQL
// means a value broke out of its quoting. The first finding is returned,
// nil when all literals are clean.
func (q *QueryInfo) CheckLiterals() *InjectionFinding {
	for _, lit := range q.Literals {
		if finding := CheckLiteral(lit); finding != nil {
			return finding
		}
	}
	return nil
}
