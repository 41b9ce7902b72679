package models

// Validation reason codes, ordered by check priority. The first failing
// check determines the reason; "ok" means every check passed.
const (
	ReasonOK                 = "ok"
	ReasonNonSelectStatement = "non_select_statement"
	ReasonDangerousKeyword   = "dangerous_keyword"
	ReasonUnknownTable       = "unknown_table"
	ReasonUnknownColumn      = "unknown_column"
	ReasonSyntaxError        = "syntax_error"
)

// Confidence grades for a validation verdict. Confidence qualifies how
// certain the static analysis is; it never overturns acceptance.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// NaturalQueryResult is the outcome of one natural-language query request.
// SQL is always populated once generation succeeded, even when validation
// later rejects it, so callers can inspect what was refused.
type NaturalQueryResult struct {
	RequestID    string           `json:"request_id"`
	NaturalQuery string           `json:"natural_query"`
	SQL          string           `json:"sql_query"`
	TablesUsed   []string         `json:"tables_used"`
	Confidence   string           `json:"confidence"`
	Accepted     bool             `json:"accepted"`
	Reason       string           `json:"reason"`
	Message      string           `json:"message,omitempty"`
	Executed     bool             `json:"executed"`
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"results,omitempty"`
	RowCount     int              `json:"row_count"`
	DurationMS   int64            `json:"duration_ms"`
}
