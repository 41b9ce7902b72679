package services

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/metrics"
	"github.com/anishjain94/db-optimizer/pkg/models"
	"github.com/anishjain94/db-optimizer/pkg/sql"
)

// ValidationVerdict is the outcome of statically checking one candidate
// statement against a schema snapshot. Confidence is informational and never
// overturns Accepted.
type ValidationVerdict struct {
	Accepted   bool     `json:"accepted"`
	Reason     string   `json:"reason"`
	Message    string   `json:"message,omitempty"`
	TablesUsed []string `json:"tables_used"`
	Confidence string   `json:"confidence"`
}

// QueryValidator gates generated SQL before it can reach the database.
// Checks run cheapest first and the first failure wins: statement kind,
// dangerous constructs, schema existence, then structural syntax checks.
type QueryValidator interface {
	Validate(sqlText string, schemaCtx *models.SchemaContext) ValidationVerdict
}

type queryValidator struct {
	logger *zap.Logger
}

// NewQueryValidator creates the validator service.
func NewQueryValidator(logger *zap.Logger) QueryValidator {
	return &queryValidator{logger: logger.Named("query-validator")}
}

var _ QueryValidator = (*queryValidator)(nil)

func (v *queryValidator) Validate(sqlText string, schemaCtx *models.SchemaContext) ValidationVerdict {
	if strings.TrimSpace(sqlText) == "" {
		return v.reject(models.ReasonSyntaxError, "empty statement", nil, models.ConfidenceLow)
	}

	info := sql.InspectQuery(sqlText)
	shape := shapeOf(info)

	if kind := sql.DetectStatementKind(sqlText); !kind.IsReadOnly() {
		return v.reject(models.ReasonNonSelectStatement,
			fmt.Sprintf("only SELECT statements are allowed, got %s", kind),
			nil, shape.confidence())
	}

	if info.HasStackedStatements() {
		return v.reject(models.ReasonDangerousKeyword,
			"multiple SQL statements are not allowed", nil, shape.confidence())
	}
	if info.HasComment {
		return v.reject(models.ReasonDangerousKeyword,
			"SQL comments are not allowed in generated statements", nil, shape.confidence())
	}
	if fn := info.DangerousFunction(); fn != "" {
		return v.reject(models.ReasonDangerousKeyword,
			fmt.Sprintf("call to restricted function %s", fn), nil, shape.confidence())
	}
	if finding := info.CheckLiterals(); finding != nil {
		return v.reject(models.ReasonDangerousKeyword,
			fmt.Sprintf("string literal matches a SQL injection pattern (fingerprint %s)", finding.Fingerprint),
			nil, shape.confidence())
	}

	tablesUsed := make([]string, 0, len(info.Tables))
	byCanonical := make(map[string]models.TableInfo)
	canonicalFor := make(map[string]string) // lowercased written name -> canonical
	for _, name := range info.TableNames() {
		// Table resolution is case-insensitive by contract, so a case-folded
		// hit is a clean match, not a fuzzy one.
		tbl, ok := schemaCtx.LookupTable(name)
		if !ok {
			msg := fmt.Sprintf("table %q does not exist", name)
			if hint := suggestTable(name, schemaCtx); hint != "" {
				msg = fmt.Sprintf("table %q does not exist (did you mean %q?)", name, hint)
			}
			return v.reject(models.ReasonUnknownTable, msg, tablesUsed, shape.confidence())
		}
		canonicalFor[strings.ToLower(name)] = tbl.Name
		byCanonical[tbl.Name] = tbl
		tablesUsed = append(tablesUsed, tbl.Name)
	}

	if verdict := v.checkColumns(info, shape, canonicalFor, byCanonical, tablesUsed); verdict != nil {
		return *verdict
	}

	if issue := info.SyntaxIssue(); issue != "" {
		return v.reject(models.ReasonSyntaxError, issue, tablesUsed, shape.confidence())
	}

	return ValidationVerdict{
		Accepted:   true,
		Reason:     models.ReasonOK,
		TablesUsed: tablesUsed,
		Confidence: shape.confidence(),
	}
}

// checkColumns resolves every extracted column reference. Qualified
// references resolve through their table or alias; bare references may match
// any referenced table. References into CTEs, derived tables, or unknown
// qualifiers cannot be checked statically and only lower confidence.
func (v *queryValidator) checkColumns(
	info *sql.QueryInfo,
	shape *queryShape,
	canonicalFor map[string]string,
	byCanonical map[string]models.TableInfo,
	tablesUsed []string,
) *ValidationVerdict {
	cte := make(map[string]bool, len(info.CTENames))
	for _, name := range info.CTENames {
		cte[strings.ToLower(name)] = true
	}

	qualifierTable := make(map[string]string)
	for _, ref := range info.Tables {
		canonical, ok := canonicalFor[strings.ToLower(ref.Name)]
		if !ok {
			continue
		}
		qualifierTable[strings.ToLower(ref.Name)] = canonical
		if ref.Alias != "" {
			qualifierTable[strings.ToLower(ref.Alias)] = canonical
		}
	}

	hasDerived := info.SubqueryCount > 0 || len(info.CTENames) > 0

	for _, ref := range info.ColumnRefs() {
		if ref.Qualifier != "" {
			qualifier := strings.ToLower(ref.Qualifier)
			if cte[qualifier] {
				shape.unresolved = true
				continue
			}
			canonical, ok := qualifierTable[qualifier]
			if !ok {
				shape.unresolved = true
				continue
			}
			tbl := byCanonical[canonical]
			switch columnMatch(&tbl, ref.Column) {
			case matchExact:
			case matchFuzzy:
				shape.fuzzy = true
			case matchNone:
				verdict := v.reject(models.ReasonUnknownColumn,
					fmt.Sprintf("column %q does not exist on table %q", ref.Column, canonical),
					tablesUsed, shape.confidence())
				return &verdict
			}
			continue
		}

		best := matchNone
		for name := range byCanonical {
			tbl := byCanonical[name]
			if m := columnMatch(&tbl, ref.Column); m > best {
				best = m
			}
		}
		switch best {
		case matchExact:
		case matchFuzzy:
			shape.fuzzy = true
		case matchNone:
			if hasDerived || len(byCanonical) == 0 {
				shape.unresolved = true
				continue
			}
			verdict := v.reject(models.ReasonUnknownColumn,
				fmt.Sprintf("column %q does not exist on any referenced table", ref.Column),
				tablesUsed, shape.confidence())
			return &verdict
		}
	}
	return nil
}

func (v *queryValidator) reject(reason, message string, tablesUsed []string, confidence string) ValidationVerdict {
	metrics.IncValidationRejection(reason)
	v.logger.Debug("Candidate rejected",
		zap.String("reason", reason),
		zap.String("message", message))
	if tablesUsed == nil {
		tablesUsed = []string{}
	}
	return ValidationVerdict{
		Reason:     reason,
		Message:    message,
		TablesUsed: tablesUsed,
		Confidence: confidence,
	}
}

// queryShape carries the statement features that grade confidence.
type queryShape struct {
	tableCount     int
	subqueryCount  int
	nestedSubquery bool
	hasWindow      bool
	fuzzy          bool // a table or column only matched case-insensitively
	unresolved     bool // a reference could not be checked statically
}

func shapeOf(info *sql.QueryInfo) *queryShape {
	return &queryShape{
		tableCount:     len(info.TableNames()),
		subqueryCount:  info.SubqueryCount,
		nestedSubquery: info.NestedSubquery,
		hasWindow:      info.HasWindow,
	}
}

// confidence grades how trustworthy the static analysis is. Wide joins,
// nesting, and inexact name matches all reduce it; it is reported on
// rejections too.
func (s *queryShape) confidence() string {
	switch {
	case s.tableCount > 4, s.nestedSubquery, s.subqueryCount > 1, s.fuzzy:
		return models.ConfidenceLow
	case s.tableCount >= 3, s.subqueryCount == 1, s.hasWindow, s.unresolved:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceHigh
	}
}

// suggestTable proposes an existing table whose singular or plural form
// matches a name that failed to resolve.
func suggestTable(name string, schemaCtx *models.SchemaContext) string {
	for _, candidate := range []string{inflection.Plural(name), inflection.Singular(name)} {
		if strings.EqualFold(candidate, name) {
			continue
		}
		if tbl, ok := schemaCtx.LookupTable(candidate); ok {
			return tbl.Name
		}
	}
	return ""
}

type columnMatchKind int

const (
	matchNone columnMatchKind = iota
	matchFuzzy
	matchExact
)

func columnMatch(tbl *models.TableInfo, column string) columnMatchKind {
	if _, ok := tbl.Columns[column]; ok {
		return matchExact
	}
	if _, ok := tbl.Column(column); ok {
		return matchFuzzy
	}
	return matchNone
}
