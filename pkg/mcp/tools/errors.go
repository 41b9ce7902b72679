package tools

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorResponse is the structured error payload tools return for
// recoverable problems. Returning these as successful tool results keeps
// the details visible to the caller instead of being swallowed as a
// protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error. Use it
// for actionable errors the caller can fix (bad parameters, unknown table,
// rejected SQL). System failures should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result carrying extra context,
// such as the full rejection report or the list of valid parameter values.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// sqlStateRegex matches SQLSTATE codes in stringified errors like
// "(SQLSTATE 42601)".
var sqlStateRegex = regexp.MustCompile(`\(SQLSTATE ([0-9A-Z]{5})\)`)

// IsSQLUserError reports whether err is a SQL-level problem the caller can
// fix and retry (bad syntax, unknown column, bad input) rather than a server
// failure.
func IsSQLUserError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isSQLStateUserError(pgErr.Code)
	}

	if matches := sqlStateRegex.FindStringSubmatch(err.Error()); len(matches) >= 2 {
		return isSQLStateUserError(matches[1])
	}
	return false
}

// isSQLStateUserError classifies by SQLSTATE class: data exceptions,
// constraint violations, and syntax or access rule violations are the
// caller's to fix.
func isSQLStateUserError(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "22", "23", "42", "44":
		return true
	}
	return false
}

func sqlUserErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapSQLStateToCode(pgErr.Code)
	}
	if matches := sqlStateRegex.FindStringSubmatch(err.Error()); len(matches) >= 2 {
		return mapSQLStateToCode(matches[1])
	}
	return "sql_error"
}

func mapSQLStateToCode(sqlState string) string {
	switch sqlState {
	case "42601":
		return "syntax_error"
	case "42703":
		return "undefined_column"
	case "42P01":
		return "undefined_table"
	case "22012":
		return "division_by_zero"
	case "22P02":
		return "invalid_input"
	}
	if len(sqlState) >= 2 {
		switch sqlState[:2] {
		case "22":
			return "data_exception"
		case "23":
			return "constraint_violation"
		}
	}
	return "sql_error"
}

// extractSQLErrorMessage strips the SQLSTATE suffix and error prefixes from
// a stringified SQL error for cleaner display.
func extractSQLErrorMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}

	msg := err.Error()
	if idx := strings.Index(msg, " (SQLSTATE"); idx != -1 {
		msg = msg[:idx]
	}
	for _, prefix := range []string{"query execution failed: ", "ERROR: "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}

// NewSQLErrorResult creates an error result from err when it is a SQL user
// error, and nil otherwise. Callers return the Go error when nil comes back.
func NewSQLErrorResult(err error) *mcp.CallToolResult {
	if !IsSQLUserError(err) {
		return nil
	}
	return NewErrorResult(sqlUserErrorCode(err), extractSQLErrorMessage(err))
}
