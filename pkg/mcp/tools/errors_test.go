package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
)

// getTextContent extracts the text string from the first content item.
// Content holds mcp.Content interface values, so go through JSON.
func getTextContent(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	jsonBytes, _ := json.Marshal(result.Content[0])
	var textContent struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	json.Unmarshal(jsonBytes, &textContent)
	return textContent.Text
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("table_not_found", `no table named "warehouse_zones"`)

	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	assert.True(t, result.IsError)

	text := getTextContent(result)
	var errResp ErrorResponse
	err := json.Unmarshal([]byte(text), &errResp)
	require.NoError(t, err)

	assert.True(t, errResp.Error, "error field should be true")
	assert.Equal(t, "table_not_found", errResp.Code)
	assert.Contains(t, errResp.Message, "warehouse_zones")
	assert.Nil(t, errResp.Details, "details should be nil when not provided")
}

func TestNewErrorResultWithDetails(t *testing.T) {
	details := map[string]any{
		"valid_scopes": []string{"all", "schema", "statistics"},
		"requested":    "everything",
	}

	result := NewErrorResultWithDetails("invalid_scope", "unknown refresh scope", details)

	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	assert.True(t, result.IsError)

	text := getTextContent(result)
	var errResp ErrorResponse
	err := json.Unmarshal([]byte(text), &errResp)
	require.NoError(t, err)

	assert.True(t, errResp.Error)
	assert.Equal(t, "invalid_scope", errResp.Code)
	require.NotNil(t, errResp.Details)

	detailsMap, ok := errResp.Details.(map[string]any)
	require.True(t, ok, "details should be a map")
	assert.Contains(t, detailsMap, "valid_scopes")
	assert.Equal(t, "everything", detailsMap["requested"])
}

func TestIsSQLUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "pg syntax error",
			err:  &pgconn.PgError{Severity: "ERROR", Code: "42601", Message: `syntax error at or near "SELEC"`},
			want: true,
		},
		{
			name: "pg constraint violation",
			err:  &pgconn.PgError{Severity: "ERROR", Code: "23505", Message: "duplicate key value"},
			want: true,
		},
		{
			name: "pg connection failure",
			err:  &pgconn.PgError{Severity: "FATAL", Code: "08006", Message: "connection failure"},
			want: false,
		},
		{
			name: "stringified undefined table",
			err:  fmt.Errorf("%w: %v", apperrors.ErrExecutionFailed, `ERROR: relation "zzz" does not exist (SQLSTATE 42P01)`),
			want: true,
		},
		{
			name: "stringified connection error",
			err:  fmt.Errorf("%w: %v", apperrors.ErrExecutionFailed, "dial tcp 10.0.0.5:5432: connection refused"),
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSQLUserError(tt.err))
		})
	}
}

func TestNewSQLErrorResult_MapsCodes(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "undefined table",
			err:         fmt.Errorf("%w: %v", apperrors.ErrExecutionFailed, `ERROR: relation "zzz" does not exist (SQLSTATE 42P01)`),
			wantCode:    "undefined_table",
			wantMessage: `relation "zzz" does not exist`,
		},
		{
			name:        "undefined column",
			err:         &pgconn.PgError{Severity: "ERROR", Code: "42703", Message: `column "usernme" does not exist`},
			wantCode:    "undefined_column",
			wantMessage: `column "usernme" does not exist`,
		},
		{
			name:        "division by zero",
			err:         fmt.Errorf("%w: %v", apperrors.ErrExecutionFailed, "ERROR: division by zero (SQLSTATE 22012)"),
			wantCode:    "division_by_zero",
			wantMessage: "division by zero",
		},
		{
			name:        "constraint class fallback",
			err:         &pgconn.PgError{Severity: "ERROR", Code: "23514", Message: "check constraint violated"},
			wantCode:    "constraint_violation",
			wantMessage: "check constraint violated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewSQLErrorResult(tt.err)
			require.NotNil(t, result)
			assert.True(t, result.IsError)

			text := getTextContent(result)
			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(text), &errResp))

			assert.Equal(t, tt.wantCode, errResp.Code)
			assert.Equal(t, tt.wantMessage, errResp.Message)
			assert.NotContains(t, errResp.Message, "SQLSTATE")
		})
	}
}

func TestNewSQLErrorResult_NonUserError(t *testing.T) {
	assert.Nil(t, NewSQLErrorResult(errors.New("context deadline exceeded")))
	assert.Nil(t, NewSQLErrorResult(fmt.Errorf("%w: pool exhausted", apperrors.ErrExecutionFailed)))
}
