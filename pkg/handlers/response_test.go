package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse_BodyAndStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"missing question", http.StatusBadRequest, "missing_question", "Question is required"},
		{"unknown table", http.StatusNotFound, "table_not_found", "Table does not exist"},
		{"schema unavailable", http.StatusServiceUnavailable, "schema_unavailable", "Schema introspection failed"},
		{"generation failed", http.StatusBadGateway, "generation_failed", "SQL generation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			require.NoError(t, ErrorResponse(rec, tt.statusCode, tt.errorCode, tt.message))

			assert.Equal(t, tt.statusCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.errorCode, body["error"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestWriteJSON_OKLeavesImplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()

	err := WriteJSON(rec, http.StatusOK, map[string]any{"accepted": true, "row_count": 3})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"accepted": true, "row_count": 3}`, rec.Body.String())
}

func TestWriteJSON_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()

	err := WriteJSON(rec, http.StatusUnprocessableEntity, map[string]string{"reason": "non_select_statement"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"reason": "non_select_statement"}`, rec.Body.String())
}

func TestWriteJSON_EncodingFailure(t *testing.T) {
	rec := httptest.NewRecorder()

	// Channels have no JSON encoding.
	err := WriteJSON(rec, http.StatusOK, make(chan int))
	assert.Error(t, err)
}
