package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/models"
)

func TestSchemaHandler_ListTables(t *testing.T) {
	provider := &mockContextProvider{snapshot: demoContext()}
	handler := NewSchemaHandler(provider, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/schema/tables", nil)
	rec := httptest.NewRecorder()
	handler.ListTables(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ListTablesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.TotalTables != 2 {
		t.Errorf("expected total_tables 2, got %d", resp.TotalTables)
	}
	if len(resp.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(resp.Tables))
	}

	// Sorted by name, with the statistics row count winning over the
	// planner estimate for orders.
	if resp.Tables[0].Name != "orders" || resp.Tables[1].Name != "users" {
		t.Errorf("expected [orders users], got [%s %s]", resp.Tables[0].Name, resp.Tables[1].Name)
	}
	if resp.Tables[0].RowCount != 4800 {
		t.Errorf("expected orders row_count 4800, got %d", resp.Tables[0].RowCount)
	}
	if resp.Tables[0].Columns != 2 {
		t.Errorf("expected orders to have 2 columns, got %d", resp.Tables[0].Columns)
	}
	if resp.Tables[1].RowCount != 120 {
		t.Errorf("expected users row_count 120, got %d", resp.Tables[1].RowCount)
	}
}

func TestSchemaHandler_ListTables_Unavailable(t *testing.T) {
	provider := &mockContextProvider{
		snapshotErr: fmt.Errorf("%w: connection refused", apperrors.ErrIntrospectionFailed),
	}
	handler := NewSchemaHandler(provider, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/schema/tables", nil)
	rec := httptest.NewRecorder()
	handler.ListTables(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["error"] != "schema_unavailable" {
		t.Errorf("expected error 'schema_unavailable', got %q", resp["error"])
	}
}

func TestSchemaHandler_GetTable(t *testing.T) {
	provider := &mockContextProvider{snapshot: demoContext()}
	handler := NewSchemaHandler(provider, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/schema/tables/USERS", nil)
	req.SetPathValue("table", "USERS")

	rec := httptest.NewRecorder()
	handler.GetTable(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.TableInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	// Lookup is case-insensitive; the canonical spelling comes back.
	if resp.Name != "users" {
		t.Errorf("expected name 'users', got %q", resp.Name)
	}
	if len(resp.Columns) != 3 {
		t.Errorf("expected 3 columns, got %d", len(resp.Columns))
	}
	if len(resp.PrimaryKeys) != 1 || resp.PrimaryKeys[0] != "user_id" {
		t.Errorf("expected primary key user_id, got %v", resp.PrimaryKeys)
	}
}

func TestSchemaHandler_GetTable_NotFound(t *testing.T) {
	provider := &mockContextProvider{snapshot: demoContext()}
	handler := NewSchemaHandler(provider, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/schema/tables/warehouse_zones", nil)
	req.SetPathValue("table", "warehouse_zones")

	rec := httptest.NewRecorder()
	handler.GetTable(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["error"] != "table_not_found" {
		t.Errorf("expected error 'table_not_found', got %q", resp["error"])
	}
}

func TestSchemaHandler_RegisterRoutes(t *testing.T) {
	provider := &mockContextProvider{snapshot: demoContext()}
	handler := NewSchemaHandler(provider, zap.NewNop())

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/schema/tables", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("/api/schema/tables: expected status 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/schema/tables/users", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("/api/schema/tables/users: expected status 200, got %d", rec.Code)
	}
}
