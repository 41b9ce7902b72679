package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/schema"
)

// TableSummary is one table in the list response.
type TableSummary struct {
	Name     string `json:"name"`
	Columns  int    `json:"columns"`
	RowCount int64  `json:"row_count"`
}

// ListTablesResponse wraps the table list.
type ListTablesResponse struct {
	Tables      []TableSummary `json:"tables"`
	TotalTables int            `json:"total_tables"`
}

// SchemaHandler handles schema inspection endpoints.
type SchemaHandler struct {
	provider schema.ContextProvider
	logger   *zap.Logger
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(provider schema.ContextProvider, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{provider: provider, logger: logger}
}

// RegisterRoutes registers the schema handler's routes on the given mux.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/schema/tables", h.ListTables)
	mux.HandleFunc("GET /api/schema/tables/{table}", h.GetTable)
}

// ListTables handles GET /api/schema/tables.
// Row counts come from live statistics when present, otherwise from the
// planner estimate captured at introspection time.
func (h *SchemaHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	schemaCtx, err := h.provider.GetDatabaseContext(r.Context())
	if err != nil {
		h.logger.Error("Failed to load schema context", zap.Error(err))
		if err := ErrorResponse(w, http.StatusServiceUnavailable, "schema_unavailable", "Schema introspection failed"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := ListTablesResponse{
		Tables:      make([]TableSummary, 0, len(schemaCtx.Tables)),
		TotalTables: len(schemaCtx.Tables),
	}
	for _, name := range schemaCtx.TableNames() {
		table := schemaCtx.Tables[name]
		rowCount := table.RowCount
		if stats, ok := schemaCtx.Statistics[name]; ok {
			rowCount = stats.RowCount
		}
		response.Tables = append(response.Tables, TableSummary{
			Name:     table.Name,
			Columns:  len(table.Columns),
			RowCount: rowCount,
		})
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetTable handles GET /api/schema/tables/{table}.
func (h *SchemaHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")

	info, err := h.provider.GetTableInfo(r.Context(), table)
	if err != nil {
		if errors.Is(err, apperrors.ErrTableNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "table_not_found", "Table not found: "+table); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get table info",
			zap.String("table", table),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusServiceUnavailable, "schema_unavailable", "Schema introspection failed"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, info); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
