package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/services"
)

// AnalyzeQueryRequest for POST analyze body.
type AnalyzeQueryRequest struct {
	SQL string `json:"sql"`
}

// OptimizeQueryRequest for POST optimize body.
type OptimizeQueryRequest struct {
	SQL string `json:"sql"`
}

// QueryHandler handles the query pipeline endpoints.
type QueryHandler struct {
	natural   services.NaturalQueryService
	analyzer  services.QueryAnalyzer
	optimizer services.QueryOptimizer
	logger    *zap.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(
	natural services.NaturalQueryService,
	analyzer services.QueryAnalyzer,
	optimizer services.QueryOptimizer,
	logger *zap.Logger,
) *QueryHandler {
	return &QueryHandler{
		natural:   natural,
		analyzer:  analyzer,
		optimizer: optimizer,
		logger:    logger,
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query/natural", h.Natural)
	mux.HandleFunc("POST /api/query/analyze", h.Analyze)
	mux.HandleFunc("POST /api/query/optimize", h.Optimize)
}

// Natural handles POST /api/query/natural.
// A statement the validator turns away is reported as 422 with the full
// result so the caller sees the rejected SQL and the reason.
func (h *QueryHandler) Natural(w http.ResponseWriter, r *http.Request) {
	var req services.NaturalQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_question", "Question is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.natural.Handle(r.Context(), &req)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidationRejected) {
			if err := WriteJSON(w, http.StatusUnprocessableEntity, result); err != nil {
				h.logger.Error("Failed to write response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to handle natural query", zap.Error(err))
		h.writePipelineError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Analyze handles POST /api/query/analyze.
func (h *QueryHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if strings.TrimSpace(req.SQL) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_sql", "SQL query is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	analysis, err := h.analyzer.Analyze(r.Context(), req.SQL)
	if err != nil {
		h.logger.Error("Failed to analyze query", zap.Error(err))
		h.writePipelineError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, analysis); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Optimize handles POST /api/query/optimize.
// Rejected statements report 422 with the report body, like Natural.
func (h *QueryHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if strings.TrimSpace(req.SQL) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_sql", "SQL query is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	report, err := h.optimizer.Optimize(r.Context(), req.SQL)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidationRejected) {
			if err := WriteJSON(w, http.StatusUnprocessableEntity, report); err != nil {
				h.logger.Error("Failed to write response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to optimize query", zap.Error(err))
		h.writePipelineError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writePipelineError maps pipeline stage failures onto status codes.
func (h *QueryHandler) writePipelineError(w http.ResponseWriter, err error) {
	var writeErr error
	switch {
	case errors.Is(err, apperrors.ErrIntrospectionFailed), errors.Is(err, apperrors.ErrContextUnavailable):
		writeErr = ErrorResponse(w, http.StatusServiceUnavailable, "schema_unavailable", "Schema introspection failed")
	case errors.Is(err, apperrors.ErrGenerationFailed):
		writeErr = ErrorResponse(w, http.StatusBadGateway, "generation_failed", "SQL generation failed")
	case errors.Is(err, apperrors.ErrExecutionFailed):
		writeErr = ErrorResponse(w, http.StatusInternalServerError, "execution_failed", "Query execution failed")
	default:
		writeErr = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Request failed")
	}
	if writeErr != nil {
		h.logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}
