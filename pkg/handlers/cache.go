package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/schema"
)

// RefreshCacheRequest for POST refresh body. An omitted scope means "all".
type RefreshCacheRequest struct {
	Scope string `json:"scope,omitempty"`
}

// RefreshCacheResponse reports what a refresh cleared.
type RefreshCacheResponse struct {
	Scope       string `json:"scope"`
	Invalidated int    `json:"invalidated"`
}

// CacheHandler handles cache inspection and refresh endpoints.
type CacheHandler struct {
	provider schema.ContextProvider
	logger   *zap.Logger
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(provider schema.ContextProvider, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{provider: provider, logger: logger}
}

// RegisterRoutes registers the cache handler's routes on the given mux.
func (h *CacheHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cache/stats", h.Stats)
	mux.HandleFunc("POST /api/cache/refresh", h.Refresh)
}

// Stats handles GET /api/cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.provider.GetCacheStats(r.Context())
	if err := WriteJSON(w, http.StatusOK, stats); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Refresh handles POST /api/cache/refresh.
func (h *CacheHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshCacheRequest
	// Body is optional; an empty body refreshes everything.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Scope == "" {
		req.Scope = string(schema.RefreshAll)
	}

	invalidated, err := h.provider.RefreshCache(r.Context(), schema.RefreshScope(req.Scope))
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidScope) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_scope", "Unknown refresh scope: "+req.Scope); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to refresh cache",
			zap.String("scope", req.Scope),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to refresh cache"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := RefreshCacheResponse{Scope: req.Scope, Invalidated: invalidated}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
