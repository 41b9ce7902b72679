package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/anishjain94/db-optimizer/pkg/cache"
	"github.com/anishjain94/db-optimizer/pkg/schema"
)

func TestCacheStatsTool(t *testing.T) {
	provider := &mockContextProvider{
		stats: cache.Stats{
			EntryCount:  6,
			BytesApprox: 2048,
			CountsByLevel: map[cache.Level]int{
				cache.LevelSchema:     4,
				cache.LevelStatistics: 2,
			},
		},
	}
	s := newToolServer(&ToolDeps{Provider: provider})

	text, isError := callTool(t, s, "cache_stats", nil)
	if isError {
		t.Fatalf("expected success, got error result: %s", text)
	}

	var stats struct {
		TotalEntries   int            `json:"total_entries"`
		TotalSizeBytes int64          `json:"total_size_bytes"`
		EntriesByLevel map[string]int `json:"entries_by_level"`
	}
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("failed to unmarshal stats: %v", err)
	}

	if stats.TotalEntries != 6 {
		t.Errorf("expected total_entries 6, got %d", stats.TotalEntries)
	}
	if stats.TotalSizeBytes != 2048 {
		t.Errorf("expected total_size_bytes 2048, got %d", stats.TotalSizeBytes)
	}
	if stats.EntriesByLevel["schema"] != 4 {
		t.Errorf("expected 4 schema entries, got %d", stats.EntriesByLevel["schema"])
	}
}

func TestRefreshCacheTool_DefaultsToAll(t *testing.T) {
	provider := &mockContextProvider{invalidated: 6}
	s := newToolServer(&ToolDeps{Provider: provider})

	text, isError := callTool(t, s, "refresh_cache", nil)
	if isError {
		t.Fatalf("expected success, got error result: %s", text)
	}

	var result refreshCacheResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result.Scope != "all" {
		t.Errorf("expected scope 'all', got %q", result.Scope)
	}
	if result.Invalidated != 6 {
		t.Errorf("expected 6 invalidated entries, got %d", result.Invalidated)
	}
	if provider.lastScope != schema.RefreshAll {
		t.Errorf("expected the provider to receive scope 'all', got %q", provider.lastScope)
	}
}

func TestRefreshCacheTool_NarrowScope(t *testing.T) {
	provider := &mockContextProvider{invalidated: 2}
	s := newToolServer(&ToolDeps{Provider: provider})

	text, isError := callTool(t, s, "refresh_cache", map[string]any{
		"scope": "statistics",
	})
	if isError {
		t.Fatalf("expected success, got error result: %s", text)
	}

	var result refreshCacheResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result.Scope != "statistics" {
		t.Errorf("expected scope 'statistics', got %q", result.Scope)
	}
	if result.Invalidated != 2 {
		t.Errorf("expected 2 invalidated entries, got %d", result.Invalidated)
	}
	if provider.lastScope != schema.RefreshStatistics {
		t.Errorf("expected the provider to receive scope 'statistics', got %q", provider.lastScope)
	}
}

func TestRefreshCacheTool_InvalidScope(t *testing.T) {
	provider := &mockContextProvider{}
	s := newToolServer(&ToolDeps{Provider: provider})

	text, isError := callTool(t, s, "refresh_cache", map[string]any{
		"scope": "everything",
	})
	if !isError {
		t.Fatalf("expected an error result, got: %s", text)
	}

	var errResp struct {
		Error   bool   `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			ValidScopes []string `json:"valid_scopes"`
		} `json:"details"`
	}
	if err := json.Unmarshal([]byte(text), &errResp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v", err)
	}
	if errResp.Code != "invalid_scope" {
		t.Errorf("expected code 'invalid_scope', got %q", errResp.Code)
	}
	if len(errResp.Details.ValidScopes) != 5 {
		t.Errorf("expected 5 valid scopes in details, got %v", errResp.Details.ValidScopes)
	}
	if provider.lastScope != "" {
		t.Error("provider must not be called for an invalid scope")
	}
}

func TestRefreshCacheTool_BackendError(t *testing.T) {
	provider := &mockContextProvider{refreshErr: errors.New("redis connection lost")}
	s := newToolServer(&ToolDeps{Provider: provider})

	msg := callToolExpectProtocolError(t, s, "refresh_cache", map[string]any{
		"scope": "all",
	})
	if msg == "" {
		t.Error("expected a protocol error message")
	}
}
