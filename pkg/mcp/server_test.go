package mcp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewServer(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer("db-optimizer", "1.0.0", logger)

	if s == nil {
		t.Fatal("expected non-nil server")
	}
	if s.MCP() == nil {
		t.Fatal("expected non-nil underlying mcp server")
	}
	if s.logger != logger {
		t.Error("expected logger to be set")
	}
}

func TestServer_StatelessTransportAnswersInitialize(t *testing.T) {
	s := NewServer("db-optimizer", "2.0.0", zap.NewNop())
	httpServer := s.NewStreamableHTTPServer()

	body := `{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0"}},"id":1}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	httpServer.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "db-optimizer") {
		t.Errorf("expected server name in initialize result, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "read-only") {
		t.Errorf("expected instructions in initialize result, got %s", rec.Body.String())
	}
}
