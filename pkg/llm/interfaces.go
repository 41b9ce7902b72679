// Package llm provides clients for SQL-generating language models.
package llm

import (
	"context"
)

// systemMessage primes the model for bare SQL output. The per-request
// prompt carries the schema context and the formatting rules.
const systemMessage = "You are a PostgreSQL expert. Respond with a single SQL statement and nothing else."

// GenerateResult carries the generated SQL plus usage accounting.
type GenerateResult struct {
	// SQL is the cleaned statement with markdown fences stripped.
	SQL string

	// Model is the model that produced the statement.
	Model string

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// SQLGenerator defines the interface for turning a prepared prompt into SQL.
// Use this interface for dependency injection to enable mocking in tests.
type SQLGenerator interface {
	// GenerateSQL sends the prompt to the model and returns the cleaned
	// statement. The returned error is a *Error when the provider call
	// itself failed.
	GenerateSQL(ctx context.Context, prompt string) (*GenerateResult, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Config holds configuration for creating a generator.
type Config struct {
	Provider    string // "openai" or "anthropic"
	Endpoint    string // Base URL override; empty means the provider default
	Model       string // Model name, e.g. "gpt-4o"
	APIKey      string // Optional for local OpenAI-compatible endpoints
	MaxTokens   int
	Temperature float32
}
