package llm

import (
	"context"
)

// MockSQLGenerator is a configurable mock for testing generation flows.
// Set the function field to control behavior in tests.
type MockSQLGenerator struct {
	// GenerateSQLFunc is called when GenerateSQL is invoked.
	// If nil, returns an empty result and nil error.
	GenerateSQLFunc func(ctx context.Context, prompt string) (*GenerateResult, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Call tracking for verification
	GenerateSQLCalls int
	LastPrompt       string
}

// NewMockSQLGenerator creates a new mock with sensible defaults.
func NewMockSQLGenerator() *MockSQLGenerator {
	return &MockSQLGenerator{
		Model: "mock-model",
	}
}

// GenerateSQL implements SQLGenerator.
func (m *MockSQLGenerator) GenerateSQL(ctx context.Context, prompt string) (*GenerateResult, error) {
	m.GenerateSQLCalls++
	m.LastPrompt = prompt
	if m.GenerateSQLFunc != nil {
		return m.GenerateSQLFunc(ctx, prompt)
	}
	return &GenerateResult{Model: m.GetModel()}, nil
}

// GetModel implements SQLGenerator.
func (m *MockSQLGenerator) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Ensure MockSQLGenerator implements SQLGenerator at compile time.
var _ SQLGenerator = (*MockSQLGenerator)(nil)
