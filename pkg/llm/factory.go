package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/retry"
)

// NewGenerator creates a SQLGenerator for the configured provider, with
// transport retries inside a circuit breaker: the breaker observes whole
// operations after their retries are spent. Returns the SQLGenerator
// interface to enable dependency injection of mocks.
func NewGenerator(cfg *Config, logger *zap.Logger) (SQLGenerator, error) {
	var (
		client SQLGenerator
		err    error
	)

	switch cfg.Provider {
	case "openai":
		client, err = NewOpenAIClient(cfg, logger)
	case "anthropic":
		client, err = NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	retrying := NewRetryingGenerator(client, retry.DefaultConfig(), logger)
	return NewGuardedGenerator(retrying, DefaultCircuitBreakerConfig(), logger), nil
}
