package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/retry"
)

// RetryingGenerator wraps a SQLGenerator with transport-level retries.
// Only errors classified as retryable are retried; auth and model
// configuration failures surface immediately.
type RetryingGenerator struct {
	inner  SQLGenerator
	cfg    *retry.Config
	logger *zap.Logger
}

// NewRetryingGenerator wraps the generator with retry behavior. A nil
// config uses retry.DefaultConfig.
func NewRetryingGenerator(inner SQLGenerator, cfg *retry.Config, logger *zap.Logger) *RetryingGenerator {
	return &RetryingGenerator{
		inner:  inner,
		cfg:    cfg,
		logger: logger.Named("llm-retry"),
	}
}

// GenerateSQL implements SQLGenerator.
func (g *RetryingGenerator) GenerateSQL(ctx context.Context, prompt string) (*GenerateResult, error) {
	attempt := 0
	return retry.DoIfRetryableWithResult(ctx, g.cfg, func() (*GenerateResult, error) {
		attempt++
		result, err := g.inner.GenerateSQL(ctx, prompt)
		if err != nil && attempt > 1 {
			g.logger.Warn("Generation retry failed",
				zap.Int("attempt", attempt), zap.Error(err))
		}
		return result, err
	})
}

// GetModel returns the wrapped generator's model name.
func (g *RetryingGenerator) GetModel() string {
	return g.inner.GetModel()
}

// Ensure RetryingGenerator implements SQLGenerator at compile time.
var _ SQLGenerator = (*RetryingGenerator)(nil)
