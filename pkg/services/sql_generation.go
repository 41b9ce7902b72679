package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/llm"
	"github.com/anishjain94/db-optimizer/pkg/models"
	"github.com/anishjain94/db-optimizer/pkg/prompts"
)

// SQLGenerationService turns a natural-language question into one candidate
// SQL statement, grounded in the given schema snapshot.
type SQLGenerationService interface {
	GenerateSQL(ctx context.Context, question string, schemaCtx *models.SchemaContext) (string, error)
}

type sqlGenerationService struct {
	generator llm.SQLGenerator
	logger    *zap.Logger
}

// NewSQLGenerationService creates the generation service over a model client.
func NewSQLGenerationService(generator llm.SQLGenerator, logger *zap.Logger) SQLGenerationService {
	return &sqlGenerationService{
		generator: generator,
		logger:    logger.Named("sql-generation"),
	}
}

var _ SQLGenerationService = (*sqlGenerationService)(nil)

func (s *sqlGenerationService) GenerateSQL(ctx context.Context, question string, schemaCtx *models.SchemaContext) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question is required")
	}

	prompt := prompts.BuildSQLGenerationPrompt(question, schemaCtx)
	result, err := s.generator.GenerateSQL(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrGenerationFailed, err)
	}

	s.logger.Debug("Candidate generated",
		zap.String("model", result.Model),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("total_tokens", result.TotalTokens))
	return result.SQL, nil
}
