// Package services implements the query pipeline over the schema,
// generation, validation, and execution collaborators.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/adapters/datasource"
	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/config"
	"github.com/anishjain94/db-optimizer/pkg/logging"
	"github.com/anishjain94/db-optimizer/pkg/metrics"
	"github.com/anishjain94/db-optimizer/pkg/models"
	"github.com/anishjain94/db-optimizer/pkg/schema"
)

// NaturalQueryRequest carries one natural-language query through the
// pipeline. Execute asks for the accepted statement to also be run.
type NaturalQueryRequest struct {
	Question string `json:"question"`
	Execute  bool   `json:"execute"`
}

// NaturalQueryService runs the full pipeline for one question: schema
// context, SQL generation, validation, and optional read-only execution.
type NaturalQueryService interface {
	// Handle processes one request. When validation rejects the candidate,
	// the populated result is returned together with
	// apperrors.ErrValidationRejected; the statement was not executed.
	Handle(ctx context.Context, req *NaturalQueryRequest) (*models.NaturalQueryResult, error)
}

type naturalQueryService struct {
	provider   schema.ContextProvider
	generation SQLGenerationService
	validator  QueryValidator
	executor   datasource.ReadOnlyExecutor
	timeouts   config.TimeoutConfig
	logger     *zap.Logger
}

// NewNaturalQueryService creates the pipeline service.
func NewNaturalQueryService(
	provider schema.ContextProvider,
	generation SQLGenerationService,
	validator QueryValidator,
	executor datasource.ReadOnlyExecutor,
	timeouts config.TimeoutConfig,
	logger *zap.Logger,
) NaturalQueryService {
	return &naturalQueryService{
		provider:   provider,
		generation: generation,
		validator:  validator,
		executor:   executor,
		timeouts:   timeouts,
		logger:     logger.Named("natural-query"),
	}
}

var _ NaturalQueryService = (*naturalQueryService)(nil)

func (s *naturalQueryService) Handle(ctx context.Context, req *NaturalQueryRequest) (*models.NaturalQueryResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	requestID := uuid.New().String()
	start := time.Now()
	logger := s.logger.With(zap.String("request_id", requestID))
	logger.Info("Natural query received",
		zap.String("question", question),
		zap.Bool("execute", req.Execute))

	schemaCtx, err := s.databaseContext(ctx)
	if err != nil {
		logger.Error("Schema context failed", zap.Error(err))
		return nil, err
	}

	sqlText, err := s.generate(ctx, question, schemaCtx)
	if err != nil {
		logger.Error("SQL generation failed", zap.Error(err))
		return nil, err
	}
	logger.Info("Candidate generated", zap.String("sql", logging.SanitizeQuery(sqlText)))

	verdict := s.validator.Validate(sqlText, schemaCtx)
	result := &models.NaturalQueryResult{
		RequestID:    requestID,
		NaturalQuery: question,
		SQL:          sqlText,
		TablesUsed:   verdict.TablesUsed,
		Confidence:   verdict.Confidence,
		Accepted:     verdict.Accepted,
		Reason:       verdict.Reason,
		Message:      verdict.Message,
	}

	if !verdict.Accepted {
		result.DurationMS = time.Since(start).Milliseconds()
		logger.Warn("Candidate rejected",
			zap.String("reason", verdict.Reason),
			zap.String("message", verdict.Message))
		return result, apperrors.ErrValidationRejected
	}

	if req.Execute {
		if err := s.execute(ctx, result); err != nil {
			logger.Error("Execution failed", zap.Error(err))
			return nil, err
		}
	}

	result.DurationMS = time.Since(start).Milliseconds()
	logger.Info("Natural query completed",
		zap.Bool("executed", result.Executed),
		zap.Int("rows", result.RowCount),
		zap.Int64("duration_ms", result.DurationMS))
	return result, nil
}

func (s *naturalQueryService) databaseContext(ctx context.Context) (*models.SchemaContext, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Introspection())
	defer cancel()

	start := time.Now()
	snapshot, err := s.provider.GetDatabaseContext(ctx)
	metrics.ObservePipelineStage("introspection", time.Since(start))
	return snapshot, err
}

func (s *naturalQueryService) generate(ctx context.Context, question string, schemaCtx *models.SchemaContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Generation())
	defer cancel()

	start := time.Now()
	sqlText, err := s.generation.GenerateSQL(ctx, question, schemaCtx)
	metrics.ObservePipelineStage("generation", time.Since(start))
	return sqlText, err
}

func (s *naturalQueryService) execute(ctx context.Context, result *models.NaturalQueryResult) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Execution())
	defer cancel()

	start := time.Now()
	queryResult, err := s.executor.ExecuteReadOnly(ctx, result.SQL, 0)
	metrics.ObservePipelineStage("execution", time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrExecutionFailed, err)
	}

	result.Executed = true
	result.Columns = make([]string, len(queryResult.Columns))
	for i, col := range queryResult.Columns {
		result.Columns[i] = col.Name
	}
	result.Rows = queryResult.Rows
	result.RowCount = queryResult.RowCount
	return nil
}
