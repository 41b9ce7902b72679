package apperrors

import "errors"

var (
	ErrIntrospectionFailed = errors.New("schema introspection failed")
	ErrGenerationFailed    = errors.New("sql generation failed")
	ErrValidationRejected  = errors.New("sql rejected by validation")
	ErrExecutionFailed     = errors.New("query execution failed")
	ErrTableNotFound       = errors.New("table not found")
	ErrInvalidScope        = errors.New("invalid refresh scope")
	ErrContextUnavailable  = errors.New("schema context unavailable")
)
