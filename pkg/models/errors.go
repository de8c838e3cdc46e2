package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the discriminated error taxonomy surfaced by the pipeline.
// Every failure a stage can produce maps to exactly one kind; the
// orchestrator is the only component that converts kinds into user-facing
// Responses.
type ErrorKind string

const (
	ErrKindInputInvalid           ErrorKind = "INPUT_INVALID"
	ErrKindLLMUnavailable         ErrorKind = "LLM_UNAVAILABLE"
	ErrKindLLMMalformed           ErrorKind = "LLM_MALFORMED"
	ErrKindTokenBudgetExceeded    ErrorKind = "TOKEN_BUDGET_EXCEEDED"
	ErrKindAssetNotFound          ErrorKind = "ASSET_NOT_FOUND"
	ErrKindAssetServiceDegraded   ErrorKind = "ASSET_SERVICE_DEGRADED"
	ErrKindCatalogMiss            ErrorKind = "CATALOG_MISS"
	ErrKindPlanInvalid            ErrorKind = "PLAN_INVALID"
	ErrKindExecutionFailed        ErrorKind = "EXECUTION_FAILED"
	ErrKindDeadlineExceeded       ErrorKind = "DEADLINE_EXCEEDED"
	ErrKindCancelled              ErrorKind = "CANCELLED"
	ErrKindInsufficientConfidence ErrorKind = "INSUFFICIENT_CONFIDENCE"
	ErrKindCircuitOpen            ErrorKind = "CIRCUIT_OPEN"
)

// PipelineError carries an error kind plus a user-presentable message.
// The wrapped cause may contain internal detail; only Message is ever
// shown to users (after sanitization).
type PipelineError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// NewPipelineError creates a taxonomy error with a user-presentable message.
func NewPipelineError(kind ErrorKind, message string) *PipelineError {
	return &PipelineError{Kind: kind, Message: message}
}

// WrapPipelineError creates a taxonomy error wrapping an upstream cause.
func WrapPipelineError(kind ErrorKind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, cause: cause}
}

func (e *PipelineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *PipelineError) Unwrap() error { return e.cause }

// KindOf extracts the taxonomy kind from an error chain. Returns empty
// string when no PipelineError is present.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// UserMessage returns the user-presentable message from the error chain,
// falling back to a generic message for unclassified errors so internal
// detail never leaks.
func UserMessage(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "An internal error occurred while processing your request. Please try again."
}
