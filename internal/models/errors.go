package models

import (
	"errors"
	"fmt"
)

// Pipeline error kinds
var (
	ErrCollectionFailure  = errors.New("collection failure")
	ErrValidationFailure  = errors.New("validation failure")
	ErrModuleFailure      = errors.New("module failure")
	ErrSubAnalysisFailure = errors.New("sub-analysis failure")
	ErrTimeout            = errors.New("timeout")
	ErrNotFound           = errors.New("record not found")
	ErrEmptySnapshot      = errors.New("race snapshot has no horses")
)

// PipelineError wraps one of the pipeline error kinds with context
type PipelineError struct {
	Kind    error
	Module  ModuleName
	Message string
	Err     error
}

// Error implements error.
func (e *PipelineError) Error() string {
	prefix := e.Kind.Error()
	if e.Module != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, e.Module)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches the error kind so errors.Is(err, ErrModuleFailure) works.
func (e *PipelineError) Is(target error) bool {
	return target == e.Kind
}

// NewPipelineError creates a PipelineError.
func NewPipelineError(kind error, module ModuleName, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Module: module, Message: message, Err: err}
}
