package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of an error.
type ErrorClass string

const (
	// ErrorClassPermanent indicates a failure that will repeat until the project changes.
	// Examples: dependency cycles, missing workflows, policy denials.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassTransient indicates a failure that may not repeat on the next run.
	// Examples: executor timeouts, interrupted executions.
	ErrorClassTransient ErrorClass = "transient"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Workflow is the workflow ID that caused the error, if applicable.
	Workflow string `json:"workflow,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Workflow != "" {
		msg = fmt.Sprintf("%s (workflow=%s)", msg, e.Workflow)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// WithWorkflow adds workflow context to an error.
func (e *EngineError) WithWorkflow(workflowID string) *EngineError {
	e.Workflow = workflowID
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// CycleError reports a dependency cycle. Path starts and ends with the same
// workflow ID, e.g. [A C B A].
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

// newCycleError wraps a cycle path into a permanent engine error.
func newCycleError(path []string) *EngineError {
	first := ""
	if len(path) > 0 {
		first = path[0]
	}
	return NewPermanentError("dependency graph is not acyclic", &CycleError{Path: path}).
		WithCode(ErrCodeCycle).
		WithWorkflow(first)
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// HasCode reports whether err wraps an EngineError with the given code.
func HasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// FailedWorkflow returns the workflow ID attached to err, if any.
func FailedWorkflow(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Workflow
	}
	return ""
}

// CyclePath extracts the cycle path from err, or nil if err is not a cycle.
func CyclePath(err error) []string {
	var c *CycleError
	if errors.As(err, &c) {
		return c.Path
	}
	return nil
}

// Error codes.
const (
	ErrCodeValidation              = "VALIDATION_ERROR"
	ErrCodeNotFound                = "NOT_FOUND"
	ErrCodeCycle                   = "DEPENDENCY_CYCLE"
	ErrCodeDependencyNotFound      = "DEPENDENCY_NOT_FOUND"
	ErrCodeMissingDependencyOutput = "DEPENDENCY_OUTPUT_MISSING"
	ErrCodeExecutorFailed          = "EXECUTOR_FAILED"
	ErrCodePolicyDenied            = "POLICY_DENIED"
	ErrCodeCancelled               = "CANCELLED"
	ErrCodeInternal                = "INTERNAL_ERROR"
)
