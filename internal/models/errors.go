package models

import "fmt"

// ValidationError reports malformed context or rule input.
// Validation failures are never partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports that no bundle, rule or strategy matched.
// The pipeline aborts before any step when this is raised.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// NewNotFoundError creates a NotFoundError
func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// ConflictError reports a concurrent job on the same scope or an
// attempt to edit a non-editable rule
type ConflictError struct {
	Reason      string
	Conflicting *ConflictingJobInfo
}

func (e *ConflictError) Error() string {
	if e.Conflicting != nil {
		return fmt.Sprintf("conflict: %s (job %s is %s)", e.Reason, e.Conflicting.JobID, e.Conflicting.Status)
	}
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// ComputationError reports an unexpected state during pipeline execution.
// Carries the partial step trace for diagnosis.
type ComputationError struct {
	Stage        string
	RuleID       string
	PartialSteps []PricingStep
	Err          error
}

func (e *ComputationError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("computation failed at %s (rule %s): %v", e.Stage, e.RuleID, e.Err)
	}
	return fmt.Sprintf("computation failed at %s: %v", e.Stage, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// TimeoutError reports a bounded wait exceeded
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Op)
}
