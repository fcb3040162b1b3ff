package domain

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrorKindInvalidFormat        ErrorKind = "InvalidFormat"
	ErrorKindAuthenticationFailed ErrorKind = "AuthenticationFailed"
	ErrorKindRateLimited          ErrorKind = "RateLimited"
	ErrorKindTimeout              ErrorKind = "Timeout"
	ErrorKindCancelled            ErrorKind = "Cancelled"
	ErrorKindInternal             ErrorKind = "InternalError"
)

// Retryable reports whether the error class stems from a transient external condition.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindRateLimited || k == ErrorKindTimeout
}

// PipelineError carries a taxonomy kind next to a user-readable message.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewError(kind ErrorKind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

func Errorf(kind ErrorKind, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// KindOf classifies err into the pipeline error taxonomy.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return pe.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	default:
		return ErrorKindInternal
	}
}

// ToJobError converts err into the user-visible form stored on a failed job.
// Internal errors get a generic message so no implementation detail leaks.
func ToJobError(err error) *JobError {
	kind := KindOf(err)
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Message != "" {
		return &JobError{Kind: kind, Message: pe.Message}
	}
	switch kind {
	case ErrorKindTimeout:
		return &JobError{Kind: kind, Message: "report generation exceeded the allowed execution time"}
	case ErrorKindCancelled:
		return &JobError{Kind: kind, Message: "report generation was cancelled"}
	default:
		return &JobError{Kind: ErrorKindInternal, Message: "report generation failed due to an internal error"}
	}
}
