package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// BackendError is a failure reported by the text-generation backend.
type BackendError struct {
	Task       Task
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *BackendError) Error() string {
	var b strings.Builder
	b.WriteString("backend")
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.Task != "" {
		b.WriteString(" [" + string(e.Task) + "]")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *BackendError) Unwrap() error { return e.Err }

// ConfigurationError rejects an invalid configuration before any model call.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// PlanValidationError rejects a plan that cannot drive the section loop.
type PlanValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *PlanValidationError) Error() string {
	msg := "invalid plan"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlanValidationError) Unwrap() error { return e.Err }

// QualityGateRejection describes why a unit's output was not accepted.
// It drives the retry loop and is never returned from a run.
type QualityGateRejection struct {
	Unit   int
	Score  float64
	Issues []string
}

func (e *QualityGateRejection) Error() string {
	return fmt.Sprintf("unit %d rejected (score=%.3f): %s", e.Unit, e.Score, strings.Join(e.Issues, "; "))
}

// UnitError reports the unit whose failure aborted a run.
type UnitError struct {
	Kind  string
	Index int
	Err   error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Kind, e.Index+1, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// IsRetryable reports whether a unit may issue another request after err.
// Context cancellation is never retryable; unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return false
	}
	return true
}
