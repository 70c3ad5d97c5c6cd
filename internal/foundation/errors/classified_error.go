package errors

import (
	stderrors "errors"
	"fmt"
)

// ClassifiedError carries what the sync loop needs to decide how to react:
// the category for exit codes and metrics, the severity for log level, and the
// retry strategy (next cycle, against the copy budget, or never).
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

func (e *ClassifiedError) Error() string {
	head := fmt.Sprintf("%s (%s): %s", e.category, e.severity, e.message)
	if e.cause == nil {
		return head
	}
	return head + ": " + e.cause.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

func (e *ClassifiedError) Category() ErrorCategory      { return e.category }
func (e *ClassifiedError) Severity() ErrorSeverity      { return e.severity }
func (e *ClassifiedError) RetryStrategy() RetryStrategy { return e.retry }
func (e *ClassifiedError) Message() string              { return e.message }
func (e *ClassifiedError) Cause() error                 { return e.cause }
func (e *ClassifiedError) Context() ErrorContext        { return e.context }

// WithContext returns a copy of e with key set; e itself is not modified.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	out := *e
	out.context = e.context.Merge(ErrorContext{key: value})
	return &out
}

// CanRetry is false for errors that need the operator or will never clear.
func (e *ClassifiedError) CanRetry() bool {
	return e.retry != RetryNever && e.retry != RetryUserAction
}

// AsClassified returns the first ClassifiedError in the chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// HasCategory reports whether the first classified error in the chain has category.
func HasCategory(err error, category ErrorCategory) bool {
	c, ok := AsClassified(err)
	return ok && c.category == category
}

// HasSeverity reports whether the first classified error in the chain has severity.
func HasSeverity(err error, severity ErrorSeverity) bool {
	c, ok := AsClassified(err)
	return ok && c.severity == severity
}

// GetRetryStrategy returns the retry strategy of err, or RetryNever for unclassified errors.
func GetRetryStrategy(err error) RetryStrategy {
	if c, ok := AsClassified(err); ok {
		return c.retry
	}
	return RetryNever
}
