// Package errors provides the classified error primitives used across dropsync.
//
// Every failure the poll loop can observe is mapped onto a category so callers can
// decide locally whether to skip, retry or stop:
//   - ErrorCategory: broad classification (scan, naming, verification, state, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: how the failure may be retried (never, backoff, user action)
//   - ClassifiedError: structured error with category, severity and context
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLIErrorAdapter: exit codes and terminal presentation
//
// Example usage:
//
//	err := errors.CopyVerificationError("destination listing differs").
//		WithCause(cause).
//		WithContext("identity", id).
//		WithContext("destination", dst).
//		Build()
package errors
