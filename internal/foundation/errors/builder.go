package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// NewError creates a new ErrorBuilder with the specified category and message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError creates a new ErrorBuilder that wraps an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	return NewError(category, message).WithCause(err)
}

// WithCause sets the underlying error.
func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.cause = err
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

// WithRetry sets the retry strategy.
func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.retry = strategy
	return b
}

// WithContext adds a context key-value pair.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

// Fatal sets the severity to fatal.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

// Warning sets the severity to warning.
func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// NextCycle marks the error as transient until the next poll.
func (b *ErrorBuilder) NextCycle() *ErrorBuilder {
	return b.WithRetry(RetryNextCycle)
}

// Budgeted marks the error as retried against the copy retry budget.
func (b *ErrorBuilder) Budgeted() *ErrorBuilder {
	return b.WithRetry(RetryBudgeted)
}

// UserAction sets the retry strategy to require operator intervention.
func (b *ErrorBuilder) UserAction() *ErrorBuilder {
	return b.WithRetry(RetryUserAction)
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors for the sync taxonomy.

// ScanError reports a source folder that could not be listed this cycle.
func ScanError(message string) *ErrorBuilder {
	return NewError(CategoryScan, message).NextCycle()
}

// NamingConventionError reports a folder name that does not follow the naming convention.
// The folder is skipped permanently.
func NamingConventionError(message string) *ErrorBuilder {
	return NewError(CategoryNaming, message).Warning()
}

// CopyVerificationError reports a destination whose listing differs from the source after a copy.
func CopyVerificationError(message string) *ErrorBuilder {
	return NewError(CategoryVerification, message).Budgeted()
}

// DestinationUnavailableError reports a destination that cannot be resolved or written.
func DestinationUnavailableError(message string) *ErrorBuilder {
	return NewError(CategoryDestination, message).Budgeted()
}

// StateCorruptionError reports a persisted state file that cannot be trusted.
func StateCorruptionError(message string) *ErrorBuilder {
	return NewError(CategoryState, message).Fatal().UserAction()
}

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError creates a validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// FileSystemError creates a filesystem error.
func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message)
}

// EventsError creates an event sink error.
func EventsError(message string) *ErrorBuilder {
	return NewError(CategoryEvents, message)
}

// DaemonError creates a daemon error.
func DaemonError(message string) *ErrorBuilder {
	return NewError(CategoryDaemon, message).Fatal()
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
