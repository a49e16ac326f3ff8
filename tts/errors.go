package tts

import (
	"errors"
	"time"
)

// Common errors for the synthesis pipeline.
var (
	// Request errors
	ErrSpeakerNotFound = errors.New("speaker not found")
	ErrInvalidInput    = errors.New("invalid input")

	// Inference errors
	ErrModelNotReady          = errors.New("inference model is not ready")
	ErrSynthesisFailure       = errors.New("synthesis failed")
	ErrConditioningExtraction = errors.New("conditioning extraction failed")

	// Pipeline errors
	ErrEmptyOutput     = errors.New("synthesis produced no audio")
	ErrStateTransition = errors.New("invalid state transition")

	// Configuration errors
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidSampleRate = errors.New("invalid sample rate")

	// General errors
	ErrCanceled = errors.New("operation was canceled")
)

// IsRecoverableError reports whether retrying the same request may succeed.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, ErrSpeakerNotFound),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrCanceled):
		return false
	}

	return true
}

// ErrorSeverity represents the severity of an error.
type ErrorSeverity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo ErrorSeverity = iota
	// SeverityWarning is for problems that did not stop the operation.
	SeverityWarning
	// SeverityError is for errors that failed the operation.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// TTSError carries an error kind together with where it happened.
type TTSError struct {
	Err       error                  // One of the sentinel kinds, possibly wrapped
	Component string                 // Component that generated the error
	Action    string                 // Action being performed when error occurred
	Severity  ErrorSeverity          // Severity of the error
	Timestamp int64                  // Unix timestamp when error occurred
	Context   map[string]interface{} // Additional context
}

// Error implements the error interface.
func (e *TTSError) Error() string {
	if e.Err == nil {
		return "unknown TTS error"
	}
	if e.Component == "" {
		return e.Err.Error()
	}
	return e.Component + ": " + e.Action + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *TTSError) Unwrap() error {
	return e.Err
}

// IsRecoverable checks if the error is recoverable.
func (e *TTSError) IsRecoverable() bool {
	return IsRecoverableError(e.Err)
}

// NewTTSError creates a new TTS error with context.
func NewTTSError(err error, component, action string) *TTSError {
	return &TTSError{
		Err:       err,
		Component: component,
		Action:    action,
		Severity:  SeverityError,
		Timestamp: time.Now().Unix(),
		Context:   make(map[string]interface{}),
	}
}

// WithSeverity sets the error severity.
func (e *TTSError) WithSeverity(severity ErrorSeverity) *TTSError {
	e.Severity = severity
	return e
}

// WithContext adds context to the error.
func (e *TTSError) WithContext(key string, value interface{}) *TTSError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ErrorKind returns the sentinel kind of err, or nil when err is not one of
// the pipeline kinds.
func ErrorKind(err error) error {
	for _, kind := range []error{
		ErrSpeakerNotFound,
		ErrInvalidInput,
		ErrModelNotReady,
		ErrSynthesisFailure,
		ErrConditioningExtraction,
		ErrEmptyOutput,
		ErrCanceled,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
