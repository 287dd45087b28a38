package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for docindex.
type Error struct {
	// Code is the unique error code (e.g., "ERR_302_EMBEDDING_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, ErrEmbeddingFailure) holds for any
// embedding failure regardless of message or cause.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error, using its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is checks. Only the code is compared.
var (
	ErrSegmentationEmpty = New(ErrCodeSegmentationEmpty, "no chunks produced", nil)
	ErrEmbeddingFailure  = New(ErrCodeEmbeddingFailed, "embedding failed", nil)
	ErrEmbeddingTimeout  = New(ErrCodeEmbeddingTimeout, "embedding timed out", nil)
	ErrIndexCorruption   = New(ErrCodeIndexCorruption, "index corrupted", nil)
	ErrStaleReference    = New(ErrCodeStaleReference, "stale index reference", nil)
	ErrStorageFailure    = New(ErrCodeStorageFailure, "storage failure", nil)
	ErrDocumentNotFound  = New(ErrCodeDocumentNotFound, "document not found", nil)
	ErrInvalidStatus     = New(ErrCodeInvalidStatus, "invalid status transition", nil)
	ErrDimensionMismatch = New(ErrCodeDimensionMismatch, "vector dimension mismatch", nil)
	ErrDataLocked        = New(ErrCodeDataLocked, "data directory is locked by another process", nil)
	ErrInvalidInput      = New(ErrCodeInvalidInput, "invalid input", nil)
)

// SegmentationEmpty reports that a document produced zero chunks.
func SegmentationEmpty(docID int64) *Error {
	return New(ErrCodeSegmentationEmpty, "document produced no chunks", nil).
		WithDetail("document_id", fmt.Sprint(docID))
}

// EmbeddingFailure wraps a provider error.
func EmbeddingFailure(message string, cause error) *Error {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// StorageFailure wraps a metadata store error.
func StorageFailure(message string, cause error) *Error {
	return New(ErrCodeStorageFailure, message, cause)
}

// IndexCorruption reports a divergence between the vector index and the
// position table.
func IndexCorruption(message string) *Error {
	return New(ErrCodeIndexCorruption, message, nil)
}

// IsEmbeddingFailure reports whether err is an embedding failure of any kind,
// including timeouts and an open circuit.
func IsEmbeddingFailure(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Category == CategoryEmbedding && e.Code != ErrCodeSegmentationEmpty
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code. Returns empty string if err carries none.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Error: %s (%s)", e.Message, e.Code)
}
