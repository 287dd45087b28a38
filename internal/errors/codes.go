// Package errors provides the typed error model for docindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Metadata storage errors
//   - 3XX: Segmentation and embedding errors
//   - 4XX: Vector index errors
//   - 5XX: Input and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig    Category = "CONFIG"
	CategoryStorage   Category = "STORAGE"
	CategoryEmbedding Category = "EMBEDDING"
	CategoryIndex     Category = "INDEX"
	CategoryInternal  Category = "INTERNAL"
)

// Severity defines how far an error propagates.
type Severity string

const (
	// SeverityFatal aborts the whole operation.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the current unit of work (a document).
	SeverityError Severity = "ERROR"
	// SeverityWarning fails only the current chunk or result entry.
	SeverityWarning Severity = "WARNING"
)

const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"
	ErrCodeDataLocked    = "ERR_102_DATA_DIR_LOCKED"

	// Storage errors (200-299)
	ErrCodeStorageFailure   = "ERR_201_STORAGE_FAILURE"
	ErrCodeDocumentNotFound = "ERR_202_DOCUMENT_NOT_FOUND"
	ErrCodeInvalidStatus    = "ERR_203_INVALID_STATUS_TRANSITION"

	// Segmentation and embedding errors (300-399)
	ErrCodeSegmentationEmpty = "ERR_301_SEGMENTATION_EMPTY"
	ErrCodeEmbeddingFailed   = "ERR_302_EMBEDDING_FAILED"
	ErrCodeEmbeddingTimeout  = "ERR_303_EMBEDDING_TIMEOUT"
	ErrCodeEmbeddingRejected = "ERR_304_EMBEDDING_CIRCUIT_OPEN"

	// Index errors (400-499)
	ErrCodeIndexCorruption   = "ERR_401_INDEX_CORRUPTION"
	ErrCodeStaleReference    = "ERR_402_STALE_REFERENCE"
	ErrCodeDimensionMismatch = "ERR_403_DIMENSION_MISMATCH"
	ErrCodeSnapshotFailed    = "ERR_404_SNAPSHOT_FAILED"

	// Input and internal errors (500-599)
	ErrCodeInvalidInput = "ERR_501_INVALID_INPUT"
	ErrCodeInternal     = "ERR_502_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryIndex
	default:
		return CategoryInternal
	}
}

// severityFromCode maps a code onto the propagation policy: chunk-level
// faults are warnings, document-level faults are errors.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeDataLocked:
		return SeverityFatal
	case ErrCodeEmbeddingFailed, ErrCodeEmbeddingTimeout, ErrCodeEmbeddingRejected,
		ErrCodeStorageFailure, ErrCodeStaleReference, ErrCodeIndexCorruption:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether an operation failing with code may succeed
// when repeated unchanged.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingFailed, ErrCodeEmbeddingTimeout, ErrCodeDataLocked:
		return true
	default:
		return false
	}
}
