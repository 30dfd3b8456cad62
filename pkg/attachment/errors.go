package attachment

import "errors"

var (
	// Configuration errors
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrFailedToLoadConfig = errors.New("failed to load AWS config")

	// Identifier errors. Storage identifiers are persisted metadata, so a
	// mismatch usually means a record written by a differently configured
	// manager.
	ErrMissingIdentifier = errors.New("missing storage identifier")
	ErrWrongBackend      = errors.New("storage identifiers belong to another backend")

	// Security and validation errors
	ErrInvalidPath = errors.New("invalid path") // Prevents path traversal attacks

	// Object errors
	ErrObjectNotFound = errors.New("stored object not found")

	// S3-specific errors for proper error classification
	ErrAccessDenied       = errors.New("access denied")
	ErrServiceUnavailable = errors.New("service temporarily unavailable") // Used for throttling and retries

	// Context and cancellation errors
	ErrOperationTimeout  = errors.New("operation timed out")
	ErrOperationCanceled = errors.New("operation canceled")

	// I/O operation errors
	ErrFailedToReadFile   = errors.New("failed to read file")
	ErrFailedToWriteFile  = errors.New("failed to write file")
	ErrFailedToDeleteFile = errors.New("failed to delete file")
)
