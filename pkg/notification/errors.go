package notification

import "errors"

var (
	// ErrInvalidNotification marks a record or input carrying neither a user id
	// nor an email/phone contact. Identity is never guessed.
	ErrInvalidNotification = errors.New("invalid notification: missing both user id and email or phone")

	// ErrInvalidJSONShape marks extra params that are valid JSON but not an object.
	ErrInvalidJSONShape = errors.New("invalid JSON value: expected an object")

	// ErrNotFound is returned when an operation targets a missing id.
	ErrNotFound = errors.New("record not found")

	// ErrPreconditionFailed is returned when a status-guarded update matched zero
	// rows: another worker already transitioned the record.
	ErrPreconditionFailed = errors.New("notification status precondition failed")

	// ErrInvalidOperation is returned for operations the record's identity kind
	// does not support, e.g. marking a one-off notification as read.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrReferencedFileNotFound is returned when an attachment input references a
	// file id that does not exist. Referenced files are never auto-created.
	ErrReferencedFileNotFound = errors.New("referenced attachment file not found")

	// ErrAttachmentNotFound is returned when an attachment does not belong to the
	// given notification, including when the attachment id exists under another one.
	ErrAttachmentNotFound = errors.New("attachment not found for notification")

	// ErrAttachmentManagerRequired is returned when an attachment operation needs
	// a binary-storage backend but none was configured.
	ErrAttachmentManagerRequired = errors.New("attachment manager is required")
)
