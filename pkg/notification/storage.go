package notification

import (
	"context"

	"github.com/dmitrymomot/notifykit/pkg/notification/filter"
)

// Order is a sort directive for list queries.
type Order struct {
	Field filter.Field
	Desc  bool
}

// Query selects and pages notification rows. A nil Predicate matches
// everything; Limit 0 means no limit. Default ordering is creation time
// ascending.
type Query struct {
	Predicate filter.Predicate
	Offset    int
	Limit     int
	OrderBy   []Order
}

// Store is the storage collaborator consumed by the Backend. Implementations
// must provide atomic conditional updates and transactional multi-statement
// execution; pkg/notification/postgres and pkg/notification/mongo back it with
// real databases, and MemoryStore backs it for tests and development.
type Store interface {
	// CreateNotification inserts one row and returns it with generated columns.
	CreateNotification(ctx context.Context, rec CreateRecord) (Record, error)
	// CreateNotifications inserts all rows atomically and returns generated ids
	// in input order. No partial insert on failure.
	CreateNotifications(ctx context.Context, recs []CreateRecord) ([]string, error)
	// GetNotification returns (nil, nil) when the id does not exist.
	GetNotification(ctx context.Context, id string) (*Record, error)
	ListNotifications(ctx context.Context, q Query) ([]Record, error)
	// UpdateNotification applies the set fields and returns the updated row.
	// With a non-nil guard the update is conditioned on the current status:
	// a missing id yields ErrNotFound, a live row in another status yields
	// ErrPreconditionFailed. This conditional write is the only concurrency
	// control in the system.
	UpdateNotification(ctx context.Context, id string, changes UpdateRecord, guard *Status) (Record, error)

	// GetAttachmentFile returns (nil, nil) when no file row matches.
	GetAttachmentFile(ctx context.Context, id string) (*AttachmentFileRecord, error)
	// FindAttachmentFileByChecksum returns (nil, nil) when no file row matches.
	FindAttachmentFileByChecksum(ctx context.Context, checksum string) (*AttachmentFileRecord, error)
	// CreateAttachmentFile persists file metadata. On a checksum collision the
	// existing row is returned instead, keeping deduplication race-safe.
	CreateAttachmentFile(ctx context.Context, rec AttachmentFileRecord) (AttachmentFileRecord, error)
	// DeleteAttachmentFile removes the metadata row; ErrNotFound when absent.
	DeleteAttachmentFile(ctx context.Context, id string) error
	// ListOrphanedAttachmentFiles returns files with zero referencing links.
	ListOrphanedAttachmentFiles(ctx context.Context) ([]AttachmentFileRecord, error)

	CreateAttachmentLink(ctx context.Context, link AttachmentLink) (AttachmentLink, error)
	ListAttachmentLinks(ctx context.Context, notificationID string) ([]AttachmentLink, error)
	// DeleteAttachmentLink is scoped to both ids together so a caller can never
	// detach another notification's attachment. Zero rows affected yields
	// ErrAttachmentNotFound.
	DeleteAttachmentLink(ctx context.Context, notificationID, attachmentID string) error

	// UserEmail resolves the owning user's email address via the account-owned
	// user data. ErrNotFound when the notification id is unknown; empty string
	// when the notification is one-off or the user has no known email.
	UserEmail(ctx context.Context, notificationID string) (string, error)

	// InTransaction runs fn against a transactional view with the same surface.
	// Any error from fn rolls back every statement issued through tx.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
