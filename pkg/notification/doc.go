// Package notification is the persistence core for notification records and
// their binary attachments. It owns classification of the two record shapes
// sharing one storage table (user-linked and one-off), guarded status
// transitions, content-deduplicated attachment storage, and compilation of
// generic filter expressions into store predicates.
//
// # Architecture
//
// Backend is the single entry point. It sits on top of two collaborators:
//
//   - Store: record CRUD with conditional updates and transactions. Concrete
//     implementations live in pkg/notification/postgres (pgx) and
//     pkg/notification/mongo; MemoryStore in this package backs tests and
//     development.
//
//   - AttachmentManager: binary-file storage (pkg/attachment provides S3 and
//     local-disk managers). Optional; attachment operations fail with
//     ErrAttachmentManagerRequired without one.
//
// # Identity
//
// Every record is either user-linked (carries a user id owned by the account
// subsystem) or one-off (carries a raw email/phone contact). The union is
// resolved exactly once, at the boundary where a raw row enters the package:
//
//	n, err := backend.Get(ctx, id)
//	switch ident := n.Identity.(type) {
//	case notification.UserIdentity:
//		// ident.UserID
//	case notification.OneOffIdentity:
//		// ident.EmailOrPhone
//	}
//
// A row with neither identity column is corrupt and fails with
// ErrInvalidNotification rather than being guessed at.
//
// # Concurrency
//
// Competing delivery workers calling MarkAsSent for the same id are serialized
// by the store's conditional update (UPDATE ... WHERE id = ? AND status = ?):
// exactly one wins, the others receive ErrPreconditionFailed. The package
// never takes an in-process lock for this; multiple process instances are
// expected.
//
// # Attachments
//
// Attachment files are content-addressed: one file row per unique checksum,
// shared by every link that references it. Creating a notification with
// attachments runs in one store transaction, so a failed upload or dangling
// reference rolls the notification back as well. Bytes already written to the
// binary store are deliberately not rolled back; OrphanedAttachmentFiles finds
// them for later cleanup.
package notification
