// Package mongo backs notification.Store with MongoDB.
//
// Records live in three collections: notifications, attachment_files, and
// notification_attachments. Conditional status updates map to FindOneAndUpdate
// with the expected status in the filter document, preserving the same
// lost-race semantics as the SQL store. Transactions ride on driver sessions
// through the context, so the store handed to InTransaction callbacks is the
// store itself.
//
// Call EnsureIndexes once at startup: content deduplication depends on the
// unique checksum index.
//
//	db, err := mongokit.NewWithDatabase(ctx, cfg, "notifications")
//	if err != nil { ... }
//	store := mongostore.New(db)
//	if err := store.EnsureIndexes(ctx); err != nil { ... }
package mongo
