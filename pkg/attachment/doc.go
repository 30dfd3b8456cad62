// Package attachment provides binary-file storage managers for notification
// attachments: S3 (and S3-compatible services) and local filesystem.
//
// Both managers implement notification.AttachmentManager. Objects are stored
// content-addressed by SHA-256 checksum, so uploading the same bytes twice
// writes to the same location and the metadata store deduplicates by the same
// checksum. A stored object is located later through its persisted storage
// identifiers, an opaque string map each manager knows how to read back.
//
//	mgr, err := attachment.NewS3Manager(ctx, attachment.S3Config{
//		Bucket: "attachments",
//		Region: "us-east-1",
//	})
//	if err != nil { ... }
//	backend := notification.New(store, notification.WithAttachmentManager(mgr))
//
// For development and tests, NewLocalManager stores objects under a base
// directory with the same layout.
package attachment
