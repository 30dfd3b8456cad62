package notification

import (
	"context"
	"io"
	"time"
)

// AttachmentFileRecord is content-addressed blob metadata. One row exists per
// unique checksum; any number of notification attachments may share it.
type AttachmentFileRecord struct {
	ID                 string
	Filename           string
	ContentType        string
	Size               int64
	Checksum           string
	StorageIdentifiers map[string]string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AttachmentLink joins a notification to an attachment file. Links are deleted
// individually or cascade away with their notification; the file record
// outlives them until explicitly removed.
type AttachmentLink struct {
	ID             string
	NotificationID string
	FileID         string
	Description    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StoredAttachment is the caller-facing attachment handle: link plus file
// metadata plus a reconstructed binary-storage capability.
type StoredAttachment struct {
	ID                 string
	FileID             string
	Filename           string
	ContentType        string
	Size               int64
	Checksum           string
	Description        *string
	StorageIdentifiers map[string]string
	CreatedAt          time.Time
	File               Handle
}

// Handle exposes the stored bytes of an attachment file.
type Handle interface {
	Read(ctx context.Context) ([]byte, error)
	Stream(ctx context.Context) (io.ReadCloser, error)
	URL() string
	Delete(ctx context.Context) error
}

// AttachmentManager is the binary-file storage collaborator. Implementations
// live in pkg/attachment (S3, local disk).
type AttachmentManager interface {
	// Bufferize drains an attachment payload into memory.
	Bufferize(file io.Reader) ([]byte, error)
	// Checksum returns the content hash used for deduplication.
	Checksum(data []byte) string
	// Upload stores the bytes and returns a file record carrying the storage
	// identifiers needed to reconstruct a Handle later. The record is not yet
	// persisted to the metadata store.
	Upload(ctx context.Context, data []byte, filename, contentType string) (AttachmentFileRecord, error)
	// Reconstruct turns persisted storage identifiers back into a Handle.
	Reconstruct(identifiers map[string]string) (Handle, error)
	// DeleteByIdentifiers removes the stored bytes. Missing objects are not an error.
	DeleteByIdentifiers(ctx context.Context, identifiers map[string]string) error
}

// AttachmentInput is the tagged union of ways to attach a file on persist:
// referencing an existing file record or uploading inline bytes.
type AttachmentInput interface {
	isAttachmentInput()
}

// AttachmentReference attaches an already-stored file by id. A missing file is
// a hard failure, never auto-created.
type AttachmentReference struct {
	FileID      string
	Description *string
}

func (AttachmentReference) isAttachmentInput() {}

// InlineAttachment uploads new bytes. Content is deduplicated by checksum
// against existing file records before any storage write happens.
type InlineAttachment struct {
	File        io.Reader
	Filename    string
	ContentType string
	Description *string
}

func (InlineAttachment) isAttachmentInput() {}
