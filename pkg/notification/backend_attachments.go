package notification

import (
	"context"
	"fmt"
	"log/slog"
)

// ResolveAttachment resolves an attachment input to a file record without
// linking it to any notification. References must exist; inline bytes are
// deduplicated by checksum and only uploaded when no file with the same
// content is known yet.
func (b *Backend) ResolveAttachment(ctx context.Context, in AttachmentInput) (*AttachmentFileRecord, error) {
	return b.resolve(ctx, b.store, in)
}

func (b *Backend) resolve(ctx context.Context, store Store, in AttachmentInput) (*AttachmentFileRecord, error) {
	switch att := in.(type) {
	case AttachmentReference:
		file, err := store.GetAttachmentFile(ctx, att.FileID)
		if err != nil {
			return nil, err
		}
		if file == nil {
			return nil, fmt.Errorf("file %s: %w", att.FileID, ErrReferencedFileNotFound)
		}
		return file, nil

	case InlineAttachment:
		if b.attachments == nil {
			return nil, ErrAttachmentManagerRequired
		}
		data, err := b.attachments.Bufferize(att.File)
		if err != nil {
			return nil, fmt.Errorf("bufferize %s: %w", att.Filename, err)
		}
		checksum := b.attachments.Checksum(data)

		existing, err := store.FindAttachmentFileByChecksum(ctx, checksum)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			b.logger.LogAttrs(ctx, slog.LevelDebug, "attachment deduplicated by checksum",
				slog.String("checksum", checksum),
				slog.String("file_id", existing.ID),
			)
			return existing, nil
		}

		uploaded, err := b.attachments.Upload(ctx, data, att.Filename, att.ContentType)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", att.Filename, err)
		}
		created, err := store.CreateAttachmentFile(ctx, uploaded)
		if err != nil {
			return nil, err
		}
		return &created, nil

	default:
		return nil, fmt.Errorf("unsupported attachment input %T: %w", in, ErrInvalidOperation)
	}
}

// attach resolves one attachment input and creates its link row, all against
// the given (usually transactional) store view.
func (b *Backend) attach(ctx context.Context, store Store, notificationID string, in AttachmentInput) error {
	file, err := b.resolve(ctx, store, in)
	if err != nil {
		return err
	}

	var description *string
	switch att := in.(type) {
	case AttachmentReference:
		description = att.Description
	case InlineAttachment:
		description = att.Description
	}

	_, err = store.CreateAttachmentLink(ctx, AttachmentLink{
		NotificationID: notificationID,
		FileID:         file.ID,
		Description:    description,
	})
	return err
}

// AddAttachment links an attachment to an existing notification outside the
// create flow.
func (b *Backend) AddAttachment(ctx context.Context, notificationID string, in AttachmentInput) error {
	rec, err := b.store.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("notification %s: %w", notificationID, ErrNotFound)
	}
	return b.store.InTransaction(ctx, func(ctx context.Context, tx Store) error {
		return b.attach(ctx, tx, notificationID, in)
	})
}

// Attachments reconstructs the caller-facing attachment handles for a
// notification. A configured attachment manager is mandatory here because the
// handles wrap its read/stream/url/delete capabilities.
func (b *Backend) Attachments(ctx context.Context, notificationID string) ([]StoredAttachment, error) {
	if b.attachments == nil {
		return nil, ErrAttachmentManagerRequired
	}
	links, err := b.store.ListAttachmentLinks(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	return b.buildStoredAttachments(ctx, b.store, links)
}

func (b *Backend) buildStoredAttachments(ctx context.Context, store Store, links []AttachmentLink) ([]StoredAttachment, error) {
	if len(links) > 0 && b.attachments == nil {
		return nil, ErrAttachmentManagerRequired
	}

	out := make([]StoredAttachment, 0, len(links))
	for _, link := range links {
		file, err := store.GetAttachmentFile(ctx, link.FileID)
		if err != nil {
			return nil, err
		}
		if file == nil {
			return nil, fmt.Errorf("file %s: %w", link.FileID, ErrReferencedFileNotFound)
		}
		handle, err := b.attachments.Reconstruct(file.StorageIdentifiers)
		if err != nil {
			return nil, fmt.Errorf("reconstruct file %s: %w", file.ID, err)
		}
		out = append(out, StoredAttachment{
			ID:                 link.ID,
			FileID:             file.ID,
			Filename:           file.Filename,
			ContentType:        file.ContentType,
			Size:               file.Size,
			Checksum:           file.Checksum,
			Description:        link.Description,
			StorageIdentifiers: file.StorageIdentifiers,
			CreatedAt:          link.CreatedAt,
			File:               handle,
		})
	}
	return out, nil
}

// DeleteAttachment removes the link between a notification and one of its
// attachments. The delete is scoped to both ids, so an attachment id that
// exists under a different notification still fails with ErrAttachmentNotFound.
// The underlying file record and bytes are left alone.
func (b *Backend) DeleteAttachment(ctx context.Context, notificationID, attachmentID string) error {
	return b.store.DeleteAttachmentLink(ctx, notificationID, attachmentID)
}

// DeleteAttachmentFile removes an attachment file: stored bytes first, then
// the metadata row. A partial failure therefore leaves the row behind, still
// discoverable, rather than orphaning an unreferenced blob. Deleting a missing
// file is a no-op.
func (b *Backend) DeleteAttachmentFile(ctx context.Context, fileID string) error {
	file, err := b.store.GetAttachmentFile(ctx, fileID)
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}
	if b.attachments == nil {
		return ErrAttachmentManagerRequired
	}
	if err := b.attachments.DeleteByIdentifiers(ctx, file.StorageIdentifiers); err != nil {
		return fmt.Errorf("delete stored bytes of %s: %w", fileID, err)
	}
	return b.store.DeleteAttachmentFile(ctx, fileID)
}

// OrphanedAttachmentFiles lists file records with no remaining notification
// links, e.g. blobs left behind by rolled-back attachment transactions.
func (b *Backend) OrphanedAttachmentFiles(ctx context.Context) ([]AttachmentFileRecord, error) {
	return b.store.ListOrphanedAttachmentFiles(ctx)
}
