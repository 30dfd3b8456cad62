package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

var (
	ErrUnknownColumn    = errors.New("unknown notification column")
	ErrUnknownPredicate = errors.New("unknown predicate type")
)

// DB is the pgx query surface the store needs. Both *pgxpool.Pool and pgx.Tx
// satisfy it, which is how the same store code serves regular calls and
// transactional ones.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store implements notification.Store on PostgreSQL.
type Store struct {
	db DB
}

// New creates a PostgreSQL-backed notification store.
func New(db DB) *Store {
	return &Store{db: db}
}

const notificationColumns = `id, user_id, email_or_phone, first_name, last_name,
	notification_type, title, body_template, context_name, context_parameters,
	send_after, subject_template, status, context_used, extra_params,
	adapter_used, sent_at, read_at, git_commit_sha, created_at, updated_at`

const attachmentFileColumns = `id, filename, content_type, size_bytes, checksum,
	storage_identifiers, created_at, updated_at`

const attachmentLinkColumns = `id, notification_id, file_id, description, created_at, updated_at`

func (s *Store) CreateNotification(ctx context.Context, rec notification.CreateRecord) (notification.Record, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO notifications (
			user_id, email_or_phone, first_name, last_name, notification_type,
			title, body_template, context_name, context_parameters, send_after,
			subject_template, status, extra_params, git_commit_sha
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+notificationColumns,
		rec.UserID, rec.EmailOrPhone, rec.FirstName, rec.LastName, string(rec.Type),
		rec.Title, rec.BodyTemplate, rec.ContextName, jsonArg(rec.ContextParameters), rec.SendAfter,
		rec.SubjectTemplate, string(rec.Status), jsonArg(rec.ExtraParams), rec.GitCommitSHA,
	)

	out, err := scanRecord(row)
	if err != nil {
		return notification.Record{}, fmt.Errorf("create notification: %w", err)
	}
	return out, nil
}

// CreateNotifications inserts all rows in one transaction using a batch. Ids
// are generated client side so the returned slice is guaranteed to match the
// input order regardless of how the server reports inserted rows.
func (s *Store) CreateNotifications(ctx context.Context, recs []notification.CreateRecord) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(recs))
	batch := &pgx.Batch{}
	for i, rec := range recs {
		ids[i] = uuid.NewString()
		batch.Queue(`
			INSERT INTO notifications (
				id, user_id, email_or_phone, first_name, last_name, notification_type,
				title, body_template, context_name, context_parameters, send_after,
				subject_template, status, extra_params, git_commit_sha
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			ids[i], rec.UserID, rec.EmailOrPhone, rec.FirstName, rec.LastName, string(rec.Type),
			rec.Title, rec.BodyTemplate, rec.ContextName, jsonArg(rec.ContextParameters), rec.SendAfter,
			rec.SubjectTemplate, string(rec.Status), jsonArg(rec.ExtraParams), rec.GitCommitSHA,
		)
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range recs {
			if _, err := results.Exec(); err != nil {
				return err
			}
		}
		return results.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("create notifications: %w", err)
	}
	return ids, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*notification.Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &rec, nil
}

func (s *Store) ListNotifications(ctx context.Context, q notification.Query) ([]notification.Record, error) {
	a := &args{}
	where := "TRUE"
	if q.Predicate != nil {
		var err error
		where, err = renderPredicate(q.Predicate, a)
		if err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
	}

	order, err := renderOrder(q.OrderBy)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	sql := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + where + ` ` + order
	if q.Limit > 0 {
		sql += " LIMIT " + a.add(q.Limit)
	}
	if q.Offset > 0 {
		sql += " OFFSET " + a.add(q.Offset)
	}

	rows, err := s.db.Query(ctx, sql, a.values...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []notification.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateNotification(ctx context.Context, id string, changes notification.UpdateRecord, guard *notification.Status) (notification.Record, error) {
	a := &args{}
	set := buildSet(changes, a)

	where := "id = " + a.add(id)
	if guard != nil {
		where += " AND status = " + a.add(string(*guard))
	}

	row := s.db.QueryRow(ctx,
		`UPDATE notifications SET `+set+` WHERE `+where+` RETURNING `+notificationColumns,
		a.values...)

	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !pg.IsNotFoundError(err) {
		return notification.Record{}, fmt.Errorf("update notification: %w", err)
	}

	// Zero rows with a guard is ambiguous: the row may be gone or merely in
	// another status. Distinguish so callers can tell a lost race from a bad id.
	if guard != nil {
		existing, err := s.GetNotification(ctx, id)
		if err != nil {
			return notification.Record{}, err
		}
		if existing != nil {
			return notification.Record{}, fmt.Errorf("update notification %s: status is %s, expected %s: %w",
				id, existing.Status, *guard, notification.ErrPreconditionFailed)
		}
	}
	return notification.Record{}, fmt.Errorf("update notification %s: %w", id, notification.ErrNotFound)
}

func (s *Store) GetAttachmentFile(ctx context.Context, id string) (*notification.AttachmentFileRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+attachmentFileColumns+` FROM attachment_files WHERE id = $1`, id)

	rec, err := scanAttachmentFile(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attachment file: %w", err)
	}
	return &rec, nil
}

func (s *Store) FindAttachmentFileByChecksum(ctx context.Context, checksum string) (*notification.AttachmentFileRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+attachmentFileColumns+` FROM attachment_files WHERE checksum = $1`, checksum)

	rec, err := scanAttachmentFile(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find attachment file: %w", err)
	}
	return &rec, nil
}

func (s *Store) CreateAttachmentFile(ctx context.Context, rec notification.AttachmentFileRecord) (notification.AttachmentFileRecord, error) {
	identifiers, err := json.Marshal(rec.StorageIdentifiers)
	if err != nil {
		return notification.AttachmentFileRecord{}, fmt.Errorf("create attachment file: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO attachment_files (filename, content_type, size_bytes, checksum, storage_identifiers)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+attachmentFileColumns,
		rec.Filename, rec.ContentType, rec.Size, rec.Checksum, identifiers)

	out, err := scanAttachmentFile(row)
	if err == nil {
		return out, nil
	}

	// A concurrent writer may have stored the same content between the
	// caller's checksum lookup and this insert. The unique index makes the
	// existing row authoritative.
	if pg.IsDuplicateKeyError(err) {
		existing, ferr := s.FindAttachmentFileByChecksum(ctx, rec.Checksum)
		if ferr != nil {
			return notification.AttachmentFileRecord{}, ferr
		}
		if existing != nil {
			return *existing, nil
		}
	}
	return notification.AttachmentFileRecord{}, fmt.Errorf("create attachment file: %w", err)
}

func (s *Store) DeleteAttachmentFile(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM attachment_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete attachment file %s: %w", id, notification.ErrNotFound)
	}
	return nil
}

func (s *Store) ListOrphanedAttachmentFiles(ctx context.Context) ([]notification.AttachmentFileRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+attachmentFileColumns+`
		FROM attachment_files f
		WHERE NOT EXISTS (
			SELECT 1 FROM notification_attachments a WHERE a.file_id = f.id
		)
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list orphaned attachment files: %w", err)
	}
	defer rows.Close()

	var out []notification.AttachmentFileRecord
	for rows.Next() {
		rec, err := scanAttachmentFile(rows)
		if err != nil {
			return nil, fmt.Errorf("list orphaned attachment files: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orphaned attachment files: %w", err)
	}
	return out, nil
}

func (s *Store) CreateAttachmentLink(ctx context.Context, link notification.AttachmentLink) (notification.AttachmentLink, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO notification_attachments (notification_id, file_id, description)
		VALUES ($1, $2, $3)
		RETURNING `+attachmentLinkColumns,
		link.NotificationID, link.FileID, link.Description)

	out, err := scanAttachmentLink(row)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return notification.AttachmentLink{}, fmt.Errorf("create attachment link: %w", notification.ErrNotFound)
		}
		return notification.AttachmentLink{}, fmt.Errorf("create attachment link: %w", err)
	}
	return out, nil
}

func (s *Store) ListAttachmentLinks(ctx context.Context, notificationID string) ([]notification.AttachmentLink, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+attachmentLinkColumns+` FROM notification_attachments WHERE notification_id = $1 ORDER BY created_at ASC`,
		notificationID)
	if err != nil {
		return nil, fmt.Errorf("list attachment links: %w", err)
	}
	defer rows.Close()

	var out []notification.AttachmentLink
	for rows.Next() {
		link, err := scanAttachmentLink(rows)
		if err != nil {
			return nil, fmt.Errorf("list attachment links: %w", err)
		}
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attachment links: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteAttachmentLink(ctx context.Context, notificationID, attachmentID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM notification_attachments WHERE id = $1 AND notification_id = $2`,
		attachmentID, notificationID)
	if err != nil {
		return fmt.Errorf("delete attachment link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete attachment link %s on notification %s: %w",
			attachmentID, notificationID, notification.ErrAttachmentNotFound)
	}
	return nil
}

func (s *Store) UserEmail(ctx context.Context, notificationID string) (string, error) {
	var email *string
	err := s.db.QueryRow(ctx, `
		SELECT u.email
		FROM notifications n
		LEFT JOIN users u ON u.id = n.user_id
		WHERE n.id = $1`,
		notificationID).Scan(&email)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", fmt.Errorf("user email for notification %s: %w", notificationID, notification.ErrNotFound)
		}
		return "", fmt.Errorf("user email: %w", err)
	}
	if email == nil {
		return "", nil
	}
	return *email, nil
}

// InTransaction runs fn against a store bound to a single transaction. Nested
// calls reuse pgx savepoints through Begin on the transaction itself.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, tx notification.Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(ctx, &Store{db: tx})
	})
}

func scanRecord(row pgx.Row) (notification.Record, error) {
	var (
		rec           notification.Record
		typ, status   string
		ctxParams     []byte
		ctxUsed       []byte
		extraParams   []byte
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.EmailOrPhone, &rec.FirstName, &rec.LastName,
		&typ, &rec.Title, &rec.BodyTemplate, &rec.ContextName, &ctxParams,
		&rec.SendAfter, &rec.SubjectTemplate, &status, &ctxUsed, &extraParams,
		&rec.AdapterUsed, &rec.SentAt, &rec.ReadAt, &rec.GitCommitSHA, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return notification.Record{}, err
	}
	rec.Type = notification.Type(typ)
	rec.Status = notification.Status(status)
	rec.ContextParameters = json.RawMessage(ctxParams)
	rec.ContextUsed = json.RawMessage(ctxUsed)
	rec.ExtraParams = json.RawMessage(extraParams)
	return rec, nil
}

func scanAttachmentFile(row pgx.Row) (notification.AttachmentFileRecord, error) {
	var (
		rec         notification.AttachmentFileRecord
		identifiers []byte
	)
	err := row.Scan(
		&rec.ID, &rec.Filename, &rec.ContentType, &rec.Size, &rec.Checksum,
		&identifiers, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return notification.AttachmentFileRecord{}, err
	}
	if len(identifiers) > 0 {
		if err := json.Unmarshal(identifiers, &rec.StorageIdentifiers); err != nil {
			return notification.AttachmentFileRecord{}, fmt.Errorf("decode storage identifiers: %w", err)
		}
	}
	return rec, nil
}

func scanAttachmentLink(row pgx.Row) (notification.AttachmentLink, error) {
	var link notification.AttachmentLink
	err := row.Scan(
		&link.ID, &link.NotificationID, &link.FileID, &link.Description,
		&link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return notification.AttachmentLink{}, err
	}
	return link, nil
}
