package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification/filter"
)

// Backend owns the notification persistence lifecycle on top of a Store and an
// optional AttachmentManager. It performs no retries and takes no in-process
// locks; concurrent workers are serialized solely by the store's conditional
// updates.
type Backend struct {
	store       Store
	attachments AttachmentManager
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithAttachmentManager wires the binary-file storage collaborator. Without
// it, attachment operations fail with ErrAttachmentManagerRequired.
func WithAttachmentManager(m AttachmentManager) Option {
	return func(b *Backend) {
		b.attachments = m
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a Backend bound to the given store.
func New(store Store, opts ...Option) *Backend {
	b := &Backend{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Persist validates and creates a notification. When the input carries
// attachments, creation and attachment processing run in one store
// transaction: a failed upload or a dangling file reference rolls the
// notification row back too. Bytes already uploaded to the binary store are
// not rolled back; orphan scanning reclaims them later.
func (b *Backend) Persist(ctx context.Context, in Input) (*Notification, error) {
	rec, err := BuildCreateRecord(in)
	if err != nil {
		return nil, err
	}

	if len(in.Attachments) == 0 {
		created, err := b.store.CreateNotification(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("create notification: %w", err)
		}
		return b.assemble(ctx, b.store, created)
	}

	var out *Notification
	err = b.store.InTransaction(ctx, func(ctx context.Context, tx Store) error {
		created, err := tx.CreateNotification(ctx, rec)
		if err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		for _, att := range in.Attachments {
			if err := b.attach(ctx, tx, created.ID, att); err != nil {
				return err
			}
		}
		fresh, err := tx.GetNotification(ctx, created.ID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return ErrNotFound
		}
		assembled, err := b.assemble(ctx, tx, *fresh)
		if err != nil {
			return err
		}
		out = assembled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PersistUpdate applies the set fields of the patch to an existing record.
func (b *Backend) PersistUpdate(ctx context.Context, id string, p Patch) (*Notification, error) {
	changes, err := BuildUpdateRecord(p)
	if err != nil {
		return nil, err
	}
	rec, err := b.store.UpdateNotification(ctx, id, changes, nil)
	if err != nil {
		return nil, err
	}
	return b.assemble(ctx, b.store, rec)
}

// BulkPersist validates every input before issuing a single atomic multi-row
// insert; one invalid input fails the whole batch with nothing persisted.
// Attachments are not supported in bulk: the original backend silently dropped
// them, which loses data, so they are rejected here instead.
func (b *Backend) BulkPersist(ctx context.Context, inputs []Input) ([]string, error) {
	recs := make([]CreateRecord, 0, len(inputs))
	for i, in := range inputs {
		if len(in.Attachments) > 0 {
			return nil, fmt.Errorf("input %d: bulk persist does not support attachments: %w", i, ErrInvalidOperation)
		}
		rec, err := BuildCreateRecord(in)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return b.store.CreateNotifications(ctx, recs)
}

// Get returns a notification with its attachments, or ErrNotFound.
func (b *Backend) Get(ctx context.Context, id string) (*Notification, error) {
	rec, err := b.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return b.assemble(ctx, b.store, *rec)
}

// GetOneOff returns a one-off notification by id; user-linked records are
// reported as not found rather than leaked through the one-off surface.
func (b *Backend) GetOneOff(ctx context.Context, id string) (*Notification, error) {
	n, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.IsOneOff() {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return n, nil
}

// List returns a page of all notifications, attachments not loaded.
// A pageSize of zero or less means no limit, and a negative page reads
// the first page; both conventions hold for every paginated query here.
func (b *Backend) List(ctx context.Context, page, pageSize int) ([]Notification, error) {
	return b.list(ctx, nil, page, pageSize)
}

// GetPending returns PENDING_SEND notifications that are due: either not
// scheduled at all or scheduled at or before now.
func (b *Backend) GetPending(ctx context.Context, page, pageSize int) ([]Notification, error) {
	pred := filter.And{
		filter.Compare{Field: filter.FieldStatus, Op: filter.OpEq, Value: string(StatusPendingSend)},
		filter.Or{
			filter.IsNull{Field: filter.FieldSendAfter},
			filter.Compare{Field: filter.FieldSendAfter, Op: filter.OpLte, Value: b.now()},
		},
	}
	return b.list(ctx, pred, page, pageSize)
}

// GetFuture returns notifications scheduled strictly in the future, excluding
// the pending queue. The bound is exclusive (> now): a record due exactly now
// belongs to the pending query, not here.
func (b *Backend) GetFuture(ctx context.Context, page, pageSize int) ([]Notification, error) {
	return b.list(ctx, b.futurePredicate(), page, pageSize)
}

// GetFutureFromUser is GetFuture scoped to one user's notifications.
func (b *Backend) GetFutureFromUser(ctx context.Context, userID string, page, pageSize int) ([]Notification, error) {
	pred := filter.And{
		filter.Compare{Field: filter.FieldUserID, Op: filter.OpEq, Value: userID},
		b.futurePredicate(),
	}
	return b.list(ctx, pred, page, pageSize)
}

func (b *Backend) futurePredicate() filter.Predicate {
	return filter.And{
		filter.Not{P: filter.Compare{Field: filter.FieldStatus, Op: filter.OpEq, Value: string(StatusPendingSend)}},
		filter.Compare{Field: filter.FieldSendAfter, Op: filter.OpGt, Value: b.now()},
	}
}

// ListFromUser returns a user's notifications. One-off records can never
// match: the predicate is on the user id column, which they do not carry.
func (b *Backend) ListFromUser(ctx context.Context, userID string, page, pageSize int) ([]Notification, error) {
	pred := filter.Compare{Field: filter.FieldUserID, Op: filter.OpEq, Value: userID}
	return b.list(ctx, pred, page, pageSize)
}

// FilterUnreadInApp returns a user's delivered-but-unread notifications.
func (b *Backend) FilterUnreadInApp(ctx context.Context, userID string, page, pageSize int) ([]Notification, error) {
	pred := filter.And{
		filter.Compare{Field: filter.FieldUserID, Op: filter.OpEq, Value: userID},
		filter.Compare{Field: filter.FieldStatus, Op: filter.OpEq, Value: string(StatusSent)},
		filter.IsNull{Field: filter.FieldReadAt},
	}
	return b.list(ctx, pred, page, pageSize)
}

// ListOneOff returns one-off notifications only.
func (b *Backend) ListOneOff(ctx context.Context, page, pageSize int) ([]Notification, error) {
	pred := filter.And{
		filter.IsNull{Field: filter.FieldUserID},
		filter.Not{P: filter.IsNull{Field: filter.FieldEmailOrPhone}},
	}
	return b.list(ctx, pred, page, pageSize)
}

// Filter compiles a caller-supplied filter expression and executes it.
// Pagination follows the List conventions: a pageSize of zero or less
// means no limit, a negative page reads the first page.
func (b *Backend) Filter(ctx context.Context, expr filter.Expr, page, pageSize int, orderBy ...Order) ([]Notification, error) {
	pred, err := filter.Compile(expr)
	if err != nil {
		return nil, err
	}
	recs, err := b.store.ListNotifications(ctx, Query{
		Predicate: pred,
		Offset:    pageOffset(page, pageSize),
		Limit:     pageSize,
		OrderBy:   orderBy,
	})
	if err != nil {
		return nil, err
	}
	return serializeAll(recs)
}

// MarkAsSent transitions a notification to SENT and stamps sentAt. With the
// precondition enabled the write is conditioned on PENDING_SEND, and a
// competing worker's win surfaces as ErrPreconditionFailed.
func (b *Backend) MarkAsSent(ctx context.Context, id string, checkPrecondition bool) (*Notification, error) {
	return b.transition(ctx, id, StatusSent, checkPrecondition)
}

// MarkAsFailed transitions a notification to FAILED and stamps sentAt.
func (b *Backend) MarkAsFailed(ctx context.Context, id string, checkPrecondition bool) (*Notification, error) {
	return b.transition(ctx, id, StatusFailed, checkPrecondition)
}

func (b *Backend) transition(ctx context.Context, id string, to Status, checkPrecondition bool) (*Notification, error) {
	now := b.now()
	changes := UpdateRecord{
		Status: Set(to),
		SentAt: Set(&now),
	}
	var guard *Status
	if checkPrecondition {
		pending := StatusPendingSend
		guard = &pending
	}
	rec, err := b.store.UpdateNotification(ctx, id, changes, guard)
	if err != nil {
		return nil, err
	}
	return b.assemble(ctx, b.store, rec)
}

// MarkAsRead transitions a SENT user notification to READ. One-off records
// have no reader, so the operation is rejected before any write.
func (b *Backend) MarkAsRead(ctx context.Context, id string, checkPrecondition bool) (*Notification, error) {
	rec, err := b.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	ident, err := Classify(*rec)
	if err != nil {
		return nil, err
	}
	if _, oneOff := ident.(OneOffIdentity); oneOff {
		return nil, fmt.Errorf("cannot mark one-off notification as read: %w", ErrInvalidOperation)
	}

	now := b.now()
	changes := UpdateRecord{
		Status: Set(StatusRead),
		ReadAt: Set(&now),
	}
	var guard *Status
	if checkPrecondition {
		sent := StatusSent
		guard = &sent
	}
	updated, err := b.store.UpdateNotification(ctx, id, changes, guard)
	if err != nil {
		return nil, err
	}
	return b.assemble(ctx, b.store, updated)
}

// Cancel moves a notification to CANCELLED unconditionally.
func (b *Backend) Cancel(ctx context.Context, id string) error {
	_, err := b.store.UpdateNotification(ctx, id, UpdateRecord{Status: Set(StatusCancelled)}, nil)
	return err
}

// StoreContextUsed snapshots the rendered context at send time.
func (b *Backend) StoreContextUsed(ctx context.Context, id string, contextUsed json.RawMessage) error {
	_, err := b.store.UpdateNotification(ctx, id, UpdateRecord{ContextUsed: Set(contextUsed)}, nil)
	return err
}

// UserEmail resolves the owning user's email for a notification.
func (b *Backend) UserEmail(ctx context.Context, id string) (string, error) {
	return b.store.UserEmail(ctx, id)
}

func (b *Backend) list(ctx context.Context, pred filter.Predicate, page, pageSize int) ([]Notification, error) {
	recs, err := b.store.ListNotifications(ctx, Query{
		Predicate: pred,
		Offset:    pageOffset(page, pageSize),
		Limit:     pageSize,
	})
	if err != nil {
		return nil, err
	}
	return serializeAll(recs)
}

// pageOffset converts a page index to a row offset. A negative page or page
// size maps to offset zero so every store sees the same first-page read
// instead of a backend-specific failure.
func pageOffset(page, pageSize int) int {
	if page < 0 || pageSize < 0 {
		return 0
	}
	return page * pageSize
}

func serializeAll(recs []Record) ([]Notification, error) {
	out := make([]Notification, 0, len(recs))
	for _, rec := range recs {
		n, err := Serialize(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// assemble serializes a row and loads its attachments. The attachment manager
// is only required when links actually exist, so plain records round-trip
// without one.
func (b *Backend) assemble(ctx context.Context, store Store, rec Record) (*Notification, error) {
	n, err := Serialize(rec)
	if err != nil {
		return nil, err
	}
	links, err := store.ListAttachmentLinks(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if len(links) > 0 {
		stored, err := b.buildStoredAttachments(ctx, store, links)
		if err != nil {
			return nil, err
		}
		n.Attachments = stored
	}
	return &n, nil
}
