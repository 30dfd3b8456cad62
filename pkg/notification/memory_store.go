package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification/filter"
)

// MemoryStore is an in-memory Store implementation. Suitable for development
// and tests; it emulates the database constraints the SQL schema enforces
// (identity check, checksum uniqueness, link foreign keys).
type MemoryStore struct {
	mu   sync.Mutex
	inTx bool

	notifications []*Record
	files         []*AttachmentFileRecord
	links         []*AttachmentLink
	userEmails    map[string]string

	now func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the store's time source for tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		userEmails: make(map[string]string),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetUserEmail registers account data for UserEmail lookups. The real stores
// join the account-owned users table instead.
func (s *MemoryStore) SetUserEmail(userID, email string) {
	unlock := s.lock()
	defer unlock()
	s.userEmails[userID] = email
}

// lock is a no-op on transactional views, which run under the parent's lock.
func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) CreateNotification(ctx context.Context, rec CreateRecord) (Record, error) {
	unlock := s.lock()
	defer unlock()
	return s.createLocked(rec)
}

func (s *MemoryStore) createLocked(rec CreateRecord) (Record, error) {
	if rec.UserID == nil && rec.EmailOrPhone == nil {
		return Record{}, ErrInvalidNotification
	}

	now := s.now()
	status := rec.Status
	if status == "" {
		status = StatusPendingSend
	}
	row := &Record{
		ID:                uuid.New().String(),
		UserID:            rec.UserID,
		EmailOrPhone:      rec.EmailOrPhone,
		FirstName:         rec.FirstName,
		LastName:          rec.LastName,
		Type:              rec.Type,
		Title:             rec.Title,
		BodyTemplate:      rec.BodyTemplate,
		ContextName:       rec.ContextName,
		ContextParameters: rec.ContextParameters,
		SendAfter:         rec.SendAfter,
		SubjectTemplate:   rec.SubjectTemplate,
		Status:            status,
		ExtraParams:       rec.ExtraParams,
		GitCommitSHA:      rec.GitCommitSHA,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.notifications = append(s.notifications, row)
	return *row, nil
}

func (s *MemoryStore) CreateNotifications(ctx context.Context, recs []CreateRecord) ([]string, error) {
	unlock := s.lock()
	defer unlock()

	// Validate everything up front so a bad input leaves no partial insert.
	for i, rec := range recs {
		if rec.UserID == nil && rec.EmailOrPhone == nil {
			return nil, fmt.Errorf("record %d: %w", i, ErrInvalidNotification)
		}
	}

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		row, err := s.createLocked(rec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (s *MemoryStore) GetNotification(ctx context.Context, id string) (*Record, error) {
	unlock := s.lock()
	defer unlock()

	if row := s.findNotification(id); row != nil {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) findNotification(id string) *Record {
	for _, row := range s.notifications {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, q Query) ([]Record, error) {
	unlock := s.lock()
	defer unlock()

	var matched []Record
	for _, row := range s.notifications {
		if filter.Eval(q.Predicate, recordRow(*row)) {
			matched = append(matched, *row)
		}
	}

	orderBy := q.OrderBy
	if len(orderBy) == 0 {
		orderBy = []Order{{Field: filter.FieldCreatedAt}}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return lessRecords(matched[i], matched[j], orderBy)
	})

	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		return []Record{}, nil
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return matched[start:end], nil
}

func lessRecords(a, b Record, orderBy []Order) bool {
	for _, ord := range orderBy {
		cmp := compareRowValues(recordRow(a), recordRow(b), ord.Field)
		if cmp == 0 {
			continue
		}
		if ord.Desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

// compareRowValues orders NULLs first, then strings or times naturally.
func compareRowValues(a, b recordRow, field filter.Field) int {
	av, aok := a.Value(field)
	bv, bok := b.Value(field)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}

	switch x := av.(type) {
	case string:
		y, _ := bv.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case time.Time:
		y, _ := bv.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	}
	return 0
}

func (s *MemoryStore) UpdateNotification(ctx context.Context, id string, changes UpdateRecord, guard *Status) (Record, error) {
	unlock := s.lock()
	defer unlock()

	row := s.findNotification(id)
	if row == nil {
		return Record{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if guard != nil && row.Status != *guard {
		return Record{}, fmt.Errorf("notification %s is %s, expected %s: %w", id, row.Status, *guard, ErrPreconditionFailed)
	}

	changes.applyTo(row)
	row.UpdatedAt = s.now()
	return *row, nil
}

func (s *MemoryStore) GetAttachmentFile(ctx context.Context, id string) (*AttachmentFileRecord, error) {
	unlock := s.lock()
	defer unlock()

	for _, f := range s.files {
		if f.ID == id {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindAttachmentFileByChecksum(ctx context.Context, checksum string) (*AttachmentFileRecord, error) {
	unlock := s.lock()
	defer unlock()

	for _, f := range s.files {
		if f.Checksum == checksum {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreateAttachmentFile(ctx context.Context, rec AttachmentFileRecord) (AttachmentFileRecord, error) {
	unlock := s.lock()
	defer unlock()

	// Checksum uniqueness: a colliding insert returns the existing row so
	// deduplication survives racing writers.
	for _, f := range s.files {
		if f.Checksum == rec.Checksum {
			cp := *f
			return cp, nil
		}
	}

	now := s.now()
	row := rec
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	s.files = append(s.files, &row)
	return row, nil
}

func (s *MemoryStore) DeleteAttachmentFile(ctx context.Context, id string) error {
	unlock := s.lock()
	defer unlock()

	for i, f := range s.files {
		if f.ID == id {
			s.files = append(s.files[:i], s.files[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("attachment file %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) ListOrphanedAttachmentFiles(ctx context.Context) ([]AttachmentFileRecord, error) {
	unlock := s.lock()
	defer unlock()

	referenced := make(map[string]bool, len(s.links))
	for _, link := range s.links {
		referenced[link.FileID] = true
	}

	var orphans []AttachmentFileRecord
	for _, f := range s.files {
		if !referenced[f.ID] {
			orphans = append(orphans, *f)
		}
	}
	return orphans, nil
}

func (s *MemoryStore) CreateAttachmentLink(ctx context.Context, link AttachmentLink) (AttachmentLink, error) {
	unlock := s.lock()
	defer unlock()

	// Foreign keys the SQL schema would enforce.
	if s.findNotification(link.NotificationID) == nil {
		return AttachmentLink{}, fmt.Errorf("notification %s: %w", link.NotificationID, ErrNotFound)
	}
	fileExists := false
	for _, f := range s.files {
		if f.ID == link.FileID {
			fileExists = true
			break
		}
	}
	if !fileExists {
		return AttachmentLink{}, fmt.Errorf("file %s: %w", link.FileID, ErrReferencedFileNotFound)
	}

	now := s.now()
	row := link
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	s.links = append(s.links, &row)
	return row, nil
}

func (s *MemoryStore) ListAttachmentLinks(ctx context.Context, notificationID string) ([]AttachmentLink, error) {
	unlock := s.lock()
	defer unlock()

	var out []AttachmentLink
	for _, link := range s.links {
		if link.NotificationID == notificationID {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteAttachmentLink(ctx context.Context, notificationID, attachmentID string) error {
	unlock := s.lock()
	defer unlock()

	for i, link := range s.links {
		if link.ID == attachmentID && link.NotificationID == notificationID {
			s.links = append(s.links[:i], s.links[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("attachment %s on notification %s: %w", attachmentID, notificationID, ErrAttachmentNotFound)
}

func (s *MemoryStore) UserEmail(ctx context.Context, notificationID string) (string, error) {
	unlock := s.lock()
	defer unlock()

	row := s.findNotification(notificationID)
	if row == nil {
		return "", fmt.Errorf("notification %s: %w", notificationID, ErrNotFound)
	}
	if row.UserID == nil {
		return "", nil
	}
	return s.userEmails[*row.UserID], nil
}

// InTransaction snapshots the store, runs fn against the copy, and adopts the
// copy only on success. The parent lock is held for the whole transaction, so
// memory transactions are fully serialized.
func (s *MemoryStore) InTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.snapshot()
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.notifications = tx.notifications
	s.files = tx.files
	s.links = tx.links
	return nil
}

func (s *MemoryStore) snapshot() *MemoryStore {
	tx := &MemoryStore{
		inTx:          true,
		notifications: make([]*Record, len(s.notifications)),
		files:         make([]*AttachmentFileRecord, len(s.files)),
		links:         make([]*AttachmentLink, len(s.links)),
		userEmails:    s.userEmails,
		now:           s.now,
	}
	for i, row := range s.notifications {
		cp := *row
		tx.notifications[i] = &cp
	}
	for i, f := range s.files {
		cp := *f
		tx.files[i] = &cp
	}
	for i, link := range s.links {
		cp := *link
		tx.links[i] = &cp
	}
	return tx
}

// recordRow adapts a Record to filter.Row for in-memory predicate evaluation.
type recordRow Record

func (r recordRow) Value(f filter.Field) (any, bool) {
	switch f {
	case filter.FieldID:
		return r.ID, true
	case filter.FieldUserID:
		return derefString(r.UserID)
	case filter.FieldEmailOrPhone:
		return derefString(r.EmailOrPhone)
	case filter.FieldType:
		return string(r.Type), true
	case filter.FieldStatus:
		return string(r.Status), true
	case filter.FieldTitle:
		return derefString(r.Title)
	case filter.FieldBodyTemplate:
		return r.BodyTemplate, true
	case filter.FieldSubjectTemplate:
		return derefString(r.SubjectTemplate)
	case filter.FieldContextName:
		return r.ContextName, true
	case filter.FieldAdapterUsed:
		return derefString(r.AdapterUsed)
	case filter.FieldSendAfter:
		return derefTime(r.SendAfter)
	case filter.FieldCreatedAt:
		return r.CreatedAt, true
	case filter.FieldSentAt:
		return derefTime(r.SentAt)
	case filter.FieldReadAt:
		return derefTime(r.ReadAt)
	default:
		return nil, false
	}
}

func derefString(s *string) (any, bool) {
	if s == nil {
		return nil, false
	}
	return *s, true
}

func derefTime(t *time.Time) (any, bool) {
	if t == nil {
		return nil, false
	}
	return *t, true
}
