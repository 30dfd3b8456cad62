package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

const (
	notificationsCollection = "notifications"
	filesCollection         = "attachment_files"
	linksCollection         = "notification_attachments"
	usersCollection         = "users"
)

// Store implements notification.Store on a MongoDB database.
type Store struct {
	db  *mongo.Database
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a MongoDB-backed notification store.
func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIndexes creates the indexes the store depends on. The unique checksum
// index is load-bearing: without it concurrent uploads of identical content
// would create duplicate file documents.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(filesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "checksum", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	_, err = s.db.Collection(linksCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "notification_id", Value: 1}}},
		{Keys: bson.D{{Key: "file_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	_, err = s.db.Collection(notificationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "send_after", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}

type notificationDoc struct {
	ID                string     `bson:"_id"`
	UserID            *string    `bson:"user_id"`
	EmailOrPhone      *string    `bson:"email_or_phone"`
	FirstName         *string    `bson:"first_name"`
	LastName          *string    `bson:"last_name"`
	Type              string     `bson:"notification_type"`
	Title             *string    `bson:"title"`
	BodyTemplate      string     `bson:"body_template"`
	ContextName       string     `bson:"context_name"`
	ContextParameters bson.M     `bson:"context_parameters,omitempty"`
	SendAfter         *time.Time `bson:"send_after"`
	SubjectTemplate   *string    `bson:"subject_template"`
	Status            string     `bson:"status"`
	ContextUsed       bson.M     `bson:"context_used,omitempty"`
	ExtraParams       bson.M     `bson:"extra_params,omitempty"`
	AdapterUsed       *string    `bson:"adapter_used"`
	SentAt            *time.Time `bson:"sent_at"`
	ReadAt            *time.Time `bson:"read_at"`
	GitCommitSHA      *string    `bson:"git_commit_sha"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

type attachmentFileDoc struct {
	ID                 string            `bson:"_id"`
	Filename           string            `bson:"filename"`
	ContentType        string            `bson:"content_type"`
	Size               int64             `bson:"size_bytes"`
	Checksum           string            `bson:"checksum"`
	StorageIdentifiers map[string]string `bson:"storage_identifiers"`
	CreatedAt          time.Time         `bson:"created_at"`
	UpdatedAt          time.Time         `bson:"updated_at"`
}

type attachmentLinkDoc struct {
	ID             string    `bson:"_id"`
	NotificationID string    `bson:"notification_id"`
	FileID         string    `bson:"file_id"`
	Description    *string   `bson:"description"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func (s *Store) CreateNotification(ctx context.Context, rec notification.CreateRecord) (notification.Record, error) {
	doc, err := s.newDoc(rec)
	if err != nil {
		return notification.Record{}, fmt.Errorf("create notification: %w", err)
	}
	if _, err := s.db.Collection(notificationsCollection).InsertOne(ctx, doc); err != nil {
		return notification.Record{}, fmt.Errorf("create notification: %w", err)
	}
	return docToRecord(doc)
}

func (s *Store) CreateNotifications(ctx context.Context, recs []notification.CreateRecord) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(recs))
	docs := make([]any, len(recs))
	for i, rec := range recs {
		doc, err := s.newDoc(rec)
		if err != nil {
			return nil, fmt.Errorf("create notifications: %w", err)
		}
		ids[i] = doc.ID
		docs[i] = doc
	}

	err := s.InTransaction(ctx, func(ctx context.Context, _ notification.Store) error {
		_, err := s.db.Collection(notificationsCollection).InsertMany(ctx, docs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create notifications: %w", err)
	}
	return ids, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*notification.Record, error) {
	var doc notificationDoc
	err := s.db.Collection(notificationsCollection).
		FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}

	rec, err := docToRecord(doc)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListNotifications(ctx context.Context, q notification.Query) ([]notification.Record, error) {
	query, err := renderFilter(q.Predicate)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	sort, err := renderSort(q.OrderBy)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	opts := options.Find().SetSort(sort)
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(notificationsCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	var docs []notificationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	out := make([]notification.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := docToRecord(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) UpdateNotification(ctx context.Context, id string, changes notification.UpdateRecord, guard *notification.Status) (notification.Record, error) {
	set, err := buildSet(changes)
	if err != nil {
		return notification.Record{}, fmt.Errorf("update notification: %w", err)
	}
	set["updated_at"] = s.now().UTC()

	query := bson.D{{Key: "_id", Value: id}}
	if guard != nil {
		query = append(query, bson.E{Key: "status", Value: string(*guard)})
	}

	var doc notificationDoc
	err = s.db.Collection(notificationsCollection).
		FindOneAndUpdate(ctx, query, bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&doc)
	if err == nil {
		return docToRecord(doc)
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return notification.Record{}, fmt.Errorf("update notification: %w", err)
	}

	// No match with a guard present may mean the document exists in another
	// status. Look again without the guard to report the right error.
	if guard != nil {
		existing, gerr := s.GetNotification(ctx, id)
		if gerr != nil {
			return notification.Record{}, gerr
		}
		if existing != nil {
			return notification.Record{}, fmt.Errorf("update notification %s: status is %s, expected %s: %w",
				id, existing.Status, *guard, notification.ErrPreconditionFailed)
		}
	}
	return notification.Record{}, fmt.Errorf("update notification %s: %w", id, notification.ErrNotFound)
}

func (s *Store) GetAttachmentFile(ctx context.Context, id string) (*notification.AttachmentFileRecord, error) {
	return s.findFile(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *Store) FindAttachmentFileByChecksum(ctx context.Context, checksum string) (*notification.AttachmentFileRecord, error) {
	return s.findFile(ctx, bson.D{{Key: "checksum", Value: checksum}})
}

func (s *Store) findFile(ctx context.Context, query bson.D) (*notification.AttachmentFileRecord, error) {
	var doc attachmentFileDoc
	err := s.db.Collection(filesCollection).FindOne(ctx, query).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find attachment file: %w", err)
	}
	rec := fileDocToRecord(doc)
	return &rec, nil
}

func (s *Store) CreateAttachmentFile(ctx context.Context, rec notification.AttachmentFileRecord) (notification.AttachmentFileRecord, error) {
	now := s.now().UTC()
	doc := attachmentFileDoc{
		ID:                 uuid.NewString(),
		Filename:           rec.Filename,
		ContentType:        rec.ContentType,
		Size:               rec.Size,
		Checksum:           rec.Checksum,
		StorageIdentifiers: rec.StorageIdentifiers,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	_, err := s.db.Collection(filesCollection).InsertOne(ctx, doc)
	if err == nil {
		return fileDocToRecord(doc), nil
	}

	// The unique checksum index arbitrates concurrent uploads of the same
	// content; the winner's document is the one everyone references.
	if mongo.IsDuplicateKeyError(err) {
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
	res, err := s.db.Collection(filesCollection).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete attachment file: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete attachment file %s: %w", id, notification.ErrNotFound)
	}
	return nil
}

func (s *Store) ListOrphanedAttachmentFiles(ctx context.Context) ([]notification.AttachmentFileRecord, error) {
	res := s.db.Collection(linksCollection).Distinct(ctx, "file_id", bson.D{})
	var referenced []string
	if err := res.Decode(&referenced); err != nil {
		return nil, fmt.Errorf("list orphaned attachment files: %w", err)
	}

	cursor, err := s.db.Collection(filesCollection).Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$nin", Value: referenced}}}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list orphaned attachment files: %w", err)
	}

	var docs []attachmentFileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list orphaned attachment files: %w", err)
	}

	out := make([]notification.AttachmentFileRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fileDocToRecord(doc))
	}
	return out, nil
}

func (s *Store) CreateAttachmentLink(ctx context.Context, link notification.AttachmentLink) (notification.AttachmentLink, error) {
	// No server-side referential integrity here, so verify both ends exist
	// before writing the link.
	target, err := s.GetNotification(ctx, link.NotificationID)
	if err != nil {
		return notification.AttachmentLink{}, err
	}
	if target == nil {
		return notification.AttachmentLink{}, fmt.Errorf("create attachment link: notification %s: %w",
			link.NotificationID, notification.ErrNotFound)
	}
	file, err := s.GetAttachmentFile(ctx, link.FileID)
	if err != nil {
		return notification.AttachmentLink{}, err
	}
	if file == nil {
		return notification.AttachmentLink{}, fmt.Errorf("create attachment link: file %s: %w",
			link.FileID, notification.ErrNotFound)
	}

	now := s.now().UTC()
	doc := attachmentLinkDoc{
		ID:             uuid.NewString(),
		NotificationID: link.NotificationID,
		FileID:         link.FileID,
		Description:    link.Description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.db.Collection(linksCollection).InsertOne(ctx, doc); err != nil {
		return notification.AttachmentLink{}, fmt.Errorf("create attachment link: %w", err)
	}
	return linkDocToRecord(doc), nil
}

func (s *Store) ListAttachmentLinks(ctx context.Context, notificationID string) ([]notification.AttachmentLink, error) {
	cursor, err := s.db.Collection(linksCollection).Find(ctx,
		bson.D{{Key: "notification_id", Value: notificationID}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list attachment links: %w", err)
	}

	var docs []attachmentLinkDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list attachment links: %w", err)
	}

	out := make([]notification.AttachmentLink, 0, len(docs))
	for _, doc := range docs {
		out = append(out, linkDocToRecord(doc))
	}
	return out, nil
}

func (s *Store) DeleteAttachmentLink(ctx context.Context, notificationID, attachmentID string) error {
	res, err := s.db.Collection(linksCollection).DeleteOne(ctx, bson.D{
		{Key: "_id", Value: attachmentID},
		{Key: "notification_id", Value: notificationID},
	})
	if err != nil {
		return fmt.Errorf("delete attachment link: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete attachment link %s on notification %s: %w",
			attachmentID, notificationID, notification.ErrAttachmentNotFound)
	}
	return nil
}

func (s *Store) UserEmail(ctx context.Context, notificationID string) (string, error) {
	rec, err := s.GetNotification(ctx, notificationID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", fmt.Errorf("user email for notification %s: %w", notificationID, notification.ErrNotFound)
	}
	if rec.UserID == nil {
		return "", nil
	}

	var user struct {
		Email string `bson:"email"`
	}
	err = s.db.Collection(usersCollection).
		FindOne(ctx, bson.D{{Key: "_id", Value: *rec.UserID}}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", nil
		}
		return "", fmt.Errorf("user email: %w", err)
	}
	return user.Email, nil
}

// InTransaction runs fn inside a driver session. The session travels on the
// context, so fn receives this same store and every operation it performs
// joins the transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, tx notification.Store) error) error {
	// Already inside a session: join it instead of opening a nested one.
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, s)
	}

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, s)
	})
	return err
}

func (s *Store) newDoc(rec notification.CreateRecord) (notificationDoc, error) {
	ctxParams, err := jsonToDoc(rec.ContextParameters)
	if err != nil {
		return notificationDoc{}, err
	}
	extra, err := jsonToDoc(rec.ExtraParams)
	if err != nil {
		return notificationDoc{}, err
	}

	status := rec.Status
	if status == "" {
		status = notification.StatusPendingSend
	}

	now := s.now().UTC()
	return notificationDoc{
		ID:                uuid.NewString(),
		UserID:            rec.UserID,
		EmailOrPhone:      rec.EmailOrPhone,
		FirstName:         rec.FirstName,
		LastName:          rec.LastName,
		Type:              string(rec.Type),
		Title:             rec.Title,
		BodyTemplate:      rec.BodyTemplate,
		ContextName:       rec.ContextName,
		ContextParameters: ctxParams,
		SendAfter:         rec.SendAfter,
		SubjectTemplate:   rec.SubjectTemplate,
		Status:            string(status),
		ExtraParams:       extra,
		GitCommitSHA:      rec.GitCommitSHA,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func docToRecord(doc notificationDoc) (notification.Record, error) {
	ctxParams, err := docToJSON(doc.ContextParameters)
	if err != nil {
		return notification.Record{}, fmt.Errorf("notification %s: %w", doc.ID, err)
	}
	ctxUsed, err := docToJSON(doc.ContextUsed)
	if err != nil {
		return notification.Record{}, fmt.Errorf("notification %s: %w", doc.ID, err)
	}
	extra, err := docToJSON(doc.ExtraParams)
	if err != nil {
		return notification.Record{}, fmt.Errorf("notification %s: %w", doc.ID, err)
	}

	return notification.Record{
		ID:                doc.ID,
		UserID:            doc.UserID,
		EmailOrPhone:      doc.EmailOrPhone,
		FirstName:         doc.FirstName,
		LastName:          doc.LastName,
		Type:              notification.Type(doc.Type),
		Title:             doc.Title,
		BodyTemplate:      doc.BodyTemplate,
		ContextName:       doc.ContextName,
		ContextParameters: ctxParams,
		SendAfter:         doc.SendAfter,
		SubjectTemplate:   doc.SubjectTemplate,
		Status:            notification.Status(doc.Status),
		ContextUsed:       ctxUsed,
		ExtraParams:       extra,
		AdapterUsed:       doc.AdapterUsed,
		SentAt:            doc.SentAt,
		ReadAt:            doc.ReadAt,
		GitCommitSHA:      doc.GitCommitSHA,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}, nil
}

func fileDocToRecord(doc attachmentFileDoc) notification.AttachmentFileRecord {
	return notification.AttachmentFileRecord{
		ID:                 doc.ID,
		Filename:           doc.Filename,
		ContentType:        doc.ContentType,
		Size:               doc.Size,
		Checksum:           doc.Checksum,
		StorageIdentifiers: doc.StorageIdentifiers,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}

func linkDocToRecord(doc attachmentLinkDoc) notification.AttachmentLink {
	return notification.AttachmentLink{
		ID:             doc.ID,
		NotificationID: doc.NotificationID,
		FileID:         doc.FileID,
		Description:    doc.Description,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

// jsonToDoc converts a JSON object column to its document form. Empty and
// JSON-null payloads become nil documents.
func jsonToDoc(raw json.RawMessage) (bson.M, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", notification.ErrInvalidJSONShape, err)
	}
	return doc, nil
}

// docToJSON converts a stored document back to the raw JSON shape the core
// package expects.
func docToJSON(doc bson.M) (json.RawMessage, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
