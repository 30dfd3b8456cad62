package notification

import (
	"encoding/json"
	"time"
)

// Field is a sparse optional value for update payloads. The zero value means
// "leave unchanged"; Set with a nil pointer means "clear". This keeps the
// three-way undefined/null/value distinction explicit instead of overloading
// pointer nilness.
type Field[T any] struct {
	set   bool
	value T
}

// Set marks a field as present with the given value.
func Set[T any](v T) Field[T] {
	return Field[T]{set: true, value: v}
}

// IsSet reports whether the field carries a value to apply.
func (f Field[T]) IsSet() bool { return f.set }

// Value returns the carried value. Meaningless unless IsSet.
func (f Field[T]) Value() T { return f.value }

// Input is a notification-create request. Identity is required; everything
// else mirrors the record's common attributes. Attachments, when present,
// make creation transactional.
type Input struct {
	Identity          Identity
	Type              Type
	Title             *string
	BodyTemplate      string
	ContextName       string
	ContextParameters json.RawMessage
	SendAfter         *time.Time
	SubjectTemplate   *string
	ExtraParams       json.RawMessage
	GitCommitSHA      *string
	Attachments       []AttachmentInput
}

// CreateRecord is the store-facing create payload. One-off columns are only
// populated for one-off inputs so user-linked rows never carry stale contact
// fields.
type CreateRecord struct {
	UserID            *string
	EmailOrPhone      *string
	FirstName         *string
	LastName          *string
	Type              Type
	Title             *string
	BodyTemplate      string
	ContextName       string
	ContextParameters json.RawMessage
	SendAfter         *time.Time
	SubjectTemplate   *string
	Status            Status
	ExtraParams       json.RawMessage
	GitCommitSHA      *string
}

// BuildCreateRecord validates the input's identity and shapes the create
// payload. Every new record starts in PENDING_SEND.
func BuildCreateRecord(in Input) (CreateRecord, error) {
	if in.Identity == nil {
		return CreateRecord{}, ErrInvalidNotification
	}
	if err := validateJSONObject(in.ExtraParams); err != nil {
		return CreateRecord{}, err
	}

	rec := CreateRecord{
		Type:              in.Type,
		Title:             in.Title,
		BodyTemplate:      in.BodyTemplate,
		ContextName:       in.ContextName,
		ContextParameters: in.ContextParameters,
		SendAfter:         in.SendAfter,
		SubjectTemplate:   in.SubjectTemplate,
		Status:            StatusPendingSend,
		ExtraParams:       in.ExtraParams,
		GitCommitSHA:      in.GitCommitSHA,
	}

	switch ident := in.Identity.(type) {
	case UserIdentity:
		rec.UserID = &ident.UserID
	case OneOffIdentity:
		rec.EmailOrPhone = &ident.EmailOrPhone
		rec.FirstName = &ident.FirstName
		rec.LastName = &ident.LastName
	default:
		return CreateRecord{}, ErrInvalidNotification
	}

	return rec, nil
}

// Patch is a sparse update request. Identity, when non-nil, transitions the
// record between user-linked and one-off shapes; nil leaves the stored
// identity untouched.
type Patch struct {
	Identity          Identity
	Type              Field[Type]
	Title             Field[*string]
	BodyTemplate      Field[string]
	ContextName       Field[string]
	ContextParameters Field[json.RawMessage]
	SendAfter         Field[*time.Time]
	SubjectTemplate   Field[*string]
	Status            Field[Status]
	ContextUsed       Field[json.RawMessage]
	ExtraParams       Field[json.RawMessage]
	AdapterUsed       Field[*string]
	SentAt            Field[*time.Time]
	ReadAt            Field[*time.Time]
	GitCommitSHA      Field[*string]
}

// UpdateRecord is the store-facing sparse update payload: only set fields are
// written, and a set nil pointer writes NULL.
type UpdateRecord struct {
	UserID            Field[*string]
	EmailOrPhone      Field[*string]
	FirstName         Field[*string]
	LastName          Field[*string]
	Type              Field[Type]
	Title             Field[*string]
	BodyTemplate      Field[string]
	ContextName       Field[string]
	ContextParameters Field[json.RawMessage]
	SendAfter         Field[*time.Time]
	SubjectTemplate   Field[*string]
	Status            Field[Status]
	ContextUsed       Field[json.RawMessage]
	ExtraParams       Field[json.RawMessage]
	AdapterUsed       Field[*string]
	SentAt            Field[*time.Time]
	ReadAt            Field[*time.Time]
	GitCommitSHA      Field[*string]
}

// BuildUpdateRecord translates a patch into the store payload. Supplying a
// user identity clears the one-off columns and vice versa: identity columns
// are mutually exclusive, and the stores expose an explicit NULL write for the
// user reference so the transition works in both directions.
func BuildUpdateRecord(p Patch) (UpdateRecord, error) {
	if p.ExtraParams.IsSet() {
		if err := validateJSONObject(p.ExtraParams.Value()); err != nil {
			return UpdateRecord{}, err
		}
	}

	out := UpdateRecord{
		Type:              p.Type,
		Title:             p.Title,
		BodyTemplate:      p.BodyTemplate,
		ContextName:       p.ContextName,
		ContextParameters: p.ContextParameters,
		SendAfter:         p.SendAfter,
		SubjectTemplate:   p.SubjectTemplate,
		Status:            p.Status,
		ContextUsed:       p.ContextUsed,
		ExtraParams:       p.ExtraParams,
		AdapterUsed:       p.AdapterUsed,
		SentAt:            p.SentAt,
		ReadAt:            p.ReadAt,
		GitCommitSHA:      p.GitCommitSHA,
	}

	switch ident := p.Identity.(type) {
	case nil:
	case UserIdentity:
		out.UserID = Set(&ident.UserID)
		out.EmailOrPhone = Set[*string](nil)
		out.FirstName = Set[*string](nil)
		out.LastName = Set[*string](nil)
	case OneOffIdentity:
		out.UserID = Set[*string](nil)
		out.EmailOrPhone = Set(&ident.EmailOrPhone)
		out.FirstName = Set(&ident.FirstName)
		out.LastName = Set(&ident.LastName)
	default:
		return UpdateRecord{}, ErrInvalidNotification
	}

	return out, nil
}

// applyTo writes the set fields onto a record in place. Used by the in-memory
// store; SQL and document stores render the same payload natively.
func (u UpdateRecord) applyTo(rec *Record) {
	if u.UserID.IsSet() {
		rec.UserID = u.UserID.Value()
	}
	if u.EmailOrPhone.IsSet() {
		rec.EmailOrPhone = u.EmailOrPhone.Value()
	}
	if u.FirstName.IsSet() {
		rec.FirstName = u.FirstName.Value()
	}
	if u.LastName.IsSet() {
		rec.LastName = u.LastName.Value()
	}
	if u.Type.IsSet() {
		rec.Type = u.Type.Value()
	}
	if u.Title.IsSet() {
		rec.Title = u.Title.Value()
	}
	if u.BodyTemplate.IsSet() {
		rec.BodyTemplate = u.BodyTemplate.Value()
	}
	if u.ContextName.IsSet() {
		rec.ContextName = u.ContextName.Value()
	}
	if u.ContextParameters.IsSet() {
		rec.ContextParameters = u.ContextParameters.Value()
	}
	if u.SendAfter.IsSet() {
		rec.SendAfter = u.SendAfter.Value()
	}
	if u.SubjectTemplate.IsSet() {
		rec.SubjectTemplate = u.SubjectTemplate.Value()
	}
	if u.Status.IsSet() {
		rec.Status = u.Status.Value()
	}
	if u.ContextUsed.IsSet() {
		rec.ContextUsed = u.ContextUsed.Value()
	}
	if u.ExtraParams.IsSet() {
		rec.ExtraParams = u.ExtraParams.Value()
	}
	if u.AdapterUsed.IsSet() {
		rec.AdapterUsed = u.AdapterUsed.Value()
	}
	if u.SentAt.IsSet() {
		rec.SentAt = u.SentAt.Value()
	}
	if u.ReadAt.IsSet() {
		rec.ReadAt = u.ReadAt.Value()
	}
	if u.GitCommitSHA.IsSet() {
		rec.GitCommitSHA = u.GitCommitSHA.Value()
	}
}
