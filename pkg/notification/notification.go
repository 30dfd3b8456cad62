package notification

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the notification lifecycle state. Transitions are guarded:
// PENDING_SEND -> SENT|FAILED, SENT -> READ, any -> CANCELLED. No transition
// leaves CANCELLED, FAILED, or READ.
type Status string

const (
	StatusPendingSend Status = "PENDING_SEND"
	StatusSent        Status = "SENT"
	StatusFailed      Status = "FAILED"
	StatusRead        Status = "READ"
	StatusCancelled   Status = "CANCELLED"
)

// Type is the delivery channel a notification targets.
type Type string

const (
	TypeEmail Type = "EMAIL"
	TypePush  Type = "PUSH"
	TypeSMS   Type = "SMS"
	TypeInApp Type = "IN_APP"
)

// Notification is the caller-facing assembled record. Identity is a tagged
// union: exactly one of UserIdentity or OneOffIdentity.
type Notification struct {
	ID                string
	Identity          Identity
	Type              Type
	Title             *string
	BodyTemplate      string
	ContextName       string
	ContextParameters json.RawMessage
	SendAfter         *time.Time
	SubjectTemplate   *string
	Status            Status
	ContextUsed       json.RawMessage
	ExtraParams       map[string]any
	AdapterUsed       *string
	SentAt            *time.Time
	ReadAt            *time.Time
	GitCommitSHA      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Attachments       []StoredAttachment
}

// UserID returns the owning user id for user-linked notifications.
func (n Notification) UserID() (string, bool) {
	if ident, ok := n.Identity.(UserIdentity); ok {
		return ident.UserID, true
	}
	return "", false
}

// IsOneOff reports whether the notification is addressed to a raw contact
// rather than a registered user.
func (n Notification) IsOneOff() bool {
	_, ok := n.Identity.(OneOffIdentity)
	return ok
}

// Record is the raw storage row shape shared by all store adapters. Nullable
// columns are pointers; JSON columns stay raw until serialization.
type Record struct {
	ID                string
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
	ContextUsed       json.RawMessage
	ExtraParams       json.RawMessage
	AdapterUsed       *string
	SentAt            *time.Time
	ReadAt            *time.Time
	GitCommitSHA      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Serialize converts a raw store row into the caller-facing shape, classifying
// its identity and validating JSON columns. Attachments are not loaded here.
func Serialize(rec Record) (Notification, error) {
	ident, err := Classify(rec)
	if err != nil {
		return Notification{}, fmt.Errorf("notification %s: %w", rec.ID, err)
	}

	extra, err := decodeExtraParams(rec.ExtraParams)
	if err != nil {
		return Notification{}, fmt.Errorf("notification %s: %w", rec.ID, err)
	}

	params := rec.ContextParameters
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	return Notification{
		ID:                rec.ID,
		Identity:          ident,
		Type:              rec.Type,
		Title:             rec.Title,
		BodyTemplate:      rec.BodyTemplate,
		ContextName:       rec.ContextName,
		ContextParameters: params,
		SendAfter:         rec.SendAfter,
		SubjectTemplate:   rec.SubjectTemplate,
		Status:            rec.Status,
		ContextUsed:       rec.ContextUsed,
		ExtraParams:       extra,
		AdapterUsed:       rec.AdapterUsed,
		SentAt:            rec.SentAt,
		ReadAt:            rec.ReadAt,
		GitCommitSHA:      rec.GitCommitSHA,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}, nil
}

// decodeExtraParams unmarshals the extra params column, requiring a JSON
// object. JSON null and an absent column both decode to nil.
func decodeExtraParams(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, ErrInvalidJSONShape
	}
	return out, nil
}

// validateJSONObject rejects non-object JSON for columns constrained to flat
// objects. Empty and JSON-null payloads are allowed (they mean "no params").
func validateJSONObject(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ErrInvalidJSONShape
	}
	return nil
}
