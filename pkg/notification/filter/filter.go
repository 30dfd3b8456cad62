package filter

import "time"

// Field identifies a queryable notification attribute. The values double as the
// canonical storage column names so store adapters can render predicates
// without a separate mapping table.
type Field string

const (
	FieldID              Field = "id"
	FieldUserID          Field = "user_id"
	FieldEmailOrPhone    Field = "email_or_phone"
	FieldType            Field = "notification_type"
	FieldStatus          Field = "status"
	FieldTitle           Field = "title"
	FieldBodyTemplate    Field = "body_template"
	FieldSubjectTemplate Field = "subject_template"
	FieldContextName     Field = "context_name"
	FieldAdapterUsed     Field = "adapter_used"
	FieldSendAfter       Field = "send_after"
	FieldCreatedAt       Field = "created_at"
	FieldSentAt          Field = "sent_at"
	FieldReadAt          Field = "read_at"
)

// Lookup selects how a string field is matched.
type Lookup string

const (
	LookupExact      Lookup = "exact" // also the zero-value default
	LookupStartsWith Lookup = "startsWith"
	LookupEndsWith   Lookup = "endsWith"
	LookupIncludes   Lookup = "includes"
)

// Match describes a string-field lookup. The zero Lookup means exact match.
// Matches are case-sensitive unless CaseInsensitive is set.
type Match struct {
	Lookup          Lookup
	Value           string
	CaseInsensitive bool
}

// TimeRange bounds a date field inclusively on either side. A range with both
// bounds nil compiles to no predicate at all.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// Expr is a node in a caller-supplied boolean filter expression. Leaves are
// Where values; Group combines sub-expressions logically.
type Expr interface {
	isExpr()
}

// Where is a leaf expression: a conjunction of per-field predicates. Zero-value
// fields are simply omitted from the compiled output, never turned into an
// "always true" constraint. Value lists compile to equality for a single
// element and to a set-membership test otherwise.
type Where struct {
	ID           []string
	UserID       []string
	Status       []string
	Type         []string
	EmailOrPhone *Match
	Title        *Match
	BodyTemplate *Match
	ContextName  *Match
	AdapterUsed  *Match

	SendAfterRange *TimeRange
	CreatedAtRange *TimeRange
	SentAtRange    *TimeRange
}

func (Where) isExpr() {}

// Group is a logical node. Populated slots are combined with AND, so a Group
// carrying both And and Not behaves as (AND(...) AND NOT(...)).
type Group struct {
	And []Expr
	Or  []Expr
	Not Expr
}

func (Group) isExpr() {}
