package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/notification/filter"
)

var columns = map[filter.Field]bool{
	filter.FieldID:              true,
	filter.FieldUserID:          true,
	filter.FieldEmailOrPhone:    true,
	filter.FieldType:            true,
	filter.FieldStatus:          true,
	filter.FieldTitle:           true,
	filter.FieldBodyTemplate:    true,
	filter.FieldSubjectTemplate: true,
	filter.FieldContextName:     true,
	filter.FieldAdapterUsed:     true,
	filter.FieldSendAfter:       true,
	filter.FieldCreatedAt:       true,
	filter.FieldSentAt:          true,
	filter.FieldReadAt:          true,
}

// column validates a field against the known column set before it is spliced
// into query text. Fields come from a closed enum, but values arriving through
// predicates built elsewhere are still checked.
func column(f filter.Field) (string, error) {
	if !columns[f] {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, string(f))
	}
	return string(f), nil
}

// args accumulates positional query parameters and hands out placeholders.
type args struct {
	values []any
}

func (a *args) add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

// renderPredicate turns a compiled filter predicate into a parameterized SQL
// condition. Every value goes through a placeholder.
func renderPredicate(p filter.Predicate, a *args) (string, error) {
	switch pred := p.(type) {
	case filter.And:
		return renderJunction(pred, " AND ", "TRUE", a)
	case filter.Or:
		return renderJunction(pred, " OR ", "FALSE", a)
	case filter.Not:
		inner, err := renderPredicate(pred.P, a)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case filter.Compare:
		col, err := column(pred.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", col, pred.Op, a.add(pred.Value)), nil
	case filter.In:
		col, err := column(pred.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = ANY(%s)", col, a.add(pred.Values)), nil
	case filter.StringMatch:
		return renderStringMatch(pred, a)
	case filter.IsNull:
		col, err := column(pred.Field)
		if err != nil {
			return "", err
		}
		return col + " IS NULL", nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownPredicate, p)
	}
}

func renderJunction(children []filter.Predicate, sep, empty string, a *args) (string, error) {
	if len(children) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		sql, err := renderPredicate(child, a)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+sql+")")
	}
	return strings.Join(parts, sep), nil
}

func renderStringMatch(m filter.StringMatch, a *args) (string, error) {
	col, err := column(m.Field)
	if err != nil {
		return "", err
	}

	if m.Lookup == filter.LookupExact {
		if m.CaseInsensitive {
			return fmt.Sprintf("LOWER(%s) = LOWER(%s)", col, a.add(m.Value)), nil
		}
		return fmt.Sprintf("%s = %s", col, a.add(m.Value)), nil
	}

	var pattern string
	switch m.Lookup {
	case filter.LookupStartsWith:
		pattern = escapeLike(m.Value) + "%"
	case filter.LookupEndsWith:
		pattern = "%" + escapeLike(m.Value)
	case filter.LookupIncludes:
		pattern = "%" + escapeLike(m.Value) + "%"
	default:
		return "", fmt.Errorf("%w: %q", filter.ErrUnknownLookup, string(m.Lookup))
	}

	op := "LIKE"
	if m.CaseInsensitive {
		op = "ILIKE"
	}
	return fmt.Sprintf("%s %s %s", col, op, a.add(pattern)), nil
}

// escapeLike neutralizes LIKE metacharacters in user-supplied match values so
// "50%" matches the literal string and not any prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// renderOrder builds the ORDER BY clause. Creation time ascending keeps list
// output deterministic when no explicit ordering is requested.
func renderOrder(orderBy []notification.Order) (string, error) {
	if len(orderBy) == 0 {
		return "ORDER BY created_at ASC", nil
	}
	parts := make([]string, 0, len(orderBy))
	for _, o := range orderBy {
		col, err := column(o.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// buildSet renders the SET clause for a sparse update. Only fields the caller
// marked are written; updated_at is always touched.
func buildSet(changes notification.UpdateRecord, a *args) string {
	parts := []string{"updated_at = now()"}
	set := func(col string, v any) {
		parts = append(parts, col+" = "+a.add(v))
	}

	if changes.UserID.IsSet() {
		set("user_id", changes.UserID.Value())
	}
	if changes.EmailOrPhone.IsSet() {
		set("email_or_phone", changes.EmailOrPhone.Value())
	}
	if changes.FirstName.IsSet() {
		set("first_name", changes.FirstName.Value())
	}
	if changes.LastName.IsSet() {
		set("last_name", changes.LastName.Value())
	}
	if changes.Type.IsSet() {
		set("notification_type", string(changes.Type.Value()))
	}
	if changes.Title.IsSet() {
		set("title", changes.Title.Value())
	}
	if changes.BodyTemplate.IsSet() {
		set("body_template", changes.BodyTemplate.Value())
	}
	if changes.ContextName.IsSet() {
		set("context_name", changes.ContextName.Value())
	}
	if changes.ContextParameters.IsSet() {
		set("context_parameters", jsonArg(changes.ContextParameters.Value()))
	}
	if changes.SendAfter.IsSet() {
		set("send_after", changes.SendAfter.Value())
	}
	if changes.SubjectTemplate.IsSet() {
		set("subject_template", changes.SubjectTemplate.Value())
	}
	if changes.Status.IsSet() {
		set("status", string(changes.Status.Value()))
	}
	if changes.ContextUsed.IsSet() {
		set("context_used", jsonArg(changes.ContextUsed.Value()))
	}
	if changes.ExtraParams.IsSet() {
		set("extra_params", jsonArg(changes.ExtraParams.Value()))
	}
	if changes.AdapterUsed.IsSet() {
		set("adapter_used", changes.AdapterUsed.Value())
	}
	if changes.SentAt.IsSet() {
		set("sent_at", changes.SentAt.Value())
	}
	if changes.ReadAt.IsSet() {
		set("read_at", changes.ReadAt.Value())
	}
	if changes.GitCommitSHA.IsSet() {
		set("git_commit_sha", changes.GitCommitSHA.Value())
	}

	return strings.Join(parts, ", ")
}

// jsonArg maps an absent JSON payload to SQL NULL instead of an empty byte
// slice, which pgx would reject as invalid jsonb.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
