package mongo

import (
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/notification/filter"
)

var (
	ErrUnknownField     = errors.New("unknown notification field")
	ErrUnknownPredicate = errors.New("unknown predicate type")
)

var fieldKeys = map[filter.Field]string{
	filter.FieldID:              "_id",
	filter.FieldUserID:          "user_id",
	filter.FieldEmailOrPhone:    "email_or_phone",
	filter.FieldType:            "notification_type",
	filter.FieldStatus:          "status",
	filter.FieldTitle:           "title",
	filter.FieldBodyTemplate:    "body_template",
	filter.FieldSubjectTemplate: "subject_template",
	filter.FieldContextName:     "context_name",
	filter.FieldAdapterUsed:     "adapter_used",
	filter.FieldSendAfter:       "send_after",
	filter.FieldCreatedAt:       "created_at",
	filter.FieldSentAt:          "sent_at",
	filter.FieldReadAt:          "read_at",
}

func fieldKey(f filter.Field) (string, error) {
	key, ok := fieldKeys[f]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, string(f))
	}
	return key, nil
}

var compareOps = map[filter.Op]string{
	filter.OpEq:  "$eq",
	filter.OpGt:  "$gt",
	filter.OpGte: "$gte",
	filter.OpLt:  "$lt",
	filter.OpLte: "$lte",
}

// renderFilter turns a compiled predicate into a filter document. A nil
// predicate matches every document.
func renderFilter(p filter.Predicate) (bson.D, error) {
	if p == nil {
		return bson.D{}, nil
	}

	switch pred := p.(type) {
	case filter.And:
		return renderJunction("$and", pred)
	case filter.Or:
		return renderJunction("$or", pred)
	case filter.Not:
		inner, err := renderFilter(pred.P)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{inner}}}, nil
	case filter.Compare:
		key, err := fieldKey(pred.Field)
		if err != nil {
			return nil, err
		}
		op, ok := compareOps[pred.Op]
		if !ok {
			return nil, fmt.Errorf("%w: comparison %q", ErrUnknownPredicate, string(pred.Op))
		}
		// Range operators in Mongo match null/missing values in unintuitive
		// ways, so pin the comparison to documents where the field exists and
		// is not null. Matches the SQL rule that NULL never compares true.
		return bson.D{{Key: key, Value: bson.D{
			{Key: op, Value: pred.Value},
			{Key: "$ne", Value: nil},
		}}}, nil
	case filter.In:
		key, err := fieldKey(pred.Field)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: key, Value: bson.D{{Key: "$in", Value: pred.Values}}}}, nil
	case filter.StringMatch:
		return renderStringMatch(pred)
	case filter.IsNull:
		key, err := fieldKey(pred.Field)
		if err != nil {
			return nil, err
		}
		// {field: null} matches both explicit null and absent fields.
		return bson.D{{Key: key, Value: nil}}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPredicate, p)
	}
}

func renderJunction(op string, children []filter.Predicate) (bson.D, error) {
	if len(children) == 0 {
		if op == "$and" {
			return bson.D{}, nil
		}
		// An empty $or matches nothing.
		return bson.D{{Key: "_id", Value: bson.D{{Key: "$exists", Value: false}}}}, nil
	}
	parts := make(bson.A, 0, len(children))
	for _, child := range children {
		doc, err := renderFilter(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, doc)
	}
	return bson.D{{Key: op, Value: parts}}, nil
}

func renderStringMatch(m filter.StringMatch) (bson.D, error) {
	key, err := fieldKey(m.Field)
	if err != nil {
		return nil, err
	}

	if m.Lookup == filter.LookupExact && !m.CaseInsensitive {
		return bson.D{{Key: key, Value: m.Value}}, nil
	}

	quoted := regexp.QuoteMeta(m.Value)
	var pattern string
	switch m.Lookup {
	case filter.LookupExact:
		pattern = "^" + quoted + "$"
	case filter.LookupStartsWith:
		pattern = "^" + quoted
	case filter.LookupEndsWith:
		pattern = quoted + "$"
	case filter.LookupIncludes:
		pattern = quoted
	default:
		return nil, fmt.Errorf("%w: %q", filter.ErrUnknownLookup, string(m.Lookup))
	}

	var opts string
	if m.CaseInsensitive {
		opts = "i"
	}
	return bson.D{{Key: key, Value: bson.Regex{Pattern: pattern, Options: opts}}}, nil
}

// renderSort builds the sort document for list queries, defaulting to creation
// time ascending.
func renderSort(orderBy []notification.Order) (bson.D, error) {
	if len(orderBy) == 0 {
		return bson.D{{Key: "created_at", Value: 1}}, nil
	}
	sort := make(bson.D, 0, len(orderBy))
	for _, o := range orderBy {
		key, err := fieldKey(o.Field)
		if err != nil {
			return nil, err
		}
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: key, Value: dir})
	}
	return sort, nil
}

// buildSet renders the $set document for a sparse update. updated_at is filled
// in by the store.
func buildSet(changes notification.UpdateRecord) (bson.M, error) {
	set := bson.M{}

	if changes.UserID.IsSet() {
		set["user_id"] = changes.UserID.Value()
	}
	if changes.EmailOrPhone.IsSet() {
		set["email_or_phone"] = changes.EmailOrPhone.Value()
	}
	if changes.FirstName.IsSet() {
		set["first_name"] = changes.FirstName.Value()
	}
	if changes.LastName.IsSet() {
		set["last_name"] = changes.LastName.Value()
	}
	if changes.Type.IsSet() {
		set["notification_type"] = string(changes.Type.Value())
	}
	if changes.Title.IsSet() {
		set["title"] = changes.Title.Value()
	}
	if changes.BodyTemplate.IsSet() {
		set["body_template"] = changes.BodyTemplate.Value()
	}
	if changes.ContextName.IsSet() {
		set["context_name"] = changes.ContextName.Value()
	}
	if changes.ContextParameters.IsSet() {
		doc, err := jsonToDoc(changes.ContextParameters.Value())
		if err != nil {
			return nil, err
		}
		set["context_parameters"] = doc
	}
	if changes.SendAfter.IsSet() {
		set["send_after"] = changes.SendAfter.Value()
	}
	if changes.SubjectTemplate.IsSet() {
		set["subject_template"] = changes.SubjectTemplate.Value()
	}
	if changes.Status.IsSet() {
		set["status"] = string(changes.Status.Value())
	}
	if changes.ContextUsed.IsSet() {
		doc, err := jsonToDoc(changes.ContextUsed.Value())
		if err != nil {
			return nil, err
		}
		set["context_used"] = doc
	}
	if changes.ExtraParams.IsSet() {
		doc, err := jsonToDoc(changes.ExtraParams.Value())
		if err != nil {
			return nil, err
		}
		set["extra_params"] = doc
	}
	if changes.AdapterUsed.IsSet() {
		set["adapter_used"] = changes.AdapterUsed.Value()
	}
	if changes.SentAt.IsSet() {
		set["sent_at"] = changes.SentAt.Value()
	}
	if changes.ReadAt.IsSet() {
		set["read_at"] = changes.ReadAt.Value()
	}
	if changes.GitCommitSHA.IsSet() {
		set["git_commit_sha"] = changes.GitCommitSHA.Value()
	}

	return set, nil
}
