package filter

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLookup is returned for a Match carrying an unrecognized Lookup.
	ErrUnknownLookup = errors.New("unknown string lookup")
	// ErrUnknownExpr is returned for expression node types the compiler does not know.
	ErrUnknownExpr = errors.New("unknown filter expression")
)

// Compile translates a filter expression into a store-facing predicate tree.
// A nil expression, and any branch whose constraints are all empty, compiles to
// a nil predicate (no constraint). Logical nodes map structurally.
func Compile(e Expr) (Predicate, error) {
	if e == nil {
		return nil, nil
	}

	switch node := e.(type) {
	case Where:
		return compileWhere(node)
	case Group:
		return compileGroup(node)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownExpr, e)
	}
}

func compileGroup(g Group) (Predicate, error) {
	var parts []Predicate

	if len(g.And) > 0 {
		children, err := compileAll(g.And)
		if err != nil {
			return nil, err
		}
		if p := conjoin(children); p != nil {
			parts = append(parts, p)
		}
	}

	if len(g.Or) > 0 {
		children, err := compileAll(g.Or)
		if err != nil {
			return nil, err
		}
		switch len(children) {
		case 0:
		case 1:
			parts = append(parts, children[0])
		default:
			parts = append(parts, Or(children))
		}
	}

	if g.Not != nil {
		inner, err := Compile(g.Not)
		if err != nil {
			return nil, err
		}
		if inner != nil {
			parts = append(parts, Not{P: inner})
		}
	}

	return conjoin(parts), nil
}

func compileAll(exprs []Expr) ([]Predicate, error) {
	var out []Predicate
	for _, e := range exprs {
		p, err := Compile(e)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func compileWhere(w Where) (Predicate, error) {
	var parts []Predicate

	addValues := func(field Field, values []string) {
		switch len(values) {
		case 0:
		case 1:
			parts = append(parts, Compare{Field: field, Op: OpEq, Value: values[0]})
		default:
			parts = append(parts, In{Field: field, Values: values})
		}
	}
	addValues(FieldID, w.ID)
	addValues(FieldUserID, w.UserID)
	addValues(FieldStatus, w.Status)
	addValues(FieldType, w.Type)

	matches := []struct {
		field Field
		m     *Match
	}{
		{FieldEmailOrPhone, w.EmailOrPhone},
		{FieldTitle, w.Title},
		{FieldBodyTemplate, w.BodyTemplate},
		{FieldContextName, w.ContextName},
		{FieldAdapterUsed, w.AdapterUsed},
	}
	for _, sm := range matches {
		if sm.m == nil {
			continue
		}
		lookup := sm.m.Lookup
		if lookup == "" {
			lookup = LookupExact
		}
		switch lookup {
		case LookupExact, LookupStartsWith, LookupEndsWith, LookupIncludes:
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownLookup, sm.m.Lookup)
		}
		parts = append(parts, StringMatch{
			Field:           sm.field,
			Lookup:          lookup,
			Value:           sm.m.Value,
			CaseInsensitive: sm.m.CaseInsensitive,
		})
	}

	ranges := []struct {
		field Field
		r     *TimeRange
	}{
		{FieldSendAfter, w.SendAfterRange},
		{FieldCreatedAt, w.CreatedAtRange},
		{FieldSentAt, w.SentAtRange},
	}
	for _, tr := range ranges {
		if tr.r == nil {
			continue
		}
		if tr.r.From != nil {
			parts = append(parts, Compare{Field: tr.field, Op: OpGte, Value: *tr.r.From})
		}
		if tr.r.To != nil {
			parts = append(parts, Compare{Field: tr.field, Op: OpLte, Value: *tr.r.To})
		}
	}

	return conjoin(parts), nil
}

// conjoin folds predicates into a single one, dropping the wrapper for a
// single child and returning nil when nothing remains.
func conjoin(parts []Predicate) Predicate {
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	default:
		return And(parts)
	}
}
