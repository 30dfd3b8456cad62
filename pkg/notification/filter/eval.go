package filter

import (
	"strings"
	"time"
)

// Row exposes field values for in-memory predicate evaluation. The second
// return reports presence: a NULL column returns (zero, false).
type Row interface {
	Value(f Field) (any, bool)
}

// Eval evaluates a compiled predicate against a row. A nil predicate matches
// everything. Comparisons against absent (NULL) fields never match, mirroring
// SQL three-valued logic closely enough for this domain.
func Eval(p Predicate, row Row) bool {
	if p == nil {
		return true
	}

	switch pred := p.(type) {
	case And:
		for _, child := range pred {
			if !Eval(child, row) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range pred {
			if Eval(child, row) {
				return true
			}
		}
		return false
	case Not:
		return !Eval(pred.P, row)
	case Compare:
		return evalCompare(pred, row)
	case In:
		v, ok := row.Value(pred.Field)
		if !ok {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, candidate := range pred.Values {
			if s == candidate {
				return true
			}
		}
		return false
	case StringMatch:
		return evalStringMatch(pred, row)
	case IsNull:
		_, ok := row.Value(pred.Field)
		return !ok
	default:
		return false
	}
}

func evalCompare(pred Compare, row Row) bool {
	v, ok := row.Value(pred.Field)
	if !ok {
		return false
	}

	switch want := pred.Value.(type) {
	case string:
		got, ok := v.(string)
		if !ok {
			return false
		}
		return compareOrdered(strings.Compare(got, want), pred.Op)
	case time.Time:
		got, ok := v.(time.Time)
		if !ok {
			return false
		}
		switch {
		case got.Before(want):
			return compareOrdered(-1, pred.Op)
		case got.After(want):
			return compareOrdered(1, pred.Op)
		default:
			return compareOrdered(0, pred.Op)
		}
	default:
		return false
	}
}

func compareOrdered(cmp int, op Op) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	default:
		return false
	}
}

func evalStringMatch(pred StringMatch, row Row) bool {
	v, ok := row.Value(pred.Field)
	if !ok {
		return false
	}
	got, ok := v.(string)
	if !ok {
		return false
	}

	want := pred.Value
	if pred.CaseInsensitive {
		got = strings.ToLower(got)
		want = strings.ToLower(want)
	}

	switch pred.Lookup {
	case LookupExact, "":
		return got == want
	case LookupStartsWith:
		return strings.HasPrefix(got, want)
	case LookupEndsWith:
		return strings.HasSuffix(got, want)
	case LookupIncludes:
		return strings.Contains(got, want)
	default:
		return false
	}
}
