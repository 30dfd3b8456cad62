// Package filter defines the generic boolean filter language for notification
// queries and compiles it into a store-facing predicate tree.
//
// Callers build an Expr tree: Where leaves carry per-field constraints (value
// lists, string lookups, inclusive time ranges) and Group nodes combine
// sub-expressions with and/or/not. Compile translates the tree into a
// Predicate IR that every store adapter understands:
//
//	expr := filter.Group{
//		And: []filter.Expr{
//			filter.Where{Status: []string{"SENT", "FAILED"}},
//			filter.Group{Not: filter.Where{ContextName: &filter.Match{Value: "welcome"}}},
//		},
//	}
//	pred, err := filter.Compile(expr)
//
// Empty constraints vanish: an empty Where, an empty TimeRange, or a Group
// whose children all compile to nothing produce a nil predicate rather than a
// degenerate "always true" clause.
//
// The Predicate IR is deliberately small (And, Or, Not, Compare, In,
// StringMatch, IsNull) so that rendering it to SQL, bson, or a direct
// in-memory evaluation (Eval) stays mechanical.
package filter
