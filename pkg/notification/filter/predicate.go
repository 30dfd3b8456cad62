package filter

// Predicate is the compiled, store-facing form of a filter expression. Store
// adapters render it natively: the Postgres store emits SQL, the Mongo store
// emits bson, and the in-memory store evaluates it with Eval.
type Predicate interface {
	isPredicate()
}

// And matches when every child predicate matches.
type And []Predicate

// Or matches when at least one child predicate matches.
type Or []Predicate

// Not inverts a predicate.
type Not struct {
	P Predicate
}

// Op is a comparison operator for Compare predicates.
type Op string

const (
	OpEq  Op = "="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

// Compare matches a field against a scalar value. Value is either a string or
// a time.Time depending on the field. NULL fields never match.
type Compare struct {
	Field Field
	Op    Op
	Value any
}

// In matches when the field equals any of the listed values.
type In struct {
	Field  Field
	Values []string
}

// StringMatch matches a string field using a Lookup strategy.
type StringMatch struct {
	Field           Field
	Lookup          Lookup
	Value           string
	CaseInsensitive bool
}

// IsNull matches when the field is absent/NULL.
type IsNull struct {
	Field Field
}

func (And) isPredicate()         {}
func (Or) isPredicate()          {}
func (Not) isPredicate()         {}
func (Compare) isPredicate()     {}
func (In) isPredicate()          {}
func (StringMatch) isPredicate() {}
func (IsNull) isPredicate()      {}
