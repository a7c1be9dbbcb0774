package types

// PredicateKind is the tagged variant of an analyzed predicate.
type PredicateKind string

const (
	PredicateEq        PredicateKind = "eq"
	PredicateRange     PredicateKind = "range"
	PredicateNullCheck PredicateKind = "null-check"
	PredicateIn        PredicateKind = "in"
)

// Predicate is a classified filter term with its estimated selectivity.
// It belongs to exactly one QueryShape and is never persisted on its own.
type Predicate struct {
	Kind PredicateKind `json:"kind"`
	// Column is the base column; Expr equals Column unless the term wraps it in a function.
	Column   string `json:"column"`
	Expr     string `json:"expr"`
	Function string `json:"function,omitempty"`
	Operator string `json:"operator"`
	// IsNotNull is the polarity of a null-check predicate.
	IsNotNull bool `json:"is_not_null,omitempty"`
	// Negated marks <>, NOT IN and NOT BETWEEN, which an index cannot serve.
	Negated     bool    `json:"negated,omitempty"`
	Disjunctive bool    `json:"disjunctive,omitempty"`
	Selectivity float64 `json:"selectivity"`
	// LowConfidence is set when the estimate fell back to a default.
	LowConfidence bool `json:"low_confidence,omitempty"`
	Order         int  `json:"order"`
}

// IsExpression reports whether the predicate filters on a function of a column.
func (p Predicate) IsExpression() bool {
	return p.Function != ""
}

// Indexable reports whether a B-tree style index could serve the predicate.
func (p Predicate) Indexable() bool {
	return !p.Disjunctive && !p.Negated
}

// NullCheckText renders the null-check predicate in SQL.
func (p Predicate) NullCheckText() string {
	if p.IsNotNull {
		return p.Expr + " IS NOT NULL"
	}
	return p.Expr + " IS NULL"
}

// AnalyzedShape pairs a shape with its analyzed predicates.
type AnalyzedShape struct {
	Shape      *QueryShape `json:"shape"`
	Predicates []Predicate `json:"predicates"`
	// Weight is the frequency used for benefit weighting (frequency plus history boost).
	Weight float64 `json:"weight"`
}
