package parser

import (
	"sort"
	"strings"
)

// PredicateType represents the type of a predicate.
type PredicateType int

const (
	PredicateEquality PredicateType = iota // column = value, column <> value
	PredicateRange                         // column < value, column > value, etc.
	PredicateIn                            // column IN (v1, v2, ...)
	PredicateBetween                       // column BETWEEN low AND high
	PredicateLike                          // column LIKE pattern
	PredicateIsNull                        // column IS NULL / IS NOT NULL
)

// String returns the lower-case name of the predicate type.
func (t PredicateType) String() string {
	switch t {
	case PredicateEquality:
		return "equality"
	case PredicateRange:
		return "range"
	case PredicateIn:
		return "in"
	case PredicateBetween:
		return "between"
	case PredicateLike:
		return "like"
	case PredicateIsNull:
		return "is-null"
	default:
		return "unknown"
	}
}

// Param stands for a value that is not known when the query is recorded: a
// bind placeholder or a computed expression such as now() - interval '1 day'.
type Param struct {
	Index int
}

// Predicate represents a filter term extracted from a WHERE clause.
type Predicate struct {
	Type PredicateType
	// Column is the lower-cased base column the term filters on
	Column string
	// Function names the function or cast wrapping Column, if any
	Function string
	// Expr is the canonical left-hand side text with literals kept
	Expr     string
	Operator string        // =, <>, <, <=, >, >=, IN, BETWEEN, LIKE, IS NULL
	Value    interface{}   // Single value for equality/range/like
	Values   []interface{} // Multiple values for IN
	Low      interface{}   // Low bound for BETWEEN
	High     interface{}   // High bound for BETWEEN
	Not      bool          // Negation flag (NOT IN, NOT LIKE, NOT BETWEEN, IS NOT NULL)
	// Disjunctive is set for terms that sit under an OR once negations are pushed down
	Disjunctive bool
	// Order is the position of the term in the WHERE clause
	Order int
}

// PredicateExtractor extracts predicates from WHERE clauses.
type PredicateExtractor struct {
	predicates []Predicate
}

// NewPredicateExtractor creates a new PredicateExtractor.
func NewPredicateExtractor() *PredicateExtractor {
	return &PredicateExtractor{}
}

// ExtractPredicates extracts all predicates from a SELECT statement's WHERE clause.
func ExtractPredicates(stmt *SelectStatement) []Predicate {
	if stmt.Where == nil {
		return nil
	}
	return ExtractExprPredicates(stmt.Where)
}

// ExtractExprPredicates extracts predicates from a boolean expression.
func ExtractExprPredicates(expr Expression) []Predicate {
	extractor := NewPredicateExtractor()
	extractor.extract(expr, false, false)
	return extractor.predicates
}

// extract walks a boolean expression, pushing NOT down to the leaves. Under a
// negation AND behaves as OR and vice versa.
func (e *PredicateExtractor) extract(expr Expression, negate, disjunctive bool) {
	switch ex := expr.(type) {
	case *BinaryExpr:
		op := strings.ToUpper(ex.Operator)
		switch op {
		case "AND", "OR":
			actsAsOr := (op == "OR") != negate
			e.extract(ex.Left, negate, disjunctive || actsAsOr)
			e.extract(ex.Right, negate, disjunctive || actsAsOr)
		case "=", "<>", "!=", "<", ">", "<=", ">=":
			e.extractComparison(ex, negate, disjunctive)
		}
	case *InExpr:
		e.extractIn(ex, negate, disjunctive)
	case *BetweenExpr:
		e.extractBetween(ex, negate, disjunctive)
	case *LikeExpr:
		e.extractLike(ex, negate, disjunctive)
	case *IsNullExpr:
		e.extractIsNull(ex, negate, disjunctive)
	case *UnaryExpr:
		if ex.Operator == "NOT" {
			e.extract(ex.Operand, !negate, disjunctive)
		}
	case *ParenExpr:
		e.extract(ex.Expr, negate, disjunctive)
	}
}

var negatedOperator = map[string]string{
	"=":  "<>",
	"<>": "=",
	"<":  ">=",
	">=": "<",
	">":  "<=",
	"<=": ">",
}

var flippedOperator = map[string]string{
	"<":  ">",
	">":  "<",
	"<=": ">=",
	">=": "<=",
	"=":  "=",
	"<>": "<>",
}

func (e *PredicateExtractor) extractComparison(expr *BinaryExpr, negate, disjunctive bool) {
	op := expr.Operator
	if op == "!=" {
		op = "<>"
	}

	left, right := expr.Left, expr.Right
	col, fn, ok := columnOf(left)
	if !ok {
		// Reverse comparison: value op column
		col, fn, ok = columnOf(right)
		if !ok {
			return
		}
		left, right = right, left
		op = flippedOperator[op]
	}

	val, ok := valueOf(right)
	if !ok {
		return
	}
	if negate {
		op = negatedOperator[op]
	}

	predType := PredicateRange
	if op == "=" || op == "<>" {
		predType = PredicateEquality
	}
	e.add(Predicate{
		Type:        predType,
		Column:      col,
		Function:    fn,
		Expr:        CanonicalExpr(left),
		Operator:    op,
		Value:       val,
		Disjunctive: disjunctive,
	})
}

func (e *PredicateExtractor) extractIn(expr *InExpr, negate, disjunctive bool) {
	col, fn, ok := columnOf(expr.Expr)
	if !ok {
		return
	}

	var values []interface{}
	for _, v := range expr.Values {
		val, ok := valueOf(v)
		if !ok {
			return
		}
		values = append(values, val)
	}

	e.add(Predicate{
		Type:        PredicateIn,
		Column:      col,
		Function:    fn,
		Expr:        CanonicalExpr(expr.Expr),
		Operator:    "IN",
		Values:      values,
		Not:         expr.Not != negate,
		Disjunctive: disjunctive,
	})
}

func (e *PredicateExtractor) extractBetween(expr *BetweenExpr, negate, disjunctive bool) {
	col, fn, ok := columnOf(expr.Expr)
	if !ok {
		return
	}

	low, okLow := valueOf(expr.Low)
	high, okHigh := valueOf(expr.High)
	if !okLow || !okHigh {
		return
	}

	e.add(Predicate{
		Type:        PredicateBetween,
		Column:      col,
		Function:    fn,
		Expr:        CanonicalExpr(expr.Expr),
		Operator:    "BETWEEN",
		Low:         low,
		High:        high,
		Not:         expr.Not != negate,
		Disjunctive: disjunctive,
	})
}

func (e *PredicateExtractor) extractLike(expr *LikeExpr, negate, disjunctive bool) {
	col, fn, ok := columnOf(expr.Expr)
	if !ok {
		return
	}

	pattern, ok := valueOf(expr.Pattern)
	if !ok {
		return
	}

	e.add(Predicate{
		Type:        PredicateLike,
		Column:      col,
		Function:    fn,
		Expr:        CanonicalExpr(expr.Expr),
		Operator:    "LIKE",
		Value:       pattern,
		Not:         expr.Not != negate,
		Disjunctive: disjunctive,
	})
}

func (e *PredicateExtractor) extractIsNull(expr *IsNullExpr, negate, disjunctive bool) {
	col, fn, ok := columnOf(expr.Expr)
	if !ok {
		return
	}

	e.add(Predicate{
		Type:        PredicateIsNull,
		Column:      col,
		Function:    fn,
		Expr:        CanonicalExpr(expr.Expr),
		Operator:    "IS NULL",
		Not:         expr.Not != negate,
		Disjunctive: disjunctive,
	})
}

func (e *PredicateExtractor) add(p Predicate) {
	p.Order = len(e.predicates)
	e.predicates = append(e.predicates, p)
}

// columnOf reports the base column of a filter operand: a bare column, a cast
// of one, or a function call whose only column argument is a bare column and
// whose other arguments are values.
func columnOf(expr Expression) (column, function string, ok bool) {
	switch ex := expr.(type) {
	case *ColumnRef:
		return strings.ToLower(ex.Column), "", true
	case *ParenExpr:
		return columnOf(ex.Expr)
	case *CastExpr:
		col, fn, ok := columnOf(ex.Expr)
		if !ok || fn != "" {
			return "", "", false
		}
		return col, "cast", true
	case *FunctionCall:
		found := ""
		for _, arg := range ex.Args {
			if isValue(arg) {
				continue
			}
			col, fn, ok := columnOf(arg)
			if !ok || fn != "" || found != "" {
				return "", "", false
			}
			found = col
		}
		if found == "" {
			return "", "", false
		}
		return found, strings.ToLower(ex.Name), true
	default:
		return "", "", false
	}
}

// valueOf extracts the comparison value of a filter operand. Literals are
// returned as-is; bind parameters and column-free computed expressions are
// returned as Param.
func valueOf(expr Expression) (interface{}, bool) {
	switch ex := expr.(type) {
	case *Literal:
		return ex.Value, true
	case *Placeholder:
		return Param{Index: ex.Index}, true
	case *ParenExpr:
		return valueOf(ex.Expr)
	case *CastExpr:
		return valueOf(ex.Expr)
	default:
		if len(ReferencedColumns(expr)) == 0 {
			return Param{}, true
		}
		return nil, false
	}
}

// ReferencedColumns returns every column referenced anywhere in an expression,
// lower-cased, sorted and deduplicated.
func ReferencedColumns(expr Expression) []string {
	set := make(map[string]bool)
	collectColumns(expr, set)
	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func collectColumns(expr Expression, set map[string]bool) {
	switch ex := expr.(type) {
	case *ColumnRef:
		set[strings.ToLower(ex.Column)] = true
	case *BinaryExpr:
		collectColumns(ex.Left, set)
		collectColumns(ex.Right, set)
	case *UnaryExpr:
		collectColumns(ex.Operand, set)
	case *ParenExpr:
		collectColumns(ex.Expr, set)
	case *CastExpr:
		collectColumns(ex.Expr, set)
	case *FunctionCall:
		for _, a := range ex.Args {
			collectColumns(a, set)
		}
	case *AggregateExpr:
		if ex.Arg != nil {
			collectColumns(ex.Arg, set)
		}
	case *InExpr:
		collectColumns(ex.Expr, set)
		for _, v := range ex.Values {
			collectColumns(v, set)
		}
	case *BetweenExpr:
		collectColumns(ex.Expr, set)
		collectColumns(ex.Low, set)
		collectColumns(ex.High, set)
	case *IsNullExpr:
		collectColumns(ex.Expr, set)
	case *LikeExpr:
		collectColumns(ex.Expr, set)
		collectColumns(ex.Pattern, set)
	}
}
