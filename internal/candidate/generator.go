// Package candidate derives index candidates from analyzed query shapes.
package candidate

import (
	"sort"
	"strings"

	"github.com/arkilian/advisor/internal/config"
	"github.com/arkilian/advisor/pkg/types"
)

// nonDeterministic lists functions whose result changes between calls. An
// expression over one of them can never be indexed.
var nonDeterministic = map[string]bool{
	"now":                   true,
	"random":                true,
	"rand":                  true,
	"setseed":               true,
	"current_timestamp":     true,
	"current_date":          true,
	"current_time":          true,
	"localtime":             true,
	"localtimestamp":        true,
	"clock_timestamp":       true,
	"statement_timestamp":   true,
	"transaction_timestamp": true,
	"timeofday":             true,
	"sysdate":               true,
	"nextval":               true,
	"currval":               true,
	"gen_random_uuid":       true,
	"uuid_generate_v4":      true,
	"uuid":                  true,
}

// IsDeterministic reports whether an expression predicate's function can back an
// expression index.
func IsDeterministic(function string) bool {
	return !nonDeterministic[strings.ToLower(function)]
}

// Generator applies the candidate rules to analyzed shapes.
type Generator struct {
	thresholds config.Thresholds
}

// New creates a generator.
func New(thresholds config.Thresholds) *Generator {
	return &Generator{thresholds: thresholds}
}

// set deduplicates candidates by identity.
type set struct {
	byID map[string]*types.IndexCandidate
}

func (s *set) add(c *types.IndexCandidate, shapeKey string, lowConfidence bool) {
	id := c.Identity()
	existing, ok := s.byID[id]
	if !ok {
		existing = c
		s.byID[id] = c
	}
	existing.MergeShapes(shapeKey)
	existing.LowConfidence = existing.LowConfidence || lowConfidence
}

// Generate returns the deduplicated candidates for a set of analyzed shapes,
// ordered by identity key.
func (g *Generator) Generate(analyzed []types.AnalyzedShape) []*types.IndexCandidate {
	s := &set{byID: make(map[string]*types.IndexCandidate)}

	exprShapes := make(map[string]int)
	for _, as := range analyzed {
		seen := make(map[string]bool)
		for _, p := range as.Predicates {
			if g.expressionEligible(p) && !seen[p.Expr] {
				seen[p.Expr] = true
				exprShapes[p.Expr]++
			}
		}
	}

	for _, as := range analyzed {
		g.single(s, as)
		g.composite(s, as)
		g.expression(s, as, exprShapes)
		g.partial(s, as)
	}

	out := make([]*types.IndexCandidate, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity() < out[j].Identity() })
	return out
}

// IsEqualityClass reports whether a predicate pins its column to discrete values.
func IsEqualityClass(p types.Predicate) bool {
	return p.Kind == types.PredicateEq || p.Kind == types.PredicateIn
}

// plainColumn reports whether a predicate can serve a column index key.
func plainColumn(p types.Predicate) bool {
	return p.Indexable() && !p.IsExpression() && p.Kind != types.PredicateNullCheck
}

func (g *Generator) single(s *set, as types.AnalyzedShape) {
	for _, p := range as.Predicates {
		if !plainColumn(p) || p.Kind == types.PredicateIn {
			continue
		}
		if p.Selectivity >= g.thresholds.SingleColumnSelectivity {
			continue
		}
		s.add(&types.IndexCandidate{
			Kind:    types.IndexSingle,
			Table:   as.Shape.Table,
			Columns: []string{p.Column},
		}, as.Shape.Key, p.LowConfidence)
	}
}

// composite builds eq columns (by selectivity, then declaration order) followed
// by the most selective range column.
func (g *Generator) composite(s *set, as types.AnalyzedShape) {
	cols, eqCount, low := prefixColumns(as.Predicates, "")
	if eqCount == 0 || len(cols) == eqCount {
		return
	}
	s.add(&types.IndexCandidate{
		Kind:    types.IndexComposite,
		Table:   as.Shape.Table,
		Columns: cols,
	}, as.Shape.Key, low)
}

// prefixColumns orders the eq-class columns of a shape followed by its most
// selective range column. exclude names a column to leave out.
func prefixColumns(preds []types.Predicate, exclude string) (cols []string, eqCount int, low bool) {
	seen := make(map[string]bool)
	for _, p := range preds {
		if !plainColumn(p) || !IsEqualityClass(p) || seen[p.Column] || p.Column == exclude {
			continue
		}
		seen[p.Column] = true
		cols = append(cols, p.Column)
		low = low || p.LowConfidence
	}
	eqCount = len(cols)
	// preds are sorted by selectivity, so the first range predicate is the most selective
	for _, p := range preds {
		if !plainColumn(p) || p.Kind != types.PredicateRange || seen[p.Column] || p.Column == exclude {
			continue
		}
		cols = append(cols, p.Column)
		low = low || p.LowConfidence
		break
	}
	return cols, eqCount, low
}

func (g *Generator) expressionEligible(p types.Predicate) bool {
	return p.Indexable() && p.IsExpression() && p.Kind != types.PredicateNullCheck && IsDeterministic(p.Function)
}

func (g *Generator) expression(s *set, as types.AnalyzedShape, exprShapes map[string]int) {
	for _, p := range as.Predicates {
		if !g.expressionEligible(p) || exprShapes[p.Expr] < g.thresholds.ExpressionMinShapes {
			continue
		}
		s.add(&types.IndexCandidate{
			Kind:       types.IndexExpression,
			Table:      as.Shape.Table,
			Columns:    []string{p.Column},
			Expression: p.Expr,
		}, as.Shape.Key, p.LowConfidence)
	}
}

func (g *Generator) partial(s *set, as types.AnalyzedShape) {
	for _, p := range as.Predicates {
		if p.Kind != types.PredicateNullCheck || !p.Indexable() || p.IsExpression() {
			continue
		}
		if p.Selectivity >= g.thresholds.PartialSelectivity {
			continue
		}
		cols, _, low := prefixColumns(as.Predicates, p.Column)
		if len(cols) == 0 {
			cols = []string{p.Column}
		}
		s.add(&types.IndexCandidate{
			Kind:      types.IndexPartial,
			Table:     as.Shape.Table,
			Columns:   cols,
			Predicate: p.NullCheckText(),
		}, as.Shape.Key, low || p.LowConfidence)
	}
}
