// Package analyzer classifies the filter terms of query shapes and estimates
// their selectivity against a statistics snapshot.
package analyzer

import (
	"sort"

	"github.com/arkilian/advisor/internal/config"
	advisorerrors "github.com/arkilian/advisor/internal/errors"
	"github.com/arkilian/advisor/pkg/types"
)

// Analyzer turns raw shape terms into typed predicates with selectivities.
// It holds no state besides its thresholds and is safe for concurrent use.
type Analyzer struct {
	thresholds config.Thresholds
}

// New creates an analyzer.
func New(thresholds config.Thresholds) *Analyzer {
	return &Analyzer{thresholds: thresholds}
}

// rangeTerm accumulates the conjunctive bounds placed on one expression.
type rangeTerm struct {
	column   string
	expr     string
	function string
	order    int
	lowers   []types.Value
	uppers   []types.Value
	ops      []string
}

// run holds per-call state.
type run struct {
	a       *Analyzer
	shape   *types.QueryShape
	snap    *types.StatisticsSnapshot
	missing map[string]bool
	issues  []types.Issue
}

// Analyze classifies every filter term of a shape. Conjunctive lower and upper
// bounds on the same expression are merged into one range predicate. The result
// is sorted by selectivity, ties broken by declaration order. Missing column
// statistics are reported as issues and never fail the call.
func (a *Analyzer) Analyze(shape *types.QueryShape, snap *types.StatisticsSnapshot) ([]types.Predicate, []types.Issue) {
	if snap == nil {
		snap = types.NewStatisticsSnapshot(types.TableStatistics{Table: shape.Table}, nil)
	}
	r := &run{a: a, shape: shape, snap: snap, missing: make(map[string]bool)}

	var preds []types.Predicate
	ranges := make(map[string]*rangeTerm)
	var rangeOrder []string

	for _, term := range shape.Terms {
		switch term.Operator {
		case "LIKE":
			// not indexable
			continue
		case "IS NULL":
			preds = append(preds, r.nullCheck(term))
		case "=", "<>":
			preds = append(preds, r.equality(term))
		case "IN":
			preds = append(preds, r.in(term))
		case "<", "<=", ">", ">=", "BETWEEN":
			if term.Disjunctive || term.Not {
				preds = append(preds, r.standaloneRange(term))
				continue
			}
			rt, ok := ranges[term.Expr]
			if !ok {
				rt = &rangeTerm{column: term.Column, expr: term.Expr, function: term.Function, order: term.Order}
				ranges[term.Expr] = rt
				rangeOrder = append(rangeOrder, term.Expr)
			}
			rt.add(term)
		}
	}

	for _, expr := range rangeOrder {
		preds = append(preds, r.mergedRange(ranges[expr]))
	}

	sort.SliceStable(preds, func(i, j int) bool {
		if preds[i].Selectivity != preds[j].Selectivity {
			return preds[i].Selectivity < preds[j].Selectivity
		}
		return preds[i].Order < preds[j].Order
	})
	return preds, r.issues
}

// AnalyzeShapes analyzes a set of shapes. Each shape is weighted by its frequency
// and missing-statistics issues are reported once per column.
func (a *Analyzer) AnalyzeShapes(shapes []*types.QueryShape, snap *types.StatisticsSnapshot) ([]types.AnalyzedShape, []types.Issue) {
	out := make([]types.AnalyzedShape, 0, len(shapes))
	seen := make(map[string]bool)
	var issues []types.Issue
	for _, s := range shapes {
		preds, is := a.Analyze(s, snap)
		out = append(out, types.AnalyzedShape{Shape: s, Predicates: preds, Weight: float64(s.Frequency)})
		for _, issue := range is {
			if seen[issue.Subject] {
				continue
			}
			seen[issue.Subject] = true
			issues = append(issues, issue)
		}
	}
	return out, issues
}

func (rt *rangeTerm) add(term types.Term) {
	rt.ops = append(rt.ops, term.Operator)
	switch term.Operator {
	case ">", ">=":
		rt.lowers = append(rt.lowers, term.Values...)
	case "<", "<=":
		rt.uppers = append(rt.uppers, term.Values...)
	case "BETWEEN":
		if len(term.Values) == 2 {
			rt.lowers = append(rt.lowers, term.Values[0])
			rt.uppers = append(rt.uppers, term.Values[1])
		}
	}
	if term.Order < rt.order {
		rt.order = term.Order
	}
}

func (rt *rangeTerm) operator() string {
	if len(rt.lowers) > 0 && len(rt.uppers) > 0 {
		return "BETWEEN"
	}
	return rt.ops[0]
}

// stats looks up column statistics, recording a missing-statistics issue once.
func (r *run) stats(column string) (*types.ColumnStatistics, bool) {
	cs, ok := r.snap.Column(column)
	if ok {
		return cs, true
	}
	if !r.missing[column] {
		r.missing[column] = true
		err := advisorerrors.NewMissingStatisticsError(r.shape.Table, column)
		r.issues = append(r.issues, types.Issue{
			Code:    types.IssueMissingStatistics,
			Message: err.Message,
			Subject: r.shape.Table + "." + column,
		})
	}
	return nil, false
}

func base(kind types.PredicateKind, term types.Term) types.Predicate {
	expr := term.Expr
	if expr == "" {
		expr = term.Column
	}
	return types.Predicate{
		Kind:        kind,
		Column:      term.Column,
		Expr:        expr,
		Function:    term.Function,
		Operator:    term.Operator,
		Disjunctive: term.Disjunctive,
		Order:       term.Order,
	}
}

func (r *run) nullCheck(term types.Term) types.Predicate {
	p := base(types.PredicateNullCheck, term)
	p.IsNotNull = term.Not
	cs, ok := r.stats(term.Column)
	if !ok {
		p.Selectivity = r.a.thresholds.MissingStatsSelectivity
		p.LowConfidence = true
		return p
	}
	if p.IsNotNull {
		p.Selectivity = clamp(1 - cs.NullFraction)
	} else {
		p.Selectivity = clamp(cs.NullFraction)
	}
	return p
}

func (r *run) equality(term types.Term) types.Predicate {
	p := base(types.PredicateEq, term)
	p.Negated = term.Operator == "<>"
	cs, ok := r.stats(term.Column)
	if !ok {
		p.Selectivity = r.a.thresholds.MissingStatsSelectivity
		p.LowConfidence = true
		return p
	}
	eq := eqSelectivity(cs, r.snap.RowCount())
	// the distinct count of a function's domain is unknown
	p.LowConfidence = term.Function != ""
	if p.Negated {
		p.Selectivity = clamp(1 - cs.NullFraction - eq)
	} else {
		p.Selectivity = eq
	}
	return p
}

func (r *run) in(term types.Term) types.Predicate {
	p := base(types.PredicateIn, term)
	p.Negated = term.Not
	cs, ok := r.stats(term.Column)
	if !ok {
		p.Selectivity = r.a.thresholds.MissingStatsSelectivity
		p.LowConfidence = true
		return p
	}
	k := len(term.Values)
	if k == 0 {
		k = 1
	}
	sel := clamp(float64(k) * eqSelectivity(cs, r.snap.RowCount()))
	p.LowConfidence = term.Function != ""
	if p.Negated {
		p.Selectivity = clamp(1 - cs.NullFraction - sel)
	} else {
		p.Selectivity = sel
	}
	return p
}

// standaloneRange handles range terms that cannot be merged: disjunctive terms
// and NOT BETWEEN.
func (r *run) standaloneRange(term types.Term) types.Predicate {
	rt := &rangeTerm{column: term.Column, expr: term.Expr, function: term.Function, order: term.Order}
	rt.add(term)
	p := r.mergedRange(rt)
	p.Operator = term.Operator
	p.Disjunctive = term.Disjunctive
	if term.Not {
		p.Negated = true
		if cs, ok := r.snap.Column(term.Column); ok && !p.LowConfidence {
			p.Selectivity = clamp(1 - cs.NullFraction - p.Selectivity)
		}
	}
	return p
}

func (r *run) mergedRange(rt *rangeTerm) types.Predicate {
	expr := rt.expr
	if expr == "" {
		expr = rt.column
	}
	p := types.Predicate{
		Kind:     types.PredicateRange,
		Column:   rt.column,
		Expr:     expr,
		Function: rt.function,
		Operator: rt.operator(),
		Order:    rt.order,
	}

	cs, ok := r.stats(rt.column)
	if !ok {
		p.Selectivity = r.a.thresholds.MissingStatsSelectivity
		p.LowConfidence = true
		return p
	}

	sel, exact := r.rangeSelectivity(rt, cs)
	p.Selectivity = sel
	p.LowConfidence = !exact
	return p
}

// rangeSelectivity computes F(hi) - F(lo) scaled by the non-null share. It falls
// back to the default range selectivity when a bound has no usable exemplar or
// the column has no numeric histogram.
func (r *run) rangeSelectivity(rt *rangeTerm, cs *types.ColumnStatistics) (float64, bool) {
	def := r.a.thresholds.DefaultRangeSelectivity
	if rt.function != "" || len(cs.Histogram) == 0 || cs.Kind == types.ColumnText {
		return def, false
	}

	var lo, hi *float64
	for _, v := range rt.lowers {
		f, ok := numericValue(v, cs.Kind)
		if !ok {
			return def, false
		}
		if lo == nil || f > *lo {
			lo = &f
		}
	}
	for _, v := range rt.uppers {
		f, ok := numericValue(v, cs.Kind)
		if !ok {
			return def, false
		}
		if hi == nil || f < *hi {
			hi = &f
		}
	}
	if lo == nil && hi == nil {
		return def, false
	}

	return clamp(rangeFraction(cs.Histogram, lo, hi) * (1 - cs.NullFraction)), true
}
