// Package cost estimates the benefit and maintenance cost of index candidates.
package cost

import (
	"math"
	"sort"

	"github.com/arkilian/advisor/internal/candidate"
	"github.com/arkilian/advisor/internal/config"
	"github.com/arkilian/advisor/pkg/types"
)

// Reason texts for shapes no index can help.
const (
	ReasonFullScanRequired = "no indexing benefit: full scan required"
)

// Model is the cost model. It is stateless and safe for concurrent use.
type Model struct {
	cost       config.CostConfig
	thresholds config.Thresholds
}

// New creates a cost model.
func New(cost config.CostConfig, thresholds config.Thresholds) *Model {
	return &Model{cost: cost, thresholds: thresholds}
}

// Scored pairs a candidate with its benefit score.
type Scored struct {
	Candidate *types.IndexCandidate
	Score     types.BenefitScore
}

// FullScanCost returns the cost of reading every row.
func (m *Model) FullScanCost(rows int64) float64 {
	return float64(rows) * m.cost.SeqRowCost
}

// IndexedCost returns the cost of an index lookup that matches sel of the rows.
func (m *Model) IndexedCost(sel float64, rows int64) float64 {
	r := float64(rows)
	return sel*r*m.cost.IndexRowCost*math.Max(1, math.Log2(r)) + m.cost.IndexEntryOverhead
}

// Estimate scores one candidate against the analyzed shapes. A shape counts as
// served when the candidate can answer at least one of its predicates.
func (m *Model) Estimate(c *types.IndexCandidate, snap *types.StatisticsSnapshot, shapes []types.AnalyzedShape) types.BenefitScore {
	var score types.BenefitScore
	rows := snap.RowCount()
	full := m.FullScanCost(rows)

	partialSel := 1.0
	for _, as := range shapes {
		sel, low, ok := ServedSelectivity(c, as.Predicates)
		if !ok {
			continue
		}
		if c.Kind == types.IndexPartial {
			if ns, found := nullCheckSelectivity(c, as.Predicates); found {
				partialSel = ns
			}
		}
		score.ShapesServed++
		score.Frequency += as.Weight
		score.Executions += as.Shape.Frequency
		score.Benefit += as.Weight * math.Max(0, full-m.IndexedCost(sel, rows))
		score.LowConfidence = score.LowConfidence || low
	}
	score.LowConfidence = score.LowConfidence || c.LowConfidence

	writes := snap.Table().WriteFrequency
	if writes <= 0 {
		writes = m.cost.AssumedWriteFrequency
		score.AssumedWriteFrequency = true
	}
	score.MaintenanceCost = writes * float64(c.Width()) * m.cost.MaintenanceCostPerColumn
	if c.Kind == types.IndexPartial {
		score.MaintenanceCost *= partialSel
	}

	score.NetBenefit = score.Benefit - score.MaintenanceCost
	score.Recommended = score.ShapesServed > 0 &&
		score.NetBenefit > 0 &&
		score.Benefit >= m.thresholds.MinAbsoluteBenefit
	return score
}

// EvaluateAll scores every candidate, records the estimates on the candidates and
// returns them ranked by net benefit descending, then identity.
func (m *Model) EvaluateAll(cands []*types.IndexCandidate, snap *types.StatisticsSnapshot, shapes []types.AnalyzedShape) []Scored {
	out := make([]Scored, 0, len(cands))
	for _, c := range cands {
		score := m.Estimate(c, snap, shapes)
		c.EstimatedBenefit = score.Benefit
		c.EstimatedMaintenanceCost = score.MaintenanceCost
		c.LowConfidence = score.LowConfidence
		out = append(out, Scored{Candidate: c, Score: score})
	}
	Rank(out)
	return out
}

// Rank sorts scored candidates by net benefit descending, then identity key.
func Rank(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i].Score.NetBenefit, scored[j].Score.NetBenefit
		if a != b {
			return a > b
		}
		return scored[i].Candidate.Identity() < scored[j].Candidate.Identity()
	})
}

// ServedSelectivity returns the combined selectivity of the predicates the
// candidate can serve. Column keys follow the leftmost-prefix rule: a run of
// equality keys followed by at most one range key. ok is false when the
// candidate serves nothing in the shape.
func ServedSelectivity(c *types.IndexCandidate, preds []types.Predicate) (sel float64, low, ok bool) {
	switch c.Kind {
	case types.IndexExpression:
		return expressionSelectivity(c.Expression, preds)
	case types.IndexPartial:
		ns, found := nullCheckSelectivity(c, preds)
		if !found {
			return 0, false, false
		}
		ps, plow, pok := prefixSelectivity(c.Columns, preds)
		if !pok {
			return ns, false, true
		}
		return ns * ps, plow, true
	default:
		return prefixSelectivity(c.Columns, preds)
	}
}

func prefixSelectivity(columns []string, preds []types.Predicate) (float64, bool, bool) {
	sel, low, matched := 1.0, false, 0
	for _, col := range columns {
		if p, found := best(preds, col, candidate.IsEqualityClass); found {
			sel *= p.Selectivity
			low = low || p.LowConfidence
			matched++
			continue
		}
		if p, found := best(preds, col, isRange); found {
			sel *= p.Selectivity
			low = low || p.LowConfidence
			matched++
		}
		break
	}
	return sel, low, matched > 0
}

// best finds the most selective indexable column predicate on col accepted by kind.
func best(preds []types.Predicate, col string, kind func(types.Predicate) bool) (types.Predicate, bool) {
	var out types.Predicate
	found := false
	for _, p := range preds {
		if p.Column != col || !p.Indexable() || p.IsExpression() || !kind(p) {
			continue
		}
		if !found || p.Selectivity < out.Selectivity {
			out, found = p, true
		}
	}
	return out, found
}

func isRange(p types.Predicate) bool {
	return p.Kind == types.PredicateRange
}

func expressionSelectivity(expr string, preds []types.Predicate) (float64, bool, bool) {
	sel, low, found := 1.0, false, false
	for _, p := range preds {
		if p.Expr != expr || !p.Indexable() || p.Kind == types.PredicateNullCheck {
			continue
		}
		if !found || p.Selectivity < sel {
			sel, low = p.Selectivity, p.LowConfidence
		}
		found = true
	}
	return sel, low, found
}

// nullCheckSelectivity finds the null check matching a partial candidate's
// predicate, including its polarity.
func nullCheckSelectivity(c *types.IndexCandidate, preds []types.Predicate) (float64, bool) {
	for _, p := range preds {
		if p.Kind == types.PredicateNullCheck && p.Indexable() && p.NullCheckText() == c.Predicate {
			return p.Selectivity, true
		}
	}
	return 0, false
}

// AssessShape reports whether a shape can only be answered by a full scan: an
// aggregation with no selective, indexable filter.
func (m *Model) AssessShape(shape *types.QueryShape, preds []types.Predicate) (fullScan bool, reason string) {
	if !shape.IsAggregation() && len(shape.GroupBy) == 0 {
		return false, ""
	}
	for _, p := range preds {
		if !p.Indexable() {
			continue
		}
		if p.IsExpression() && !candidate.IsDeterministic(p.Function) {
			continue
		}
		limit := m.thresholds.SingleColumnSelectivity
		if p.Kind == types.PredicateNullCheck {
			limit = m.thresholds.PartialSelectivity
		}
		if p.Selectivity < limit {
			return false, ""
		}
	}
	return true, ReasonFullScanRequired
}
