package analyzer

import (
	"math"
	"testing"
	"time"

	"github.com/arkilian/advisor/internal/config"
	"github.com/arkilian/advisor/internal/workload"
	"github.com/arkilian/advisor/pkg/types"
)

func shapeOf(t *testing.T, query string) *types.QueryShape {
	t.Helper()
	r := workload.NewRecorder("")
	s, err := r.Record(query, time.Millisecond, 0, 0)
	if err != nil {
		t.Fatalf("input %q: unexpected error: %v", query, err)
	}
	return &s
}

func snapshot(rows int64, cols ...*types.ColumnStatistics) *types.StatisticsSnapshot {
	return types.NewStatisticsSnapshot(types.TableStatistics{Table: "orders", RowCount: rows}, cols)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEqualitySelectivity(t *testing.T) {
	a := New(config.DefaultThresholds())
	snap := snapshot(1_000_000, &types.ColumnStatistics{Column: "user_id", Kind: types.ColumnNumeric, DistinctCount: 1000})

	preds, issues := a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE user_id = 42"), snap)
	if len(issues) != 0 {
		t.Errorf("unexpected issues %+v", issues)
	}
	if len(preds) != 1 {
		t.Fatalf("expected 1 predicate, got %d", len(preds))
	}
	p := preds[0]
	if p.Kind != types.PredicateEq || !approx(p.Selectivity, 0.001) || p.LowConfidence {
		t.Errorf("unexpected predicate %+v", p)
	}
}

func TestEqualitySelectivityAdjustments(t *testing.T) {
	a := New(config.DefaultThresholds())
	snap := snapshot(1000,
		&types.ColumnStatistics{Column: "a", DistinctCount: -0.5},
		&types.ColumnStatistics{Column: "b", DistinctCount: 10, NullFraction: 0.5},
		&types.ColumnStatistics{Column: "c", DistinctCount: 0.2},
	)

	tests := []struct {
		query    string
		expected float64
	}{
		{"SELECT * FROM orders WHERE a = 1", 1.0 / 500},
		{"SELECT * FROM orders WHERE b = 1", 0.05},
		{"SELECT * FROM orders WHERE b <> 1", 0.45},
		{"SELECT * FROM orders WHERE c = 1", 1},
		{"SELECT * FROM orders WHERE b IN (1, 2, 3)", 0.15},
		{"SELECT * FROM orders WHERE b NOT IN (1, 2, 3)", 0.35},
	}

	for _, tt := range tests {
		preds, _ := a.Analyze(shapeOf(t, tt.query), snap)
		if len(preds) != 1 {
			t.Errorf("input %q: expected 1 predicate, got %d", tt.query, len(preds))
			continue
		}
		if !approx(preds[0].Selectivity, tt.expected) {
			t.Errorf("input %q: selectivity %v, want %v", tt.query, preds[0].Selectivity, tt.expected)
		}
	}
}

func TestNullCheckPolarity(t *testing.T) {
	a := New(config.DefaultThresholds())
	snap := snapshot(1000, &types.ColumnStatistics{Column: "errors", DistinctCount: 10, NullFraction: 0.9})

	preds, _ := a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE errors IS NOT NULL"), snap)
	if p := preds[0]; p.Kind != types.PredicateNullCheck || !p.IsNotNull || !approx(p.Selectivity, 0.1) {
		t.Errorf("unexpected IS NOT NULL predicate %+v", p)
	}

	preds, _ = a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE errors IS NULL"), snap)
	if p := preds[0]; p.IsNotNull || !approx(p.Selectivity, 0.9) {
		t.Errorf("unexpected IS NULL predicate %+v", p)
	}
	if got := preds[0].NullCheckText(); got != "errors IS NULL" {
		t.Errorf("NullCheckText = %q", got)
	}
}

func TestRangeMergedAndInterpolated(t *testing.T) {
	a := New(config.DefaultThresholds())
	hist := []types.HistogramBucket{{Bound: 0, CumulativeFraction: 0}, {Bound: 100, CumulativeFraction: 0.5}, {Bound: 200, CumulativeFraction: 1}}
	snap := snapshot(1000, &types.ColumnStatistics{Column: "amount", Kind: types.ColumnNumeric, DistinctCount: 200, NullFraction: 0.2, Histogram: hist})

	for _, q := range []string{
		"SELECT * FROM orders WHERE amount >= 50 AND amount < 150",
		"SELECT * FROM orders WHERE amount BETWEEN 50 AND 150",
		"SELECT * FROM orders WHERE amount < 150 AND amount > 10 AND amount >= 50",
	} {
		preds, _ := a.Analyze(shapeOf(t, q), snap)
		if len(preds) != 1 {
			t.Errorf("input %q: expected one merged predicate, got %d", q, len(preds))
			continue
		}
		p := preds[0]
		if p.Kind != types.PredicateRange || p.Operator != "BETWEEN" || !approx(p.Selectivity, 0.4) || p.LowConfidence {
			t.Errorf("input %q: unexpected predicate %+v", q, p)
		}
	}

	preds, _ := a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE amount > 300"), snap)
	if !approx(preds[0].Selectivity, 0) {
		t.Errorf("out-of-range bound should select nothing, got %v", preds[0].Selectivity)
	}
	preds, _ = a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE amount < -1"), snap)
	if !approx(preds[0].Selectivity, 0) {
		t.Errorf("below-range bound should select nothing, got %v", preds[0].Selectivity)
	}
}

func TestRangeTimestampExemplars(t *testing.T) {
	a := New(config.DefaultThresholds())
	jan := float64(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	mar := float64(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix())
	snap := snapshot(1000, &types.ColumnStatistics{
		Column: "created_at", Kind: types.ColumnTimestamp, DistinctCount: -1,
		Histogram: []types.HistogramBucket{{Bound: jan, CumulativeFraction: 0}, {Bound: mar, CumulativeFraction: 1}},
	})

	preds, _ := a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE created_at >= '2024-03-01'::timestamp"), snap)
	if p := preds[0]; !approx(p.Selectivity, 0) || p.LowConfidence {
		t.Errorf("unexpected predicate %+v", p)
	}
	preds, _ = a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE created_at < '2024-03-01 00:00:00'"), snap)
	if p := preds[0]; !approx(p.Selectivity, 1) || p.LowConfidence {
		t.Errorf("unexpected predicate %+v", p)
	}
}

func TestRangeWithoutExemplar(t *testing.T) {
	a := New(config.DefaultThresholds())
	hist := []types.HistogramBucket{{Bound: 0, CumulativeFraction: 0}, {Bound: 100, CumulativeFraction: 1}}
	snap := snapshot(1000, &types.ColumnStatistics{Column: "amount", Kind: types.ColumnNumeric, DistinctCount: 100, Histogram: hist})

	preds, _ := a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE amount > ? AND amount < 50"), snap)
	if p := preds[0]; !approx(p.Selectivity, 1.0/3.0) || !p.LowConfidence {
		t.Errorf("expected default range selectivity, got %+v", p)
	}
}

func TestMissingStatistics(t *testing.T) {
	a := New(config.DefaultThresholds())
	snap := snapshot(1000, &types.ColumnStatistics{Column: "a", DistinctCount: 10})

	preds, issues := a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE b = 1 AND b > 3 AND a = 2"), snap)
	if len(preds) != 3 {
		t.Fatalf("expected 3 predicates, got %d", len(preds))
	}
	if len(issues) != 1 || issues[0].Code != types.IssueMissingStatistics || issues[0].Subject != "orders.b" {
		t.Errorf("expected one missing-statistics issue for b, got %+v", issues)
	}
	for _, p := range preds[1:] {
		if p.Column != "b" || !approx(p.Selectivity, 0.5) || !p.LowConfidence {
			t.Errorf("unexpected predicate %+v", p)
		}
	}
}

func TestOrderingBySelectivityThenDeclaration(t *testing.T) {
	a := New(config.DefaultThresholds())
	snap := snapshot(1000,
		&types.ColumnStatistics{Column: "x", DistinctCount: 10},
		&types.ColumnStatistics{Column: "y", DistinctCount: 10},
		&types.ColumnStatistics{Column: "z", DistinctCount: 1000},
	)

	preds, _ := a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE y = 1 AND x = 2 AND z = 3"), snap)
	want := []string{"z", "y", "x"}
	for i, w := range want {
		if preds[i].Column != w {
			t.Errorf("position %d: got %s, want %s", i, preds[i].Column, w)
		}
	}
}

func TestDisjunctiveAndLike(t *testing.T) {
	a := New(config.DefaultThresholds())
	snap := snapshot(1000,
		&types.ColumnStatistics{Column: "status", DistinctCount: 5},
		&types.ColumnStatistics{Column: "email", DistinctCount: 1000},
	)

	preds, _ := a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE (status = 'a' OR status = 'b') AND email LIKE '%@x.com'"), snap)
	if len(preds) != 2 {
		t.Fatalf("expected LIKE to be skipped, got %d predicates", len(preds))
	}
	for _, p := range preds {
		if !p.Disjunctive || p.Indexable() {
			t.Errorf("expected disjunctive predicate, got %+v", p)
		}
	}
}

func TestExpressionPredicate(t *testing.T) {
	a := New(config.DefaultThresholds())
	snap := snapshot(1000, &types.ColumnStatistics{Column: "created_at", Kind: types.ColumnTimestamp, DistinctCount: 500})

	preds, _ := a.Analyze(shapeOf(t, "SELECT * FROM orders WHERE date_trunc('month', created_at) = '2024-03-01'"), snap)
	p := preds[0]
	if !p.IsExpression() || p.Expr != "date_trunc('month', created_at)" || p.Column != "created_at" {
		t.Errorf("unexpected expression predicate %+v", p)
	}
	if !approx(p.Selectivity, 0.002) || !p.LowConfidence {
		t.Errorf("expected low-confidence column eq selectivity, got %+v", p)
	}
}

func TestAnalyzeShapesDedupesIssues(t *testing.T) {
	a := New(config.DefaultThresholds())
	shapes := []*types.QueryShape{
		shapeOf(t, "SELECT * FROM orders WHERE b = 1"),
		shapeOf(t, "SELECT * FROM orders WHERE b > 1"),
	}
	shapes[1].Frequency = 7

	analyzed, issues := a.AnalyzeShapes(shapes, snapshot(10))
	if len(analyzed) != 2 || analyzed[1].Weight != 7 {
		t.Errorf("unexpected analyzed shapes %+v", analyzed)
	}
	if len(issues) != 1 {
		t.Errorf("expected 1 issue, got %+v", issues)
	}
}
