// Package workload records query traces as normalized query shapes.
package workload

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	advisorerrors "github.com/arkilian/advisor/internal/errors"
	"github.com/arkilian/advisor/internal/query/parser"
	"github.com/arkilian/advisor/pkg/types"
)

// ErrOtherTable is returned by Record when a query targets a table other than
// the recorder's target table.
var ErrOtherTable = errors.New("workload: query targets another table")

// maxIssueSamples bounds how many malformed queries a batch reports individually.
const maxIssueSamples = 20

// Recorder aggregates query executions into shapes. It is safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	table      string
	shapes     map[string]*types.QueryShape
	recorded   int
	malformed  int
	otherTable int
}

// BatchResult summarizes a RecordBatch call.
type BatchResult struct {
	Recorded   int
	Malformed  int
	OtherTable int
	// Issues holds a bounded sample of malformed-query warnings.
	Issues []types.Issue
}

// NewRecorder creates a recorder for one target table. An empty table accepts
// queries on any table.
func NewRecorder(table string) *Recorder {
	return &Recorder{
		table:  strings.ToLower(table),
		shapes: make(map[string]*types.QueryShape),
	}
}

// Record normalizes one query execution and folds it into its shape. It returns
// a copy of the updated shape.
func (r *Recorder) Record(queryText string, executionTime time.Duration, rowsScanned, rowsReturned int64) (types.QueryShape, error) {
	if strings.TrimSpace(queryText) == "" {
		r.countMalformed()
		return types.QueryShape{}, advisorerrors.NewMalformedQueryError(queryText, types.ErrEmptyQuery)
	}

	stmt, err := parser.ParseSelect(queryText)
	if err != nil {
		r.countMalformed()
		return types.QueryShape{}, advisorerrors.NewMalformedQueryError(queryText, err)
	}

	table := stmt.TableName()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.table != "" && table != r.table {
		r.otherTable++
		return types.QueryShape{}, fmt.Errorf("%w: %s", ErrOtherTable, table)
	}

	normalized := parser.Normalize(stmt)
	key := ShapeKey(normalized)

	shape, ok := r.shapes[key]
	if !ok {
		shape = newShape(key, table, normalized, stmt)
		r.shapes[key] = shape
	}

	shape.Frequency++
	n := float64(shape.Frequency)

	// Welford update of execution time mean and M2
	x := float64(executionTime) / float64(time.Millisecond)
	delta := x - shape.MeanExecTimeMs
	shape.MeanExecTimeMs += delta / n
	shape.ExecTimeM2 += delta * (x - shape.MeanExecTimeMs)

	shape.MeanRowsScanned += (float64(rowsScanned) - shape.MeanRowsScanned) / n
	shape.MeanRowsReturned += (float64(rowsReturned) - shape.MeanRowsReturned) / n

	r.recorded++
	return *shape.Clone(), nil
}

// RecordBatch records a batch of log entries. Malformed entries and entries on
// other tables are counted and skipped; they never fail the batch.
func (r *Recorder) RecordBatch(entries []types.QueryLogEntry) BatchResult {
	var res BatchResult
	for _, e := range entries {
		_, err := r.Record(e.QueryText, e.ExecutionTime, e.RowsScanned, e.RowsReturned)
		switch {
		case err == nil:
			res.Recorded++
		case errors.Is(err, ErrOtherTable):
			res.OtherTable++
		default:
			res.Malformed++
			if len(res.Issues) < maxIssueSamples {
				res.Issues = append(res.Issues, types.Issue{
					Code:    types.IssueMalformedQuery,
					Message: err.Error(),
					Subject: truncate(e.QueryText, 120),
				})
			}
		}
	}
	return res
}

// Shapes returns copies of all shapes, sorted by key.
func (r *Recorder) Shapes() []*types.QueryShape {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*types.QueryShape, 0, len(r.shapes))
	for _, s := range r.shapes {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Counts returns the number of recorded, malformed and other-table queries.
func (r *Recorder) Counts() (recorded, malformed, otherTable int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorded, r.malformed, r.otherTable
}

// Len returns the number of distinct shapes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shapes)
}

func (r *Recorder) countMalformed() {
	r.mu.Lock()
	r.malformed++
	r.mu.Unlock()
}

// ShapeKey returns the hex-encoded 128-bit murmur3 hash of a normalized text.
func ShapeKey(normalized string) string {
	h1, h2 := murmur3.Sum128([]byte(normalized))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

func newShape(key, table, normalized string, stmt *parser.SelectStatement) *types.QueryShape {
	shape := &types.QueryShape{
		Key:            key,
		Table:          table,
		NormalizedText: normalized,
	}

	for _, p := range parser.ExtractPredicates(stmt) {
		shape.Terms = append(shape.Terms, toTerm(p))
	}

	aggs := make(map[string]bool)
	for _, col := range stmt.Columns {
		switch ex := col.Expr.(type) {
		case *parser.ColumnRef:
			shape.Projections = append(shape.Projections, strings.ToLower(ex.Column))
		case *parser.AggregateExpr:
			aggs[parser.NormalizeExpr(ex)] = true
		default:
			if containsAggregate(ex) {
				aggs[parser.NormalizeExpr(ex)] = true
			}
		}
	}
	for a := range aggs {
		shape.Aggregates = append(shape.Aggregates, a)
	}
	sort.Strings(shape.Aggregates)

	for _, g := range stmt.GroupBy {
		shape.GroupBy = append(shape.GroupBy, parser.NormalizeExpr(g))
	}

	return shape
}

func toTerm(p parser.Predicate) types.Term {
	t := types.Term{
		Column:      p.Column,
		Expr:        p.Expr,
		Function:    p.Function,
		Operator:    p.Operator,
		Not:         p.Not,
		Disjunctive: p.Disjunctive,
		Order:       p.Order,
	}

	switch p.Type {
	case parser.PredicateIn:
		for _, v := range p.Values {
			t.Values = append(t.Values, toValue(v))
		}
	case parser.PredicateBetween:
		t.Values = []types.Value{toValue(p.Low), toValue(p.High)}
	case parser.PredicateIsNull:
		// no operand
	default:
		t.Values = []types.Value{toValue(p.Value)}
	}
	return t
}

// toValue converts an exemplar literal. Bind parameters and computed values
// become PlaceholderParam, which carries no exemplar.
func toValue(v interface{}) types.Value {
	switch x := v.(type) {
	case int64:
		return types.Value{Kind: types.PlaceholderInt, Num: float64(x), Text: strconv.FormatInt(x, 10)}
	case float64:
		return types.Value{Kind: types.PlaceholderNum, Num: x, Text: strconv.FormatFloat(x, 'g', -1, 64)}
	case string:
		return types.Value{Kind: types.PlaceholderText, Text: x}
	case bool:
		if x {
			return types.Value{Kind: types.PlaceholderBool, Num: 1, Text: "true"}
		}
		return types.Value{Kind: types.PlaceholderBool, Text: "false"}
	default:
		return types.Value{Kind: types.PlaceholderParam}
	}
}

func containsAggregate(e parser.Expression) bool {
	switch ex := e.(type) {
	case *parser.AggregateExpr:
		return true
	case *parser.BinaryExpr:
		return containsAggregate(ex.Left) || containsAggregate(ex.Right)
	case *parser.ParenExpr:
		return containsAggregate(ex.Expr)
	case *parser.CastExpr:
		return containsAggregate(ex.Expr)
	case *parser.FunctionCall:
		for _, a := range ex.Args {
			if containsAggregate(a) {
				return true
			}
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
