// Package observability tracks how the workload uses columns: which columns are
// filtered, by which operators, and how often. The partitioning advisor reads it
// to find dominant filter columns and the service exposes it for monitoring.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/arkilian/advisor/pkg/types"
)

// UsageTracker tracks frequency-weighted predicate usage per table column.
type UsageTracker struct {
	mu      sync.RWMutex
	columns map[string]*ColumnUsage // table.column → usage
	shapes  map[string]int          // table → shapes recorded
	window  time.Duration
	now     func() time.Time
}

// ColumnUsage holds usage statistics for one column.
type ColumnUsage struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	// Frequency is the sum of the frequencies of the shapes filtering on the column
	Frequency int64 `json:"frequency"`
	// Shapes counts distinct shapes filtering on the column
	Shapes int `json:"shapes"`
	// RangeShapes counts shapes with a conjunctive range predicate on the column
	RangeShapes int `json:"range_shapes"`
	// EqualityShapes counts shapes with a conjunctive equality or IN predicate on the column
	EqualityShapes int              `json:"equality_shapes"`
	Operators      map[string]int64 `json:"operators"` // operator → weighted count
	LastSeen       time.Time        `json:"last_seen"`
}

// NewUsageTracker creates a new usage tracker.
// window: time duration for pruning old entries (e.g., 24 hours)
func NewUsageTracker(window time.Duration) *UsageTracker {
	return &UsageTracker{
		columns: make(map[string]*ColumnUsage),
		shapes:  make(map[string]int),
		window:  window,
		now:     time.Now,
	}
}

// RecordPredicate records one predicate use on a column, weighted by frequency.
func (u *UsageTracker) RecordPredicate(table, column, operator string, frequency int64) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.usage(table, column).record(operator, frequency, u.now())
}

// RecordShape records every filter column of a shape once, weighted by the
// shape's frequency.
func (u *UsageTracker) RecordShape(shape *types.QueryShape) {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now()
	u.shapes[shape.Table]++

	type flags struct{ rng, eq bool }
	seen := make(map[string]*flags)
	var order []string
	for _, term := range shape.Terms {
		cu := u.usage(shape.Table, term.Column)
		cu.Operators[term.Operator] += shape.Frequency
		cu.LastSeen = now

		f, ok := seen[term.Column]
		if !ok {
			f = &flags{}
			seen[term.Column] = f
			order = append(order, term.Column)
		}
		if term.Disjunctive || term.Not {
			continue
		}
		switch term.Operator {
		case "<", "<=", ">", ">=", "BETWEEN":
			f.rng = true
		case "=", "IN":
			f.eq = true
		}
	}

	for _, col := range order {
		cu := u.columns[key(shape.Table, col)]
		cu.Frequency += shape.Frequency
		cu.Shapes++
		if seen[col].rng {
			cu.RangeShapes++
		}
		if seen[col].eq {
			cu.EqualityShapes++
		}
	}
}

// ShapeCount returns how many shapes were recorded for a table.
func (u *UsageTracker) ShapeCount(table string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.shapes[table]
}

// Column returns a copy of the usage of one column.
func (u *UsageTracker) Column(table, column string) (ColumnUsage, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	cu, ok := u.columns[key(table, column)]
	if !ok {
		return ColumnUsage{}, false
	}
	return cu.clone(), true
}

// GetTopColumns returns the top N columns by frequency, across all tables when
// table is empty. Ties are broken by table and column name.
func (u *UsageTracker) GetTopColumns(table string, n int) []ColumnUsage {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if n <= 0 || len(u.columns) == 0 {
		return []ColumnUsage{}
	}

	stats := make([]ColumnUsage, 0, len(u.columns))
	for _, cu := range u.columns {
		if table != "" && cu.Table != table {
			continue
		}
		stats = append(stats, cu.clone())
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		if stats[i].Table != stats[j].Table {
			return stats[i].Table < stats[j].Table
		}
		return stats[i].Column < stats[j].Column
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries where time.Since(LastSeen) > window.
func (u *UsageTracker) Prune() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	threshold := u.now().Add(-u.window)
	removed := 0
	for k, cu := range u.columns {
		if cu.LastSeen.Before(threshold) {
			delete(u.columns, k)
			removed++
		}
	}
	return removed
}

func (u *UsageTracker) usage(table, column string) *ColumnUsage {
	k := key(table, column)
	cu, ok := u.columns[k]
	if !ok {
		cu = &ColumnUsage{
			Table:     table,
			Column:    column,
			Operators: make(map[string]int64),
		}
		u.columns[k] = cu
	}
	return cu
}

func (c *ColumnUsage) record(operator string, frequency int64, now time.Time) {
	c.Frequency += frequency
	c.Operators[operator] += frequency
	c.LastSeen = now
}

func (c *ColumnUsage) clone() ColumnUsage {
	cp := *c
	cp.Operators = make(map[string]int64, len(c.Operators))
	for op, n := range c.Operators {
		cp.Operators[op] = n
	}
	return cp
}

func key(table, column string) string {
	return table + "." + column
}
