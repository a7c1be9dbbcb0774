package partition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/btree"

	"github.com/arkilian/advisor/pkg/types"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// rangeItem is a range bucket keyed by its inclusive lower bound.
type rangeItem struct {
	lower  float64
	upper  float64
	bucket string
}

// Less implements btree.Item.
func (r *rangeItem) Less(than btree.Item) bool {
	return r.lower < than.(*rangeItem).lower
}

// Router maps key column values to the bucket of a validated plan.
type Router struct {
	plan   *types.PartitionPlan
	ranges *btree.BTree
	list   map[string]string
	def    string
}

// NewRouter validates the plan and builds a router for it.
func NewRouter(plan *types.PartitionPlan) (*Router, error) {
	if err := ValidatePlan(plan); err != nil {
		return nil, fmt.Errorf("routing: invalid plan: %w", err)
	}

	r := &Router{plan: plan, def: defaultBucket(plan)}
	switch plan.Strategy {
	case types.StrategyRange:
		r.ranges = btree.New(32)
		for _, b := range plan.Buckets {
			if b.IsDefault {
				continue
			}
			r.ranges.ReplaceOrInsert(&rangeItem{lower: b.Lower.Value, upper: b.Upper.Value, bucket: b.Name})
		}
	case types.StrategyList:
		r.list = make(map[string]string, len(plan.ListValues))
		for _, b := range plan.Buckets {
			for _, v := range b.Values {
				r.list[v] = b.Name
			}
		}
	}
	return r, nil
}

// Plan returns the routed plan.
func (r *Router) Plan() *types.PartitionPlan {
	return r.plan
}

// Default returns the name of the default bucket.
func (r *Router) Default() string {
	return r.def
}

// Route returns the bucket for a numeric or Unix-seconds timestamp value.
// Values outside every range, and NaN, go to the default bucket.
func (r *Router) Route(v float64) string {
	if r.list != nil {
		return r.RouteText(formatNumber(v))
	}
	if math.IsNaN(v) {
		return r.def
	}

	var found *rangeItem
	r.ranges.DescendLessOrEqual(&rangeItem{lower: v}, func(item btree.Item) bool {
		found = item.(*rangeItem)
		return false
	})
	if found == nil || v >= found.upper {
		return r.def
	}
	return found.bucket
}

// RouteText returns the bucket for a literal. Range plans parse the literal
// in the key column's domain; unparsable literals go to the default bucket.
func (r *Router) RouteText(s string) string {
	if r.list != nil {
		if b, ok := r.list[s]; ok {
			return b
		}
		return r.def
	}

	if v, ok := parseKey(s, r.plan.Kind); ok {
		return r.Route(v)
	}
	return r.def
}

// RouteNull returns the bucket for a NULL key.
func (r *Router) RouteNull() string {
	return r.def
}

// RouteValues groups values by bucket name.
func (r *Router) RouteValues(values []float64) map[string][]float64 {
	groups := make(map[string][]float64)
	for _, v := range values {
		b := r.Route(v)
		groups[b] = append(groups[b], v)
	}
	return groups
}

func parseKey(s string, kind types.ColumnKind) (float64, bool) {
	s = strings.TrimSpace(s)
	if kind == types.ColumnTimestamp {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return float64(t.Unix()), true
			}
		}
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
