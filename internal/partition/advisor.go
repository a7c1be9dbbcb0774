// Package partition decides whether a table benefits from range or list
// partitioning, proposes aligned boundaries, and routes key values to buckets.
package partition

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/arkilian/advisor/internal/config"
	"github.com/arkilian/advisor/internal/observability"
	"github.com/arkilian/advisor/pkg/types"
)

// TableProfile is the input of one partitioning decision.
type TableProfile struct {
	Table    string
	RowCount int64
	// GrowthRate is in rows per day. It is projected over the configured
	// horizon when deciding whether the table is large enough to partition.
	GrowthRate float64
	Snapshot   *types.StatisticsSnapshot
	Shapes     []types.AnalyzedShape
}

// Advisor proposes partition plans. It is stateless and safe for concurrent use.
type Advisor struct {
	cfg config.PartitionConfig
}

// NewAdvisor creates a partitioning advisor.
func NewAdvisor(cfg config.PartitionConfig) *Advisor {
	return &Advisor{cfg: cfg}
}

// Advise returns a plan for the table, or false when no column qualifies.
func (a *Advisor) Advise(profile TableProfile) (*types.PartitionPlan, bool) {
	snap := profile.Snapshot
	if snap == nil {
		snap = types.NewStatisticsSnapshot(types.TableStatistics{Table: profile.Table}, nil)
	}
	rows := profile.RowCount
	if rows <= 0 {
		rows = snap.RowCount()
	}
	if ProjectRows(rows, profile.GrowthRate, a.cfg.GrowthHorizon) < a.cfg.MinPartitionRows {
		return nil, false
	}

	usage, hf := a.dominance(profile.Shapes)
	if hf == 0 {
		return nil, false
	}

	for _, cu := range ranked(usage, func(c observability.ColumnUsage) int { return c.RangeShapes }) {
		share := float64(cu.RangeShapes) / float64(hf)
		if share <= a.cfg.DominanceFraction {
			break
		}
		cs, ok := snap.Column(cu.Column)
		if !ok || len(cs.Histogram) == 0 || cs.Kind == types.ColumnText {
			continue
		}
		if plan, ok := a.rangePlan(profile.Table, cs, rows); ok {
			plan.DominantShare = share
			return plan, true
		}
	}

	for _, cu := range ranked(usage, func(c observability.ColumnUsage) int { return c.EqualityShapes }) {
		share := float64(cu.EqualityShapes) / float64(hf)
		if share <= a.cfg.DominanceFraction {
			break
		}
		cs, ok := snap.Column(cu.Column)
		if !ok || len(cs.MostCommonValues) == 0 || cs.Distinct(rows) > float64(a.cfg.ListMaxValues) {
			continue
		}
		plan := a.listPlan(profile.Table, cs, rows)
		plan.DominantShare = share
		return plan, true
	}
	return nil, false
}

// ProjectRows returns the row count expected after horizon at growth rows per
// day. Shrinking tables are not projected.
func ProjectRows(rows int64, growth float64, horizon time.Duration) int64 {
	if growth <= 0 || horizon <= 0 {
		return rows
	}
	return rows + int64(math.Round(growth*horizon.Hours()/24))
}

// dominance tallies column usage over the high-frequency shapes.
func (a *Advisor) dominance(shapes []types.AnalyzedShape) ([]observability.ColumnUsage, int) {
	tracker := observability.NewUsageTracker(0)
	hf := 0
	for _, as := range shapes {
		if as.Shape == nil || as.Shape.Frequency < a.cfg.HighFrequencyShape {
			continue
		}
		tracker.RecordShape(as.Shape)
		hf++
	}
	return tracker.GetTopColumns("", math.MaxInt32), hf
}

func ranked(usage []observability.ColumnUsage, count func(observability.ColumnUsage) int) []observability.ColumnUsage {
	out := append([]observability.ColumnUsage(nil), usage...)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := count(out[i]), count(out[j])
		if ci != cj {
			return ci > cj
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// rangePlan picks the coarsest granularity whose buckets all fit under the
// row cap, then rejects it if the estimated sizes are too uneven.
func (a *Advisor) rangePlan(table string, cs *types.ColumnStatistics, rows int64) (*types.PartitionPlan, bool) {
	lo, _ := cs.Min()
	hi, _ := cs.Max()
	nonNull := float64(rows) * (1 - cs.NullFraction)

	try := func(l layout) (*SizeTracker, bool) {
		sizes := a.estimate(cs, l, nonNull)
		return sizes, sizes.Max() <= a.cfg.BucketRowCap
	}

	var (
		chosen layout
		sizes  *SizeTracker
		found  bool
	)
	if cs.Kind == types.ColumnTimestamp {
		for _, tier := range calendarTiers {
			l, ok := calendarLayout(tier, lo, hi, a.cfg.MaxBuckets)
			if !ok {
				break
			}
			if s, fits := try(l); fits {
				chosen, sizes, found = l, s, true
				break
			}
		}
	} else {
		for _, exp := range numericExponents(lo, hi) {
			l, ok := numericLayout(exp, lo, hi, a.cfg.MaxBuckets)
			if !ok {
				break
			}
			if s, fits := try(l); fits {
				chosen, sizes, found = l, s, true
				break
			}
		}
	}
	if !found || sizes.Skew() > a.cfg.SkewTolerance {
		return nil, false
	}

	plan := &types.PartitionPlan{
		Table:       table,
		KeyColumn:   cs.Column,
		Kind:        cs.Kind,
		Strategy:    types.StrategyRange,
		Granularity: chosen.granularity,
		Step:        chosen.step,
		Boundaries:  chosen.bounds,
		HasDefault:  true,
		SkewRatio:   sizes.Skew(),
	}
	for i, name := range chosen.names {
		lower, upper := chosen.bounds[i], chosen.bounds[i+1]
		plan.Buckets = append(plan.Buckets, types.PartitionBucket{
			Name:          table + "_" + name,
			Lower:         &lower,
			Upper:         &upper,
			EstimatedRows: sizes.Sizes()[i],
		})
	}
	plan.Buckets = append(plan.Buckets, types.PartitionBucket{
		Name:          defaultName(table),
		IsDefault:     true,
		EstimatedRows: int64(math.Round(float64(rows) * cs.NullFraction)),
	})
	return plan, true
}

// estimate returns the histogram-estimated rows of every bucket of a layout.
func (a *Advisor) estimate(cs *types.ColumnStatistics, l layout, nonNull float64) *SizeTracker {
	sizes := NewSizeTracker(len(l.names))
	for i := range l.names {
		sizes.AddFraction(nonNull, cs.CDF(l.bounds[i+1].Value)-cs.CDF(l.bounds[i].Value))
	}
	return sizes
}

// listPlan builds one bucket per most-common value. Nulls and the remaining
// values go to the default bucket.
func (a *Advisor) listPlan(table string, cs *types.ColumnStatistics, rows int64) *types.PartitionPlan {
	values := make([]string, 0, len(cs.MostCommonValues))
	seen := make(map[string]bool, len(cs.MostCommonValues))
	for _, v := range cs.MostCommonValues {
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Strings(values)

	perValue := float64(rows) * (1 - cs.NullFraction) / cs.Distinct(rows)
	sizes := NewSizeTracker(len(values))
	plan := &types.PartitionPlan{
		Table:       table,
		KeyColumn:   cs.Column,
		Kind:        cs.Kind,
		Strategy:    types.StrategyList,
		Granularity: types.GranularityList,
		ListValues:  values,
		HasDefault:  true,
	}

	names := make(map[string]bool, len(values))
	for i, v := range values {
		name := table + "_" + sanitize(v)
		if names[name] || sanitize(v) == "" {
			name = fmt.Sprintf("%s_v%d", table, i)
		}
		names[name] = true
		sizes.AddFraction(perValue, 1)
		plan.Buckets = append(plan.Buckets, types.PartitionBucket{
			Name:          name,
			Values:        []string{v},
			EstimatedRows: sizes.Sizes()[i],
		})
	}

	rest := rows - sizes.Total()
	if rest < 0 {
		rest = 0
	}
	plan.Buckets = append(plan.Buckets, types.PartitionBucket{
		Name:          defaultName(table),
		IsDefault:     true,
		EstimatedRows: rest,
	})
	plan.SkewRatio = sizes.Skew()
	return plan
}

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

func sanitize(v string) string {
	return strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(v), "_"), "_")
}

func defaultName(table string) string {
	return table + "_" + types.DefaultBucketName
}

// Reason renders the rationale of a plan.
func Reason(plan *types.PartitionPlan) string {
	if plan.Strategy == types.StrategyList {
		return fmt.Sprintf("list partitioning on %s: %.0f%% of high-frequency shapes filter on it by equality; %d values",
			plan.KeyColumn, plan.DominantShare*100, len(plan.ListValues))
	}
	return fmt.Sprintf("range partitioning on %s by %s: %.0f%% of high-frequency shapes filter on it by range; %d buckets, skew %.2f",
		plan.KeyColumn, plan.Granularity, plan.DominantShare*100, plan.BucketCount(), plan.SkewRatio)
}
