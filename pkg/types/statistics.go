package types

import "sort"

// ColumnKind describes the domain of a column's histogram bounds.
type ColumnKind string

const (
	ColumnNumeric   ColumnKind = "numeric"
	ColumnTimestamp ColumnKind = "timestamp" // bounds are Unix seconds
	ColumnText      ColumnKind = "text"
)

// HistogramBucket is one (bound, cumulative_fraction) pair. The fraction is the share of
// non-null rows whose value is <= Bound.
type HistogramBucket struct {
	Bound              float64 `json:"bound" yaml:"bound" toml:"bound"`
	CumulativeFraction float64 `json:"cumulative_fraction" yaml:"cumulative_fraction" toml:"cumulative_fraction"`
}

// ColumnStatistics is a read-only statistics snapshot for one column.
type ColumnStatistics struct {
	Table  string     `json:"table" yaml:"table" toml:"table"`
	Column string     `json:"column" yaml:"column" toml:"column"`
	Kind   ColumnKind `json:"kind" yaml:"kind" toml:"kind"`
	// DistinctCount follows the PostgreSQL n_distinct convention: a negative value is
	// the negated fraction of rows that are distinct.
	DistinctCount    float64           `json:"distinct_count" yaml:"distinct_count" toml:"distinct_count"`
	NullFraction     float64           `json:"null_fraction" yaml:"null_fraction" toml:"null_fraction"`
	Histogram        []HistogramBucket `json:"histogram,omitempty" yaml:"histogram,omitempty" toml:"histogram"`
	MostCommonValues []string          `json:"most_common_values,omitempty" yaml:"most_common_values,omitempty" toml:"most_common_values"`
}

// Distinct resolves DistinctCount against a row count.
func (c *ColumnStatistics) Distinct(rowCount int64) float64 {
	d := c.DistinctCount
	if d < 0 {
		d = -d * float64(rowCount)
	}
	if d < 1 {
		d = 1
	}
	return d
}

// Min returns the lowest histogram bound.
func (c *ColumnStatistics) Min() (float64, bool) {
	if len(c.Histogram) == 0 {
		return 0, false
	}
	return c.Histogram[0].Bound, true
}

// Max returns the highest histogram bound.
func (c *ColumnStatistics) Max() (float64, bool) {
	if len(c.Histogram) == 0 {
		return 0, false
	}
	return c.Histogram[len(c.Histogram)-1].Bound, true
}

// TableStatistics holds table-level figures for one advisory run.
type TableStatistics struct {
	Table    string `json:"table" yaml:"table" toml:"table"`
	RowCount int64  `json:"row_count" yaml:"row_count" toml:"row_count"`
	// GrowthRate is a rows-per-day proxy.
	GrowthRate float64 `json:"growth_rate" yaml:"growth_rate" toml:"growth_rate"`
	// WriteFrequency is writes per observation period; zero means unknown.
	WriteFrequency float64 `json:"write_frequency" yaml:"write_frequency" toml:"write_frequency"`
}

// StatisticsSnapshot is the single statistics snapshot used by one advisory run.
// It is built once at run start and never mutated afterwards.
type StatisticsSnapshot struct {
	table   TableStatistics
	columns map[string]*ColumnStatistics
}

// NewStatisticsSnapshot freezes the given statistics into a snapshot. The inputs are copied.
func NewStatisticsSnapshot(table TableStatistics, columns []*ColumnStatistics) *StatisticsSnapshot {
	s := &StatisticsSnapshot{
		table:   table,
		columns: make(map[string]*ColumnStatistics, len(columns)),
	}
	for _, c := range columns {
		if c == nil {
			continue
		}
		cp := *c
		cp.Histogram = append([]HistogramBucket(nil), c.Histogram...)
		cp.MostCommonValues = append([]string(nil), c.MostCommonValues...)
		s.columns[c.Column] = &cp
	}
	return s
}

// Table returns the table-level statistics.
func (s *StatisticsSnapshot) Table() TableStatistics {
	return s.table
}

// RowCount returns the table row count.
func (s *StatisticsSnapshot) RowCount() int64 {
	return s.table.RowCount
}

// Column returns the statistics for a column. The returned value must not be modified.
func (s *StatisticsSnapshot) Column(name string) (*ColumnStatistics, bool) {
	c, ok := s.columns[name]
	return c, ok
}

// Columns returns the column names present in the snapshot, sorted.
func (s *StatisticsSnapshot) Columns() []string {
	names := make([]string, 0, len(s.columns))
	for n := range s.columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HistogramCDF returns the fraction of non-null rows whose value is <= v,
// interpolating linearly between histogram bounds. Bounds must be sorted.
func HistogramCDF(hist []HistogramBucket, v float64) float64 {
	n := len(hist)
	if n == 0 || v < hist[0].Bound {
		return 0
	}
	if v >= hist[n-1].Bound {
		return clampFraction(hist[n-1].CumulativeFraction)
	}

	// first bucket whose bound is > v
	i := sort.Search(n, func(i int) bool { return hist[i].Bound > v })
	lo, hi := hist[i-1], hist[i]
	width := hi.Bound - lo.Bound
	if width <= 0 {
		return clampFraction(hi.CumulativeFraction)
	}
	frac := (v - lo.Bound) / width
	return clampFraction(lo.CumulativeFraction + frac*(hi.CumulativeFraction-lo.CumulativeFraction))
}

// CDF evaluates the column histogram at v.
func (c *ColumnStatistics) CDF(v float64) float64 {
	return HistogramCDF(c.Histogram, v)
}

func clampFraction(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
