package analyzer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arkilian/advisor/pkg/types"
)

// timestampLayouts are the literal formats accepted for timestamp columns.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
}

// eqSelectivity returns (1 - null_fraction) / distinct.
func eqSelectivity(stats *types.ColumnStatistics, rowCount int64) float64 {
	return clamp((1 - stats.NullFraction) / stats.Distinct(rowCount))
}

// rangeFraction returns the share of non-null rows in [lo, hi]. A nil bound is open.
func rangeFraction(hist []types.HistogramBucket, lo, hi *float64) float64 {
	low, high := 0.0, 1.0
	if lo != nil {
		low = types.HistogramCDF(hist, *lo)
	}
	if hi != nil {
		high = types.HistogramCDF(hist, *hi)
	}
	if high < low {
		return 0
	}
	return high - low
}

// numericValue converts an exemplar into the domain of a column's histogram.
func numericValue(v types.Value, kind types.ColumnKind) (float64, bool) {
	switch v.Kind {
	case types.PlaceholderInt, types.PlaceholderNum:
		return v.Num, true
	case types.PlaceholderText:
		if kind == types.ColumnTimestamp {
			return parseTimestamp(v.Text)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func parseTimestamp(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return float64(t.Unix()), true
		}
	}
	return 0, false
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
