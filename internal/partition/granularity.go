package partition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arkilian/advisor/pkg/types"
)

// calendarTier is one calendar granularity. Tiers are ordered coarsest first.
type calendarTier struct {
	granularity types.Granularity
	truncate    func(time.Time) time.Time
	next        func(time.Time) time.Time
	label       func(time.Time) string
}

var calendarTiers = []calendarTier{
	{
		granularity: types.GranularityYear,
		truncate: func(t time.Time) time.Time {
			return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		},
		next:  func(t time.Time) time.Time { return t.AddDate(1, 0, 0) },
		label: func(t time.Time) string { return t.Format("2006") },
	},
	{
		granularity: types.GranularityQuarter,
		truncate: func(t time.Time) time.Time {
			m := (int(t.Month())-1)/3*3 + 1
			return time.Date(t.Year(), time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		},
		next: func(t time.Time) time.Time { return t.AddDate(0, 3, 0) },
		label: func(t time.Time) string {
			return fmt.Sprintf("%dq%d", t.Year(), (int(t.Month())-1)/3+1)
		},
	},
	{
		granularity: types.GranularityMonth,
		truncate: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		},
		next:  func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
		label: func(t time.Time) string { return t.Format("2006_01") },
	},
	{
		granularity: types.GranularityWeek,
		truncate: func(t time.Time) time.Time {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			// weeks start on Monday
			return d.AddDate(0, 0, -((int(d.Weekday()) + 6) % 7))
		},
		next: func(t time.Time) time.Time { return t.AddDate(0, 0, 7) },
		label: func(t time.Time) string {
			y, w := t.ISOWeek()
			return fmt.Sprintf("%dw%02d", y, w)
		},
	},
	{
		granularity: types.GranularityDay,
		truncate: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		},
		next:  func(t time.Time) time.Time { return t.AddDate(0, 0, 1) },
		label: func(t time.Time) string { return t.Format("2006_01_02") },
	},
}

// layout is a candidate set of range boundaries at one granularity.
type layout struct {
	granularity types.Granularity
	step        float64
	bounds      []types.Bound
	names       []string
}

// calendarLayout returns aligned boundaries covering [lo, hi]. ok is false when
// more than maxBuckets buckets would be needed.
func calendarLayout(tier calendarTier, lo, hi float64, maxBuckets int) (layout, bool) {
	l := layout{granularity: tier.granularity}
	cur := tier.truncate(time.Unix(int64(math.Floor(lo)), 0).UTC())
	l.bounds = append(l.bounds, timeBound(cur))
	for {
		nxt := tier.next(cur)
		l.names = append(l.names, tier.label(cur))
		l.bounds = append(l.bounds, timeBound(nxt))
		if len(l.names) > maxBuckets {
			return layout{}, false
		}
		if float64(nxt.Unix()) > hi {
			return l, true
		}
		cur = nxt
	}
}

func timeBound(t time.Time) types.Bound {
	return types.Bound{Value: float64(t.Unix()), Label: t.Format("2006-01-02")}
}

// numericExponents returns the candidate power-of-ten step exponents for a
// value span, coarsest first.
func numericExponents(lo, hi float64) []int {
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	top := int(math.Ceil(math.Log10(span)))
	exps := make([]int, 0, 13)
	for k := top; k >= top-12; k-- {
		exps = append(exps, k)
	}
	return exps
}

// numericLayout returns boundaries at multiples of 10^exp covering [lo, hi].
func numericLayout(exp int, lo, hi float64, maxBuckets int) (layout, bool) {
	step := math.Pow10(exp)
	first := math.Floor(lo / step)
	for scaled(first, exp) > lo {
		first--
	}
	n := int(math.Floor(hi/step)-first) + 1
	for n >= 1 && n <= maxBuckets && scaled(first+float64(n), exp) <= hi {
		n++
	}
	if n < 1 || n > maxBuckets {
		return layout{}, false
	}

	l := layout{granularity: types.Granularity(formatNumber(step)), step: step}
	for i := 0; i <= n; i++ {
		v := scaled(first+float64(i), exp)
		if i > 0 && v <= l.bounds[i-1].Value {
			// step is below the float resolution at this magnitude
			return layout{}, false
		}
		l.bounds = append(l.bounds, types.Bound{Value: v, Label: formatNumber(v)})
		if i < n {
			l.names = append(l.names, labelReplacer.Replace(formatNumber(v)))
		}
	}
	return l, true
}

// scaled returns idx × 10^exp without accumulating error for negative exponents.
func scaled(idx float64, exp int) float64 {
	if exp < 0 {
		return idx / math.Pow10(-exp)
	}
	return idx * math.Pow10(exp)
}

var labelReplacer = strings.NewReplacer("-", "m", ".", "_", "+", "")

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
