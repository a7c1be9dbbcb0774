package partition

import (
	"fmt"
	"math"
	"strings"

	"github.com/arkilian/advisor/pkg/types"
)

// ValidationError represents one defect in a partition plan.
type ValidationError struct {
	Bucket  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Bucket == "" {
		return fmt.Sprintf("field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("bucket %q, field %q: %s", e.Bucket, e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// ValidatePlan checks that a plan routes every value to exactly one bucket:
// a single DEFAULT bucket, strictly increasing finite boundaries, contiguous
// range buckets and disjoint list values.
func ValidatePlan(plan *types.PartitionPlan) error {
	if plan == nil {
		return ValidationErrors{{Field: "plan", Message: "plan is nil"}}
	}

	var errs ValidationErrors
	add := func(bucket, field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Bucket: bucket, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if plan.KeyColumn == "" {
		add("", "key_column", "key column is required")
	}

	defaults := 0
	names := make(map[string]bool, len(plan.Buckets))
	for _, b := range plan.Buckets {
		if b.Name == "" {
			add("", "name", "bucket name cannot be empty")
		} else if names[b.Name] {
			add(b.Name, "name", "duplicate bucket name")
		}
		names[b.Name] = true
		if b.IsDefault {
			defaults++
		}
	}
	if defaults != 1 || !plan.HasDefault {
		add("", "buckets", "plan must have exactly one default bucket, got %d", defaults)
	}

	switch plan.Strategy {
	case types.StrategyRange:
		validateRange(plan, add)
	case types.StrategyList:
		validateList(plan, add)
	default:
		add("", "strategy", "unsupported strategy %q", plan.Strategy)
	}

	if len(errs) > 0 {
		return errs
	}

	// every sample point must land in exactly one bucket
	for _, p := range samplePoints(plan) {
		if n := len(p.buckets(plan)); n != 1 {
			add("", "coverage", "value %s routes to %d buckets", p, n)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

type addFunc func(bucket, field, format string, args ...interface{})

func validateRange(plan *types.PartitionPlan, add addFunc) {
	if len(plan.Boundaries) < 2 {
		add("", "boundaries", "range plan needs at least 2 boundaries, got %d", len(plan.Boundaries))
		return
	}
	for i, b := range plan.Boundaries {
		if math.IsNaN(b.Value) || math.IsInf(b.Value, 0) {
			add("", "boundaries", "boundary %d is not finite", i)
			continue
		}
		if i > 0 && b.Value <= plan.Boundaries[i-1].Value {
			add("", "boundaries", "boundary %d (%s) does not increase", i, b.Label)
		}
	}

	i := 0
	for _, b := range plan.Buckets {
		if b.IsDefault {
			continue
		}
		if b.Lower == nil || b.Upper == nil {
			add(b.Name, "range", "range bucket needs both bounds")
			i++
			continue
		}
		if i+1 >= len(plan.Boundaries) {
			add(b.Name, "range", "more buckets than boundary intervals")
			return
		}
		if b.Lower.Value != plan.Boundaries[i].Value || b.Upper.Value != plan.Boundaries[i+1].Value {
			add(b.Name, "range", "bucket [%s, %s) is not contiguous with the boundaries", b.Lower.Label, b.Upper.Label)
		}
		i++
	}
	if i != len(plan.Boundaries)-1 {
		add("", "buckets", "expected %d range buckets, got %d", len(plan.Boundaries)-1, i)
	}
}

func validateList(plan *types.PartitionPlan, add addFunc) {
	if len(plan.ListValues) == 0 {
		add("", "list_values", "list plan needs at least one value")
	}
	declared := make(map[string]bool, len(plan.ListValues))
	for _, v := range plan.ListValues {
		if declared[v] {
			add("", "list_values", "duplicate list value %q", v)
		}
		declared[v] = true
	}

	owner := make(map[string]string, len(plan.ListValues))
	for _, b := range plan.Buckets {
		if b.IsDefault {
			continue
		}
		if len(b.Values) == 0 {
			add(b.Name, "values", "list bucket has no values")
		}
		for _, v := range b.Values {
			if prev, ok := owner[v]; ok {
				add(b.Name, "values", "value %q already routed to %q", v, prev)
				continue
			}
			owner[v] = b.Name
			if !declared[v] {
				add(b.Name, "values", "value %q is not a declared list value", v)
			}
		}
	}
	for _, v := range plan.ListValues {
		if _, ok := owner[v]; !ok {
			add("", "list_values", "value %q has no bucket", v)
		}
	}
}

// samplePoint is a value for coverage checks: numeric for range plans, text
// for list plans, or NULL.
type samplePoint struct {
	num    float64
	text   string
	isText bool
	isNull bool
}

func (p samplePoint) String() string {
	switch {
	case p.isNull:
		return "NULL"
	case p.isText:
		return fmt.Sprintf("%q", p.text)
	default:
		return formatNumber(p.num)
	}
}

func (p samplePoint) buckets(plan *types.PartitionPlan) []string {
	switch {
	case p.isNull:
		return []string{defaultBucket(plan)}
	case p.isText:
		return BucketsForText(plan, p.text)
	default:
		return BucketsFor(plan, p.num)
	}
}

func samplePoints(plan *types.PartitionPlan) []samplePoint {
	out := []samplePoint{{isNull: true}, {num: math.NaN()}}
	if plan.Strategy == types.StrategyList {
		for _, v := range plan.ListValues {
			out = append(out, samplePoint{text: v, isText: true})
		}
		return append(out, samplePoint{text: "\x00unlisted", isText: true})
	}
	b := plan.Boundaries
	out = append(out, samplePoint{num: math.Inf(-1)}, samplePoint{num: b[0].Value - 1}, samplePoint{num: math.Inf(1)})
	for i, bound := range b {
		out = append(out, samplePoint{num: bound.Value})
		if i+1 < len(b) {
			out = append(out, samplePoint{num: bound.Value + (b[i+1].Value-bound.Value)/2})
		}
	}
	return out
}

// BucketsFor returns every bucket of a range plan that accepts v, by linear
// scan. A value no range bucket accepts goes to the default bucket.
func BucketsFor(plan *types.PartitionPlan, v float64) []string {
	var out []string
	if !math.IsNaN(v) {
		for _, b := range plan.Buckets {
			if b.IsDefault || b.Lower == nil || b.Upper == nil {
				continue
			}
			if v >= b.Lower.Value && v < b.Upper.Value {
				out = append(out, b.Name)
			}
		}
	}
	if len(out) == 0 {
		if d := defaultBucket(plan); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// BucketsForText returns every bucket of a list plan that accepts v.
func BucketsForText(plan *types.PartitionPlan, v string) []string {
	var out []string
	for _, b := range plan.Buckets {
		if b.IsDefault {
			continue
		}
		for _, member := range b.Values {
			if member == v {
				out = append(out, b.Name)
				break
			}
		}
	}
	if len(out) == 0 {
		if d := defaultBucket(plan); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func defaultBucket(plan *types.PartitionPlan) string {
	for _, b := range plan.Buckets {
		if b.IsDefault {
			return b.Name
		}
	}
	return ""
}
