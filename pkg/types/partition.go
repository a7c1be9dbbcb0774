package types

// PartitionStrategy defines how rows are routed to partition buckets.
type PartitionStrategy string

const (
	// StrategyRange routes rows by half-open value ranges [lo, hi)
	StrategyRange PartitionStrategy = "range"

	// StrategyList routes rows by membership in an explicit value list
	StrategyList PartitionStrategy = "list"
)

// Granularity is the step size of range boundaries.
type Granularity string

const (
	GranularityYear    Granularity = "year"
	GranularityQuarter Granularity = "quarter"
	GranularityMonth   Granularity = "month"
	GranularityWeek    Granularity = "week"
	GranularityDay     Granularity = "day"
	GranularityList    Granularity = "list"
)

// DefaultBucketName is the name of the catch-all bucket present in every plan.
const DefaultBucketName = "default"

// Bound is one range boundary. Value is in the column domain (Unix seconds for
// timestamps); Label is the human-readable rendering used in DDL.
type Bound struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// PartitionBucket is one partition of a plan.
type PartitionBucket struct {
	Name string `json:"name"`
	// Lower and Upper delimit a range bucket as [Lower, Upper).
	Lower *Bound `json:"lower,omitempty"`
	Upper *Bound `json:"upper,omitempty"`
	// Values are the members of a list bucket.
	Values []string `json:"values,omitempty"`
	// IsDefault marks the catch-all bucket.
	IsDefault bool `json:"is_default,omitempty"`
	// EstimatedRows is the histogram-derived row estimate.
	EstimatedRows int64 `json:"estimated_rows"`
}

// PartitionPlan is a proposed partitioning of one table.
type PartitionPlan struct {
	Table     string            `json:"table"`
	KeyColumn string            `json:"key_column"`
	Kind      ColumnKind        `json:"kind"`
	Strategy  PartitionStrategy `json:"strategy"`
	// Granularity is a calendar unit for timestamp keys, or the numeric step rendered as text.
	Granularity Granularity `json:"granularity"`
	// Step is the numeric step size; zero for calendar granularities and list plans.
	Step       float64           `json:"step,omitempty"`
	Boundaries []Bound           `json:"boundaries,omitempty"`
	ListValues []string          `json:"list_values,omitempty"`
	Buckets    []PartitionBucket `json:"buckets"`
	HasDefault bool              `json:"has_default"`
	// SkewRatio is max/mean of the estimated bucket sizes.
	SkewRatio float64 `json:"skew_ratio"`
	// DominantShare is the fraction of high-frequency shapes filtering on the key column.
	DominantShare float64 `json:"dominant_share"`
}

// BucketCount returns the number of non-default buckets.
func (p *PartitionPlan) BucketCount() int {
	n := 0
	for _, b := range p.Buckets {
		if !b.IsDefault {
			n++
		}
	}
	return n
}
