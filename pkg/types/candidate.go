package types

import (
	"sort"
	"strings"
)

// IndexKind is the variant of an index candidate.
type IndexKind string

const (
	IndexSingle     IndexKind = "single"
	IndexComposite  IndexKind = "composite"
	IndexExpression IndexKind = "expression"
	IndexPartial    IndexKind = "partial"
)

// IndexCandidate is a proposed index. Two candidates are the same when their
// Identity keys are equal.
type IndexCandidate struct {
	Kind    IndexKind `json:"kind"`
	Table   string    `json:"table"`
	Columns []string  `json:"columns"`
	// Expression is the indexed expression text for expression candidates.
	Expression string `json:"expression,omitempty"`
	// Predicate is the WHERE clause of a partial candidate.
	Predicate string `json:"predicate,omitempty"`
	// Shapes holds the keys of the shapes the candidate serves, sorted.
	Shapes []string `json:"shapes"`

	EstimatedBenefit         float64 `json:"estimated_benefit"`
	EstimatedMaintenanceCost float64 `json:"estimated_maintenance_cost"`
	LowConfidence            bool    `json:"low_confidence,omitempty"`
}

// Identity returns the deduplication key (kind, columns, expression, predicate).
func (c *IndexCandidate) Identity() string {
	var b strings.Builder
	b.WriteString(string(c.Kind))
	b.WriteByte('|')
	b.WriteString(strings.Join(c.Columns, ","))
	b.WriteByte('|')
	b.WriteString(c.Expression)
	b.WriteByte('|')
	b.WriteString(c.Predicate)
	return b.String()
}

// Width returns the number of indexed keys.
func (c *IndexCandidate) Width() int {
	if c.Kind == IndexExpression {
		return 1
	}
	return len(c.Columns)
}

// NetBenefit is benefit minus maintenance.
func (c *IndexCandidate) NetBenefit() float64 {
	return c.EstimatedBenefit - c.EstimatedMaintenanceCost
}

// ServesShape reports whether the shape key is in the served set.
func (c *IndexCandidate) ServesShape(key string) bool {
	i := sort.SearchStrings(c.Shapes, key)
	return i < len(c.Shapes) && c.Shapes[i] == key
}

// MergeShapes adds shape keys, keeping the set sorted and unique.
func (c *IndexCandidate) MergeShapes(keys ...string) {
	for _, k := range keys {
		i := sort.SearchStrings(c.Shapes, k)
		if i < len(c.Shapes) && c.Shapes[i] == k {
			continue
		}
		c.Shapes = append(c.Shapes, "")
		copy(c.Shapes[i+1:], c.Shapes[i:])
		c.Shapes[i] = k
	}
}

// BenefitScore is the cost model's verdict on one candidate.
type BenefitScore struct {
	Benefit         float64 `json:"benefit"`
	MaintenanceCost float64 `json:"maintenance_cost"`
	NetBenefit      float64 `json:"net_benefit"`
	ShapesServed    int     `json:"shapes_served"`
	// Frequency is the summed weight of the served shapes; Executions is
	// their observed frequency before any history boost.
	Frequency     float64 `json:"frequency"`
	Executions    int64   `json:"executions"`
	LowConfidence bool    `json:"low_confidence,omitempty"`
	// AssumedWriteFrequency is set when no write frequency was supplied.
	AssumedWriteFrequency bool `json:"assumed_write_frequency,omitempty"`
	Recommended           bool `json:"recommended"`
}
