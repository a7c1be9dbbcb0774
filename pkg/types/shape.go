package types

import "time"

// QueryLogEntry is one raw entry pulled from a WorkloadSource.
type QueryLogEntry struct {
	QueryText     string        `json:"query_text" yaml:"query_text"`
	ExecutionTime time.Duration `json:"execution_time" yaml:"execution_time"`
	RowsScanned   int64         `json:"rows_scanned" yaml:"rows_scanned"`
	RowsReturned  int64         `json:"rows_returned" yaml:"rows_returned"`
}

// PlaceholderKind is the type tag carried by a normalized literal.
type PlaceholderKind string

const (
	PlaceholderInt   PlaceholderKind = "int"
	PlaceholderNum   PlaceholderKind = "num"
	PlaceholderText  PlaceholderKind = "text"
	PlaceholderBool  PlaceholderKind = "bool"
	PlaceholderParam PlaceholderKind = "param" // bind parameter already present in the query
	PlaceholderList  PlaceholderKind = "list"
)

// Term is one raw WHERE-clause term of a shape, before selectivity estimation.
type Term struct {
	// Column is the underlying column name (lower-cased, unqualified).
	Column string `json:"column"`
	// Expr is the canonical text of the left-hand side as first observed, e.g.
	// "date_trunc('month', created_at)".
	Expr string `json:"expr"`
	// Function is set when Expr wraps Column in a function call.
	Function string `json:"function,omitempty"`
	// Operator is the normalized SQL operator: =, <>, <, <=, >, >=, IN, BETWEEN, LIKE, IS NULL.
	Operator string `json:"operator"`
	// Not is the negation flag for IN, LIKE, BETWEEN and IS NULL.
	Not bool `json:"not,omitempty"`
	// Disjunctive is set for terms reached through OR or NOT.
	Disjunctive bool `json:"disjunctive,omitempty"`
	// Values holds the exemplar literals observed for this term (first occurrence).
	// Empty when the query used bind parameters.
	Values []Value `json:"values,omitempty"`
	// Order is the declaration order of the term within the WHERE clause.
	Order int `json:"order"`
}

// Value is an exemplar literal kept for selectivity estimation.
type Value struct {
	Kind PlaceholderKind `json:"kind"`
	Num  float64         `json:"num,omitempty"`
	Text string          `json:"text,omitempty"`
}

// QueryShape is a normalized query skeleton with literals replaced by typed placeholders.
// It is mutated only by the workload recorder.
type QueryShape struct {
	// Key is the hex-encoded 128-bit hash of NormalizedText.
	Key            string   `json:"key"`
	Table          string   `json:"table"`
	NormalizedText string   `json:"normalized_text"`
	Terms          []Term   `json:"terms,omitempty"`
	Projections    []string `json:"projections,omitempty"`
	Aggregates     []string `json:"aggregates,omitempty"`
	GroupBy        []string `json:"group_by,omitempty"`

	Frequency        int64   `json:"frequency"`
	MeanExecTimeMs   float64 `json:"mean_exec_time_ms"`
	ExecTimeM2       float64 `json:"-"`
	MeanRowsScanned  float64 `json:"mean_rows_scanned"`
	MeanRowsReturned float64 `json:"mean_rows_returned"`
}

// ExecTimeVariance returns the sample variance of execution time in ms².
func (s *QueryShape) ExecTimeVariance() float64 {
	if s.Frequency < 2 {
		return 0
	}
	return s.ExecTimeM2 / float64(s.Frequency-1)
}

// IsAggregation reports whether the shape computes aggregates.
func (s *QueryShape) IsAggregation() bool {
	return len(s.Aggregates) > 0
}

// Clone returns a deep copy of the shape.
func (s *QueryShape) Clone() *QueryShape {
	cp := *s
	cp.Terms = make([]Term, len(s.Terms))
	for i, t := range s.Terms {
		t.Values = append([]Value(nil), t.Values...)
		cp.Terms[i] = t
	}
	cp.Projections = append([]string(nil), s.Projections...)
	cp.Aggregates = append([]string(nil), s.Aggregates...)
	cp.GroupBy = append([]string(nil), s.GroupBy...)
	return &cp
}
