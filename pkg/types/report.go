package types

// Action is the kind of change a recommendation proposes.
type Action string

const (
	ActionCreateIndex         Action = "create_index"
	ActionCreatePartitionPlan Action = "create_partition_plan"
)

// Issue codes carried by report warnings and errors.
const (
	IssueMalformedQuery        = "MALFORMED_QUERY"
	IssueMissingStatistics     = "MISSING_STATISTICS"
	IssuePolicyOverlap         = "POLICY_OVERLAP"
	IssuePolicyContradiction   = "POLICY_CONTRADICTION"
	IssuePolicyConflict        = "POLICY_CONFLICT"
	IssuePolicyUnparsable      = "POLICY_UNPARSABLE"
	IssueAssumedWriteFrequency = "ASSUMED_WRITE_FREQUENCY"
	IssueFullScanRequired      = "FULL_SCAN_REQUIRED"
	IssueOtherTable            = "OTHER_TABLE_IGNORED"
	IssueInvalidPlan           = "INVALID_PARTITION_PLAN"
)

// Issue is one warning or error attached to a report or recommendation.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Subject names what the issue is about: a shape key, column, index identity or policy.
	Subject string `json:"subject,omitempty"`
}

// Rationale explains the numbers behind a recommendation.
type Rationale struct {
	Benefit         float64 `json:"benefit"`
	MaintenanceCost float64 `json:"maintenance_cost"`
	NetBenefit      float64 `json:"net_benefit"`
	ShapesServed    int     `json:"shapes_served"`
	// Frequency is the number of observed executions of the served shapes.
	Frequency int64 `json:"frequency"`
	// Weight is the frequency the benefit was computed with. It exceeds
	// Frequency by HistoryBoost when earlier runs saw the same shapes.
	Weight                float64 `json:"weight"`
	HistoryBoost          float64 `json:"history_boost,omitempty"`
	LowConfidence         bool    `json:"low_confidence,omitempty"`
	AssumedWriteFrequency bool    `json:"assumed_write_frequency,omitempty"`
	// Reason is a short human-readable explanation, used for partition plans.
	Reason string `json:"reason,omitempty"`
}

// Recommendation is one proposed change.
type Recommendation struct {
	Action    Action          `json:"action"`
	Index     *IndexCandidate `json:"index,omitempty"`
	Partition *PartitionPlan  `json:"partition,omitempty"`
	// Statement is suggested DDL. It is never executed by the advisor.
	Statement string    `json:"statement"`
	Rationale Rationale `json:"rationale"`
	Warnings  []Issue   `json:"warnings,omitempty"`
	Errors    []Issue   `json:"errors,omitempty"`
}

// Subject returns the identity used to order and reference the recommendation.
func (r *Recommendation) Subject() string {
	if r.Index != nil {
		return r.Index.Identity()
	}
	if r.Partition != nil {
		return "partition|" + r.Partition.KeyColumn
	}
	return string(r.Action)
}

// ShapeFinding reports a shape that no index can help.
type ShapeFinding struct {
	ShapeKey       string  `json:"shape_key"`
	NormalizedText string  `json:"normalized_text"`
	Frequency      int64   `json:"frequency"`
	MeanExecTimeMs float64 `json:"mean_exec_time_ms"`
	Reason         string  `json:"reason"`
}

// Summary holds run-level counters.
type Summary struct {
	QueriesSampled      int  `json:"queries_sampled"`
	QueriesRecorded     int  `json:"queries_recorded"`
	MalformedDropped    int  `json:"malformed_dropped"`
	OtherTableIgnored   int  `json:"other_table_ignored"`
	ShapesAnalyzed      int  `json:"shapes_analyzed"`
	CandidatesEvaluated int  `json:"candidates_evaluated"`
	IndexesRecommended  int  `json:"indexes_recommended"`
	PartitionProposed   bool `json:"partition_proposed"`
	Blocked             int  `json:"blocked"`
}

// RecommendationReport is the output of one advisory run. Its JSON encoding is
// deterministic for identical inputs.
type RecommendationReport struct {
	Table           string           `json:"table"`
	Recommendations []Recommendation `json:"recommendations"`
	// Blocked holds recommendations withheld because of a must-fix error.
	Blocked        []Recommendation `json:"blocked,omitempty"`
	FullScanShapes []ShapeFinding   `json:"full_scan_shapes,omitempty"`
	Warnings       []Issue          `json:"warnings,omitempty"`
	Errors         []Issue          `json:"errors,omitempty"`
	Summary        Summary          `json:"summary"`
}
