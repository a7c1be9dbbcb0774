package advisor

import (
	"github.com/arkilian/advisor/internal/access"
	"github.com/arkilian/advisor/internal/cost"
	"github.com/arkilian/advisor/internal/partition"
	"github.com/arkilian/advisor/pkg/types"
)

// assemble turns ranked recommendations, the partition plan and the
// compatibility findings into a report. A plan with compatibility errors is
// moved to Blocked and its errors are raised to the report.
func assemble(table string, recommended []cost.Scored, plan *types.PartitionPlan, compat *access.CompatibilityReport) *types.RecommendationReport {
	report := &types.RecommendationReport{
		Table:           table,
		Recommendations: make([]types.Recommendation, 0, len(recommended)+1),
	}

	for _, s := range recommended {
		c := s.Candidate
		report.Recommendations = append(report.Recommendations, types.Recommendation{
			Action:    types.ActionCreateIndex,
			Index:     c,
			Statement: IndexDDL(c),
			Rationale: types.Rationale{
				Benefit:               s.Score.Benefit,
				MaintenanceCost:       s.Score.MaintenanceCost,
				NetBenefit:            s.Score.NetBenefit,
				ShapesServed:          s.Score.ShapesServed,
				Frequency:             s.Score.Executions,
				Weight:                s.Score.Frequency,
				HistoryBoost:          boost(s.Score),
				LowConfidence:         s.Score.LowConfidence,
				AssumedWriteFrequency: s.Score.AssumedWriteFrequency,
			},
			Warnings: compat.WarningsFor(c),
		})
	}
	report.Summary.IndexesRecommended = len(recommended)

	if plan != nil {
		rec := types.Recommendation{
			Action:    types.ActionCreatePartitionPlan,
			Partition: plan,
			Statement: PartitionDDL(plan),
			Rationale: types.Rationale{Reason: partition.Reason(plan)},
			Errors:    compat.PlanErrors,
		}
		if compat.PlanBlocked() {
			report.Blocked = append(report.Blocked, rec)
			report.Errors = append(report.Errors, compat.PlanErrors...)
		} else {
			report.Recommendations = append(report.Recommendations, rec)
			report.Summary.PartitionProposed = true
		}
	}
	report.Summary.Blocked = len(report.Blocked)
	return report
}

// boost is the share of a score's weight contributed by history.
func boost(s types.BenefitScore) float64 {
	if b := s.Frequency - float64(s.Executions); b > 0 {
		return b
	}
	return 0
}
