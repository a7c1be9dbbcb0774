// Package advisor runs the advisory pipeline for one table: it pulls the
// workload, statistics and policies once, then derives index and partition
// recommendations from that immutable snapshot.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arkilian/advisor/internal/access"
	"github.com/arkilian/advisor/internal/analyzer"
	"github.com/arkilian/advisor/internal/candidate"
	"github.com/arkilian/advisor/internal/config"
	"github.com/arkilian/advisor/internal/cost"
	"github.com/arkilian/advisor/internal/observability"
	"github.com/arkilian/advisor/internal/partition"
	"github.com/arkilian/advisor/internal/workload"
	"github.com/arkilian/advisor/pkg/types"
)

// Options configures an Advisor.
type Options struct {
	Config   *config.Config
	Stats    StatisticsProvider
	Policies PolicyProvider
	Workload WorkloadSource
	// History is optional; nil disables frequency weighting.
	History HistoryStore
	// Usage, when set, receives every recorded shape for monitoring.
	Usage *observability.UsageTracker
}

// Advisor runs advisory pipelines. It is safe for concurrent use; each run
// owns its own snapshot.
type Advisor struct {
	cfg      *config.Config
	stats    StatisticsProvider
	policies PolicyProvider
	workload WorkloadSource
	history  HistoryStore
	usage    *observability.UsageTracker

	analyzer  *analyzer.Analyzer
	generator *candidate.Generator
	model     *cost.Model
	partition *partition.Advisor

	now func() time.Time
}

// New creates an Advisor.
func New(opts Options) (*Advisor, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("advisor: config is required")
	}
	if opts.Stats == nil || opts.Policies == nil || opts.Workload == nil {
		return nil, fmt.Errorf("advisor: statistics, policy and workload providers are required")
	}
	cfg := opts.Config
	return &Advisor{
		cfg:       cfg,
		stats:     opts.Stats,
		policies:  opts.Policies,
		workload:  opts.Workload,
		history:   opts.History,
		usage:     opts.Usage,
		analyzer:  analyzer.New(cfg.Thresholds),
		generator: candidate.New(cfg.Thresholds),
		model:     cost.New(cfg.Cost, cfg.Thresholds),
		partition: partition.NewAdvisor(cfg.Partition),
		now:       time.Now,
	}, nil
}

// Run performs one advisory run for a table. External reads are bounded by
// the configured run timeout; a run that exceeds it returns a TimedOutError
// and no report.
func (a *Advisor) Run(ctx context.Context, table string) (*types.RecommendationReport, error) {
	table = strings.ToLower(strings.TrimSpace(table))
	if table == "" {
		return nil, fmt.Errorf("advisor: table is required")
	}
	runID := uuid.Must(uuid.NewV7()).String()
	start := a.now()

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Run.Timeout)
	defer cancel()

	rec := workload.NewRecorder(table)
	in, batch, err := a.pull(runCtx, table, rec)
	if err != nil {
		log.Printf("advisor: run %s table=%s: %v", runID, table, err)
		return nil, err
	}

	report, shapes := a.evaluate(table, rec, in, batch)
	if err := runCtx.Err(); err != nil {
		return nil, ctxError(runCtx, "evaluation")
	}

	if a.history != nil && a.cfg.History.Enabled && len(shapes) > 0 {
		if err := a.history.Append(ctx, runID, table, shapes, start); err != nil {
			log.Printf("[WARN] advisor: run %s table=%s: history append failed: %v", runID, table, err)
		}
	}

	log.Printf("advisor: run %s table=%s: %d shapes, %d indexes, partition=%v, blocked=%d in %s",
		runID, table, report.Summary.ShapesAnalyzed, report.Summary.IndexesRecommended,
		report.Summary.PartitionProposed, report.Summary.Blocked, a.now().Sub(start))
	return report, nil
}

// evaluate runs the pure part of the pipeline over the pulled inputs.
func (a *Advisor) evaluate(table string, rec *workload.Recorder, in *inputs, batch workload.BatchResult) (*types.RecommendationReport, []*types.QueryShape) {
	shapes := rec.Shapes()
	var tableIssues []types.Issue
	if in.tableMissing {
		in.table.RowCount = estimateRows(shapes)
		tableIssues = append(tableIssues, types.Issue{
			Code: types.IssueMissingStatistics,
			Message: fmt.Sprintf("no table statistics for %s; row count estimated at %d from rows scanned, estimates are low confidence",
				table, in.table.RowCount),
			Subject: table,
		})
	}
	snap := types.NewStatisticsSnapshot(in.table, in.columns)
	if a.usage != nil {
		for _, s := range shapes {
			a.usage.RecordShape(s)
		}
	}

	analyzed, issues := a.analyzer.AnalyzeShapes(shapes, snap)
	a.applyHistory(analyzed, in.history)

	var indexable []types.AnalyzedShape
	var findings []types.ShapeFinding
	for _, as := range analyzed {
		if full, reason := a.model.AssessShape(as.Shape, as.Predicates); full {
			findings = append(findings, types.ShapeFinding{
				ShapeKey:       as.Shape.Key,
				NormalizedText: as.Shape.NormalizedText,
				Frequency:      as.Shape.Frequency,
				MeanExecTimeMs: as.Shape.MeanExecTimeMs,
				Reason:         reason,
			})
			continue
		}
		indexable = append(indexable, as)
	}

	cands := a.generator.Generate(indexable)

	// cost model and partitioning advisor only read the analyzed shapes
	var (
		scored      []cost.Scored
		plan        *types.PartitionPlan
		planInvalid *types.Issue
		g           errgroup.Group
	)
	g.Go(func() error {
		scored = a.model.EvaluateAll(cands, snap, indexable)
		if in.tableMissing {
			for i := range scored {
				scored[i].Score.LowConfidence = true
				scored[i].Candidate.LowConfidence = true
			}
		}
		return nil
	})
	g.Go(func() error {
		rows := in.table.RowCount
		p, ok := a.partition.Advise(partition.TableProfile{
			Table:      table,
			RowCount:   rows,
			GrowthRate: in.table.GrowthRate,
			Snapshot:   snap,
			Shapes:     analyzed,
		})
		if ok {
			plan, planInvalid = checkPlan(p)
		}
		return nil
	})
	_ = g.Wait()

	var recommended []cost.Scored
	for _, s := range scored {
		if s.Score.Recommended {
			recommended = append(recommended, s)
		}
	}
	compat := access.Check(candidatesOf(recommended), plan, in.policies)

	report := assemble(table, recommended, plan, compat)
	report.FullScanShapes = findings
	if planInvalid != nil {
		report.Errors = append(report.Errors, *planInvalid)
	}
	report.Warnings = append(append(append(batch.Issues, tableIssues...), issues...), compat.Warnings...)
	if batch.OtherTable > 0 {
		report.Warnings = append(report.Warnings, types.Issue{
			Code:    types.IssueOtherTable,
			Message: fmt.Sprintf("%d sampled queries target other tables and were ignored", batch.OtherTable),
			Subject: table,
		})
	}
	if assumed(scored) {
		report.Warnings = append(report.Warnings, types.Issue{
			Code: types.IssueAssumedWriteFrequency,
			Message: fmt.Sprintf("no write frequency in table statistics; maintenance cost assumes %g writes per period",
				a.cfg.Cost.AssumedWriteFrequency),
			Subject: table,
		})
	}

	report.Summary.QueriesSampled = len(in.entries)
	report.Summary.QueriesRecorded = batch.Recorded
	report.Summary.MalformedDropped = batch.Malformed
	report.Summary.OtherTableIgnored = batch.OtherTable
	report.Summary.ShapesAnalyzed = len(analyzed)
	report.Summary.CandidatesEvaluated = len(scored)
	return report, shapes
}

// checkPlan routes the plan through a Router, which validates it. A plan
// that does not send every value to exactly one bucket is dropped.
func checkPlan(plan *types.PartitionPlan) (*types.PartitionPlan, *types.Issue) {
	if plan == nil {
		return nil, nil
	}
	if _, err := partition.NewRouter(plan); err != nil {
		log.Printf("[WARN] advisor: table=%s: dropping partition plan on %s: %v", plan.Table, plan.KeyColumn, err)
		return nil, &types.Issue{
			Code:    types.IssueInvalidPlan,
			Message: fmt.Sprintf("partition plan on %s dropped: %v", plan.KeyColumn, err),
			Subject: plan.Table,
		}
	}
	return plan, nil
}

// applyHistory boosts shape weights by the mean frequency seen in earlier runs.
func (a *Advisor) applyHistory(analyzed []types.AnalyzedShape, history map[string]float64) {
	if len(history) == 0 || a.cfg.Thresholds.HistoryWeight == 0 {
		return
	}
	for i := range analyzed {
		if mean, ok := history[analyzed[i].Shape.Key]; ok && mean > 0 {
			analyzed[i].Weight += a.cfg.Thresholds.HistoryWeight * mean
		}
	}
}

func candidatesOf(scored []cost.Scored) []*types.IndexCandidate {
	out := make([]*types.IndexCandidate, len(scored))
	for i, s := range scored {
		out[i] = s.Candidate
	}
	return out
}

func assumed(scored []cost.Scored) bool {
	for _, s := range scored {
		if s.Score.AssumedWriteFrequency {
			return true
		}
	}
	return false
}

// Result is the outcome of one run in RunMany.
type Result struct {
	Table  string
	Report *types.RecommendationReport
	Err    error
}

// RunMany runs tables in parallel, at most Run.MaxParallelRuns at a time. A
// failing run does not cancel its siblings. Results follow the input order.
func (a *Advisor) RunMany(ctx context.Context, tables []string) []Result {
	results := make([]Result, len(tables))
	var g errgroup.Group
	g.SetLimit(a.cfg.Run.MaxParallelRuns)
	for i, table := range tables {
		i, table := i, table
		g.Go(func() error {
			report, err := a.Run(ctx, table)
			results[i] = Result{Table: table, Report: report, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// JoinErrors joins the errors of every failed run, prefixed by table.
func JoinErrors(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Table, r.Err))
		}
	}
	return errors.Join(errs...)
}
